package publishers

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a captured response published downstream.
type Event struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	Method      string    `json:"method"`
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	Payload     any       `json:"payload"`
	CollectedAt time.Time `json:"collected_at"`
}

// NewEvent constructs an Event for the given request capture.
func NewEvent(requestID, method, url string, status int, payload any) Event {
	return Event{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		Method:      method,
		URL:         url,
		StatusCode:  status,
		Payload:     payload,
		CollectedAt: time.Now().UTC(),
	}
}
