package runner

import (
	"context"

	"github.com/samvad-hq/capsule/internal/storage"
	"github.com/samvad-hq/capsule/pkg/publishers"
)

// EventPublisher publishes captured responses downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// RecordSaver persists the last capture per request id.
type RecordSaver interface {
	Save(rec storage.Record) error
}
