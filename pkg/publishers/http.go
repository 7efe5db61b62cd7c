package publishers

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/capsule/pkg/httpclient"
)

type httpPublisher struct {
	id      string
	method  string
	url     string
	headers map[string]string
	timeout time.Duration
	client  httpclient.Doer
	typ     string
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}

	timeout := cfg.HTTP.TimeoutSeconds
	if timeout <= 0 {
		timeout = httpDefaultTimeoutSeconds
	}

	return &httpPublisher{
		id:      cfg.ID,
		typ:     TypeHTTP,
		method:  cfg.HTTP.Method,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		timeout: time.Duration(timeout) * time.Second,
		// a misspelled webhook method must not silently turn into a GET
		client: httpclient.NewDispatcher(httpclient.WithStrictMethods()),
		log:    ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return h.typ }

// Publish sends the event as a JSON body and fails on a non-2xx answer
// or when the webhook does not answer within the configured timeout.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	resp, err := h.client.Do(ctx, httpclient.Request{
		Method:  h.method,
		URL:     h.url,
		Headers: h.headers,
		JSON:    evt,
		Text:    true,
	})
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return fmt.Errorf("http response status %d: %s", resp.StatusCode(), resp.Snippet())
	}
	h.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"event_id":     evt.ID,
		"status":       resp.StatusCode(),
	})
	return nil
}
