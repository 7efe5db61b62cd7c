package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samvad-hq/capsule/internal/extract"
	"github.com/samvad-hq/capsule/internal/logger"
	"github.com/samvad-hq/capsule/internal/storage"
	"github.com/samvad-hq/capsule/pkg/httpclient"
	"github.com/samvad-hq/capsule/pkg/publishers"
	"github.com/samvad-hq/capsule/pkg/requests"
)

// Result is the outcome of one request definition.
type Result struct {
	RequestID  string
	StatusCode int
	Payload    any
	Err        error
}

// Service executes request definitions, each over its own session.
type Service struct {
	client    httpclient.Doer
	publisher EventPublisher
	store     RecordSaver
	log       logger.Logger
}

// NewService wires a runner. publisher and store may be nil.
func NewService(client httpclient.Doer, publisher EventPublisher, log logger.Logger, store RecordSaver) *Service {
	if client == nil {
		client = httpclient.NewDispatcher()
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Service{
		client:    client,
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// Run executes every definition concurrently and waits for all of them.
// Results keep the order of defs; the error joins every per-request failure.
func (s *Service) Run(ctx context.Context, defs []requests.Definition) ([]Result, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("runner service is not initialized")
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no requests configured")
	}

	results := make([]Result, len(defs))
	var wg sync.WaitGroup
	for i, def := range defs {
		wg.Add(1)
		go func(i int, def requests.Definition) {
			defer wg.Done()
			results[i] = s.runOne(ctx, def)
		}(i, def)
	}
	wg.Wait()

	var errs []error
	for _, res := range results {
		if res.Err != nil {
			errs = append(errs, res.Err)
			s.log.ErrorObj("request failed", "request_error", map[string]any{
				"request_id": res.RequestID,
				"error":      res.Err.Error(),
			})
		}
	}
	return results, errors.Join(errs...)
}

func (s *Service) runOne(ctx context.Context, def requests.Definition) Result {
	res := Result{RequestID: def.ID}
	start := time.Now()

	resp, err := s.client.Do(ctx, def.ToRequest())
	if err != nil {
		res.Err = fmt.Errorf("request %s: %w", def.ID, err)
		return res
	}
	res.StatusCode = resp.StatusCode()

	payload, err := httpclient.Decode(resp, def.Text)
	if err != nil {
		res.Err = fmt.Errorf("decode request %s: %w", def.ID, err)
		return res
	}
	if def.Extract != "" {
		body, _ := payload.(string)
		texts, err := extract.Texts(body, def.Extract)
		if err != nil {
			res.Err = fmt.Errorf("extract request %s: %w", def.ID, err)
			return res
		}
		payload = texts
	}
	res.Payload = payload

	s.log.InfoObj("request completed", "request_result", map[string]any{
		"request_id": def.ID,
		"status":     res.StatusCode,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})

	var errs []error
	if s.store != nil {
		rec := storage.Record{
			RequestID:  def.ID,
			Method:     def.Method,
			URL:        def.URL,
			StatusCode: res.StatusCode,
			Payload:    payload,
			CapturedAt: time.Now().UTC(),
		}
		if err := s.store.Save(rec); err != nil {
			errs = append(errs, fmt.Errorf("store request %s: %w", def.ID, err))
		}
	}
	if s.publisher != nil {
		evt := publishers.NewEvent(def.ID, def.Method, def.URL, res.StatusCode, payload)
		if _, err := s.publisher.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("publish request %s: %w", def.ID, err))
		}
	}
	res.Err = errors.Join(errs...)
	return res
}
