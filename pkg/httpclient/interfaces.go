package httpclient

import "context"

// Doer issues a request and returns the raw response without decoding it.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Sender issues a request and returns the decoded body (string or JSON value).
type Sender interface {
	Send(ctx context.Context, req Request) (any, error)
}
