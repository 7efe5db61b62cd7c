package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// verbFunc issues a prepared resty request with a fixed verb.
type verbFunc func(r *resty.Request, url string) (*resty.Response, error)

// verbs is the fixed dispatch table. Lookup is an exact, case-sensitive match.
var verbs = map[string]verbFunc{
	MethodGet:    (*resty.Request).Get,
	MethodPost:   (*resty.Request).Post,
	MethodDelete: (*resty.Request).Delete,
	MethodPut:    (*resty.Request).Put,
}

// SupportedMethod reports whether method has its own verb. Anything else
// is sent as GET, or rejected by a strict Dispatcher.
func SupportedMethod(method string) bool {
	_, ok := verbs[method]
	return ok
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithStrictMethods makes unknown methods fail with ErrUnsupportedMethod
// instead of falling back to GET.
func WithStrictMethods() Option {
	return func(d *Dispatcher) { d.strict = true }
}

// WithTransport replaces the round tripper used by every session.
func WithTransport(rt http.RoundTripper) Option {
	return func(d *Dispatcher) { d.transport = rt }
}

// WithLogger routes resty's own diagnostics to log (a *zap.SugaredLogger fits).
func WithLogger(log resty.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// Dispatcher sends one request per call over a session created for that call.
// It holds no connections between calls and is safe for concurrent use.
type Dispatcher struct {
	strict    bool
	transport http.RoundTripper
	log       resty.Logger
}

// NewDispatcher builds a Dispatcher with the given options.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

var (
	_ Doer   = (*Dispatcher)(nil)
	_ Sender = (*Dispatcher)(nil)

	defaultDispatcher = NewDispatcher()
)

// Send issues req with the default (lenient) dispatcher and decodes the body.
func Send(ctx context.Context, req Request) (any, error) {
	return defaultDispatcher.Send(ctx, req)
}

// Send issues req and returns the body as a string (req.Text) or as the decoded JSON value.
func (d *Dispatcher) Send(ctx context.Context, req Request) (any, error) {
	resp, err := d.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return Decode(resp, req.Text)
}

// Do issues req and returns the fully read response. Non-2xx statuses are
// not errors; transport errors are returned as resty reports them.
func (d *Dispatcher) Do(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	verb, ok := verbs[req.Method]
	if !ok {
		if d.strict {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
		}
		verb = verbs[MethodGet]
	}
	if req.Data != nil && req.JSON != nil {
		return nil, ErrDataAndJSON
	}

	sess, err := d.openSession(req)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	r := sess.client.R().SetContext(ctx)
	if len(req.Params) > 0 {
		r.SetQueryParams(req.Params)
	}
	setData(r, req.Data)
	if req.JSON != nil {
		// resty sends strings raw and rejects scalars, so encode every value here.
		payload, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, err
		}
		r.SetHeader("Content-Type", "application/json").SetBody(payload)
	}

	// resty reads and closes the body before returning.
	resp, err := verb(r, req.URL)
	if err != nil {
		return nil, err
	}
	return &Response{
		status: resp.StatusCode(),
		header: resp.Header(),
		body:   resp.Body(),
	}, nil
}

// session is the per-call client carrying headers, auth and proxy.
type session struct {
	client *resty.Client
}

func (d *Dispatcher) openSession(req Request) (*session, error) {
	c := resty.New().
		SetDisableWarn(true).
		SetAllowGetMethodPayload(true)
	if d.log != nil {
		c.SetLogger(d.log)
	}
	if d.transport != nil {
		c.SetTransport(d.transport)
	}
	if len(req.Headers) > 0 {
		c.SetHeaders(req.Headers)
	}
	if req.Auth != nil {
		c.SetBasicAuth(req.Auth.Username, req.Auth.Password)
	}
	if req.Proxy != "" {
		if _, err := url.Parse(req.Proxy); err != nil {
			return nil, err
		}
		c.SetProxy(req.Proxy)
	}
	return &session{client: c}, nil
}

// close drops every pooled connection the session opened.
func (s *session) close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.GetClient().CloseIdleConnections()
}

func setData(r *resty.Request, data any) {
	switch v := data.(type) {
	case nil:
	case map[string]string:
		r.SetFormData(v)
	case url.Values:
		r.SetFormDataFromValues(v)
	case map[string]any:
		form := make(map[string]string, len(v))
		for k, val := range v {
			form[k] = fmt.Sprint(val)
		}
		r.SetFormData(form)
	default:
		r.SetBody(v)
	}
}
