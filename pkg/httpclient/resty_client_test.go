package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDispatcherRoutesVerbs(t *testing.T) {
	var gotMethod atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod.Store(r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	cases := []struct {
		method string
		want   string
	}{
		{method: "GET", want: http.MethodGet},
		{method: "POST", want: http.MethodPost},
		{method: "PUT", want: http.MethodPut},
		{method: "DELETE", want: http.MethodDelete},
		{method: "PATCH", want: http.MethodGet},
		{method: "get", want: http.MethodGet},
		{method: "", want: http.MethodGet},
	}

	for _, tc := range cases {
		t.Run("method_"+tc.method, func(t *testing.T) {
			if _, err := Send(context.Background(), Request{Method: tc.method, URL: srv.URL}); err != nil {
				t.Fatalf("Send: %v", err)
			}
			if got := gotMethod.Load(); got != tc.want {
				t.Fatalf("method %q dispatched as %v, want %s", tc.method, got, tc.want)
			}
		})
	}
}

func TestStrictDispatcherRejectsUnknownMethod(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	d := NewDispatcher(WithStrictMethods())
	_, err := d.Send(context.Background(), Request{Method: "PATCH", URL: srv.URL + "/items/1"})
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("strict dispatcher must not touch the network, got %d hits", hits.Load())
	}

	if _, err := d.Send(context.Background(), Request{Method: "PUT", URL: srv.URL, Text: true}); err != nil {
		t.Fatalf("strict dispatcher rejected PUT: %v", err)
	}
}

func TestSendGetWithParamsReturnsJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Errorf("page = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"items":["a","b"],"page":1,"next":null}`)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{
		Method: "GET",
		URL:    srv.URL + "/items",
		Params: map[string]string{"page": "1"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := map[string]any{
		"items": []any{"a", "b"},
		"page":  float64(1),
		"next":  nil,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded body mismatch (-want +got):\n%s", diff)
	}
}

func TestSendPostJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
			t.Errorf("content type = %q", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if body["name"] != "x" {
			t.Errorf("body = %#v", body)
		}
		_, _ = io.WriteString(w, `{"id":7,"name":"x"}`)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{
		Method: "POST",
		URL:    srv.URL + "/items",
		JSON:   map[string]any{"name": "x"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"id": float64(7), "name": "x"}, got); diff != "" {
		t.Fatalf("decoded body mismatch (-want +got):\n%s", diff)
	}
}

func TestSendJSONScalarBodies(t *testing.T) {
	cases := map[string]struct {
		value any
		wire  string
	}{
		"string": {value: "x", wire: `"x"`},
		"number": {value: float64(5), wire: `5`},
		"bool":   {value: true, wire: `true`},
		"array":  {value: []any{"a", float64(1)}, wire: `["a",1]`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				if string(raw) != tc.wire {
					t.Errorf("wire body = %q, want %q", raw, tc.wire)
				}
				if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
					t.Errorf("content type = %q", ct)
				}
				_, _ = w.Write(raw)
			}))
			defer srv.Close()

			got, err := Send(context.Background(), Request{Method: "PUT", URL: srv.URL, JSON: tc.value})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if diff := cmp.Diff(tc.value, got); diff != "" {
				t.Fatalf("echoed body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSendAppliesHeadersAndBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Token"); got != "abc" {
			t.Errorf("X-Token = %q", got)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "s3cret" {
			t.Errorf("basic auth = %q/%q ok=%v", user, pass, ok)
		}
		_, _ = io.WriteString(w, `true`)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{
		Method:  "DELETE",
		URL:     srv.URL,
		Headers: map[string]string{"X-Token": "abc"},
		Auth:    &BasicAuth{Username: "alice", Password: "s3cret"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != true {
		t.Fatalf("expected true, got %#v", got)
	}
}

func TestSendFormData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("q"); got != "golang" {
			t.Errorf("form q = %q", got)
		}
		if got := r.PostForm.Get("n"); got != "3" {
			t.Errorf("form n = %q", got)
		}
		_, _ = io.WriteString(w, `"ok"`)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{
		Method: "PUT",
		URL:    srv.URL,
		Data:   map[string]any{"q": "golang", "n": 3},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected \"ok\", got %#v", got)
	}
}

func TestSendRawStringData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if string(raw) != "raw payload" {
			t.Errorf("body = %q", raw)
		}
		_, _ = io.WriteString(w, "done")
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{
		Method: "POST",
		URL:    srv.URL,
		Data:   "raw payload",
		Text:   true,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "done" {
		t.Fatalf("expected done, got %#v", got)
	}
}

func TestSendRejectsDataWithJSON(t *testing.T) {
	_, err := Send(context.Background(), Request{
		Method: "POST",
		URL:    "http://127.0.0.1:1",
		Data:   "a",
		JSON:   map[string]any{"b": 1},
	})
	if !errors.Is(err, ErrDataAndJSON) {
		t.Fatalf("expected ErrDataAndJSON, got %v", err)
	}
}

func TestSendTextReturnsBodyVerbatim(t *testing.T) {
	const body = `{"looks":"like json"}` + "\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{Method: "GET", URL: srv.URL + "/raw", Text: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != body {
		t.Fatalf("expected %q, got %#v", body, got)
	}
}

func TestSendEmptyBodyDecodesToNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{Method: "DELETE", URL: srv.URL + "/items/7"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for an empty body, got %#v", got)
	}

	got, err = Decode(NewResponse(http.StatusOK, nil, []byte(" \n\t")), false)
	if err != nil || got != nil {
		t.Fatalf("whitespace body: got %#v, err %v", got, err)
	}
}

func TestSendTextTranscodesDeclaredCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=ISO-8859-1")
		_, _ = w.Write([]byte("R\xe9sum\xe9"))
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{Method: "GET", URL: srv.URL, Text: true})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != "Résumé" {
		t.Fatalf("expected transcoded text, got %q", got)
	}

	// no declared charset keeps the bytes as sent
	raw, err := Decode(NewResponse(http.StatusOK, http.Header{"Content-Type": {"text/plain"}}, []byte("R\xe9")), true)
	if err != nil || raw != "R\xe9" {
		t.Fatalf("undeclared charset: got %q, err %v", raw, err)
	}
}

func TestSendJSONFailsOnInvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "<html>not json</html>")
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err == nil {
		t.Fatalf("expected decode error, got %#v", got)
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *json.SyntaxError, got %T: %v", err, err)
	}
}

func TestSendDoesNotInterceptErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"missing"}`)
	}))
	defer srv.Close()

	got, err := Send(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if diff := cmp.Diff(map[string]any{"error": "missing"}, got); diff != "" {
		t.Fatalf("decoded body mismatch (-want +got):\n%s", diff)
	}

	resp, err := NewDispatcher().Do(context.Background(), Request{Method: "GET", URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode() != http.StatusNotFound || !resp.IsError() {
		t.Fatalf("status = %d isError=%v", resp.StatusCode(), resp.IsError())
	}
}

func TestSendThroughProxy(t *testing.T) {
	var target atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target.Store(r.URL.String())
		_, _ = io.WriteString(w, `{"via":"proxy"}`)
	}))
	defer proxy.Close()

	got, err := Send(context.Background(), Request{
		Method: "GET",
		URL:    "http://api.example.com/items/1",
		Params: map[string]string{"page": "1"},
		Proxy:  proxy.URL,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if target.Load() != "http://api.example.com/items/1?page=1" {
		t.Fatalf("proxy saw %v", target.Load())
	}
	if diff := cmp.Diff(map[string]any{"via": "proxy"}, got); diff != "" {
		t.Fatalf("decoded body mismatch (-want +got):\n%s", diff)
	}
}

// trackingTransport counts session releases and optionally fails or serves a canned body.
type trackingTransport struct {
	err        error
	body       *trackingBody
	idleCloses atomic.Int32
}

func (tt *trackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if tt.err != nil {
		return nil, tt.err
	}
	return &http.Response{
		StatusCode:    http.StatusOK,
		Header:        http.Header{},
		Body:          tt.body,
		ContentLength: -1,
		Request:       req,
	}, nil
}

func (tt *trackingTransport) CloseIdleConnections() { tt.idleCloses.Add(1) }

type trackingBody struct {
	io.Reader
	closed atomic.Bool
}

func (b *trackingBody) Close() error {
	b.closed.Store(true)
	return nil
}

func TestSendReleasesSessionOnTransportFailure(t *testing.T) {
	errBoom := errors.New("boom")
	tt := &trackingTransport{err: errBoom}

	_, err := NewDispatcher(WithTransport(tt)).Send(context.Background(), Request{Method: "GET", URL: "http://example.com"})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected transport error to propagate, got %v", err)
	}
	if tt.idleCloses.Load() != 1 {
		t.Fatalf("expected session released once, got %d", tt.idleCloses.Load())
	}
}

func TestSendReleasesResourcesOnDecodeFailure(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("not json")}
	tt := &trackingTransport{body: body}

	_, err := NewDispatcher(WithTransport(tt)).Send(context.Background(), Request{Method: "POST", URL: "http://example.com"})
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if !body.closed.Load() {
		t.Fatalf("response body was not closed")
	}
	if tt.idleCloses.Load() != 1 {
		t.Fatalf("expected session released once, got %d", tt.idleCloses.Load())
	}
}

func TestSendHonorsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Send(ctx, Request{Method: "GET", URL: srv.URL}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConcurrentSendsAreIndependent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `"`+r.Header.Get("X-Caller")+`"`)
	}))
	defer srv.Close()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		caller := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Send(context.Background(), Request{
				Method:  "GET",
				URL:     srv.URL,
				Headers: map[string]string{"X-Caller": caller},
			})
			if err != nil {
				errs <- err
				return
			}
			if got != caller {
				errs <- errors.New("caller " + caller + " received " + got.(string))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
