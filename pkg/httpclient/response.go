package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html/charset"
)

// Response is a fully read HTTP response. The connection behind it has
// already been released when a Response is handed out.
type Response struct {
	status int
	header http.Header
	body   []byte
}

// NewResponse builds a Response from already read parts, mainly for tests and fakes.
func NewResponse(status int, header http.Header, body []byte) *Response {
	return &Response{status: status, header: header, body: body}
}

func (r *Response) Body() []byte        { return r.body }
func (r *Response) StatusCode() int     { return r.status }
func (r *Response) Header() http.Header { return r.header }

// IsError reports whether the status code is outside the 2xx/3xx range.
func (r *Response) IsError() bool { return r.status > 399 }

// Decode returns the body as a string when text is true, otherwise the
// body decoded as JSON. Bodies declared in a non UTF-8 charset are
// transcoded first. An empty or all-whitespace body decodes to nil; any
// other body that is not valid JSON is an error.
func Decode(resp *Response, text bool) (any, error) {
	if resp == nil {
		return nil, fmt.Errorf("decode: nil response")
	}
	body, err := resp.utf8Body()
	if err != nil {
		return nil, err
	}
	if text {
		return string(body), nil
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// utf8Body converts the body using the charset parameter of Content-Type.
// Without a declared charset the bytes are returned as they are.
func (r *Response) utf8Body() ([]byte, error) {
	_, params, err := mime.ParseMediaType(r.header.Get("Content-Type"))
	if err != nil || params["charset"] == "" {
		return r.body, nil
	}
	enc, name := charset.Lookup(params["charset"])
	if enc == nil || name == "utf-8" {
		return r.body, nil
	}
	return enc.NewDecoder().Bytes(r.body)
}

// Snippet returns a trimmed prefix of the body suitable for error messages.
func (r *Response) Snippet() string {
	const maxLen = 512
	s := strings.TrimSpace(string(r.body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
