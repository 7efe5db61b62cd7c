package httpclient

import (
	"errors"
	"net/http"
)

// Verbs with a dedicated handler. Any other method string is sent as GET
// unless the dispatcher runs with strict methods.
const (
	MethodGet    = http.MethodGet
	MethodPost   = http.MethodPost
	MethodPut    = http.MethodPut
	MethodDelete = http.MethodDelete
)

var (
	// ErrUnsupportedMethod is returned by strict dispatchers for methods outside the verb table.
	ErrUnsupportedMethod = errors.New("unsupported method")
	// ErrDataAndJSON is returned when a request carries both a data body and a JSON body.
	ErrDataAndJSON = errors.New("data and json parameters can not be used at the same time")
)

// BasicAuth holds HTTP basic-auth credentials applied to the session.
type BasicAuth struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// Request describes a single outbound call.
//
// Data may be a map[string]string, map[string]any or url.Values (sent
// form-encoded) or a string / []byte (sent raw). JSON is marshalled as the
// request body with a JSON content type.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Params  map[string]string
	Data    any
	JSON    any
	Proxy   string
	Auth    *BasicAuth
	// Text selects text decoding of the response body instead of JSON.
	Text bool
}
