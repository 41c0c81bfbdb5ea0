package reqflow

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// ResponseType declares how the transport should shape a response body.
type ResponseType string

const (
	ResponseJSON        ResponseType = "json"
	ResponseText        ResponseType = "text"
	ResponseBlob        ResponseType = "blob"
	ResponseArrayBuffer ResponseType = "arrayBuffer"
	ResponseStream      ResponseType = "stream"
	ResponseDocument    ResponseType = "document"
)

// Valid reports whether t is a known response type. The empty value is valid
// and means json.
func (t ResponseType) Valid() bool {
	switch t {
	case "", ResponseJSON, ResponseText, ResponseBlob, ResponseArrayBuffer, ResponseStream, ResponseDocument:
		return true
	default:
		return false
	}
}

// orDefault returns json for the zero value.
func (t ResponseType) orDefault() ResponseType {
	if t == "" {
		return ResponseJSON
	}
	return t
}

// RequestConfig describes one logical request.
//
// Body may be nil, []byte, string, io.Reader, url.Values, or any value that
// encodes to JSON. Signal is a caller-owned cancellation source: when set,
// the request is bound to it and is not tracked by CancelAllRequest.
type RequestConfig struct {
	Method       string
	URL          string
	Params       url.Values
	Header       http.Header
	Body         any
	ResponseType ResponseType
	Signal       context.Context

	ctx       context.Context
	requestID string
}

// Context returns the dispatch context. It is never nil.
func (c *RequestConfig) Context() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}

// WithContext returns a shallow copy of c bound to ctx.
func (c *RequestConfig) WithContext(ctx context.Context) *RequestConfig {
	if ctx == nil {
		panic("reqflow: nil context")
	}
	clone := c.Clone()
	clone.ctx = ctx
	return clone
}

// RequestID returns the identifier assigned by the pipeline, or "" before
// dispatch.
func (c *RequestConfig) RequestID() string {
	if c == nil {
		return ""
	}
	return c.requestID
}

// Clone returns a copy of c with its own header and params maps.
func (c *RequestConfig) Clone() *RequestConfig {
	clone := *c
	if c.Header != nil {
		clone.Header = c.Header.Clone()
	} else {
		clone.Header = make(http.Header)
	}
	if c.Params != nil {
		clone.Params = make(url.Values, len(c.Params))
		for k, v := range c.Params {
			clone.Params[k] = append([]string(nil), v...)
		}
	}
	return &clone
}

func (c *RequestConfig) method() string {
	if c.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(c.Method)
}

// Response is the raw transport response plus the shaped body.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	// Raw holds the body bytes as read from the wire; nil for streams.
	Raw []byte
	// Data is the body shaped per ResponseType, then normalized.
	Data any
	// Config is the final request configuration.
	Config  *RequestConfig
	Request *http.Request
}

// ContentType returns the Content-Type response header.
func (r *Response) ContentType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}

func (r *Response) responseType() ResponseType {
	if r == nil || r.Config == nil {
		return ResponseJSON
	}
	return r.Config.ResponseType.orDefault()
}

// Blob is an immutable binary body with its declared media type.
type Blob struct {
	Type string
	data []byte
}

// NewBlob copies data into a Blob.
func NewBlob(data []byte, mediaType string) *Blob {
	return &Blob{Type: mediaType, data: append([]byte(nil), data...)}
}

// Size returns the blob length in bytes.
func (b *Blob) Size() int { return len(b.data) }

// Bytes returns a copy of the blob contents.
func (b *Blob) Bytes() []byte { return append([]byte(nil), b.data...) }

// FlatResult is the non-raising outcome of a flat request. Exactly one of
// Data or Err is meaningful. Response is nil only when no response was
// received.
type FlatResult struct {
	Data     any
	Err      error
	Response *Response
}

// OK reports whether the request succeeded.
func (r *FlatResult) OK() bool {
	return r != nil && r.Err == nil
}

// Middleware wraps a single transport round trip.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper represents the HTTP transport interface
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc is a helper type for middleware
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// HTTPClient abstracts HTTP request execution. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusValidator decides whether an HTTP status resolves or rejects.
type StatusValidator func(status int) bool

// DefaultValidateStatus accepts 2xx statuses.
func DefaultValidateStatus(status int) bool {
	return status >= 200 && status < 300
}

// IsHTTPSuccess reports 2xx and 304 as successful.
func IsHTTPSuccess(status int) bool {
	return (status >= 200 && status < 300) || status == http.StatusNotModified
}
