package reqflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport issues HTTP requests described by a RequestConfig. It resolves
// URLs against a base URL, encodes bodies, retries per its RetryPolicy, shapes
// the response body per ResponseType and runs the interceptor chains around
// every call. It is safe for concurrent use.
type Transport struct {
	httpClient     HTTPClient
	baseURL        string
	header         http.Header
	validateStatus StatusValidator
	retryPolicy    RetryPolicy
	middleware     []Middleware
	interceptors   *Interceptors
	logger         Logger
	metrics        *MetricsCollector
}

// NewTransport constructs a Transport using the transport-level options;
// hook options are ignored.
func NewTransport(opts ...Option) (*Transport, error) {
	o := resolveOptions(opts)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return newTransport(o), nil
}

func newTransport(o *options) *Transport {
	return &Transport{
		httpClient:     o.httpClient,
		baseURL:        o.baseURL,
		header:         o.header.Clone(),
		validateStatus: o.validateStatus,
		retryPolicy:    o.retryPolicy,
		middleware:     append([]Middleware(nil), o.middleware...),
		interceptors:   &Interceptors{},
		logger:         o.logger,
		metrics:        o.metrics,
	}
}

// Interceptors returns the transport's hook chains.
func (t *Transport) Interceptors() *Interceptors {
	return t.interceptors
}

// Execute runs cfg through the request interceptors, dispatches it and
// settles the result through the response interceptors. Every error returned
// is a *RequestError unless an interceptor substituted its own.
func (t *Transport) Execute(ctx context.Context, cfg *RequestConfig) (*Response, error) {
	if cfg == nil {
		err := &RequestError{
			Type:      ErrorTypeValidation,
			Code:      ErrCodeBadOption,
			Message:   "nil request config",
			Timestamp: time.Now(),
		}
		return t.interceptors.runResponse(ctx, nil, err)
	}

	start := time.Now()
	cfg = cfg.WithContext(ctx)

	var resp *Response
	next, err := t.interceptors.runRequest(cfg.Context(), cfg)
	if next != nil {
		cfg = next
	}
	if err != nil {
		err = t.requestPhaseError(err, cfg, start)
	} else {
		resp, err = t.dispatch(cfg, start)
	}

	return t.interceptors.runResponse(ctx, resp, err)
}

// requestPhaseError wraps a request interceptor failure unless it already is
// a *RequestError.
func (t *Transport) requestPhaseError(err error, cfg *RequestConfig, start time.Time) error {
	if reqErr, ok := err.(*RequestError); ok {
		if reqErr.Config == nil {
			reqErr.Config = cfg
		}
		return reqErr
	}
	return t.newError(ErrorTypeRequest, ErrCodeBadOption, "request hook failed", err, cfg, nil, 0, start)
}

// dispatch performs the round trip with retries and shapes the response.
func (t *Transport) dispatch(cfg *RequestConfig, start time.Time) (*Response, error) {
	if !cfg.ResponseType.Valid() {
		return nil, t.newError(ErrorTypeValidation, ErrCodeBadOption,
			fmt.Sprintf("unknown response type %q", cfg.ResponseType), nil, cfg, nil, 0, start)
	}

	target, err := t.resolveURL(cfg)
	if err != nil {
		return nil, t.newError(ErrorTypeValidation, ErrCodeBadOption, "invalid request URL", err, cfg, nil, 0, start)
	}
	header := t.mergeHeader(cfg.Header)
	body, err := encodeBody(cfg.Body, header)
	if err != nil {
		return nil, t.newError(ErrorTypeValidation, ErrCodeBadOption, "cannot encode request body", err, cfg, nil, 0, start)
	}

	ctx := cfg.Context()
	release := func() {}
	if cfg.Signal != nil {
		ctx, release = bindSignal(ctx, cfg.Signal)
	}

	method := cfg.method()
	endpoint := endpointOf(target)
	t.metrics.RecordRequestStart(method, endpoint)
	defer t.metrics.RecordRequestEnd(method, endpoint)

	t.logger.Debug("Starting request", "requestID", cfg.RequestID(), "method", method, "url", target)

	httpResp, attempt, err := t.roundTrip(ctx, cfg, method, target, header, body)
	if err != nil {
		release()
		errType, code, cause := classifyTransportError(ctx, err)
		t.metrics.RecordError(errType, method, endpoint)
		t.metrics.RecordRequest(method, endpoint, 0, time.Since(start))
		return nil, t.newError(errType, code, "request failed", cause, cfg, nil, attempt, start)
	}

	resp, err := t.readResponse(cfg, httpResp, release)
	t.metrics.RecordRequest(method, endpoint, httpResp.StatusCode, time.Since(start))
	if err != nil {
		errType, code, cause := classifyTransportError(ctx, err)
		t.metrics.RecordError(errType, method, endpoint)
		return nil, t.newError(errType, code, "cannot read response body", cause, cfg, nil, attempt, start)
	}

	if !t.validateStatus(resp.StatusCode) {
		t.metrics.RecordError(ErrorTypeHTTP, method, endpoint)
		code := ErrCodeBadResponse
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			code = ErrCodeBadRequest
		}
		reqErr := t.newError(ErrorTypeHTTP, code,
			fmt.Sprintf("request failed with status code %d", resp.StatusCode), nil, cfg, resp, attempt, start)
		reqErr.StatusCode = resp.StatusCode
		return nil, reqErr
	}

	return resp, nil
}

// roundTrip sends the request, retrying while the policy allows. It returns
// the last attempt number.
func (t *Transport) roundTrip(ctx context.Context, cfg *RequestConfig, method, target string, header http.Header, body []byte) (*http.Response, int, error) {
	endpoint := endpointOf(target)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			t.metrics.RecordRetry(method, endpoint, attempt)
		}

		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, attempt, err
		}
		if body == nil {
			req.Body = http.NoBody
		}
		req.Header = header.Clone()

		resp, err := t.executeMiddleware(req)
		if t.retryPolicy == nil || ctx.Err() != nil {
			return resp, attempt, err
		}

		observed := resp
		if observed == nil {
			// the policy still needs the method of a failed attempt
			observed = &http.Response{Request: req}
		}
		delay, retry := t.retryPolicy.ShouldRetry(observed, err, attempt)
		if !retry {
			return resp, attempt, err
		}

		t.logger.Info("Scheduling retry", "requestID", cfg.RequestID(), "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

func (t *Transport) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(t.middleware) == 0 {
		return t.httpClient.Do(req)
	}

	current := RoundTripperFunc(t.httpClient.Do)

	for i := len(t.middleware) - 1; i >= 0; i-- {
		middleware := t.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// readResponse shapes the body per response type. Streams stay open and
// release the dispatch resources when closed; other bodies are read fully.
func (t *Transport) readResponse(cfg *RequestConfig, httpResp *http.Response, release func()) (*Response, error) {
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Header:     httpResp.Header,
		Config:     cfg,
		Request:    httpResp.Request,
	}

	kind := cfg.ResponseType.orDefault()
	if kind == ResponseStream && t.validateStatus(httpResp.StatusCode) {
		resp.Data = &releaseOnClose{ReadCloser: httpResp.Body, release: release}
		return resp, nil
	}

	defer release()
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw

	switch kind {
	case ResponseJSON:
		resp.Data, _ = parseJSON(string(raw))
	case ResponseText, ResponseDocument:
		resp.Data = string(raw)
	case ResponseBlob:
		resp.Data = NewBlob(raw, httpResp.Header.Get("Content-Type"))
	case ResponseArrayBuffer:
		resp.Data = raw
	case ResponseStream:
		resp.Data = io.NopCloser(bytes.NewReader(raw))
	}
	return resp, nil
}

func (t *Transport) mergeHeader(h http.Header) http.Header {
	merged := t.header.Clone()
	if merged == nil {
		merged = make(http.Header)
	}
	for k, v := range h {
		merged[k] = append([]string(nil), v...)
	}
	return merged
}

func (t *Transport) resolveURL(cfg *RequestConfig) (string, error) {
	raw := cfg.URL
	if t.baseURL != "" && !isAbsoluteURL(raw) {
		raw = combineURLs(t.baseURL, raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("url %q is not absolute", raw)
	}
	if len(cfg.Params) > 0 {
		q := u.Query()
		for k, vs := range cfg.Params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (t *Transport) newError(errorType, code, message string, cause error, cfg *RequestConfig, resp *Response, attempt int, start time.Time) *RequestError {
	maxRetries := 0
	if p, ok := t.retryPolicy.(*DefaultRetryPolicy); ok {
		maxRetries = p.maxRetries
	}
	return &RequestError{
		Type:       errorType,
		Code:       code,
		Message:    message,
		Cause:      cause,
		RequestID:  cfg.RequestID(),
		Method:     cfg.method(),
		URL:        cfg.URL,
		Attempt:    attempt,
		MaxRetries: maxRetries,
		Timestamp:  time.Now(),
		Duration:   time.Since(start),
		Config:     cfg,
		Response:   resp,
	}
}

// encodeBody buffers the request body so retries can replay it, setting a
// Content-Type when the body kind implies one.
func encodeBody(body any, header http.Header) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	case json.RawMessage:
		setDefaultContentType(header, "application/json")
		return b, nil
	case url.Values:
		setDefaultContentType(header, "application/x-www-form-urlencoded")
		return []byte(b.Encode()), nil
	case io.Reader:
		return io.ReadAll(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		setDefaultContentType(header, "application/json")
		return encoded, nil
	}
}

func setDefaultContentType(header http.Header, contentType string) {
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}
}

func isAbsoluteURL(raw string) bool {
	if strings.HasPrefix(raw, "//") {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs()
}

func combineURLs(baseURL, relative string) string {
	if relative == "" {
		return baseURL
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(relative, "/")
}

// endpointOf extracts host + path for metrics labels.
func endpointOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}

	var builder strings.Builder
	builder.WriteString(u.Host)
	if u.Path != "" && u.Path != "/" {
		builder.WriteString(u.Path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}

// bindSignal derives a context that is also cancelled when signal is done.
// The returned release must be called once the request is finished.
func bindSignal(ctx, signal context.Context) (context.Context, func()) {
	bound, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(signal, func() {
		cancel(context.Cause(signal))
	})
	return bound, func() {
		stop()
		cancel(nil)
	}
}

type releaseOnClose struct {
	io.ReadCloser
	release func()
}

func (r *releaseOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.release()
	return err
}
