package reqflow

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tidwall/gjson"
)

const defaultBackendErrorMessage = "the backend request error"

// pipeline is the dispatch core shared by both façades. It owns the
// transport, the cancellation registry and the instance state, and installs
// itself as the transport's first request and response interceptor.
type pipeline struct {
	transport *Transport
	registry  *Registry
	state     *State
	hooks     Hooks

	requestIDGen    func() string
	requestIDHeader string

	logger  Logger
	metrics *MetricsCollector

	// err holds the configuration validation error, returned by every call.
	err error
}

func newPipeline(opts []Option) *pipeline {
	o := resolveOptions(opts)

	p := &pipeline{
		transport:       newTransport(o),
		registry:        NewRegistry(o.logger, o.metrics),
		state:           NewState(o.hooks.DefaultState),
		hooks:           o.hooks,
		requestIDGen:    o.requestIDGen,
		requestIDHeader: o.requestIDHeader,
		logger:          o.logger,
		metrics:         o.metrics,
		err:             o.validate(),
	}

	p.transport.interceptors.UseRequest(p.interceptRequest)
	p.transport.interceptors.UseResponse(p.interceptResponse, p.interceptError)
	return p
}

// interceptRequest assigns the correlation id, registers the request for bulk
// cancellation unless the caller owns a Signal, then runs OnRequest.
func (p *pipeline) interceptRequest(ctx context.Context, cfg *RequestConfig) (*RequestConfig, error) {
	id := p.requestIDGen()
	cfg.requestID = id
	cfg.Header.Set(p.requestIDHeader, id)
	if cfg.Signal == nil {
		cfg.ctx, _ = p.registry.Register(cfg.Context(), id)
	}

	next, err := p.hooks.OnRequest(ctx, cfg, p.state)
	if err != nil {
		return cfg, err
	}
	if next == nil || next == cfg {
		return cfg, nil
	}

	// the hook built its own config; keep the dispatch identity
	next = next.Clone()
	next.ctx = cfg.ctx
	next.requestID = id
	if next.Header.Get(p.requestIDHeader) == "" {
		next.Header.Set(p.requestIDHeader, id)
	}
	return next, nil
}

// interceptResponse completes the registry entry, normalizes the body and
// classifies json responses.
func (p *pipeline) interceptResponse(ctx context.Context, resp *Response) (*Response, error) {
	p.complete(resp.Config, resp)
	p.normalize(resp)

	if resp.responseType() != ResponseJSON {
		return resp, nil
	}
	if p.hooks.IsBackendSuccess(resp) {
		return resp, nil
	}

	endpoint := "unknown"
	if resp.Request != nil {
		endpoint = endpointOf(resp.Request.URL.String())
	}

	recovered, hookErr := p.hooks.OnBackendFail(ctx, resp, p.transport, p.state)
	if hookErr == nil && recovered != nil {
		p.logger.Info("Backend failure recovered", "requestID", resp.Config.RequestID(), "endpoint", endpoint)
		p.metrics.RecordBackendFailure(endpoint, true)
		return recovered, nil
	}

	p.metrics.RecordBackendFailure(endpoint, false)
	err := p.backendError(resp, hookErr)
	p.logger.Warn("Backend reported failure", "requestID", err.RequestID, "endpoint", endpoint, "message", err.Message)
	p.hooks.OnError(ctx, err, p.state)
	return nil, err
}

// interceptError completes the registry entry and hands the error to OnError
// before re-rejecting it unchanged.
func (p *pipeline) interceptError(ctx context.Context, err error) (*Response, error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		p.complete(reqErr.Config, nil)
	}

	p.logger.Debug("Request failed", "error", err)
	p.hooks.OnError(ctx, err, p.state)
	return nil, err
}

// complete removes the registry entry of cfg. A stream body keeps its
// dispatch context alive until the caller closes it.
func (p *pipeline) complete(cfg *RequestConfig, resp *Response) {
	handle := p.registry.Complete(cfg.RequestID())
	if handle == nil {
		return
	}
	if resp != nil {
		if body, ok := resp.Data.(io.ReadCloser); ok && resp.responseType() == ResponseStream {
			resp.Data = &releaseOnClose{ReadCloser: body, release: handle.Release}
			return
		}
	}
	handle.Release()
}

func (p *pipeline) backendError(resp *Response, cause error) *RequestError {
	msg := defaultBackendErrorMessage
	if m := gjson.GetBytes(resp.Raw, "msg"); m.Type == gjson.String && m.Str != "" {
		msg = m.Str
	}
	return &RequestError{
		Type:       ErrorTypeBackend,
		Code:       BackendErrorCode,
		Message:    msg,
		Cause:      cause,
		RequestID:  resp.Config.RequestID(),
		Method:     resp.Config.method(),
		URL:        resp.Config.URL,
		StatusCode: resp.StatusCode,
		Timestamp:  time.Now(),
		Config:     resp.Config,
		Response:   resp,
	}
}

// do is the single dispatch path. It never panics on failure and always
// returns a result.
func (p *pipeline) do(ctx context.Context, cfg *RequestConfig) *FlatResult {
	if p.err != nil {
		return &FlatResult{Err: p.err}
	}

	resp, err := p.transport.Execute(ctx, cfg)
	if err != nil {
		return &FlatResult{Err: err, Response: responseOf(err)}
	}

	if resp.responseType() != ResponseJSON {
		return &FlatResult{Data: resp.Data, Response: resp}
	}

	data, err := p.hooks.Transform(ctx, resp)
	if err != nil {
		return &FlatResult{Err: err, Response: resp}
	}
	return &FlatResult{Data: data, Response: resp}
}

// responseOf returns the response carried by err, if any.
func responseOf(err error) *Response {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Response
	}
	return nil
}
