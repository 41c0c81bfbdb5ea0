package reqflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// Requester is the error-returning façade. Request returns the transformed
// payload or the failure.
type Requester struct {
	p *pipeline
}

// New creates a Requester. Invalid options do not panic; every request then
// fails with the validation error, see IsValid.
func New(opts ...Option) *Requester {
	return &Requester{p: newPipeline(opts)}
}

// Request dispatches cfg. Json responses are passed through Transform; other
// response types return the normalized body.
func (r *Requester) Request(ctx context.Context, cfg *RequestConfig) (any, error) {
	res := r.p.do(ctx, cfg)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Data, nil
}

// CancelAllRequest aborts every pending request that has no caller-owned
// Signal. It is a no-op when nothing is pending.
func (r *Requester) CancelAllRequest() {
	r.p.registry.CancelAll()
}

// State returns the instance state shared by all requests of r.
func (r *Requester) State() *State { return r.p.state }

// Transport returns the underlying transport.
func (r *Requester) Transport() *Transport { return r.p.transport }

// Pending returns the number of requests tracked for bulk cancellation.
func (r *Requester) Pending() int { return r.p.registry.Len() }

// IsValid reports whether the options passed to New are valid.
func (r *Requester) IsValid() bool { return r.p.err == nil }

// ValidationError returns the configuration error, if any.
func (r *Requester) ValidationError() error { return r.p.err }

// FlatRequester is the result-returning façade. Request never returns an
// error value; failures are reported in the FlatResult.
type FlatRequester struct {
	p *pipeline
}

// NewFlat creates a FlatRequester.
func NewFlat(opts ...Option) *FlatRequester {
	return &FlatRequester{p: newPipeline(opts)}
}

// Request dispatches cfg and captures the outcome.
func (r *FlatRequester) Request(ctx context.Context, cfg *RequestConfig) *FlatResult {
	return r.p.do(ctx, cfg)
}

// CancelAllRequest aborts every pending request that has no caller-owned
// Signal.
func (r *FlatRequester) CancelAllRequest() {
	r.p.registry.CancelAll()
}

// State returns the instance state shared by all requests of r.
func (r *FlatRequester) State() *State { return r.p.state }

// Transport returns the underlying transport.
func (r *FlatRequester) Transport() *Transport { return r.p.transport }

// Pending returns the number of requests tracked for bulk cancellation.
func (r *FlatRequester) Pending() int { return r.p.registry.Len() }

// IsValid reports whether the options passed to NewFlat are valid.
func (r *FlatRequester) IsValid() bool { return r.p.err == nil }

// ValidationError returns the configuration error, if any.
func (r *FlatRequester) ValidationError() error { return r.p.err }

// Get dispatches cfg through r and converts the payload to T.
func Get[T any](ctx context.Context, r *Requester, cfg *RequestConfig) (T, error) {
	data, err := r.Request(ctx, cfg)
	if err != nil {
		var zero T
		return zero, err
	}
	return Convert[T](data)
}

// TypedResult is a FlatResult whose payload was converted to T.
type TypedResult[T any] struct {
	Data     T
	Err      error
	Response *Response
}

// FlatGet dispatches cfg through r and converts the payload to T. A
// conversion failure is reported in Err.
func FlatGet[T any](ctx context.Context, r *FlatRequester, cfg *RequestConfig) TypedResult[T] {
	res := r.Request(ctx, cfg)
	if res.Err != nil {
		return TypedResult[T]{Err: res.Err, Response: res.Response}
	}
	data, err := Convert[T](res.Data)
	if err != nil {
		return TypedResult[T]{Err: err, Response: res.Response}
	}
	return TypedResult[T]{Data: data, Response: res.Response}
}

// Convert returns v as T, re-encoding through JSON when v is a decoded
// structure rather than a T.
func Convert[T any](v any) (T, error) {
	if typed, ok := v.(T); ok {
		return typed, nil
	}

	var out T
	if v == nil {
		return out, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("convert %T: %w", v, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("convert %T to %T: %w", v, out, err)
	}
	return out, nil
}
