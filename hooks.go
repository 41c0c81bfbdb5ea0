package reqflow

import "context"

// TransformFunc turns a successful json response into the payload returned
// to the caller.
type TransformFunc func(ctx context.Context, resp *Response) (any, error)

// RequestHook may mutate cfg, for example to inject an authorization header,
// and returns the config to dispatch.
type RequestHook func(ctx context.Context, cfg *RequestConfig, state *State) (*RequestConfig, error)

// BackendSuccessFunc reports whether a json response is a logical success.
type BackendSuccessFunc func(resp *Response) bool

// BackendFailHook runs when BackendSuccessFunc rejects a response. Returning
// a non-nil response recovers the request with it, typically after
// refreshing credentials and replaying resp.Config through t. Returning nil
// rejects the request with a backend error.
type BackendFailHook func(ctx context.Context, resp *Response, t *Transport, state *State) (*Response, error)

// ErrorHook observes every failed request exactly once.
type ErrorHook func(ctx context.Context, err error, state *State)

// Hooks groups the caller-supplied callbacks of a façade. Nil slots are
// replaced by defaults at construction.
type Hooks struct {
	// DefaultState seeds the State of every façade built with these hooks.
	DefaultState map[string]any

	// Transform defaults to returning resp.Data.
	Transform TransformFunc

	// OnRequest defaults to returning cfg unchanged.
	OnRequest RequestHook

	// IsBackendSuccess defaults to accepting every response.
	IsBackendSuccess BackendSuccessFunc

	// OnBackendFail defaults to not recovering.
	OnBackendFail BackendFailHook

	// OnError defaults to doing nothing.
	OnError ErrorHook
}

func (h Hooks) withDefaults() Hooks {
	if h.Transform == nil {
		h.Transform = func(_ context.Context, resp *Response) (any, error) {
			return resp.Data, nil
		}
	}
	if h.OnRequest == nil {
		h.OnRequest = func(_ context.Context, cfg *RequestConfig, _ *State) (*RequestConfig, error) {
			return cfg, nil
		}
	}
	if h.IsBackendSuccess == nil {
		h.IsBackendSuccess = func(*Response) bool { return true }
	}
	if h.OnBackendFail == nil {
		h.OnBackendFail = func(context.Context, *Response, *Transport, *State) (*Response, error) {
			return nil, nil
		}
	}
	if h.OnError == nil {
		h.OnError = func(context.Context, error, *State) {}
	}
	return h
}
