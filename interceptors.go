package reqflow

import (
	"context"
	"sync"
)

// RequestInterceptor may mutate the config before dispatch and must return
// the config to send.
type RequestInterceptor func(ctx context.Context, cfg *RequestConfig) (*RequestConfig, error)

// ResponseFulfilled handles a resolved response.
type ResponseFulfilled func(ctx context.Context, resp *Response) (*Response, error)

// ResponseRejected handles a rejection. Returning a response recovers.
type ResponseRejected func(ctx context.Context, err error) (*Response, error)

type responseHandler struct {
	id          int
	onFulfilled ResponseFulfilled
	onRejected  ResponseRejected
}

type requestHandler struct {
	id int
	fn RequestInterceptor
}

// Interceptors holds the request and response hook chains of a Transport.
// It is safe for concurrent use.
type Interceptors struct {
	mu       sync.RWMutex
	nextID   int
	request  []requestHandler
	response []responseHandler
}

// UseRequest appends a request interceptor and returns its id.
func (i *Interceptors) UseRequest(fn RequestInterceptor) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.nextID++
	i.request = append(i.request, requestHandler{id: i.nextID, fn: fn})
	return i.nextID
}

// UseResponse appends a response interceptor and returns its id. Either
// handler may be nil.
func (i *Interceptors) UseResponse(onFulfilled ResponseFulfilled, onRejected ResponseRejected) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.nextID++
	i.response = append(i.response, responseHandler{id: i.nextID, onFulfilled: onFulfilled, onRejected: onRejected})
	return i.nextID
}

// Eject removes the interceptor registered under id.
func (i *Interceptors) Eject(id int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for n, h := range i.request {
		if h.id == id {
			i.request = append(i.request[:n:n], i.request[n+1:]...)
			return
		}
	}
	for n, h := range i.response {
		if h.id == id {
			i.response = append(i.response[:n:n], i.response[n+1:]...)
			return
		}
	}
}

// Clear removes every interceptor.
func (i *Interceptors) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.request = nil
	i.response = nil
}

// runRequest applies the request chain in registration order.
func (i *Interceptors) runRequest(ctx context.Context, cfg *RequestConfig) (*RequestConfig, error) {
	i.mu.RLock()
	chain := append([]requestHandler(nil), i.request...)
	i.mu.RUnlock()

	for _, h := range chain {
		next, err := h.fn(ctx, cfg)
		if err != nil {
			return cfg, err
		}
		if next != nil {
			cfg = next
		}
	}
	return cfg, nil
}

// runResponse settles the response chain: fulfilled handlers run while the
// chain is successful, rejected handlers once it has failed.
func (i *Interceptors) runResponse(ctx context.Context, resp *Response, err error) (*Response, error) {
	i.mu.RLock()
	chain := append([]responseHandler(nil), i.response...)
	i.mu.RUnlock()

	for _, h := range chain {
		if err == nil {
			if h.onFulfilled != nil {
				resp, err = h.onFulfilled(ctx, resp)
			}
			continue
		}
		if h.onRejected != nil {
			resp, err = h.onRejected(ctx, err)
		}
	}
	return resp, err
}
