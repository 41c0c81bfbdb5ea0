package reqflow

import (
	"context"
	"sync"
)

// CancellationHandle aborts the dispatch context of one registered request.
type CancellationHandle struct {
	id     string
	cancel context.CancelCauseFunc
}

// ID returns the request identifier the handle belongs to.
func (h *CancellationHandle) ID() string {
	if h == nil {
		return ""
	}
	return h.id
}

// Cancel aborts the request with cause.
func (h *CancellationHandle) Cancel(cause error) {
	if h == nil {
		return
	}
	h.cancel(cause)
}

// Release frees the context resources of a finished request. It does not
// affect a request that already completed.
func (h *CancellationHandle) Release() {
	if h == nil {
		return
	}
	h.cancel(nil)
}

// Registry tracks in-flight requests by identifier so they can be cancelled
// in bulk. It is safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*CancellationHandle
	logger  Logger
	metrics *MetricsCollector
}

// NewRegistry creates an empty registry.
func NewRegistry(logger Logger, metrics *MetricsCollector) *Registry {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Registry{
		entries: make(map[string]*CancellationHandle),
		logger:  logger,
		metrics: metrics,
	}
}

// Register derives a cancellable context from ctx and tracks it under id. An
// existing entry with the same id is replaced.
func (r *Registry) Register(ctx context.Context, id string) (context.Context, *CancellationHandle) {
	derived, cancel := context.WithCancelCause(ctx)
	handle := &CancellationHandle{id: id, cancel: cancel}

	r.mu.Lock()
	r.entries[id] = handle
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.RecordRegistered(n)
	return derived, handle
}

// Complete removes the entry for id and returns its handle, or nil when the
// request was never registered or was already cancelled. The caller releases
// the handle once it no longer needs the dispatch context.
func (r *Registry) Complete(id string) *CancellationHandle {
	r.mu.Lock()
	handle, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	n := len(r.entries)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.metrics.RecordRegistered(n)
	return handle
}

// CancelAll aborts every registered request with ErrCanceled and clears the
// registry. It returns the number of aborted requests.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	pending := r.entries
	r.entries = make(map[string]*CancellationHandle)
	r.mu.Unlock()

	for _, handle := range pending {
		handle.Cancel(ErrCanceled)
	}

	if len(pending) > 0 {
		r.logger.Info("Cancelled pending requests", "count", len(pending))
		r.metrics.RecordCancellations(len(pending))
		r.metrics.RecordRegistered(0)
	}
	return len(pending)
}

// Len returns the number of registered requests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}
