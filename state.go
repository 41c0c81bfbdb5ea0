package reqflow

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// State is the mutable bag shared by all calls made through one façade. Hooks
// receive it by pointer. It is safe for concurrent use.
type State struct {
	mu      sync.RWMutex
	values  map[string]any
	errMsgs []string

	refresh singleflight.Group
}

// NewState returns a State holding a copy of defaults.
func NewState(defaults map[string]any) *State {
	values := make(map[string]any, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}
	return &State{values: values}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Snapshot returns a copy of the stored values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// RefreshToken runs fn unless a refresh is already in flight, in which case
// the caller waits for that one and shares its result. fn runs detached from
// any single caller's cancellation; ctx only bounds how long this caller
// waits.
func (s *State) RefreshToken(ctx context.Context, fn func(context.Context) (bool, error)) (bool, error) {
	ch := s.refresh.DoChan(refreshKey, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		ok, _ := res.Val.(bool)
		return ok, nil
	}
}

// PushErrMsg records msg unless it is already on the stack. It reports
// whether msg was added, so callers show each message once.
func (s *State) PushErrMsg(msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.errMsgs {
		if m == msg {
			return false
		}
	}
	s.errMsgs = append(s.errMsgs, msg)
	return true
}

// RemoveErrMsg drops msg from the stack.
func (s *State) RemoveErrMsg(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.errMsgs {
		if m == msg {
			s.errMsgs = append(s.errMsgs[:i:i], s.errMsgs[i+1:]...)
			return
		}
	}
}

// ErrMsgs returns the messages currently on the stack.
func (s *State) ErrMsgs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.errMsgs...)
}
