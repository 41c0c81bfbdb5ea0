package reqflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func envelopeServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf(failedWriteResponseMsg, err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// errorCounter counts OnError invocations.
type errorCounter struct {
	mu   sync.Mutex
	errs []error
}

func (c *errorCounter) hook(_ context.Context, err error, _ *State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *errorCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func TestPipelineCorrelationHeader(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Trace")
	}))
	defer server.Close()

	r := New(
		WithRequestIDHeader("X-Trace"),
		WithRequestIDGenerator(func() string { return "fixed-id" }),
	)
	if _, err := r.Request(context.Background(), &RequestConfig{URL: server.URL, ResponseType: ResponseText}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if got != "fixed-id" {
		t.Errorf("correlation header = %q", got)
	}
}

func TestPipelineOnRequestMutatesHeaders(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	r := New(WithOnRequest(func(_ context.Context, cfg *RequestConfig, s *State) (*RequestConfig, error) {
		token, _ := s.Get("token")
		cfg.Header.Set("Authorization", "Bearer "+token.(string))
		return cfg, nil
	}), WithDefaultState(map[string]any{"token": "t0"}))

	if _, err := r.Request(context.Background(), &RequestConfig{URL: server.URL, ResponseType: ResponseText}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if auth != "Bearer t0" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestPipelineOnRequestReturnsNewConfig(t *testing.T) {
	var id, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = r.Header.Get(DefaultRequestIDHeader)
		path = r.URL.Path
	}))
	defer server.Close()

	r := New(
		WithBaseURL(server.URL),
		WithRequestIDGenerator(func() string { return "id-1" }),
		WithOnRequest(func(_ context.Context, cfg *RequestConfig, _ *State) (*RequestConfig, error) {
			return &RequestConfig{URL: "/rewritten", ResponseType: cfg.ResponseType}, nil
		}),
	)
	if _, err := r.Request(context.Background(), &RequestConfig{URL: "/original", ResponseType: ResponseText}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if path != "/rewritten" || id != "id-1" {
		t.Errorf("path = %q, id = %q", path, id)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d", r.Pending())
	}
}

func TestPipelineOnRequestFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	boom := errors.New("no token")
	errs := &errorCounter{}
	r := New(
		WithOnRequest(func(context.Context, *RequestConfig, *State) (*RequestConfig, error) {
			return nil, boom
		}),
		WithOnError(errs.hook),
	)

	_, err := r.Request(context.Background(), &RequestConfig{URL: server.URL})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected hook error in chain, got %v", err)
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Type != ErrorTypeRequest {
		t.Errorf("Expected request-phase error, got %v", err)
	}
	if r.Pending() != 0 {
		t.Errorf("registry leaked %d entries", r.Pending())
	}
	if errs.count() != 1 {
		t.Errorf("OnError calls = %d, want 1", errs.count())
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Error("request should not reach the server")
	}
}

func TestPipelineBackendFailure(t *testing.T) {
	server := envelopeServer(t, `{"code":"401","data":null,"msg":"token expired","success":false,"timestamp":"1"}`)

	registry := prometheus.NewRegistry()
	metrics := NewMetricsCollectorWithRegistry(registry)
	errs := &errorCounter{}
	r := New(
		WithMetricsCollector(metrics),
		WithBackendSuccess(EnvelopeSuccess("0")),
		WithOnError(errs.hook),
	)

	data, err := r.Request(context.Background(), &RequestConfig{URL: server.URL})
	if data != nil {
		t.Errorf("Expected nil data, got %v", data)
	}
	if !IsBackendError(err) || !errors.Is(err, ErrBackend) {
		t.Fatalf("Expected backend error, got %v", err)
	}

	var reqErr *RequestError
	errors.As(err, &reqErr)
	if reqErr.Message != "token expired" {
		t.Errorf("Message = %q", reqErr.Message)
	}
	if reqErr.Response == nil || reqErr.StatusCode != http.StatusOK {
		t.Error("Expected backend error to carry the 200 response")
	}
	if errs.count() != 1 {
		t.Errorf("OnError calls = %d, want 1", errs.count())
	}
	if got := testutil.ToFloat64(metrics.backendFailures.WithLabelValues(endpointOf(server.URL), "false")); got != 1 {
		t.Errorf("backend failures = %v", got)
	}
}

func TestPipelineBackendFailureDefaultMessage(t *testing.T) {
	server := envelopeServer(t, `{"code":"500"}`)
	r := New(WithBackendSuccess(EnvelopeSuccess("0")))

	_, err := r.Request(context.Background(), &RequestConfig{URL: server.URL})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Message != defaultBackendErrorMessage {
		t.Errorf("Expected default message, got %v", err)
	}
}

func TestPipelineBackendFailHookError(t *testing.T) {
	server := envelopeServer(t, `{"code":"401"}`)
	cause := errors.New("refresh failed")
	errs := &errorCounter{}
	r := New(
		WithBackendSuccess(EnvelopeSuccess("0")),
		WithOnBackendFail(func(context.Context, *Response, *Transport, *State) (*Response, error) {
			return nil, cause
		}),
		WithOnError(errs.hook),
	)

	_, err := r.Request(context.Background(), &RequestConfig{URL: server.URL})
	if !IsBackendError(err) || !errors.Is(err, cause) {
		t.Fatalf("Expected backend error caused by hook error, got %v", err)
	}
	if errs.count() != 1 {
		t.Errorf("OnError calls = %d, want 1", errs.count())
	}
}

func TestPipelineBackendRecovery(t *testing.T) {
	var refreshed atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh" {
			refreshed.Store(true)
			_, _ = w.Write([]byte(`{"code":"0","data":true}`))
			return
		}
		if !refreshed.Load() {
			_, _ = w.Write([]byte(`{"code":"401","data":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":"0","data":{"uuid":"abc"}}`))
	}))
	defer server.Close()

	errs := &errorCounter{}
	r := New(
		WithBaseURL(server.URL),
		WithBackendSuccess(EnvelopeSuccess("0")),
		WithTransform(EnvelopeTransform),
		WithOnBackendFail(func(ctx context.Context, resp *Response, tr *Transport, s *State) (*Response, error) {
			ok, err := s.RefreshToken(ctx, func(ctx context.Context) (bool, error) {
				_, err := tr.Execute(ctx, &RequestConfig{Method: http.MethodPost, URL: "/refresh"})
				return err == nil, err
			})
			if err != nil || !ok {
				return nil, err
			}
			return tr.Execute(ctx, resp.Config)
		}),
		WithOnError(errs.hook),
	)

	data, err := r.Request(context.Background(), &RequestConfig{URL: "/captcha/image"})
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if m, ok := data.(map[string]any); !ok || m["uuid"] != "abc" {
		t.Errorf("data = %v", data)
	}
	if errs.count() != 0 {
		t.Errorf("OnError should not run on recovery, ran %d times", errs.count())
	}
	if r.Pending() != 0 {
		t.Errorf("registry leaked %d entries", r.Pending())
	}
}

func TestPipelineTransportErrorReachesOnErrorOnce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	errs := &errorCounter{}
	backendCalls := 0
	r := New(
		WithBackendSuccess(func(*Response) bool { backendCalls++; return true }),
		WithOnError(errs.hook),
	)

	_, err := r.Request(context.Background(), &RequestConfig{URL: server.URL})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Type != ErrorTypeHTTP {
		t.Fatalf("Expected HTTP error, got %v", err)
	}
	if errs.count() != 1 || errs.errs[0] != err {
		t.Errorf("OnError should see the original error exactly once")
	}
	if backendCalls != 0 {
		t.Error("classifier must not run for transport errors")
	}
}

func TestPipelineNonJSONBypassesClassifier(t *testing.T) {
	server := envelopeServer(t, `{"code":"401"}`)
	called := false
	r := New(
		WithBackendSuccess(func(*Response) bool { called = true; return false }),
	)

	for _, kind := range []ResponseType{ResponseText, ResponseBlob, ResponseArrayBuffer, ResponseDocument} {
		if _, err := r.Request(context.Background(), &RequestConfig{URL: server.URL, ResponseType: kind}); err != nil {
			t.Errorf("%s: Request() error = %v", kind, err)
		}
	}
	if called {
		t.Error("success predicate must not run for non-json kinds")
	}
}

func TestPipelineUserInterceptorsRunAfterPipeline(t *testing.T) {
	server := envelopeServer(t, `{"code":"0"}`)
	r := New()

	var sawID string
	r.Transport().Interceptors().UseRequest(func(_ context.Context, cfg *RequestConfig) (*RequestConfig, error) {
		sawID = cfg.RequestID()
		return cfg, nil
	})

	if _, err := r.Request(context.Background(), &RequestConfig{URL: server.URL}); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if sawID == "" {
		t.Error("user interceptor should see the assigned request id")
	}
}
