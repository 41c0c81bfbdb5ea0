package reqflow

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Option configures a Transport or a façade.
type Option func(*options)

// options is the resolved configuration shared by the transport and the
// pipeline of one façade.
type options struct {
	httpClient      HTTPClient
	baseURL         string
	timeout         time.Duration
	header          http.Header
	validateStatus  StatusValidator
	retryPolicy     RetryPolicy
	middleware      []Middleware
	logger          Logger
	metrics         *MetricsCollector
	requestIDGen    func() string
	requestIDHeader string
	hooks           Hooks
}

// DefaultRequestIDHeader carries the correlation id of every request.
const DefaultRequestIDHeader = "X-Request-Id"

func defaultOptions() *options {
	return &options{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		timeout:         30 * time.Second,
		header:          make(http.Header),
		validateStatus:  DefaultValidateStatus,
		logger:          NewNopLogger(),
		requestIDGen:    uuid.NewString,
		requestIDHeader: DefaultRequestIDHeader,
	}
}

func resolveOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.hooks = o.hooks.withDefaults()
	return o
}

// WithBaseURL prefixes relative request URLs.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithTimeout sets the request timeout of the underlying *http.Client. It has
// no effect on a custom HTTPClient that is not an *http.Client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
		if hc, ok := o.httpClient.(*http.Client); ok {
			hc.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
		if hc, ok := client.(*http.Client); ok && o.timeout != 0 {
			hc.Timeout = o.timeout
		}
	}
}

// WithHeader adds a default header sent with every request.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Add(key, value)
	}
}

// WithValidateStatus sets which HTTP statuses resolve. Others reject with an
// HTTP error carrying the response.
func WithValidateStatus(fn StatusValidator) Option {
	return func(o *options) {
		o.validateStatus = fn
	}
}

// WithMaxRetries enables the default retry policy with n retries.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.retryPolicy = NewDefaultRetryPolicy(n, 100*time.Millisecond, 10*time.Second, 2.0, 0.1)
	}
}

// WithRetryPolicy sets a custom retry strategy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *options) {
		o.retryPolicy = policy
	}
}

// WithMiddleware adds middleware around each round trip.
func WithMiddleware(middleware ...Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, middleware...)
	}
}

// WithLogger sets a custom logger. A nil logger discards output.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NewNopLogger()
		}
		o.logger = logger
	}
}

// WithSimpleLogger logs to stderr at debug level.
func WithSimpleLogger() Option {
	return func(o *options) {
		o.logger = NewSimpleLogger()
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(o *options) {
		o.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(o *options) {
		o.metrics = collector
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(o *options) {
		o.requestIDGen = gen
	}
}

// WithRequestIDHeader sets the correlation header name.
func WithRequestIDHeader(name string) Option {
	return func(o *options) {
		o.requestIDHeader = name
	}
}

// WithHooks replaces all hook slots. Nil slots fall back to defaults.
func WithHooks(h Hooks) Option {
	return func(o *options) {
		o.hooks = h
	}
}

// WithDefaultState seeds the instance state of each façade.
func WithDefaultState(state map[string]any) Option {
	return func(o *options) {
		o.hooks.DefaultState = state
	}
}

// WithTransform sets the json payload transform.
func WithTransform(fn TransformFunc) Option {
	return func(o *options) {
		o.hooks.Transform = fn
	}
}

// WithOnRequest sets the request hook.
func WithOnRequest(fn RequestHook) Option {
	return func(o *options) {
		o.hooks.OnRequest = fn
	}
}

// WithBackendSuccess sets the backend success predicate.
func WithBackendSuccess(fn BackendSuccessFunc) Option {
	return func(o *options) {
		o.hooks.IsBackendSuccess = fn
	}
}

// WithOnBackendFail sets the backend failure recovery hook.
func WithOnBackendFail(fn BackendFailHook) Option {
	return func(o *options) {
		o.hooks.OnBackendFail = fn
	}
}

// WithOnError sets the error hook.
func WithOnError(fn ErrorHook) Option {
	return func(o *options) {
		o.hooks.OnError = fn
	}
}

// validate checks the resolved configuration.
func (o *options) validate() error {
	var errors []string

	errors = append(errors, o.validateTransport()...)
	errors = append(errors, o.validateIdentity()...)
	errors = append(errors, o.validateMiddleware()...)

	if len(errors) > 0 {
		return &RequestError{
			Type:    ErrorTypeValidation,
			Code:    ErrCodeBadOption,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}
	return nil
}

func (o *options) validateTransport() []string {
	var errors []string

	if o.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if o.timeout < 0 {
		errors = append(errors, "timeout must be non-negative")
	}
	if o.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if o.validateStatus == nil {
		errors = append(errors, "status validator cannot be nil")
	}
	if p, ok := o.retryPolicy.(*DefaultRetryPolicy); ok {
		if p.maxRetries < 0 {
			errors = append(errors, "maxRetries must be non-negative")
		}
		if p.maxRetries > 100 {
			errors = append(errors, "maxRetries > 100 may cause excessive resource usage")
		}
	}
	if o.baseURL != "" && !isAbsoluteURL(o.baseURL) {
		errors = append(errors, fmt.Sprintf("baseURL %q must be absolute", o.baseURL))
	}

	return errors
}

func (o *options) validateIdentity() []string {
	var errors []string

	if o.requestIDGen == nil {
		errors = append(errors, "request ID generator must be set")
	}
	if o.requestIDHeader == "" {
		errors = append(errors, "request ID header must be set")
	}

	return errors
}

func (o *options) validateMiddleware() []string {
	var errors []string

	for i, middleware := range o.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return errors
}
