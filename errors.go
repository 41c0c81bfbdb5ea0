package reqflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Error types classify where in the pipeline a failure happened.
const (
	ErrorTypeNetwork    = "Network"
	ErrorTypeCanceled   = "Canceled"
	ErrorTypeTimeout    = "Timeout"
	ErrorTypeHTTP       = "HTTP"
	ErrorTypeBackend    = "Backend"
	ErrorTypeRequest    = "Request"
	ErrorTypeValidation = "Validation"
)

// Error codes carried by RequestError.Code. BackendErrorCode is reserved for
// logical failures reported by the backend envelope.
const (
	ErrCodeNetwork     = "ERR_NETWORK"
	ErrCodeCanceled    = "ERR_CANCELED"
	ErrCodeTimeout     = "ETIMEDOUT"
	ErrCodeBadRequest  = "ERR_BAD_REQUEST"
	ErrCodeBadResponse = "ERR_BAD_RESPONSE"
	ErrCodeBadOption   = "ERR_BAD_OPTION"
	BackendErrorCode   = "BACKEND_ERROR"
)

// Sentinel errors for common failure scenarios
var (
	// ErrCanceled is the cancellation cause used by CancelAllRequest.
	ErrCanceled = errors.New("reqflow: request canceled")

	// ErrBackend matches any backend logical failure with errors.Is.
	ErrBackend = &RequestError{Type: ErrorTypeBackend, Code: BackendErrorCode}
)

// RequestError is the single error type produced by the pipeline. Transport
// failures, backend logical failures and configuration problems all surface
// as a *RequestError so hooks can branch on Type or Code.
type RequestError struct {
	Type       string
	Code       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	StatusCode int
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration

	// Config is the final request configuration, after the request hooks ran.
	Config *RequestConfig
	// Response is set when the server answered (HTTP and Backend errors).
	Response *Response
}

// Error implements error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	if e.Code != "" {
		info += fmt.Sprintf("Code: %s\n", e.Code)
	}
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsBackendError reports whether err is a logical failure reported by the
// backend envelope rather than a transport failure.
func IsBackendError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Code == BackendErrorCode
}

// IsCanceled reports whether err was caused by cancellation, either through
// CancelAllRequest or a caller-owned signal.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return true
	}
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Type == ErrorTypeCanceled
}

// IsTransient determines if an error represents a transient failure that might succeed on retry.
// Returns true for network errors, timeouts, 5xx responses and 429.
// Backend logical failures, cancellations and other 4xx responses are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout:
			return true
		case ErrorTypeHTTP:
			return reqErr.StatusCode == http.StatusTooManyRequests || reqErr.StatusCode >= 500
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyTransportError maps a failed round trip onto an error type and code.
// The dispatch context decides between cancellation and timeout; anything
// else is a network failure.
func classifyTransportError(ctx context.Context, err error) (string, string, error) {
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, context.DeadlineExceeded) {
			return ErrorTypeTimeout, ErrCodeTimeout, cause
		}
		return ErrorTypeCanceled, ErrCodeCanceled, cause
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout, ErrCodeTimeout, err
	}
	return ErrorTypeNetwork, ErrCodeNetwork, err
}
