package reqflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Envelope is the JSON wrapper the backend puts around every payload. Its
// Code, not the HTTP status, tells logical success from failure.
type Envelope[T any] struct {
	Code      string `json:"code"`
	Data      T      `json:"data"`
	Msg       string `json:"msg"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

// EnvelopeSuccess returns a predicate accepting responses whose envelope code
// equals code. Numeric codes compare by their JSON text.
func EnvelopeSuccess(code string) BackendSuccessFunc {
	return func(resp *Response) bool {
		if resp == nil {
			return false
		}
		if len(resp.Raw) > 0 && gjson.ValidBytes(resp.Raw) {
			return gjson.GetBytes(resp.Raw, "code").String() == code
		}
		// Raw is empty when an interceptor replaced the body
		m, ok := resp.Data.(map[string]any)
		if !ok {
			return false
		}
		v, ok := m["code"]
		return ok && fmt.Sprint(v) == code
	}
}

// EnvelopeTransform extracts the envelope's data field.
func EnvelopeTransform(_ context.Context, resp *Response) (any, error) {
	if m, ok := resp.Data.(map[string]any); ok {
		return m["data"], nil
	}
	if len(resp.Raw) > 0 && gjson.ValidBytes(resp.Raw) {
		return gjson.GetBytes(resp.Raw, "data").Value(), nil
	}
	return nil, fmt.Errorf("response body is not an envelope: %T", resp.Data)
}

// DecodeEnvelope decodes the raw body of resp into an Envelope[T].
func DecodeEnvelope[T any](resp *Response) (Envelope[T], error) {
	var env Envelope[T]
	if resp == nil {
		return env, fmt.Errorf("nil response")
	}
	if err := json.Unmarshal(resp.Raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
