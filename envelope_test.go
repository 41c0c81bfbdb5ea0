package reqflow

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnvelopeSuccess(t *testing.T) {
	isOK := EnvelopeSuccess("0")

	tests := []struct {
		name string
		resp *Response
		want bool
	}{
		{"matching code", &Response{Raw: []byte(`{"code":"0"}`)}, true},
		{"numeric code", &Response{Raw: []byte(`{"code":0}`)}, true},
		{"other code", &Response{Raw: []byte(`{"code":"401"}`)}, false},
		{"missing code", &Response{Raw: []byte(`{"data":1}`)}, false},
		{"replaced body", &Response{Data: map[string]any{"code": "0"}}, true},
		{"not an envelope", &Response{Raw: []byte("hello"), Data: "hello"}, false},
		{"nil response", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOK(tt.resp); got != tt.want {
				t.Errorf("EnvelopeSuccess()(%s) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestEnvelopeTransform(t *testing.T) {
	got, err := EnvelopeTransform(context.Background(), &Response{Data: map[string]any{"data": []any{"a"}}})
	if err != nil {
		t.Fatalf("EnvelopeTransform() error = %v", err)
	}
	if diff := cmp.Diff([]any{"a"}, got); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}

	got, err = EnvelopeTransform(context.Background(), &Response{Raw: []byte(`{"data":{"n":1}}`), Data: "replaced"})
	if err != nil {
		t.Fatalf("EnvelopeTransform() error = %v", err)
	}
	if diff := cmp.Diff(map[string]interface{}{"n": float64(1)}, got); diff != "" {
		t.Errorf("raw data mismatch (-want +got):\n%s", diff)
	}

	if _, err := EnvelopeTransform(context.Background(), &Response{Data: "text"}); err == nil {
		t.Error("Expected error for a non-envelope body")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	type payload struct {
		UUID string `json:"uuid"`
	}
	env, err := DecodeEnvelope[payload](&Response{Raw: []byte(envelopeJSON)})
	if err != nil {
		t.Fatalf("DecodeEnvelope() error = %v", err)
	}
	want := Envelope[payload]{Code: "0", Data: payload{UUID: "abc"}, Msg: "ok", Success: true, Timestamp: "1"}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeEnvelope[payload](&Response{Raw: []byte("nope")}); err == nil {
		t.Error("Expected decode error")
	}
}
