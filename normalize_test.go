package reqflow

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const envelopeJSON = `{"code":"0","data":{"uuid":"abc"},"msg":"ok","success":true,"timestamp":"1"}`

func TestNormalizeBodyRoundTrip(t *testing.T) {
	original := map[string]any{
		"code": "0",
		"data": map[string]any{"uuid": "abc", "n": float64(2)},
		"list": []any{"x", true, nil},
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatal(err)
	}

	inputs := map[string]struct {
		kind ResponseType
		body any
	}{
		"blob":        {ResponseBlob, NewBlob(encoded, "application/octet-stream")},
		"arrayBuffer": {ResponseArrayBuffer, encoded},
		"blob text":   {ResponseBlob, string(encoded)},
	}

	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got := NormalizeBody(in.kind, "", in.body)
			if diff := cmp.Diff(original, got); diff != "" {
				t.Errorf("normalized mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeBodyInvalidJSON(t *testing.T) {
	got := NormalizeBody(ResponseBlob, "text/plain", NewBlob([]byte("not json"), "text/plain"))
	if got != "not json" {
		t.Errorf("NormalizeBody() = %v, want decoded text", got)
	}

	got = NormalizeBody(ResponseArrayBuffer, "", []byte(""))
	if got != "" {
		t.Errorf("empty body = %v", got)
	}
}

func TestNormalizeBodyStripsBOM(t *testing.T) {
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"a":1}`)...)
	got := NormalizeBody(ResponseArrayBuffer, "", body)
	if diff := cmp.Diff(map[string]any{"a": float64(1)}, got); diff != "" {
		t.Errorf("BOM body mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeBodyNoOp(t *testing.T) {
	blob := NewBlob([]byte(envelopeJSON), "application/json")
	structured := map[string]any{"a": 1}

	tests := []struct {
		name        string
		kind        ResponseType
		contentType string
		body        any
	}{
		{"json kind", ResponseJSON, "", "raw"},
		{"json content type", ResponseBlob, "application/json; charset=utf-8", blob},
		{"text kind", ResponseText, "", envelopeJSON},
		{"document kind", ResponseDocument, "", envelopeJSON},
		{"structured", ResponseBlob, "", structured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeBody(tt.kind, tt.contentType, tt.body)
			if !cmp.Equal(tt.body, got, cmp.AllowUnexported(Blob{})) {
				t.Errorf("NormalizeBody() changed the body: %v", got)
			}
		})
	}
}

func TestBlobText(t *testing.T) {
	b := NewBlob([]byte{'o', 'k', 0xff}, "text/plain")
	text, err := b.Text()
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if text != "ok�" {
		t.Errorf("Text() = %q", text)
	}
	if b.Size() != 3 {
		t.Errorf("Size() = %d", b.Size())
	}
}

func TestPipelineNormalizeRecordsFallback(t *testing.T) {
	registry := prometheus.NewRegistry()
	p := newPipeline([]Option{WithMetricsCollector(NewMetricsCollectorWithRegistry(registry))})

	resp := &Response{
		Data:   []byte("plain"),
		Config: &RequestConfig{ResponseType: ResponseArrayBuffer},
	}
	p.normalize(resp)

	if resp.Data != "plain" {
		t.Errorf("Data = %v", resp.Data)
	}
	if got := testutil.ToFloat64(p.metrics.normalizeFallbacks.WithLabelValues("arrayBuffer")); got != 1 {
		t.Errorf("fallback count = %v, want 1", got)
	}
}
