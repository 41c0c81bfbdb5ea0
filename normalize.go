package reqflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Text decodes the blob as UTF-8. A leading byte order mark is dropped and
// invalid sequences become U+FFFD.
func (b *Blob) Text() (string, error) {
	return decodeUTF8(b.data)
}

func decodeUTF8(data []byte) (string, error) {
	out, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode utf-8: %w", err)
	}
	return string(out), nil
}

// parseJSON decodes text as JSON. When text is not valid JSON it is returned
// unchanged together with the parse error.
func parseJSON(text string) (any, error) {
	if text == "" {
		return text, nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text, err
	}
	return v, nil
}

// NormalizeBody makes a blob or arrayBuffer body available as structured data
// when its bytes are JSON text. Other response types, bodies whose content
// type already declares JSON, and bodies that are already structured are
// returned unchanged. NormalizeBody never fails: undecodable input is
// returned as is and unparsable text is returned as a string.
func NormalizeBody(kind ResponseType, contentType string, body any) any {
	out, _ := normalizeBody(kind, contentType, body)
	return out
}

// normalizeBody is NormalizeBody with the absorbed failure reported for
// logging.
func normalizeBody(kind ResponseType, contentType string, body any) (any, error) {
	kind = kind.orDefault()
	if kind == ResponseJSON || strings.Contains(strings.ToLower(contentType), "application/json") {
		return body, nil
	}
	if kind != ResponseBlob && kind != ResponseArrayBuffer {
		return body, nil
	}

	var text string
	switch b := body.(type) {
	case string:
		text = b
	case *Blob:
		if b == nil {
			return body, nil
		}
		decoded, err := b.Text()
		if err != nil {
			return body, err
		}
		text = decoded
	case []byte:
		decoded, err := decodeUTF8(b)
		if err != nil {
			return body, err
		}
		text = decoded
	default:
		// already structured
		return body, nil
	}

	return parseJSON(text)
}

// normalize rewrites resp.Data in place. Failures are logged and counted,
// never returned.
func (p *pipeline) normalize(resp *Response) {
	if resp == nil {
		return
	}
	kind := resp.responseType()
	out, err := normalizeBody(kind, resp.ContentType(), resp.Data)
	if err != nil {
		p.logger.Debug("response body left unparsed",
			"requestID", resp.Config.RequestID(),
			"responseType", string(kind),
			"error", err)
		p.metrics.RecordNormalizeFallback(kind)
	}
	resp.Data = out
}
