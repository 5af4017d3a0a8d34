package httpclient

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// Body is a successful response. JSON is set only when the server declared a
// JSON content type and the payload decoded; Raw always holds the bytes.
type Body struct {
	Status int
	Raw    []byte
	JSON   any
}

func (b Body) IsJSON() bool { return b.JSON != nil }

func (b Body) Text() string { return string(b.Raw) }

// Decode unmarshals the raw payload into v.
func (b Body) Decode(v any) error { return json.Unmarshal(b.Raw, v) }

func newBody(status int, contentType string, raw []byte) Body {
	b := Body{Status: status, Raw: raw}
	if !isJSONContent(contentType) || len(raw) == 0 {
		return b
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		b.JSON = v
	}
	return b
}

func isJSONContent(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// HTTPError is returned for responses with status >= 400.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// Temporary reports whether the server signalled a transient failure.
func (e *HTTPError) Temporary() bool { return e.StatusCode >= 500 }
