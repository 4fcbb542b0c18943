package guardrail

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/transcript-digest/internal/redact"
)

// serviceErrorEnvelope is the error body shape returned by the filter service.
type serviceErrorEnvelope struct {
	Message string `json:"message"`
	Type    string `json:"__type"`
	Code    string `json:"code"`
}

// HTTPError is a sanitized summary of a non-2xx filter response.
//
// Raw bodies are never included; they may echo transcript text back.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	ErrorType  string
	Message    string

	// Snippet is a redacted, truncated hint for unstructured bodies.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "guardrail http error"
	}
	parts := []string{
		fmt.Sprintf("guardrail api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.ErrorType) != "" {
		parts = append(parts, "type="+strings.TrimSpace(e.ErrorType))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+redact.Secrets(strings.TrimSpace(e.Message)))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(op string, resp *http.Response, body []byte) error {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env serviceErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		h.ErrorType = strings.TrimSpace(env.Type)
		if h.ErrorType == "" {
			h.ErrorType = strings.TrimSpace(env.Code)
		}
		h.Message = strings.TrimSpace(env.Message)
		if h.ErrorType != "" || h.Message != "" {
			return h
		}
	}

	h.Snippet = redactAndTruncate(body)
	return h
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	const max = 256
	b := body
	if len(b) > max {
		b = b[:max]
	}
	s := redact.Secrets(string(b))
	s = strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > max {
		return s + "..."
	}
	return s
}
