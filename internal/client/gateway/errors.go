package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/and161185/tim-admin/internal/errs"
)

const maxErrorBody = 64 << 10

// ErrorFromResponse drains resp and converts it to *errs.APIError.
func ErrorFromResponse(resp *http.Response) *errs.APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &errs.APIError{
		Status:  resp.StatusCode,
		Message: extractMessage(body, resp.StatusCode),
		Body:    body,
	}
}

// extractMessage finds a human-readable message in an error payload:
// {"message": ...}, {"error": "..."} or {"error": {"message": ...}}.
func extractMessage(body []byte, status int) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if len(payload.Error) > 0 {
			var s string
			if json.Unmarshal(payload.Error, &s) == nil && s != "" {
				return s
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") && len(text) <= 200 {
		return text
	}
	return http.StatusText(status)
}
