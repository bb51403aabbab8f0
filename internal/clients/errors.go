package clients

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrUnavailable       = errors.New("unavailable")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

const maxErrorBody = 64 << 10

// StatusError is a non-2xx answer from a backend that the caller has no
// dedicated outcome for.
type StatusError struct {
	Service    string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s returned %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Detail)
}

// newStatusError drains resp.Body and keeps the backend's "detail" field when
// present, the raw body otherwise.
func newStatusError(service string, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			detail = s
		} else {
			detail = string(body.Detail)
		}
	}
	return &StatusError{Service: service, StatusCode: resp.StatusCode, Detail: detail}
}
