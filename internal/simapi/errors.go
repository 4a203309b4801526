package simapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx response from the simulation server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("simapi: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("simapi: %d: %s", e.Status, e.Message)
}

// IsRetryable reports whether the same request may succeed if sent again.
func (e *APIError) IsRetryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func (e *APIError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// IsNotFound reports whether err is, or wraps, a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsNotFound()
}

// newAPIError accepts both {"detail": "..."} and {"error": {"code", "message"}}
// bodies and falls back to the raw text.
func newAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var shaped struct {
		Detail json.RawMessage `json:"detail"`
		Code   string          `json:"code"`
		Error  *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &shaped); err == nil {
		switch {
		case shaped.Error != nil:
			e.Code, e.Message = shaped.Error.Code, shaped.Error.Message
		case len(shaped.Detail) > 0:
			e.Code = shaped.Code
			var s string
			if json.Unmarshal(shaped.Detail, &s) == nil {
				e.Message = s
			} else {
				e.Message = string(shaped.Detail)
			}
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
