// ABOUTME: HubSpot API error type
// ABOUTME: Classifies failed calls by status and category so callers can tell transient from permanent
package hubspot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotFound is returned by lookups that found no matching object.
var ErrNotFound = errors.New("hubspot object not found")

// APIError is a non-2xx response or a transport failure talking to HubSpot.
type APIError struct {
	StatusCode    int
	Category      string
	Message       string
	CorrelationID string
	Transient     bool
	Err           error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("hubspot request failed: %v", e.Err)
	}
	if e.Category != "" {
		return fmt.Sprintf("hubspot: status=%d category=%s message=%s", e.StatusCode, e.Category, e.Message)
	}
	return fmt.Sprintf("hubspot: status=%d message=%s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a HubSpot failure worth retrying later.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	return false
}

func transportError(err error) *APIError {
	return &APIError{Transient: true, Err: err}
}

func responseError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    strings.TrimSpace(string(body)),
		Transient:  status == http.StatusTooManyRequests || status >= 500,
	}

	var parsed struct {
		Message       string `json:"message"`
		Category      string `json:"category"`
		CorrelationID string `json:"correlationId"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
		apiErr.Category = parsed.Category
		apiErr.CorrelationID = parsed.CorrelationID
	}
	if status == http.StatusNotFound {
		apiErr.Err = ErrNotFound
	}

	return apiErr
}
