// Package errors turns non-2xx HTTP responses from upstream APIs into typed errors.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MinErrorStatusCode is the lowest status treated as an error.
const MinErrorStatusCode = 400

// maxErrorBody caps how much of an error body is kept on the error value.
const maxErrorBody = 4 << 10

// HTTPError represents a failed upstream call.
type HTTPError struct {
	StatusCode int
	Status     string
	Type       string
	Body       string
	Message    string
	Header     http.Header
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// errorEnvelope covers the shapes seen from Apify, OpenAI and friends:
// {"error":"..."}, {"message":"..."} and {"error":{"type":"...","message":"..."}}.
type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

type nestedError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ParseHTTPError reads resp.Body and returns an *HTTPError, or nil for 2xx/3xx.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		httpErr.Message = fmt.Sprintf("read error response body: %v", err)
		return httpErr
	}
	httpErr.Body = strings.TrimSpace(string(bodyBytes))
	httpErr.Message = httpErr.Body

	var env errorEnvelope
	if json.Unmarshal(bodyBytes, &env) != nil {
		return httpErr
	}

	if env.Message != "" {
		httpErr.Message = env.Message
	}

	if len(env.Error) == 0 {
		return httpErr
	}

	var flat string
	if json.Unmarshal(env.Error, &flat) == nil && flat != "" {
		httpErr.Message = flat
		return httpErr
	}

	var nested nestedError
	if json.Unmarshal(env.Error, &nested) == nil {
		httpErr.Type = nested.Type
		if nested.Message != "" {
			httpErr.Message = nested.Message
		}
	}

	return httpErr
}

// AsHTTPError unwraps err to an *HTTPError.
func AsHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}
	return nil, false
}

// GetHTTPStatusCode extracts the status code from a wrapped *HTTPError.
func GetHTTPStatusCode(err error) (int, bool) {
	if httpErr, ok := AsHTTPError(err); ok {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// WrapWithContext wraps err with a context prefix. Nil stays nil.
func WrapWithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
