package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is matched (via errors.Is) by a ServerError whose status is 404: the referenced conversation,
	// message or prompt does not exist on the server.
	ErrNotFound = errors.New("not found")
	// ErrStreamConsumed is yielded when Deltas is called on a stream that was already read.
	ErrStreamConsumed = errors.New("stream already consumed")
)

// maxErrorBody caps how much of an error response body is read for its detail.
const maxErrorBody = 64 * 1024

// NetworkError is a transport failure: the request never produced an HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

// ServerError is a non-2xx HTTP response. Detail is the server's explanation, taken from a {"detail": ...}
// body when present, otherwise from the raw body.
type ServerError struct {
	Status int
	Detail string
}

// StreamReadError reports a failure partway through a response body. Partial holds everything delivered
// before the failure; it is never discarded.
type StreamReadError struct {
	Partial string
	Err     error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: status %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("server error: status %d: %s", e.Status, e.Detail)
}

// Is makes a 404 ServerError match ErrNotFound.
func (e *ServerError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

func (e *StreamReadError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying read error.
func (e *StreamReadError) Unwrap() error {
	return e.Err
}

func newServerError(resp *http.Response) *ServerError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &ServerError{
		Status: resp.StatusCode,
		Detail: errorDetail(body),
	}
}

// errorDetail extracts a human readable message from an error body. FastAPI-style bodies carry either a
// string or a structured validation report under "detail".
func errorDetail(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload.Detail); err == nil {
			return compact.String()
		}
	}

	return strings.TrimSpace(string(body))
}
