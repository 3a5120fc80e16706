package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Error codes for request-layer errors.
var (
	// ErrCanceled marks a request that was superseded, manually canceled,
	// or swept by a view change. Callers must treat it as expected and
	// never surface it as a user-facing failure.
	ErrCanceled = errors.New("request canceled")
	// ErrUnauthorized marks an authorization failure that survived the
	// one-shot refresh-and-retry path.
	ErrUnauthorized = errors.New("unauthorized")
)

// envelope is the wire shape of every REST response:
// {"status": "...", "message": "...", "data": ...}.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const statusSuccess = "success"

// ServerError is a non-success envelope or HTTP status decoded at the
// client boundary. The original message is preserved for the presentation
// layer; this package never decides user-visible text.
type ServerError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("server error (%d): status %q", e.HTTPStatus, e.Status)
}

// IsCanceled reports whether err came from cancellation rather than failure.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}

// decodeEnvelope parses the response body and returns the payload for
// success envelopes, or a ServerError carrying the original message.
func decodeEnvelope(httpStatus int, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if httpStatus >= 400 {
			return nil, &ServerError{HTTPStatus: httpStatus}
		}
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if env.Status != statusSuccess {
		return nil, &ServerError{HTTPStatus: httpStatus, Status: env.Status, Message: env.Message}
	}
	return env.Data, nil
}

// DecodeInto unmarshals a response payload into v.
func DecodeInto(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
