// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package roomapi

import (
	"errors"
	"fmt"

	"github.com/ManuGH/roomgate/internal/classify"
)

var (
	// ErrUnavailable marks transport-level failures: the service could not
	// be reached or did not produce a decodable response.
	ErrUnavailable = errors.New("roomapi: service unreachable or transport failure")
)

// APIError wraps a failed request with its operation for context. When the
// service answered with a non-2xx status, Raw carries the uninterpreted
// failure; otherwise Err carries the lower-level transport error.
type APIError struct {
	Operation string
	Raw       *classify.RawFailure
	Err       error
}

func (e *APIError) Error() string {
	if e.Raw != nil {
		return fmt.Sprintf("roomapi: %s: %v", e.Operation, e.Raw)
	}
	return fmt.Sprintf("roomapi: %s: %v", e.Operation, e.Err)
}

func (e *APIError) Unwrap() error {
	if e.Raw != nil {
		return e.Raw
	}
	return e.Err
}

// RawFailure extracts the service failure from an error chain, if any.
func RawFailure(err error) *classify.RawFailure {
	var raw *classify.RawFailure
	if errors.As(err, &raw) {
		return raw
	}
	return nil
}
