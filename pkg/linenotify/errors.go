package linenotify

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport indicates that the request could not be built or the round trip failed.
	ErrTransport = errors.New("linenotify: transport_failure")
	// ErrDecode indicates that the response body was not the expected JSON document.
	ErrDecode = errors.New("linenotify: decode_failure")
)

func transportError(operation string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, operation, cause)
}

func decodeError(operation string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrDecode, operation, cause)
}
