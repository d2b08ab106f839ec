package pagination

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("paginator misconfigured")

// ConfigurationError reports a Paginator that cannot fetch pages because it
// was built without a client or without the input that produced its page.
// It only happens when a Paginator is constructed outside New and FromPage.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfiguration, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) succeed.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError wraps a client failure that occurred while materializing a page.
type TransportError struct {
	// Operation is the name the paginator was created with.
	Operation string

	// Page is the 0-based index of the page within its traversal.
	Page int

	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: fetch page %d: %v", e.Operation, e.Page, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}
