package oracle

import "github.com/pkg/errors"

var (
	// ErrInconsistentParams is returned by batch setters when input lengths differ.
	ErrInconsistentParams = errors.New("inconsistent params length")

	// ErrNotAuthorized is returned when the caller is neither asset listing nor pool admin.
	ErrNotAuthorized = errors.New("caller not asset listing or pool admin")

	// ErrZeroThresholdNotAllowed is returned when setting a zero staleness threshold.
	ErrZeroThresholdNotAllowed = errors.New("staleness threshold must not be zero")

	// ErrStaleAnswer is returned when an indexed reading is older than the staleness threshold.
	ErrStaleAnswer = errors.New("oracle answer is stale")
)
