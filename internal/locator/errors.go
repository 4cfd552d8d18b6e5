package locator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChain is returned before any query when there is nothing to
	// try: no configured value, no fallbacks and no description.
	ErrInvalidChain = errors.New("locator: empty strategy chain and no description to generate fallbacks from")

	// ErrNotFound matches any *NotFoundError via errors.Is.
	ErrNotFound = errors.New("locator: element not found")
)

// Attempt is the outcome of querying one step.
type Attempt struct {
	Index   int
	Step    Step
	Matches int
	Err     error
}

// NotFoundError is returned when every step, including learning, produced no elements.
type NotFoundError struct {
	Key      Key
	Tried    int
	Attempts []Attempt
	// Cause is the last query error seen, if any.
	Cause error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("locator %s: element not found after %d strategies", e.Key, e.Tried)
	if e.Cause != nil {
		msg += ": last error: " + e.Cause.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.Cause }

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
