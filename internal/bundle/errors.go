package bundle

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition is wrapped by every panic raised for a violated
	// precondition.
	ErrPrecondition = errors.New("precondition violated")

	// ErrTemporalBlocking means the step range of a micro-block was not
	// exactly one step wide.
	ErrTemporalBlocking = errors.New("temporal blocking not allowed at micro-block level")

	// ErrHaloExceedsStorage means an expanded scratch span does not fit in
	// the scratch variable's allocation.
	ErrHaloExceedsStorage = errors.New("scratch span exceeds allocated storage")

	// ErrDimMismatch means an index tuple does not match the stencil dims.
	ErrDimMismatch = errors.New("dimension count mismatch")
)

// assertf panics with an error wrapping ErrPrecondition and cause when cond
// is false.
func assertf(cond bool, cause error, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		panic(fmt.Errorf("%w: %w: %s", ErrPrecondition, cause, msg))
	}
	panic(fmt.Errorf("%w: %s", ErrPrecondition, msg))
}
