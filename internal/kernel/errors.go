package kernel

import (
	"errors"
	"fmt"
)

// ErrInvalid is wrapped by every error caused by an inconsistent kernel
// description.
var ErrInvalid = errors.New("invalid kernel description")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}
