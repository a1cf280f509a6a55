package calibopts

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed              = errors.New("calibopts: malformed calibration options")
	ErrDependencyCycle        = errors.New("calibopts: dependency cycle")
	ErrUndefinedDependency    = errors.New("calibopts: undefined dependency")
	ErrInvalidDecalibMode     = errors.New("calibopts: invalid decalibration mode")
	ErrAmbiguousSplitUsage    = errors.New("calibopts: split primitive used both concatenated and per group")
	ErrAmbiguousDecalibSource = errors.New("calibopts: ambiguous decalibration source")
)

// GraphError reports a structural problem of the dependency graph rooted at
// a primitive.
type GraphError struct {
	Primitive string
	Err       error
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("primitive %q: %v", e.Primitive, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// IsGraphError reports whether err is a dependency graph error.
func IsGraphError(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return true
	}
	return errors.Is(err, ErrMalformed)
}
