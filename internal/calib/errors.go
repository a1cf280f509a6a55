package calib

import (
	"errors"
	"fmt"
)

var (
	ErrNoDumpFiles             = errors.New("calib: dump directory contains no dump files")
	ErrFrontierFeatureMismatch = errors.New("calib: primitives of one frontier have different feature counts")
	ErrUnsupportedTarget       = errors.New("calib: target data type is not an integer type")
	ErrOutputNotDir            = errors.New("calib: output path is not a directory")
)

// PrimitiveError is a failure while processing one primitive. File is the
// tensor or dump file involved, if any.
type PrimitiveError struct {
	Primitive string
	File      string
	Err       error
}

func (e *PrimitiveError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("primitive %q (%s): %v", e.Primitive, e.File, e.Err)
	}
	return fmt.Sprintf("primitive %q: %v", e.Primitive, e.Err)
}

func (e *PrimitiveError) Unwrap() error { return e.Err }
