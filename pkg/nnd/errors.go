package nnd

import (
	"errors"
	"fmt"
)

// Format errors. These are returned by Decode and always mean the byte
// contract was violated.
var (
	ErrBadMagic            = errors.New("nnd: invalid magic")
	ErrUnsupportedVersion  = errors.New("nnd: unsupported version")
	ErrUnsupportedDataType = errors.New("nnd: unsupported data type")
	ErrUnsupportedLayout   = errors.New("nnd: unsupported layout")
	ErrSizeMismatch        = errors.New("nnd: element size mismatch")
	ErrTruncated           = errors.New("nnd: truncated file")
	ErrTooManyAxes         = errors.New("nnd: axis count exceeds layout")
)

// Operation errors.
var (
	ErrNoFeatureAxis         = errors.New("nnd: layout has no such feature axis")
	ErrNoInputFeatures       = errors.New("nnd: tensor has no input features")
	ErrNoOutputFeatures      = errors.New("nnd: tensor has no output features")
	ErrInvalidCalibration    = errors.New("nnd: invalid calibration factors")
	ErrFeatureCountMismatch  = errors.New("nnd: feature count mismatch")
	ErrUnsupportedConversion = errors.New("nnd: unsupported conversion")
	ErrNotImplemented        = errors.New("nnd: not implemented")
	ErrNotDivisible          = errors.New("nnd: feature count not divisible by split size")
	ErrSaturationOverflow    = errors.New("nnd: saturated value does not fit element type")
	ErrEmptyName             = errors.New("nnd: empty tensor name")
)

// FormatError reports a decode or I/O failure for a specific file.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("nnd: %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is one of the format errors returned by Decode.
func IsFormatError(err error) bool {
	for _, target := range []error{
		ErrBadMagic, ErrUnsupportedVersion, ErrUnsupportedDataType,
		ErrUnsupportedLayout, ErrSizeMismatch, ErrTruncated, ErrTooManyAxes,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
