package nnd

import (
	"fmt"
	"strings"
)

// DataType identifies the tensor element encoding.
type DataType uint8

const (
	DTypeFP32 DataType = iota
	DTypeFP16
	DTypeInt16
	DTypeUint16
	DTypeInt8
	DTypeUint8
)

// DataTypes lists every supported data type.
var DataTypes = []DataType{DTypeFP32, DTypeFP16, DTypeInt16, DTypeUint16, DTypeInt8, DTypeUint8}

// Code returns the header type-code of the data type.
func (dt DataType) Code() byte {
	switch dt {
	case DTypeFP32:
		return 'F'
	case DTypeFP16:
		return 'H'
	case DTypeInt16:
		return 's'
	case DTypeUint16:
		return 'S'
	case DTypeInt8:
		return 'b'
	case DTypeUint8:
		return 'B'
	default:
		return 0
	}
}

func dataTypeFromCode(c byte) (DataType, bool) {
	switch c {
	case 'F':
		return DTypeFP32, true
	case 'H':
		return DTypeFP16, true
	case 's':
		return DTypeInt16, true
	case 'S':
		return DTypeUint16, true
	case 'b':
		return DTypeInt8, true
	case 'B':
		return DTypeUint8, true
	default:
		return 0, false
	}
}

// Size returns the element size in bytes, or 0 for an unknown type.
func (dt DataType) Size() int {
	switch dt {
	case DTypeFP32:
		return 4
	case DTypeFP16, DTypeInt16, DTypeUint16:
		return 2
	case DTypeInt8, DTypeUint8:
		return 1
	default:
		return 0
	}
}

// Valid reports whether dt is one of the supported data types.
func (dt DataType) Valid() bool { return dt.Size() != 0 }

// NeedsQuantFactors reports whether values of this type only make sense
// together with a quantization-factor file.
func (dt DataType) NeedsQuantFactors() bool {
	switch dt {
	case DTypeInt16, DTypeUint16, DTypeInt8, DTypeUint8:
		return true
	default:
		return false
	}
}

// RangeFactor is the magnitude a feature's max-abs value is scaled to. The
// integer factors sit just under the type ceiling so that rounding stays in
// range.
func (dt DataType) RangeFactor() float64 {
	switch dt {
	case DTypeFP32, DTypeFP16:
		return 1.0
	case DTypeInt16:
		return 65535.4
	case DTypeUint16:
		return 32767.4
	case DTypeInt8:
		return 127.49
	case DTypeUint8:
		return 255.49
	default:
		return 0
	}
}

// SaturationBounds returns the inclusive clamp range used when quantizing
// into dt. ok is false for floating point types.
//
// The uint16 upper bound is 65536, one past the largest representable value.
// It is kept for compatibility with previously quantized artifacts; a value
// that actually rounds to 65536 is rejected with ErrSaturationOverflow.
func (dt DataType) SaturationBounds() (lo, hi float64, ok bool) {
	switch dt {
	case DTypeInt16:
		return -32768, 32767, true
	case DTypeUint16:
		return 0, 65536, true
	case DTypeInt8:
		return -128, 127, true
	case DTypeUint8:
		return 0, 255, true
	default:
		return 0, 0, false
	}
}

func (dt DataType) String() string {
	switch dt {
	case DTypeFP32:
		return "fp32"
	case DTypeFP16:
		return "fp16"
	case DTypeInt16:
		return "int16"
	case DTypeUint16:
		return "uint16"
	case DTypeInt8:
		return "int8"
	case DTypeUint8:
		return "uint8"
	default:
		return fmt.Sprintf("DataType(%d)", uint8(dt))
	}
}

// ParseDataType parses a data type name. Short forms (i8, u16, f32...) are accepted.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fp32", "f32", "float", "float32":
		return DTypeFP32, nil
	case "fp16", "f16", "half", "float16":
		return DTypeFP16, nil
	case "int16", "i16":
		return DTypeInt16, nil
	case "uint16", "u16":
		return DTypeUint16, nil
	case "int8", "i8":
		return DTypeInt8, nil
	case "uint8", "u8":
		return DTypeUint8, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDataType, s)
	}
}
