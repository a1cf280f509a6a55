package nnd

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// Tensor is an in-memory NND tensor. Sizes are stored most-significant axis
// first and always have Layout.MaxAxes() entries. Data holds little-endian
// elements and is owned by the tensor.
type Tensor struct {
	Name     string
	DataType DataType
	Layout   Layout
	Version  uint8
	Sizes    []uint64
	Data     []byte
}

// New returns a zero-filled tensor. Missing leading axes are padded with 1.
func New(name string, dt DataType, layout Layout, sizes []uint64) (*Tensor, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, dt)
	}
	if !layout.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLayout, layout)
	}
	if len(sizes) > layout.MaxAxes() {
		return nil, fmt.Errorf("%w: %d axes for layout %s", ErrTooManyAxes, len(sizes), layout)
	}
	full := make([]uint64, layout.MaxAxes())
	pad := len(full) - len(sizes)
	for i := range pad {
		full[i] = 1
	}
	copy(full[pad:], sizes)

	n, ok := elementCount(full)
	if !ok {
		return nil, fmt.Errorf("%w: element count overflows", ErrSizeMismatch)
	}
	bytes, ok := mulNoOverflow(n, uint64(dt.Size()))
	if !ok || bytes > uint64(math.MaxInt) {
		return nil, fmt.Errorf("%w: payload too large", ErrSizeMismatch)
	}
	return &Tensor{
		Name:     name,
		DataType: dt,
		Layout:   layout,
		Version:  Version,
		Sizes:    full,
		Data:     make([]byte, int(bytes)),
	}, nil
}

// FromFloat32s wraps values into a 1-D fp32 tensor with layout O.
func FromFloat32s(name string, values []float32) *Tensor {
	data := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return &Tensor{
		Name:     name,
		DataType: DTypeFP32,
		Layout:   LayoutO,
		Version:  Version,
		Sizes:    []uint64{uint64(len(values))},
		Data:     data,
	}
}

// CloneAs returns a deep copy of t carrying a new name.
func (t *Tensor) CloneAs(name string) *Tensor {
	return &Tensor{
		Name:     name,
		DataType: t.DataType,
		Layout:   t.Layout,
		Version:  t.Version,
		Sizes:    slices.Clone(t.Sizes),
		Data:     slices.Clone(t.Data),
	}
}

// RenameInPlace changes the name of t and returns it.
func (t *Tensor) RenameInPlace(name string) *Tensor {
	t.Name = name
	return t
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	n, _ := elementCount(t.Sizes)
	return int(n)
}

// Float32s widens the payload into float32 values. fp32 payloads are
// decoded, other types are converted.
func (t *Tensor) Float32s() []float32 {
	n := t.Len()
	out := make([]float32, n)
	for i := range n {
		out[i] = t.at(i)
	}
	return out
}

// at returns element i as float32.
func (t *Tensor) at(i int) float32 {
	switch t.DataType {
	case DTypeFP32:
		return math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
	case DTypeFP16:
		return fp16ToFloat32(binary.LittleEndian.Uint16(t.Data[i*2:]))
	case DTypeInt16:
		return float32(int16(binary.LittleEndian.Uint16(t.Data[i*2:])))
	case DTypeUint16:
		return float32(binary.LittleEndian.Uint16(t.Data[i*2:]))
	case DTypeInt8:
		return float32(int8(t.Data[i]))
	case DTypeUint8:
		return float32(t.Data[i])
	default:
		return 0
	}
}

func (t *Tensor) float32At(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
}

func (t *Tensor) setFloat32At(i int, v float32) {
	binary.LittleEndian.PutUint32(t.Data[i*4:], math.Float32bits(v))
}

func (t *Tensor) String() string {
	return fmt.Sprintf("%s[%s %s %v]", t.Name, t.DataType, t.Layout, t.Sizes)
}

func elementCount(sizes []uint64) (uint64, bool) {
	n := uint64(1)
	for _, s := range sizes {
		var ok bool
		if n, ok = mulNoOverflow(n, s); !ok {
			return 0, false
		}
	}
	return n, true
}

func mulNoOverflow(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxUint64/b {
		return 0, false
	}
	return a * b, true
}
