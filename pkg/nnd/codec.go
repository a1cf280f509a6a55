package nnd

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

// EncodeOptions controls Encode.
type EncodeOptions struct {
	// Legacy offsets the layout code of fp16 tensors by LegacyLayoutOffset.
	Legacy bool
}

// Decode parses an NND file image. The returned tensor owns a copy of the
// payload; trailing bytes after the payload are ignored.
func Decode(b []byte) (*Tensor, error) {
	hdr, ok := decodeHeader(b)
	if !ok {
		return nil, fmt.Errorf("%w: header needs %d bytes, have %d", ErrTruncated, HeaderSize, len(b))
	}
	if !hdr.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, hdr.Magic[:])
	}
	if !hdr.Compatible() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, hdr.Version)
	}
	dt, ok := dataTypeFromCode(hdr.TypeCode)
	if !ok {
		return nil, fmt.Errorf("%w: code %q", ErrUnsupportedDataType, hdr.TypeCode)
	}
	if int(hdr.ElemSize) != dt.Size() {
		return nil, fmt.Errorf("%w: %s declares %d bytes per element", ErrSizeMismatch, dt, hdr.ElemSize)
	}
	layout, ok := layoutFromCode(hdr.LayoutCode)
	if !ok {
		return nil, fmt.Errorf("%w: code %d", ErrUnsupportedLayout, hdr.LayoutCode)
	}
	axes := int(hdr.Axes)
	if axes > layout.MaxAxes() {
		return nil, fmt.Errorf("%w: %d axes for layout %s", ErrTooManyAxes, axes, layout)
	}

	sizesEnd := HeaderSize + axes*AxisSize
	if len(b) < sizesEnd {
		return nil, fmt.Errorf("%w: axis sizes need %d bytes, have %d", ErrTruncated, sizesEnd, len(b))
	}

	// On disk the least-significant axis comes first. Missing axes are the
	// most-significant ones and default to 1.
	sizes := make([]uint64, layout.MaxAxes())
	for i := range sizes {
		sizes[i] = 1
	}
	for i := range axes {
		sizes[i] = binary.LittleEndian.Uint64(b[HeaderSize+i*AxisSize:])
	}
	slices.Reverse(sizes)

	n, ok := elementCount(sizes)
	if !ok {
		return nil, fmt.Errorf("%w: element count overflows", ErrTruncated)
	}
	payload, ok := mulNoOverflow(n, uint64(dt.Size()))
	if !ok || payload > uint64(math.MaxInt-sizesEnd) {
		return nil, fmt.Errorf("%w: payload size overflows", ErrTruncated)
	}
	end := sizesEnd + int(payload)
	if len(b) < end {
		return nil, fmt.Errorf("%w: payload needs %d bytes, have %d", ErrTruncated, payload, len(b)-sizesEnd)
	}

	return &Tensor{
		DataType: dt,
		Layout:   layout,
		Version:  hdr.Version,
		Sizes:    sizes,
		Data:     slices.Clone(b[sizesEnd:end]),
	}, nil
}

// Encode serializes t. All MaxAxes axes are always written.
func (t *Tensor) Encode(opts EncodeOptions) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	code := t.Layout.Code()
	if opts.Legacy && t.DataType == DTypeFP16 {
		code += LegacyLayoutOffset
	}
	hdr := Header{
		TypeCode:   t.DataType.Code(),
		Version:    Version,
		Axes:       uint8(len(t.Sizes)),
		ElemSize:   uint8(t.DataType.Size()),
		LayoutCode: code,
	}
	copy(hdr.Magic[:], Magic)

	out := make([]byte, HeaderSize+len(t.Sizes)*AxisSize+len(t.Data))
	encodeHeader(out, &hdr)
	off := HeaderSize
	for i := len(t.Sizes) - 1; i >= 0; i-- {
		binary.LittleEndian.PutUint64(out[off:], t.Sizes[i])
		off += AxisSize
	}
	copy(out[off:], t.Data)
	return out, nil
}

func (t *Tensor) validate() error {
	if !t.DataType.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedDataType, t.DataType)
	}
	if !t.Layout.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedLayout, t.Layout)
	}
	if len(t.Sizes) > t.Layout.MaxAxes() {
		return fmt.Errorf("%w: %d axes for layout %s", ErrTooManyAxes, len(t.Sizes), t.Layout)
	}
	n, ok := elementCount(t.Sizes)
	if !ok {
		return fmt.Errorf("%w: element count overflows", ErrSizeMismatch)
	}
	if want, ok := mulNoOverflow(n, uint64(t.DataType.Size())); !ok || want != uint64(len(t.Data)) {
		return fmt.Errorf("%w: sizes %v need %d bytes of %s, have %d", ErrSizeMismatch, t.Sizes, want, t.DataType, len(t.Data))
	}
	return nil
}
