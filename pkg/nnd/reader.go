package nnd

import (
	"fmt"
	"io"
	"math"
	"os"
)

// Open reads and decodes the tensor file at path. The file is memory-mapped
// where the platform allows it; the payload is always copied so the tensor
// does not reference the mapping. The returned tensor is named path.
func Open(path string) (*Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := st.Size()
	if size64 < HeaderSize {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("%w: %d bytes", ErrTruncated, size64)}
	}
	if size64 > math.MaxInt {
		return nil, &FormatError{Path: path, Err: fmt.Errorf("%w: file too large", ErrSizeMismatch)}
	}
	size := int(size64)

	data, unmap, err := mapFile(f, size)
	if err != nil {
		// Fallback path that does not require mmap support.
		data, err = readAllAt(f, size)
		if err != nil {
			return nil, err
		}
		unmap = func() error { return nil }
	}
	t, err := Decode(data)
	if uerr := unmap(); err == nil && uerr != nil {
		return nil, uerr
	}
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	t.Name = path
	return t, nil
}

// ReadFile reads the whole file at path and decodes it without mmap.
func ReadFile(path string) (*Tensor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Decode(b)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	t.Name = path
	return t, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
