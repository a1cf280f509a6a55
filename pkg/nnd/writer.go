package nnd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFile encodes t and writes it to path. The data goes to a temporary
// file in the same directory which is renamed over path once complete.
func (t *Tensor) WriteFile(path string, opts EncodeOptions) (err error) {
	b, err := t.Encode(opts)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	if err = writeFull(f, b); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeFull(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("nnd: short write")
		}
		b = b[n:]
	}
	return nil
}
