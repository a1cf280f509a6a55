// Package fileindex scans calibration dump directories and weight directories
// and recovers primitive names, batch/feature indices and group indices from
// the file names.
package fileindex

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrFeatureCountNotDivisible = errors.New("fileindex: feature count not divisible by group count")
	ErrEmptyExpandedFile        = errors.New("fileindex: expanded dump file has no values")
	ErrExpandedCountMismatch    = errors.New("fileindex: expanded dump files disagree on feature count")
)

type found struct {
	name string
	dir  string
}

// listFiles returns the base names of matching regular files below root
// together with their directory relative to root ("." for root itself).
func listFiles(root string, recursive bool, match func(name string) bool) ([]found, error) {
	var out []found
	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !match(e.Name()) {
				continue
			}
			if !e.Type().IsRegular() {
				st, err := os.Stat(filepath.Join(root, e.Name()))
				if err != nil || !st.Mode().IsRegular() {
					continue
				}
			}
			out = append(out, found{name: e.Name(), dir: "."})
		}
		return out, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !match(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		out = append(out, found{name: d.Name(), dir: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
