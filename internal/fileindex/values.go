package fileindex

import (
	"errors"
	"math"
	"os"
	"regexp"
	"strconv"
)

// Dump files are free-form text; every decimal number found anywhere in the
// file is a value.
var valueRe = regexp.MustCompile(`[+-]?(?:[0-9]+(?:\.[0-9]*)?|\.[0-9]+)(?:[eE][+-]?[0-9]+)?`)

func parseValue(b []byte) (float64, bool) {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		// out of range values parse to +-Inf
		var ne *strconv.NumError
		if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}

// ParseAbsValues returns the absolute value of every number in text, in order.
func ParseAbsValues(text []byte) []float32 {
	matches := valueRe.FindAll(text, -1)
	out := make([]float32, 0, len(matches))
	for _, m := range matches {
		if v, ok := parseValue(m); ok {
			out = append(out, float32(math.Abs(v)))
		}
	}
	return out
}

// AbsValuesFromFile reads path and returns ParseAbsValues of its contents.
func AbsValuesFromFile(path string) ([]float32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseAbsValues(b), nil
}

// MaxAbsFromFile returns the largest absolute value in the dump file at path,
// or 0 when it holds no values.
func MaxAbsFromFile(path string) (float32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var m float32
	for _, loc := range valueRe.FindAllIndex(b, -1) {
		v, ok := parseValue(b[loc[0]:loc[1]])
		if !ok {
			continue
		}
		if a := float32(math.Abs(v)); a > m {
			m = a
		}
	}
	return m, nil
}
