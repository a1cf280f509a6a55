package nnd

import "iter"

// FeatureKind selects a feature axis.
type FeatureKind uint8

const (
	OutputFeatures FeatureKind = iota
	InputFeatures
)

func (k FeatureKind) String() string {
	if k == InputFeatures {
		return "input"
	}
	return "output"
}

// FeatureRun is one contiguous run of elements belonging to a single feature.
type FeatureRun struct {
	Offset  int
	Len     int
	Feature int
}

func (t *Tensor) axis(kind FeatureKind) int {
	if kind == InputFeatures {
		return t.Layout.inputAxis()
	}
	return t.Layout.outputAxis()
}

// sizes returns the axis extents padded to the layout's axis count.
func (t *Tensor) sizes() []uint64 {
	n := t.Layout.MaxAxes()
	if len(t.Sizes) >= n {
		return t.Sizes
	}
	full := make([]uint64, n)
	pad := n - len(t.Sizes)
	for i := range pad {
		full[i] = 1
	}
	copy(full[pad:], t.Sizes)
	return full
}

// FeatureCount returns the extent of the given feature axis, or 0 when the
// layout has none.
func (t *Tensor) FeatureCount(kind FeatureKind) int {
	a := t.axis(kind)
	if a < 0 {
		return 0
	}
	return int(t.sizes()[a])
}

// OutputFeatureCount is FeatureCount(OutputFeatures).
func (t *Tensor) OutputFeatureCount() int { return t.FeatureCount(OutputFeatures) }

// InputFeatureCount is FeatureCount(InputFeatures).
func (t *Tensor) InputFeatureCount() int { return t.FeatureCount(InputFeatures) }

// SetFeatureCount changes the extent of a feature axis. It does not resize
// Data and is a no-op when the layout has no such axis.
func (t *Tensor) SetFeatureCount(kind FeatureKind, n int) {
	a := t.axis(kind)
	if a < 0 {
		return
	}
	s := t.sizes()
	if len(t.Sizes) != len(s) {
		t.Sizes = s
	}
	t.Sizes[a] = uint64(n)
}

// Features returns the runs of the given feature axis. Runs cover every
// element exactly once. The sequence can be ranged over repeatedly.
func (t *Tensor) Features(kind FeatureKind) (iter.Seq[FeatureRun], error) {
	a := t.axis(kind)
	if a < 0 {
		return nil, ErrNoFeatureAxis
	}
	s := t.sizes()
	step := 1
	for _, v := range s[a+1:] {
		step *= int(v)
	}
	iterations := 1
	for _, v := range s[:a+1] {
		iterations *= int(v)
	}
	count := int(s[a])

	return func(yield func(FeatureRun) bool) {
		if step == 0 {
			return
		}
		off := 0
		for i := range iterations {
			if !yield(FeatureRun{Offset: off, Len: step, Feature: i % count}) {
				return
			}
			off += step
		}
	}, nil
}
