package nnd

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxAbsPerOutputFeature returns the largest absolute value of every output
// feature.
func (t *Tensor) MaxAbsPerOutputFeature() ([]float32, error) {
	runs, err := t.Features(OutputFeatures)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, t.Name)
	}
	out := make([]float32, t.OutputFeatureCount())
	for r := range runs {
		m := out[r.Feature]
		for i := r.Offset; i < r.Offset+r.Len; i++ {
			if v := abs32(t.at(i)); v > m {
				m = v
			}
		}
		out[r.Feature] = m
	}
	return out, nil
}

// Decalibrate divides every input feature of t by the matching factor.
// It is DecalibrateFeatures(factors, InputFeatures).
func (t *Tensor) Decalibrate(factors *Tensor) error {
	return t.DecalibrateFeatures(factors, InputFeatures)
}

// DecalibrateFeatures divides every run of the selected feature axis by the
// matching calibration factor, in place. A factor <= 0 zeroes the run.
// factors must be a 1-D fp32 tensor with layout O.
func (t *Tensor) DecalibrateFeatures(factors *Tensor, kind FeatureKind) error {
	n := t.FeatureCount(kind)
	if n <= 0 {
		if kind == InputFeatures {
			return fmt.Errorf("%w: %s", ErrNoInputFeatures, t.Name)
		}
		return fmt.Errorf("%w: %s", ErrNoOutputFeatures, t.Name)
	}
	if factors == nil || factors.OutputFeatureCount() <= 0 {
		return fmt.Errorf("%w: decalibrating %s", ErrInvalidCalibration, t.Name)
	}
	if n != factors.OutputFeatureCount() {
		return fmt.Errorf("%w: %s has %d %s features, %s has %d factors",
			ErrFeatureCountMismatch, t.Name, n, kind, factors.Name, factors.OutputFeatureCount())
	}
	if factors.Layout != LayoutO || factors.DataType != DTypeFP32 {
		return fmt.Errorf("%w: calibration factors %s must be fp32 with layout O, have %s %s",
			ErrUnsupportedConversion, factors.Name, factors.DataType, factors.Layout)
	}
	if t.DataType != DTypeFP32 {
		return fmt.Errorf("%w: cannot decalibrate %s data in %s", ErrUnsupportedConversion, t.DataType, t.Name)
	}

	runs, err := t.Features(kind)
	if err != nil {
		return fmt.Errorf("%w: %s", err, t.Name)
	}
	for r := range runs {
		f := factors.float32At(r.Feature)
		for i := r.Offset; i < r.Offset+r.Len; i++ {
			if f <= 0 {
				t.setFloat32At(i, 0)
				continue
			}
			t.setFloat32At(i, t.float32At(i)/f)
		}
	}
	return nil
}

// SplitOnOutputFeatures partitions t into len(names) tensors with an equal
// number of output features each. Part k receives output features
// [k*m, (k+1)*m) where m is the per-part count.
func (t *Tensor) SplitOnOutputFeatures(names ...string) ([]*Tensor, error) {
	total := t.OutputFeatureCount()
	if total <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoOutputFeatures, t.Name)
	}
	parts := len(names)
	switch {
	case parts == 0:
		return nil, nil
	case parts == 1:
		return []*Tensor{t.CloneAs(names[0])}, nil
	case total%parts != 0:
		return nil, fmt.Errorf("%w: %s has %d output features, split %d", ErrNotDivisible, t.Name, total, parts)
	}

	per := total / parts
	out := make([]*Tensor, parts)
	for k, name := range names {
		s := append([]uint64(nil), t.sizes()...)
		s[t.axis(OutputFeatures)] = uint64(per)
		out[k] = &Tensor{
			Name:     name,
			DataType: t.DataType,
			Layout:   t.Layout,
			Version:  t.Version,
			Sizes:    s,
			Data:     make([]byte, 0, len(t.Data)/parts),
		}
	}

	runs, err := t.Features(OutputFeatures)
	if err != nil {
		return nil, err
	}
	es := t.DataType.Size()
	for r := range runs {
		p := out[r.Feature/per]
		p.Data = append(p.Data, t.Data[r.Offset*es:(r.Offset+r.Len)*es]...)
	}
	return out, nil
}

// Quantize converts an fp32 tensor into target with a per-output-feature
// scale of target.RangeFactor()/max(maxabs, 1). It returns the quantized
// tensor named name and a 1-D fp32 tensor named qfName holding the inverse
// scale of every feature.
func (t *Tensor) Quantize(target DataType, name, qfName string) (*Tensor, *Tensor, error) {
	lo, hi, ok := target.SaturationBounds()
	if !ok && target != DTypeFP16 {
		return nil, nil, fmt.Errorf("%w: cannot quantize %s into %s", ErrUnsupportedDataType, t.Name, target)
	}
	if t.OutputFeatureCount() <= 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoOutputFeatures, t.Name)
	}
	if t.DataType != DTypeFP32 {
		return nil, nil, fmt.Errorf("%w: cannot quantize %s data in %s", ErrUnsupportedConversion, t.DataType, t.Name)
	}
	if target == DTypeFP16 {
		return nil, nil, fmt.Errorf("%w: fp16 saturation for %s", ErrNotImplemented, t.Name)
	}

	maxAbs, err := t.MaxAbsPerOutputFeature()
	if err != nil {
		return nil, nil, err
	}
	rf := target.RangeFactor()
	scales := make([]float64, len(maxAbs))
	inv := make([]float32, len(maxAbs))
	for f, m := range maxAbs {
		d := math.Max(float64(m), 1.0)
		scales[f] = rf / d
		inv[f] = float32(d / rf)
	}

	q, err := New(name, target, t.Layout, t.sizes())
	if err != nil {
		return nil, nil, err
	}
	runs, err := t.Features(OutputFeatures)
	if err != nil {
		return nil, nil, err
	}
	for r := range runs {
		s := scales[r.Feature]
		for i := r.Offset; i < r.Offset+r.Len; i++ {
			v := math.Round(clamp(float64(t.float32At(i))*s, lo, hi))
			if err := q.putInt(i, v); err != nil {
				return nil, nil, fmt.Errorf("%w: %s element %d", err, t.Name, i)
			}
		}
	}
	return q, FromFloat32s(qfName, inv), nil
}

func (t *Tensor) putInt(i int, v float64) error {
	switch t.DataType {
	case DTypeInt8:
		t.Data[i] = byte(int8(v))
	case DTypeUint8:
		t.Data[i] = uint8(v)
	case DTypeInt16:
		binary.LittleEndian.PutUint16(t.Data[i*2:], uint16(int16(v)))
	case DTypeUint16:
		if v > math.MaxUint16 {
			return fmt.Errorf("%w: %v as %s", ErrSaturationOverflow, v, t.DataType)
		}
		binary.LittleEndian.PutUint16(t.Data[i*2:], uint16(v))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedConversion, t.DataType)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, lo), hi)
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
