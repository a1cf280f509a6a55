package nnd

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func fp32Tensor(t *testing.T, layout Layout, sizes []uint64, values []float32) *Tensor {
	t.Helper()
	tn, err := New("w", DTypeFP32, layout, sizes)
	require.NoError(t, err)
	require.Equal(t, tn.Len(), len(values))
	for i, v := range values {
		tn.setFloat32At(i, v)
	}
	return tn
}

func seq(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestFeatureRunsPartition(t *testing.T) {
	t.Parallel()

	shapes := map[Layout][]uint64{
		LayoutO:    {7},
		LayoutOI:   {3, 5},
		LayoutIO:   {4, 3},
		LayoutOIYX: {2, 3, 2, 2},
		LayoutYXIO: {2, 3, 4, 2},
	}
	for layout, sizes := range shapes {
		tn, err := New("t", DTypeFP32, layout, sizes)
		require.NoError(t, err)
		for _, kind := range []FeatureKind{OutputFeatures, InputFeatures} {
			runs, err := tn.Features(kind)
			if layout == LayoutO && kind == InputFeatures {
				require.ErrorIs(t, err, ErrNoFeatureAxis)
				assert.Equal(t, 0, tn.InputFeatureCount())
				continue
			}
			require.NoError(t, err)

			seen := make([]int, tn.Len())
			for pass := range 2 {
				for r := range runs {
					assert.Less(t, r.Feature, tn.FeatureCount(kind))
					for i := r.Offset; i < r.Offset+r.Len; i++ {
						seen[i]++
					}
				}
				for i, c := range seen {
					require.Equal(t, pass+1, c, "%s %s element %d", layout, kind, i)
				}
			}
		}
	}
}

func TestFeatureRunSteps(t *testing.T) {
	t.Parallel()

	oi, err := New("t", DTypeFP32, LayoutOI, []uint64{3, 5})
	require.NoError(t, err)
	runs, err := oi.Features(OutputFeatures)
	require.NoError(t, err)
	var got []FeatureRun
	for r := range runs {
		got = append(got, r)
	}
	assert.Equal(t, []FeatureRun{{0, 5, 0}, {5, 5, 1}, {10, 5, 2}}, got)

	io, err := New("t", DTypeFP32, LayoutIO, []uint64{2, 3})
	require.NoError(t, err)
	runs, err = io.Features(OutputFeatures)
	require.NoError(t, err)
	got = got[:0]
	for r := range runs {
		got = append(got, r)
	}
	assert.Equal(t, []FeatureRun{{0, 1, 0}, {1, 1, 1}, {2, 1, 2}, {3, 1, 0}, {4, 1, 1}, {5, 1, 2}}, got)
}

func TestSetFeatureCount(t *testing.T) {
	t.Parallel()

	tn, err := New("t", DTypeFP32, LayoutYXIO, []uint64{1, 1, 2, 3})
	require.NoError(t, err)
	tn.SetFeatureCount(OutputFeatures, 6)
	tn.SetFeatureCount(InputFeatures, 4)
	assert.Equal(t, []uint64{1, 1, 4, 6}, tn.Sizes)

	o, err := New("o", DTypeFP32, LayoutO, []uint64{3})
	require.NoError(t, err)
	o.SetFeatureCount(InputFeatures, 9)
	assert.Equal(t, []uint64{3}, o.Sizes)
}

func TestSplitOnOutputFeatures(t *testing.T) {
	t.Parallel()

	for _, layout := range []Layout{LayoutO, LayoutOI, LayoutIO, LayoutOIYX, LayoutYXIO} {
		var sizes []uint64
		switch layout {
		case LayoutO:
			sizes = []uint64{6}
		case LayoutOI:
			sizes = []uint64{6, 2}
		case LayoutIO:
			sizes = []uint64{2, 6}
		case LayoutOIYX:
			sizes = []uint64{6, 2, 1, 2}
		case LayoutYXIO:
			sizes = []uint64{1, 2, 2, 6}
		}
		tn := fp32Tensor(t, layout, sizes, seq(product(sizes)))

		parts, err := tn.SplitOnOutputFeatures("a", "b", "c")
		require.NoError(t, err, layout.String())
		require.Len(t, parts, 3)

		sum := 0
		for k, p := range parts {
			assert.Equal(t, 2, p.OutputFeatureCount())
			assert.Equal(t, tn.InputFeatureCount(), p.InputFeatureCount())
			sum += p.OutputFeatureCount()

			// feature j of part k is feature k*2+j of the original
			want := map[int][]float32{}
			runs, err := tn.Features(OutputFeatures)
			require.NoError(t, err)
			for r := range runs {
				if r.Feature/2 == k {
					want[r.Feature%2] = append(want[r.Feature%2], tn.Float32s()[r.Offset:r.Offset+r.Len]...)
				}
			}
			got := map[int][]float32{}
			pruns, err := p.Features(OutputFeatures)
			require.NoError(t, err)
			for r := range pruns {
				got[r.Feature] = append(got[r.Feature], p.Float32s()[r.Offset:r.Offset+r.Len]...)
			}
			assert.Equal(t, want, got, "%s part %d", layout, k)
		}
		assert.Equal(t, tn.OutputFeatureCount(), sum)
	}
}

func product(sizes []uint64) int {
	n := 1
	for _, s := range sizes {
		n *= int(s)
	}
	return n
}

func TestSplitEdgeCases(t *testing.T) {
	t.Parallel()

	tn := fp32Tensor(t, LayoutO, []uint64{4}, seq(4))

	parts, err := tn.SplitOnOutputFeatures()
	require.NoError(t, err)
	assert.Empty(t, parts)

	parts, err = tn.SplitOnOutputFeatures("renamed")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "renamed", parts[0].Name)
	assert.Equal(t, tn.Data, parts[0].Data)
	parts[0].Data[0] = 0xFF
	assert.NotEqual(t, tn.Data[0], parts[0].Data[0], "single split is a copy")

	_, err = tn.SplitOnOutputFeatures("a", "b", "c")
	require.ErrorIs(t, err, ErrNotDivisible)

	parts, err = tn.SplitOnOutputFeatures("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, parts[0].Float32s())
	assert.Equal(t, []float32{2, 3}, parts[1].Float32s())
}

func TestDecalibrate(t *testing.T) {
	t.Parallel()

	// OI: 2 outputs x 3 inputs
	w := fp32Tensor(t, LayoutOI, []uint64{2, 3}, []float32{2, 4, 6, 8, 10, 12})
	cf := FromFloat32s("cf", []float32{2, 0, -1})

	require.NoError(t, w.Decalibrate(cf))
	assert.Equal(t, []float32{1, 0, 0, 4, 0, 0}, w.Float32s())
}

func TestDecalibrateZeroFactorZeroesRun(t *testing.T) {
	t.Parallel()

	for _, f := range []float32{0, -0.5, -100} {
		w := fp32Tensor(t, LayoutIO, []uint64{2, 2}, []float32{1, 2, 3, 4})
		require.NoError(t, w.Decalibrate(FromFloat32s("cf", []float32{f, 1})))
		assert.Equal(t, []float32{0, 0, 3, 4}, w.Float32s())
	}
}

func TestDecalibrateOutputFeatures(t *testing.T) {
	t.Parallel()

	cf := FromFloat32s("cf", []float32{8, 9, 10})
	require.NoError(t, cf.DecalibrateFeatures(FromFloat32s("dep", []float32{2, 3, 0}), OutputFeatures))
	assert.Equal(t, []float32{4, 3, 0}, cf.Float32s())
}

func TestDecalibrateErrors(t *testing.T) {
	t.Parallel()

	w := fp32Tensor(t, LayoutOI, []uint64{2, 3}, seq(6))
	o := FromFloat32s("o", seq(3))

	require.ErrorIs(t, o.Decalibrate(o), ErrNoInputFeatures)
	require.ErrorIs(t, w.Decalibrate(nil), ErrInvalidCalibration)
	require.ErrorIs(t, w.Decalibrate(FromFloat32s("empty", nil)), ErrInvalidCalibration)
	require.ErrorIs(t, w.Decalibrate(FromFloat32s("short", seq(2))), ErrFeatureCountMismatch)
	require.ErrorIs(t, w.Decalibrate(fp32Tensor(t, LayoutOI, []uint64{3, 1}, seq(3))), ErrUnsupportedConversion)

	i8, err := New("i8", DTypeInt8, LayoutOI, []uint64{2, 3})
	require.NoError(t, err)
	require.ErrorIs(t, i8.Decalibrate(o), ErrUnsupportedConversion)
}

func TestQuantize(t *testing.T) {
	t.Parallel()

	w := fp32Tensor(t, LayoutOI, []uint64{2, 2}, []float32{0.5, -0.25, 10, -5})
	q, qf, err := w.Quantize(DTypeInt8, "w_q", "w_qf")
	require.NoError(t, err)

	assert.Equal(t, "w_q", q.Name)
	assert.Equal(t, DTypeInt8, q.DataType)
	assert.Equal(t, w.Sizes, q.Sizes)
	// feature 0 max-abs 0.5 is clamped to 1
	assert.Equal(t, []float32{64, -32, 127, -64}, q.Float32s())

	assert.Equal(t, "w_qf", qf.Name)
	assert.Equal(t, LayoutO, qf.Layout)
	assert.Equal(t, DTypeFP32, qf.DataType)
	assert.InDeltaSlice(t, []float64{1 / 127.49, 10 / 127.49}, toF64(qf.Float32s()), 1e-6)
}

func toF64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func TestQuantizeSaturation(t *testing.T) {
	t.Parallel()

	values := []float32{
		0, 1, -1, 0.4, -0.6, 1e-30, -1e-30,
		math.MaxFloat32, -math.MaxFloat32, 3e5, -7e6, 65535, 127.5, -128.5,
		float32(math.Inf(1)), float32(math.Inf(-1)),
	}
	w := fp32Tensor(t, LayoutOI, []uint64{4, 4}, values)
	for _, dt := range []DataType{DTypeInt8, DTypeUint8, DTypeInt16, DTypeUint16} {
		q, _, err := w.Quantize(dt, "q", "qf")
		require.NoError(t, err, dt.String())
		lo, hi, ok := dt.SaturationBounds()
		require.True(t, ok)
		for i, v := range q.Float32s() {
			assert.GreaterOrEqual(t, float64(v), lo, "%s element %d", dt, i)
			assert.LessOrEqual(t, float64(v), hi, "%s element %d", dt, i)
		}
	}
}

func TestQuantizeErrors(t *testing.T) {
	t.Parallel()

	w := fp32Tensor(t, LayoutOI, []uint64{2, 2}, seq(4))

	_, _, err := w.Quantize(DTypeFP32, "q", "qf")
	require.ErrorIs(t, err, ErrUnsupportedDataType)
	_, _, err = w.Quantize(DTypeFP16, "q", "qf")
	require.ErrorIs(t, err, ErrNotImplemented)

	empty := fp32Tensor(t, LayoutOI, []uint64{0, 2}, nil)
	_, _, err = empty.Quantize(DTypeInt8, "q", "qf")
	require.ErrorIs(t, err, ErrNoOutputFeatures)

	i8, err := New("i8", DTypeInt8, LayoutOI, []uint64{2, 2})
	require.NoError(t, err)
	_, _, err = i8.Quantize(DTypeUint8, "q", "qf")
	require.ErrorIs(t, err, ErrUnsupportedConversion)
}

func TestMaxAbsAndFloat16(t *testing.T) {
	t.Parallel()

	h, err := New("h", DTypeFP16, LayoutOI, []uint64{2, 2})
	require.NoError(t, err)
	for i, v := range []float32{1.5, -3, 0.25, -0.5} {
		bits := float16.Fromfloat32(v).Bits()
		h.Data[i*2] = byte(bits)
		h.Data[i*2+1] = byte(bits >> 8)
	}
	assert.Equal(t, []float32{1.5, -3, 0.25, -0.5}, h.Float32s())

	m, err := h.MaxAbsPerOutputFeature()
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 0.5}, m)
}

func TestWriteFileAndOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "conv1_w.nnd")
	w := fp32Tensor(t, LayoutOIYX, []uint64{2, 1, 1, 3}, seq(6))
	require.NoError(t, w.WriteFile(path, EncodeOptions{}))

	for _, open := range []func(string) (*Tensor, error){Open, ReadFile} {
		got, err := open(path)
		require.NoError(t, err)
		assert.Equal(t, path, got.Name)
		assert.Equal(t, w.Sizes, got.Sizes)
		assert.Equal(t, w.Float32s(), got.Float32s())
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not remain")

	bad := filepath.Join(dir, "bad.nnd")
	require.NoError(t, os.WriteFile(bad, []byte("xyzF\x03\x01\x04\x00"), 0o644))
	_, err = Open(bad)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, bad, fe.Path)
	require.ErrorIs(t, err, ErrBadMagic)
}
