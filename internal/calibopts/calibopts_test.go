package calibopts

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/nndquant/internal/fileindex"
	"github.com/samcharles93/nndquant/internal/logger"
)

func parse(t *testing.T, text string) *Options {
	t.Helper()
	o, err := ParseBytes([]byte(text), logger.Discard())
	require.NoError(t, err)
	return o
}

func TestFixup(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		`{"a": []}`:        `{"a": []}`,
		`"a": []`:          `{"a": []}`,
		` "a": [], `:       `{"a": []}`,
		`{"a": [],`:        `{"a": []}`,
		"{\"a\": [],\n}\n": `{"a": []}`,
		`"a": "b"}`:        `{"a": "b"}`,
		`"a": [], "b": {"split": 2, "deps": ["a"]}`:  `{"a": [], "b": {"split": 2, "deps": ["a"]}}`,
		`"a": [], "b": {"split": 2, "deps": ["a"]},`: `{"a": [], "b": {"split": 2, "deps": ["a"]}}`,
	}
	for in, want := range cases {
		assert.Equal(t, want, fixup(in), "%q", in)
	}
}

func TestParseUnwrappedTrailingObject(t *testing.T) {
	t.Parallel()

	o := parse(t, `"conv1": [], "conv2": {"split": 2, "deps": ["conv1"]}`)
	require.Equal(t, 2, o.Len())
	p, ok := o.Lookup("conv2")
	require.True(t, ok)
	assert.Equal(t, 2, p.Groups)
}

func TestParseForms(t *testing.T) {
	t.Parallel()

	o := parse(t, `
		"Prim1": [],
		"prim2": "prim1",
		"prim3": ["prim1", "PRIM2"],
		"prim4": {"deps": ["prim3"], "groups": 2, "decalib_mode": true, "weights": "P4W", "dump_mode": "expand_single"},
		"prim5": {"deps": [{"prim4": 0}, {"prim4": 3}]},
		"prim6": [["prim1"], [], ["prim2", {"prim4": -2}]],
		"prim7": {"deps": "prim6", "split": "3", "decalibrate_mode": "*"},
	`)

	require.Equal(t, 7, o.Len())
	names := make([]string, 0, o.Len())
	for _, p := range o.Primitives() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"prim1", "prim2", "prim3", "prim4", "prim5", "prim6", "prim7"}, names)

	p1, ok := o.Lookup("PRIM1")
	require.True(t, ok)
	assert.Empty(t, p1.Frontiers)
	assert.Equal(t, 1, p1.Groups)
	assert.Equal(t, DecalibNone, p1.DecalibMode)
	assert.Equal(t, "prim1", p1.Weights)
	assert.Equal(t, fileindex.DumpNormal, p1.DumpMode)

	p2, _ := o.Lookup("prim2")
	assert.Equal(t, [][]Dep{{{"prim1", -1}}}, p2.Frontiers)

	p3, _ := o.Lookup("prim3")
	assert.Equal(t, [][]Dep{{{"prim1", -1}, {"prim2", -1}}}, p3.Frontiers)

	p4, _ := o.Lookup("prim4")
	assert.Equal(t, 2, p4.Groups)
	assert.Equal(t, DecalibFirst, p4.DecalibMode)
	assert.Equal(t, "P4W", p4.Weights)
	assert.Equal(t, fileindex.DumpExpandSingle, p4.DumpMode)

	p5, _ := o.Lookup("prim5")
	assert.Equal(t, [][]Dep{{{"prim4", 0}, {"prim4", 3}}}, p5.Frontiers)

	p6, _ := o.Lookup("prim6")
	assert.Equal(t, [][]Dep{{{"prim1", -1}}, {{"prim2", -1}, {"prim4", 0}}}, p6.Frontiers)

	p7, _ := o.Lookup("prim7")
	assert.Equal(t, 3, p7.Groups)
	assert.Equal(t, DecalibAll, p7.DecalibMode)

	require.NoError(t, o.Validate())
}

func TestParseMixedFrontiers(t *testing.T) {
	t.Parallel()

	// flat entries before a nested list form their own frontier
	o := parse(t, `{"a": [], "b": [], "c": [], "d": ["a", ["b"], "c"]}`)
	d, _ := o.Lookup("d")
	assert.Equal(t, [][]Dep{{{"a", -1}}, {{"b", -1}, {"c", -1}}}, d.Frontiers)
}

func TestParseDuplicateKeepsFirst(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	o, err := ParseBytes([]byte(`{"conv1": [], "CONV1": {"groups": 4}}`), logger.JSON(&buf, slog.LevelWarn))
	require.NoError(t, err)
	require.Equal(t, 1, o.Len())
	p, _ := o.Lookup("conv1")
	assert.Equal(t, 1, p.Groups)
	assert.Contains(t, buf.String(), "duplicated primitive")
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		`{"a": 1}`,
		`{"a": null}`,
		`{"a": {"deps": 3}}`,
		`{"a": [1]}`,
		`{"a": [[true]]}`,
		`{"a": {"groups": "two"}}`,
		`{"a": {"weights": 4}}`,
		`{"a": [}`,
		`["a"]`,
	} {
		_, err := ParseBytes([]byte(text), logger.Discard())
		require.ErrorIs(t, err, ErrMalformed, text)
		assert.True(t, IsGraphError(err), text)
	}
}

func TestParseDecalibModeValues(t *testing.T) {
	t.Parallel()

	o := parse(t, `{"a": {"decalib_mode": false}, "b": {"decalib_mode": 1}, "c": {"decalib_mode": "x"}}`)
	a, _ := o.Lookup("a")
	assert.Equal(t, DecalibNone, a.DecalibMode)
	b, _ := o.Lookup("b")
	assert.Equal(t, DecalibFirst, b.DecalibMode)

	err := o.Validate()
	require.ErrorIs(t, err, ErrInvalidDecalibMode)
	var ge *GraphError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "c", ge.Primitive)
}

func TestValidateCycle(t *testing.T) {
	t.Parallel()

	cases := []string{
		`{"a": "a"}`,
		`{"a": "b", "b": "a"}`,
		`{"x": [], "a": ["x", "b"], "b": [["c"]], "c": {"deps": [{"a": 0}]}}`,
		`{"a": {"deps": [["b"], ["c"]]}, "b": [], "c": "d", "d": "a"}`,
	}
	for _, text := range cases {
		err := parse(t, text).Validate()
		require.ErrorIs(t, err, ErrDependencyCycle, text)
		assert.True(t, IsGraphError(err))
	}
}

func TestValidateUndefined(t *testing.T) {
	t.Parallel()

	err := parse(t, `{"a": "b", "b": ["c"]}`).Validate()
	require.ErrorIs(t, err, ErrUndefinedDependency)
	assert.Contains(t, err.Error(), `"c"`)
}

func TestValidateDiamond(t *testing.T) {
	t.Parallel()

	o := parse(t, `{"a": [], "b": "a", "c": "a", "d": ["b", "c"], "e": [["d"], ["a"]]}`)
	require.NoError(t, o.Validate())
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	o := parse(t, `{"a": [], "s": {"split": 3}}`)
	assert.Equal(t, CanonicalDep{"a", 1, -1}, o.Canonical(Dep{"a", 2}))
	assert.Equal(t, CanonicalDep{"zzz", 1, -1}, o.Canonical(Dep{"zzz", 1}))
	assert.Equal(t, CanonicalDep{"s", 3, -1}, o.Canonical(Dep{"s", -1}))
	assert.Equal(t, CanonicalDep{"s", 3, 1}, o.Canonical(Dep{"s", 4}))
}

func TestLoadAndNew(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "opts.json")
	require.NoError(t, os.WriteFile(path, []byte(`"conv1": [], "conv2": {"deps": ["conv1"], "split": 2},`), 0o644))
	o, err := Load(path, logger.Discard())
	require.NoError(t, err)
	require.Equal(t, 2, o.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), logger.Discard())
	require.Error(t, err)

	n := New(Primitive{Name: "Conv1"}, Primitive{Name: "conv2", Groups: 2, Frontiers: [][]Dep{{{"conv1", -1}}}})
	c2, ok := n.Lookup("conv2")
	require.True(t, ok)
	assert.Equal(t, "conv2", c2.Weights)
	assert.Equal(t, DecalibNone, c2.DecalibMode)
	c1, _ := n.Lookup("conv1")
	assert.Equal(t, 1, c1.Groups)

	r, err := Parse(strings.NewReader(`{"x": []}`), logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
}
