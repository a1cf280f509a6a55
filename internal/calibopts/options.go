// Package calibopts parses and validates calibration options: the per
// primitive description of dependency frontiers, split size, decalibration
// mode, weight file root name and dump mode.
package calibopts

import (
	"fmt"
	"strings"

	"github.com/samcharles93/nndquant/internal/fileindex"
)

// DecalibMode selects how calibration factors of a primitive are
// decalibrated by the factors of its dependency frontiers.
type DecalibMode string

const (
	DecalibNone  DecalibMode = "-" // decalibrate weights instead
	DecalibFirst DecalibMode = "+" // divide by the single dependency frontier
	DecalibAll   DecalibMode = "*" // divide by every dependency frontier
)

// Valid reports whether m is one of the known modes.
func (m DecalibMode) Valid() bool {
	return m == DecalibNone || m == DecalibFirst || m == DecalibAll
}

// Dep is a dependency on a primitive, or on one feature group of it when
// Group >= 0.
type Dep struct {
	Name  string
	Group int
}

func (d Dep) String() string {
	if d.Group < 0 {
		return d.Name
	}
	return fmt.Sprintf("%s[g%d]", d.Name, d.Group)
}

// Primitive holds the normalized options of one primitive.
type Primitive struct {
	Name        string
	Frontiers   [][]Dep
	Groups      int
	DecalibMode DecalibMode
	Weights     string
	DumpMode    fileindex.DumpMode
}

// Options is the normalized calibration options graph. Primitives are kept
// in definition order and addressed by index.
type Options struct {
	prims []Primitive
	index map[string]int
}

func newOptions() *Options {
	return &Options{index: make(map[string]int)}
}

// New builds options from already normalized primitives. Names are
// lower-cased and the first definition of a name wins.
func New(prims ...Primitive) *Options {
	o := newOptions()
	for _, p := range prims {
		p.Name = strings.ToLower(p.Name)
		if _, dup := o.index[p.Name]; dup {
			continue
		}
		if p.Groups < 1 {
			p.Groups = 1
		}
		if p.DecalibMode == "" {
			p.DecalibMode = DecalibNone
		}
		if p.Weights == "" {
			p.Weights = p.Name
		}
		if p.DumpMode == "" {
			p.DumpMode = fileindex.DumpNormal
		}
		o.add(p)
	}
	return o
}

func (o *Options) add(p Primitive) {
	o.index[p.Name] = len(o.prims)
	o.prims = append(o.prims, p)
}

// Len returns the number of primitives.
func (o *Options) Len() int { return len(o.prims) }

// Primitives returns the primitives in definition order. The slice must not
// be modified.
func (o *Options) Primitives() []Primitive { return o.prims }

// Index returns the index of the named primitive.
func (o *Options) Index(name string) (int, bool) {
	i, ok := o.index[strings.ToLower(name)]
	return i, ok
}

// Lookup returns the named primitive.
func (o *Options) Lookup(name string) (*Primitive, bool) {
	i, ok := o.Index(name)
	if !ok {
		return nil, false
	}
	return &o.prims[i], true
}

// CanonicalDep is a dependency extended with the split size of its target.
// Group is -1 when the dependency covers all groups concatenated.
type CanonicalDep struct {
	Name   string
	Groups int
	Group  int
}

func (d CanonicalDep) String() string {
	if d.Group < 0 {
		return fmt.Sprintf("%s (group: all)", d.Name)
	}
	return fmt.Sprintf("%s (group: %d)", d.Name, d.Group)
}

// Canonical resolves d against the options. Unknown or unsplit targets have
// one group; group indices wrap modulo the split size.
func (o *Options) Canonical(d Dep) CanonicalDep {
	p, ok := o.Lookup(d.Name)
	if !ok || p.Groups <= 1 {
		return CanonicalDep{Name: d.Name, Groups: 1, Group: -1}
	}
	if d.Group < 0 {
		return CanonicalDep{Name: d.Name, Groups: p.Groups, Group: -1}
	}
	return CanonicalDep{Name: d.Name, Groups: p.Groups, Group: d.Group % p.Groups}
}
