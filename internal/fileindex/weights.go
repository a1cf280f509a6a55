package fileindex

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/nndquant/internal/logger"
)

var weightNameRe = regexp.MustCompile(`^(.*?)(?:_g([0-9]+))?_(?:(w)(?:eights?)?|(b)(?:ias(?:es)?)?|w?(q)f|(m)(?:eans?)?)\.nnd$`)

// Kind is the role of a tensor file attached to a primitive.
type Kind uint8

const (
	KindWeights Kind = iota
	KindBias
	KindQuantFactors
	KindMeans
	KindCalibFactors
)

// String returns the file-name qualifier of the kind.
func (k Kind) String() string {
	switch k {
	case KindWeights:
		return "weights"
	case KindBias:
		return "bias"
	case KindQuantFactors:
		return "qf"
	case KindMeans:
		return "mean"
	case KindCalibFactors:
		return "cf"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// WeightFile describes one file named <root>[_g<n>]_<kind>.nnd. Group is
// zero-based, -1 when the name carries no group.
type WeightFile struct {
	Root  string
	Group int
	Kind  Kind
	Name  string
	Dir   string
}

// ParseWeightFileName parses a weight file base name. The on-disk group is
// one-based; _g1 becomes group 0 and a missing or _g0 suffix becomes -1.
func ParseWeightFileName(name string) (WeightFile, bool) {
	m := weightNameRe.FindStringSubmatch(name)
	if m == nil {
		return WeightFile{}, false
	}
	wf := WeightFile{Root: m[1], Group: -1, Name: name, Dir: "."}
	if m[2] != "" {
		if g, err := strconv.Atoi(m[2]); err == nil && g > 0 {
			wf.Group = g - 1
		}
	}
	switch {
	case m[3] != "":
		wf.Kind = KindWeights
	case m[4] != "":
		wf.Kind = KindBias
	case m[5] != "":
		wf.Kind = KindQuantFactors
	default:
		wf.Kind = KindMeans
	}
	return wf, true
}

// Path returns the full path of f below root.
func (f WeightFile) Path(root string) string {
	return filepath.Join(root, f.Dir, f.Name)
}

// WeightIndex is the result of scanning a weights directory.
type WeightIndex struct {
	Root  string
	Files []WeightFile
}

// ScanWeights lists every weight file in root. An empty root yields an empty
// index.
func ScanWeights(root string, recursive bool) (*WeightIndex, error) {
	ix := &WeightIndex{Root: root}
	if root == "" {
		return ix, nil
	}
	list, err := listFiles(root, recursive, weightNameRe.MatchString)
	if err != nil {
		return nil, fmt.Errorf("scan weights directory %s: %w", root, err)
	}
	for _, f := range list {
		wf, ok := ParseWeightFileName(f.name)
		if !ok {
			continue
		}
		wf.Dir = f.dir
		ix.Files = append(ix.Files, wf)
	}
	return ix, nil
}

// GroupFiles are the files of one feature group, bucketed by kind.
type GroupFiles struct {
	Group        int
	Weights      []WeightFile
	Bias         []WeightFile
	QuantFactors []WeightFile
	Means        []WeightFile
}

func (g *GroupFiles) add(f WeightFile) {
	switch f.Kind {
	case KindWeights:
		g.Weights = append(g.Weights, f)
	case KindBias:
		g.Bias = append(g.Bias, f)
	case KindQuantFactors:
		g.QuantFactors = append(g.QuantFactors, f)
	case KindMeans:
		g.Means = append(g.Means, f)
	}
}

// PrimitiveWeights are the weight files selected for one primitive.
type PrimitiveWeights struct {
	Primitive string
	Root      string
	Groups    int
	PerGroup  []GroupFiles
}

// ForPrimitive selects the files whose root name matches root
// (case-insensitively). groups is the declared split size of prim; group
// selects a single feature group or -1 for all of them.
func (ix *WeightIndex) ForPrimitive(prim, root string, groups, group int, log logger.Logger) PrimitiveWeights {
	groups = max(groups, 1)
	out := PrimitiveWeights{Primitive: prim, Root: root}
	log = log.With("primitive", prim, "weights_root", root)

	var files []WeightFile
	for _, f := range ix.Files {
		if strings.EqualFold(f.Root, root) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return out
	}

	seen := map[int]struct{}{}
	calc := 1
	for _, f := range files {
		if f.Group >= 0 {
			seen[f.Group] = struct{}{}
			calc = max(calc, f.Group+1)
		}
	}
	if max(len(seen), 1) < calc {
		log.Warn("weight files do not cover every feature group",
			"distinct", len(seen), "groups", calc, "missing", missingOneBased(seen, calc))
	}
	if calc != groups {
		log.Warn("weight files imply a different split size than declared; excess files are ignored",
			"calculated", calc, "declared", groups)
		calc = min(calc, groups)
	}

	per := make([]GroupFiles, calc)
	for i := range per {
		per[i].Group = i
	}
	for _, f := range files {
		switch {
		case f.Group >= 0 && f.Group < calc:
			per[f.Group].add(f)
		case f.Group < 0 && calc == 1:
			per[0].add(f)
		}
	}

	if groups > 1 && group >= 0 {
		if group < calc {
			per = per[group : group+1]
		} else {
			per = []GroupFiles{{Group: group}}
		}
	}
	out.Groups = calc
	out.PerGroup = per
	return out
}

func missingOneBased(seen map[int]struct{}, n int) []int {
	var out []int
	for i := range n {
		if _, ok := seen[i]; !ok {
			out = append(out, i+1)
		}
	}
	return out
}
