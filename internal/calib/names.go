package calib

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/nndquant/internal/fileindex"
)

const (
	DefaultFileTemplate      = "{prim}_{attrib}{type}.nnd"
	DefaultGroupFileTemplate = "{prim}_g{group}_{attrib}{type}.nnd"
)

// RawAttrib marks factors saved before decalibration.
const RawAttrib = "nondecalib"

var weightsToQF = regexp.MustCompile(`_w(?:eights?)?\.nnd$`)

// Namer proposes output file names from the file name templates. Templates
// accept {prim}, {group}, {attrib} and {type}; {prim_name} and {group_idx}
// are accepted as aliases.
type Namer struct {
	File      string
	GroupFile string
}

// Name returns the file name for a primitive. group is zero-based and
// wraps modulo groups; it is ignored when groups <= 1 or group < 0. A
// non-empty attrib gets a trailing underscore.
func (n Namer) Name(prim string, groups, group int, attrib string, kind fileindex.Kind) string {
	if attrib != "" {
		attrib += "_"
	}
	tmpl := n.File
	if tmpl == "" {
		tmpl = DefaultFileTemplate
	}
	g := ""
	if groups > 1 && group >= 0 {
		tmpl = n.GroupFile
		if tmpl == "" {
			tmpl = DefaultGroupFileTemplate
		}
		g = strconv.Itoa(group%groups + 1)
	}
	return strings.NewReplacer(
		"{prim}", prim, "{prim_name}", prim,
		"{group}", g, "{group_idx}", g,
		"{attrib}", attrib,
		"{type}", kind.String(),
	).Replace(tmpl)
}

// QuantFactorsName derives the quant-factor file name of a weights file
// that keeps its original name.
func QuantFactorsName(weights string) string {
	if weightsToQF.MatchString(weights) {
		return weightsToQF.ReplaceAllString(weights, "_qf.nnd")
	}
	return strings.TrimSuffix(weights, ".nnd") + "_qf.nnd"
}
