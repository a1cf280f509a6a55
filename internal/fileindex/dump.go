package fileindex

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/samcharles93/nndquant/internal/logger"
)

var dumpNameRe = regexp.MustCompile(`^(.*)_gpu_b([0-9]+)_f([0-9]+)\.txt$`)

// DumpMode selects how dump files of a primitive map onto output features.
type DumpMode string

const (
	// DumpNormal: one file per batch item and output feature.
	DumpNormal DumpMode = "normal"
	// DumpExpandSingle: one file per batch item, every value in it is a
	// separate output feature.
	DumpExpandSingle DumpMode = "expand_single"
)

// ParseDumpMode maps unknown modes to DumpNormal.
func ParseDumpMode(s string) DumpMode {
	if DumpMode(strings.ToLower(strings.TrimSpace(s))) == DumpExpandSingle {
		return DumpExpandSingle
	}
	return DumpNormal
}

// DumpFile describes one file named <primitive>_gpu_b<batch>_f<feature>.txt.
type DumpFile struct {
	Primitive string
	Batch     int
	Feature   int
	Name      string
	Dir       string // relative to the scanned root
}

// ParseDumpFileName parses a dump file base name.
func ParseDumpFileName(name string) (DumpFile, bool) {
	m := dumpNameRe.FindStringSubmatch(name)
	if m == nil {
		return DumpFile{}, false
	}
	batch, err := strconv.Atoi(m[2])
	if err != nil {
		return DumpFile{}, false
	}
	feature, err := strconv.Atoi(m[3])
	if err != nil {
		return DumpFile{}, false
	}
	return DumpFile{Primitive: m[1], Batch: batch, Feature: feature, Name: name, Dir: "."}, true
}

// DumpIndex is the result of scanning a dump directory.
type DumpIndex struct {
	Root  string
	Files []DumpFile
}

// ScanDumps lists every dump file in root, descending into subdirectories
// when recursive is set.
func ScanDumps(root string, recursive bool) (*DumpIndex, error) {
	list, err := listFiles(root, recursive, dumpNameRe.MatchString)
	if err != nil {
		return nil, fmt.Errorf("scan dump directory %s: %w", root, err)
	}
	ix := &DumpIndex{Root: root, Files: make([]DumpFile, 0, len(list))}
	for _, f := range list {
		df, ok := ParseDumpFileName(f.name)
		if !ok {
			continue
		}
		df.Dir = f.dir
		ix.Files = append(ix.Files, df)
	}
	return ix, nil
}

// Path returns the full path of f below root.
func (f DumpFile) Path(root string) string {
	return filepath.Join(root, f.Dir, f.Name)
}

// DumpEntry is one contribution to an output feature of a primitive. In
// expand-single mode the value has already been read and Expanded is set;
// otherwise the max-abs value comes from File.
type DumpEntry struct {
	Batch    int
	Feature  int
	Group    int
	File     DumpFile
	Value    float32
	Expanded bool
}

// MaxAbs returns the max-abs contribution of the entry.
func (e DumpEntry) MaxAbs(root string) (float32, error) {
	if e.Expanded {
		return e.Value, nil
	}
	return MaxAbsFromFile(e.File.Path(root))
}

// PrimitiveDumps are the dump entries selected for one primitive or one
// feature group of it.
type PrimitiveDumps struct {
	Primitive    string
	BatchSize    int
	FeatureCount int
	Groups       int
	Entries      []DumpEntry
}

// ForPrimitive selects the dump files of prim. groups is the declared split
// size; group selects a single feature group, or -1 for the whole primitive
// treated as one concatenated entity. Coverage gaps are logged, not returned.
func (ix *DumpIndex) ForPrimitive(prim string, groups, group int, mode DumpMode, log logger.Logger) (*PrimitiveDumps, error) {
	if groups < 1 {
		groups = 1
	}
	if mode != DumpExpandSingle {
		mode = DumpNormal
	}
	log = log.With("primitive", prim)
	log.Debug("gathering dump files", "group", groupAttr(group), "dump_mode", string(mode))

	var files []DumpFile
	for _, f := range ix.Files {
		if strings.EqualFold(f.Primitive, prim) {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return &PrimitiveDumps{Primitive: prim}, nil
	}

	batches := map[int]struct{}{}
	features := map[int]struct{}{}
	batchSize, featureCount := 0, 0
	for _, f := range files {
		batches[f.Batch] = struct{}{}
		features[f.Feature] = struct{}{}
		batchSize = max(batchSize, f.Batch+1)
		featureCount = max(featureCount, f.Feature+1)
	}

	entries := make([]DumpEntry, 0, len(files))
	if mode == DumpExpandSingle {
		if featureCount > 1 {
			log.Warn("feature indices in dump file names suggest normal dump mode", "features", featureCount)
		}
		expanded := -1
		var expandedFrom string
		for _, f := range files {
			vals, err := AbsValuesFromFile(f.Path(ix.Root))
			if err != nil {
				return nil, err
			}
			if len(vals) == 0 {
				return nil, fmt.Errorf("%w: %s (primitive %s)", ErrEmptyExpandedFile, f.Path(ix.Root), prim)
			}
			if expanded < 0 {
				expanded, expandedFrom = len(vals), f.Name
			} else if expanded != len(vals) {
				return nil, fmt.Errorf("%w: %d values in %s, %d in %s (primitive %s)",
					ErrExpandedCountMismatch, expanded, expandedFrom, len(vals), f.Name, prim)
			}
			for i, v := range vals {
				entries = append(entries, DumpEntry{Batch: f.Batch, Feature: i, File: f, Value: v, Expanded: true})
			}
		}
		if len(files) > len(batches) {
			log.Warn("several expanded dump files share a batch index", "files", len(files), "batches", len(batches))
		}
		featureCount = expanded
		features = make(map[int]struct{}, expanded)
		for i := range expanded {
			features[i] = struct{}{}
		}
	} else {
		for _, f := range files {
			entries = append(entries, DumpEntry{Batch: f.Batch, Feature: f.Feature, File: f})
		}
	}

	if featureCount%groups != 0 {
		return nil, fmt.Errorf("%w: %d features into %d groups (primitive %s)",
			ErrFeatureCountNotDivisible, featureCount, groups, prim)
	}
	perGroup := featureCount / groups

	if len(features) < featureCount {
		log.Warn("dump files do not cover every output feature",
			"distinct", len(features), "features", featureCount, "missing", missing(features, featureCount))
	}
	if len(batches) < batchSize {
		log.Warn("dump files do not cover the entire batch",
			"distinct", len(batches), "batch_size", batchSize, "missing", missing(batches, batchSize))
	}

	if group < 0 {
		perGroup *= groups
		groups = 1
	}
	out := &PrimitiveDumps{Primitive: prim, BatchSize: batchSize, FeatureCount: perGroup, Groups: groups}
	for _, e := range entries {
		e.Group = e.Feature / perGroup
		e.Feature %= perGroup
		if groups > 1 && e.Group != group {
			continue
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}

func missing(seen map[int]struct{}, n int) []int {
	var out []int
	for i := range n {
		if _, ok := seen[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}

func groupAttr(group int) any {
	if group < 0 {
		return "all"
	}
	return group
}
