// Package calib turns activation dumps into calibration factors and
// prepares quantized weights for every primitive of a calibration options
// graph.
//
// A run walks the dominance frontiers in discovery order. Each frontier gets
// one set of factors from the max-abs values of its dumps; every member then
// derives its own factor files from that set, optionally decalibrated by the
// frontiers it depends on, and its weights are decalibrated and quantized.
// Nothing is written until every primitive has been processed.
package calib

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/samcharles93/nndquant/internal/calibopts"
	"github.com/samcharles93/nndquant/internal/fileindex"
	"github.com/samcharles93/nndquant/internal/frontier"
	"github.com/samcharles93/nndquant/internal/logger"
	"github.com/samcharles93/nndquant/pkg/nnd"
)

type engine struct {
	cfg     Config
	opts    *calibopts.Options
	weights *fileindex.WeightIndex
	factors []*nnd.Tensor
	deps    map[string][][]int
	namer   Namer
	log     logger.Logger

	pending []Artifact
}

type loadedWeight struct {
	name   string
	path   string
	tensor *nnd.Tensor
}

// Run calibrates every primitive of o and saves the artifacts selected by
// cfg.Options.
func Run(ctx context.Context, o *calibopts.Options, cfg Config) (*Result, error) {
	cfg.setDefaults()
	log := cfg.Log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	fr, err := frontier.Compute(o, cfg.FrontierTemplate, log)
	if err != nil {
		return nil, err
	}
	res := &Result{Frontiers: fr.Frontiers, Deps: map[string][][]int{}}
	if len(fr.Frontiers) == 0 {
		return res, nil
	}

	dumps, err := fileindex.ScanDumps(cfg.DumpDir, cfg.RecursiveDumps)
	if err != nil {
		return nil, err
	}
	if len(dumps.Files) == 0 {
		return nil, fmt.Errorf("%w: %s (recursive: %t)", ErrNoDumpFiles, cfg.DumpDir, cfg.RecursiveDumps)
	}
	weights, err := fileindex.ScanWeights(cfg.WeightsDir, cfg.RecursiveWeights)
	if err != nil {
		return nil, err
	}
	log.Info("indexed input files", "dumps", len(dumps.Files), "weights", len(weights.Files))

	factors, err := frontierFactors(ctx, dumps, o, fr, &cfg, log)
	if err != nil {
		return nil, err
	}

	e := &engine{
		cfg:     cfg,
		opts:    o,
		weights: weights,
		factors: factors,
		deps:    effectiveDeps(o, fr),
		namer:   cfg.namer(),
		log:     log,
	}
	for fi, f := range fr.Frontiers {
		for _, m := range f.Members {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := e.member(fi, m); err != nil {
				return nil, err
			}
		}
	}
	for fi, t := range factors {
		e.add(Artifact{Kind: ArtifactFrontier, Frontier: fi, Group: -1, Tensor: t})
	}

	if err := e.save(ctx); err != nil {
		return nil, err
	}
	res.Deps = e.deps
	for _, a := range e.pending {
		if a.Saved || a.Tensor != nil {
			res.Artifacts = append(res.Artifacts, a)
		}
	}
	return res, nil
}

func effectiveDeps(o *calibopts.Options, fr *frontier.Result) map[string][][]int {
	out := make(map[string][][]int, o.Len())
	for _, p := range o.Primitives() {
		rows := make([][]int, len(p.Frontiers))
		for i, f := range p.Frontiers {
			for _, d := range f {
				if idx, ok := fr.FrontierOf(o.Canonical(d)); ok {
					rows[i] = append(rows[i], idx)
				}
			}
		}
		out[p.Name] = rows
	}
	return out
}

// distinctFrontiers flattens deps, keeping the first occurrence of each
// frontier.
func distinctFrontiers(deps [][]int) []int {
	var out []int
	for _, row := range deps {
		for _, idx := range row {
			if !slices.Contains(out, idx) {
				out = append(out, idx)
			}
		}
	}
	return out
}

func (e *engine) path(name string) string {
	return filepath.Join(e.cfg.OutputDir, name)
}

func (e *engine) add(a Artifact) {
	if a.Tensor != nil {
		a.Path = a.Tensor.Name
		if a.Name == "" {
			a.Name = filepath.Base(a.Path)
		}
	}
	e.pending = append(e.pending, a)
}

func (e *engine) member(fi int, m frontier.Member) error {
	p, ok := e.opts.Lookup(m.Name)
	if !ok {
		return &PrimitiveError{Primitive: m.Name, Err: calibopts.ErrUndefinedDependency}
	}
	deps := e.deps[m.Name]
	log := e.log.With("primitive", m.Name, "group", groupAttr(m.Group))
	pw := e.weights.ForPrimitive(m.Name, p.Weights, m.Groups, m.Group, log)

	needsSplit := m.Groups > 1 && m.Group < 0
	needsDecalib := p.DecalibMode != calibopts.DecalibNone
	hasDeps := slices.ContainsFunc(deps, func(f []int) bool { return len(f) > 0 })
	hasWeights := slices.ContainsFunc(pw.PerGroup, func(g fileindex.GroupFiles) bool { return len(g.Weights) > 0 })
	decalibWeights := !needsDecalib && hasWeights && !e.cfg.Options.Has(OmitWeightsDecalib)

	if needsDecalib && !hasDeps {
		log.Warn("decalibration requested but primitive has no dependencies, skipping", "mode", string(p.DecalibMode))
		needsDecalib = false
	}
	if decalibWeights && !hasDeps {
		log.Warn("weights need decalibration but primitive has no dependencies, skipping")
		decalibWeights = false
	}

	base := e.factors[fi]
	cf := base.CloneAs(base.Name)
	if needsDecalib {
		srcs := distinctFrontiers(deps)
		if p.DecalibMode == calibopts.DecalibFirst && len(srcs) > 1 {
			return &calibopts.GraphError{Primitive: m.Name, Err: fmt.Errorf("%w: mode %q with %d dependency frontiers",
				calibopts.ErrAmbiguousDecalibSource, p.DecalibMode, len(srcs))}
		}
		for _, src := range srcs {
			if cf.OutputFeatureCount() == 0 || e.factors[src].OutputFeatureCount() == 0 {
				log.Warn("no calibration factors to decalibrate, skipping", "by", filepath.Base(e.factors[src].Name))
				continue
			}
			log.Info("decalibrating calibration factors", "by", filepath.Base(e.factors[src].Name))
			if err := cf.DecalibrateFeatures(e.factors[src], nnd.OutputFeatures); err != nil {
				return &PrimitiveError{Primitive: m.Name, File: e.factors[src].Name, Err: err}
			}
		}
	}

	if err := e.emitFactors(cf, m, fi, "", ArtifactCalib, needsSplit); err != nil {
		return err
	}
	if needsDecalib && e.cfg.Options.Has(AddRawCalibFiles) {
		if err := e.emitFactors(base, m, fi, RawAttrib, ArtifactRawCalib, needsSplit); err != nil {
			return err
		}
	}

	if !hasWeights {
		return nil
	}
	return e.memberWeights(fi, m, deps, pw, needsSplit, decalibWeights, log)
}

// emitFactors queues the factor files of m derived from t, one per group
// when split is set.
func (e *engine) emitFactors(t *nnd.Tensor, m frontier.Member, fi int, attrib string, kind ArtifactKind, split bool) error {
	if !split {
		name := e.namer.Name(m.Name, m.Groups, m.Group, attrib, fileindex.KindCalibFactors)
		var out *nnd.Tensor
		if kind == ArtifactRawCalib {
			out = t.CloneAs(e.path(name))
		} else {
			out = t.RenameInPlace(e.path(name))
		}
		e.add(Artifact{Kind: kind, Name: name, Primitive: m.Name, Group: m.Group, Frontier: fi, Tensor: out})
		return nil
	}

	names := make([]string, m.Groups)
	paths := make([]string, m.Groups)
	for g := range names {
		names[g] = e.namer.Name(m.Name, m.Groups, g, attrib, fileindex.KindCalibFactors)
		paths[g] = e.path(names[g])
	}
	var parts []*nnd.Tensor
	if t.OutputFeatureCount() == 0 {
		e.log.Warn("no calibration factors to split, emitting empty group factors",
			"primitive", m.Name, "groups", m.Groups)
		for _, path := range paths {
			parts = append(parts, nnd.FromFloat32s(path, nil))
		}
	} else {
		var err error
		if parts, err = t.SplitOnOutputFeatures(paths...); err != nil {
			return &PrimitiveError{Primitive: m.Name, File: t.Name, Err: err}
		}
	}
	for g, part := range parts {
		e.add(Artifact{Kind: kind, Name: names[g], Primitive: m.Name, Group: g, Frontier: fi, Tensor: part})
	}
	return nil
}

func (e *engine) memberWeights(fi int, m frontier.Member, deps [][]int, pw fileindex.PrimitiveWeights, split, decalib bool, log logger.Logger) error {
	log.Info("loading weights", "root", pw.Root)
	loaded := make([][]loadedWeight, len(pw.PerGroup))
	for i, gf := range pw.PerGroup {
		for _, wf := range gf.Weights {
			path := wf.Path(e.cfg.WeightsDir)
			t, err := nnd.Open(path)
			if err != nil {
				return &PrimitiveError{Primitive: m.Name, File: path, Err: err}
			}
			loaded[i] = append(loaded[i], loadedWeight{name: wf.Name, path: path, tensor: t})
		}
	}

	// Zero-based group of every bucket in loaded.
	groups := []int{m.Group}
	if split {
		groups = make([]int, m.Groups)
		for g := range groups {
			groups[g] = g
		}
	}

	if decalib {
		srcs := distinctFrontiers(deps)
		if len(srcs) > 1 {
			return &calibopts.GraphError{Primitive: m.Name, Err: fmt.Errorf("%w: weights depend on %d frontiers",
				calibopts.ErrAmbiguousDecalibSource, len(srcs))}
		}
		src := e.factors[srcs[0]]
		cfs := []*nnd.Tensor{src}
		if src.OutputFeatureCount() == 0 {
			log.Warn("no calibration factors for weights decalibration, skipping", "factors", filepath.Base(src.Name))
			cfs = nil
		} else if split {
			names := make([]string, m.Groups)
			for g := range names {
				names[g] = fmt.Sprintf("%s.split_g%d", src.Name, g+1)
			}
			var err error
			if cfs, err = src.SplitOnOutputFeatures(names...); err != nil {
				return &PrimitiveError{Primitive: m.Name, File: src.Name, Err: err}
			}
		}
		for i := range min(len(loaded), len(cfs), len(groups)) {
			glog := log.With("group", groupAttr(groups[i]))
			ws := loaded[i]
			if len(ws) == 0 {
				glog.Warn("weights missing for group, skipping decalibration")
				continue
			}
			if len(ws) > 1 {
				names := make([]string, len(ws))
				for k, w := range ws {
					names[k] = w.name
				}
				glog.Warn("several weight files for one group, decalibrating all of them", "files", names)
			}
			for _, w := range ws {
				glog.Info("decalibrating weights", "file", w.name, "factors", filepath.Base(cfs[i].Name))
				if err := w.tensor.Decalibrate(cfs[i]); err != nil {
					return &PrimitiveError{Primitive: m.Name, File: w.path, Err: err}
				}
			}
		}
	}

	quantize := !e.cfg.Options.Has(OmitWeightsQuant)
	unify := e.cfg.Options.Has(UnifyWeightNames)
	for i := range min(len(loaded), len(groups)) {
		g := groups[i]
		for k, w := range loaded[i] {
			wName, qfName := w.name, QuantFactorsName(w.name)
			if unify {
				attrib := ""
				if k > 0 {
					attrib = strconv.Itoa(k)
				}
				wName = e.namer.Name(m.Name, m.Groups, g, attrib, fileindex.KindWeights)
				qfName = e.namer.Name(m.Name, m.Groups, g, attrib, fileindex.KindQuantFactors)
			}

			if !quantize {
				e.add(Artifact{Kind: ArtifactWeights, Name: wName, Primitive: m.Name, Group: g, Frontier: fi,
					Tensor: w.tensor.RenameInPlace(e.path(wName))})
				continue
			}
			log.Info("quantizing weights", "file", w.name, "weights", wName, "quant_factors", qfName, "type", e.cfg.Target.String())
			q, qf, err := w.tensor.Quantize(e.cfg.Target, e.path(wName), e.path(qfName))
			if err != nil {
				return &PrimitiveError{Primitive: m.Name, File: w.path, Err: err}
			}
			e.add(Artifact{Kind: ArtifactWeights, Name: wName, Primitive: m.Name, Group: g, Frontier: fi, Tensor: q})
			e.add(Artifact{Kind: ArtifactQuantFactors, Name: qfName, Primitive: m.Name, Group: g, Frontier: fi, Tensor: qf})
		}
	}
	return nil
}

// artifactClass maps an artifact kind to its save and retain options.
func artifactClass(k ArtifactKind) (save, ret Options) {
	switch k {
	case ArtifactCalib, ArtifactRawCalib:
		return SaveCalibFiles, RetCalibFiles
	case ArtifactFrontier:
		return SaveFrontierFiles, RetFrontierFiles
	default:
		return SaveWeightFiles, RetWeightFiles
	}
}

// save writes calibration factors, then weights, then frontier factors.
func (e *engine) save(ctx context.Context) error {
	opts := e.cfg.Options
	if opts&(SaveCalibFiles|SaveFrontierFiles|SaveWeightFiles) != 0 {
		if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
			return err
		}
	}
	enc := e.cfg.encodeOptions()

	for _, class := range []Options{SaveCalibFiles, SaveWeightFiles, SaveFrontierFiles} {
		if !opts.Has(class) {
			continue
		}
		for i := range e.pending {
			a := &e.pending[i]
			if save, _ := artifactClass(a.Kind); save != class {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := a.Tensor.WriteFile(a.Path, enc); err != nil {
				if a.Primitive == "" {
					return fmt.Errorf("saving %s: %w", a.Path, err)
				}
				return &PrimitiveError{Primitive: a.Primitive, File: a.Path, Err: err}
			}
			a.Saved = true
			e.log.Info("saved", "file", a.Name, "kind", a.Kind.String(), "frontier", a.Frontier+1)
		}
	}

	for i := range e.pending {
		if _, ret := artifactClass(e.pending[i].Kind); !opts.Has(ret) {
			e.pending[i].Tensor = nil
		}
	}
	return nil
}

func groupAttr(group int) any {
	if group < 0 {
		return "all"
	}
	return group
}
