package calib

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/nndquant/internal/calibopts"
	"github.com/samcharles93/nndquant/internal/fileindex"
	"github.com/samcharles93/nndquant/internal/frontier"
	"github.com/samcharles93/nndquant/internal/logger"
	"github.com/samcharles93/nndquant/pkg/nnd"
)

// frontierDumps are the dump entries of every member of one frontier.
type frontierDumps struct {
	batchSize    int
	featureCount int
	entries      []fileindex.DumpEntry
	owners       []string
}

func gatherFrontier(ix *fileindex.DumpIndex, o *calibopts.Options, f frontier.Frontier, log logger.Logger) (*frontierDumps, error) {
	log = log.With("frontier", f.Name)
	log.Debug("gathering dump information")

	out := &frontierDumps{}
	var prev *fileindex.PrimitiveDumps
	for _, m := range f.Members {
		mode := fileindex.DumpNormal
		if p, ok := o.Lookup(m.Name); ok {
			mode = p.DumpMode
		}
		pd, err := ix.ForPrimitive(m.Name, m.Groups, m.Group, mode, log)
		if err != nil {
			return nil, &PrimitiveError{Primitive: m.Name, Err: err}
		}
		if prev == nil {
			out.batchSize, out.featureCount = pd.BatchSize, pd.FeatureCount
		} else {
			if pd.FeatureCount != prev.FeatureCount {
				return nil, &PrimitiveError{Primitive: m.Name, Err: fmt.Errorf("%w: %d in %q, %d in %q (%s)",
					ErrFrontierFeatureMismatch, prev.FeatureCount, prev.Primitive, pd.FeatureCount, pd.Primitive, f.Name)}
			}
			if pd.BatchSize != prev.BatchSize {
				log.Warn("primitives of one frontier have different batch sizes, using the maximum",
					"first", prev.Primitive, "first_batch_size", prev.BatchSize,
					"second", pd.Primitive, "second_batch_size", pd.BatchSize)
				out.batchSize = max(out.batchSize, pd.BatchSize)
			}
		}
		for _, e := range pd.Entries {
			out.entries = append(out.entries, e)
			out.owners = append(out.owners, m.Name)
		}
		prev = pd
	}
	if out.featureCount == 0 {
		log.Warn("no dump files found for any member of frontier")
	}
	return out, nil
}

// frontierFactors computes the calibration factors of every frontier. Dump
// files are parsed concurrently with at most jobs in flight; maxima are
// reduced afterwards so the result does not depend on scheduling.
func frontierFactors(ctx context.Context, ix *fileindex.DumpIndex, o *calibopts.Options, fr *frontier.Result, cfg *Config, log logger.Logger) ([]*nnd.Tensor, error) {
	gathered := make([]*frontierDumps, len(fr.Frontiers))
	for i, f := range fr.Frontiers {
		fd, err := gatherFrontier(ix, o, f, log)
		if err != nil {
			return nil, err
		}
		gathered[i] = fd
	}

	values := make([][]float32, len(gathered))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Jobs)
	for i, fd := range gathered {
		values[i] = make([]float32, len(fd.entries))
		for k, e := range fd.entries {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				v, err := e.MaxAbs(ix.Root)
				if err != nil {
					return &PrimitiveError{Primitive: fd.owners[k], File: e.File.Path(ix.Root), Err: err}
				}
				values[i][k] = v
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rf := cfg.Target.RangeFactor()
	namer := cfg.namer()
	out := make([]*nnd.Tensor, len(gathered))
	for i, fd := range gathered {
		maxAbs := make([]float32, fd.featureCount)
		for k, e := range fd.entries {
			if e.Feature < len(maxAbs) {
				maxAbs[e.Feature] = max(maxAbs[e.Feature], values[i][k])
			}
		}
		factors := make([]float32, len(maxAbs))
		for j, m := range maxAbs {
			factors[j] = float32(rf / max(float64(m), 1))
		}
		f := fr.Frontiers[i]
		log.Info("calculated frontier calibration factors", "frontier", f.Name,
			"files", len(fd.entries), "features", len(factors), "batch_size", fd.batchSize)
		name := namer.Name(f.Name, 1, -1, "", fileindex.KindCalibFactors)
		out[i] = nnd.FromFloat32s(filepath.Join(cfg.OutputDir, name), factors)
	}
	return out, nil
}
