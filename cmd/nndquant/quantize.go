package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nndquant/internal/calib"
	"github.com/samcharles93/nndquant/internal/calibopts"
	"github.com/samcharles93/nndquant/internal/logger"
	"github.com/samcharles93/nndquant/pkg/nnd"
)

var targetTypes = map[string]nnd.DataType{
	"i8":     nnd.DTypeInt8,
	"u8":     nnd.DTypeUint8,
	"i16":    nnd.DTypeInt16,
	"u16":    nnd.DTypeUint16,
	"int8":   nnd.DTypeInt8,
	"uint8":  nnd.DTypeUint8,
	"int16":  nnd.DTypeInt16,
	"uint16": nnd.DTypeUint16,
}

func parseTargetType(s string) (nnd.DataType, error) {
	dt, ok := targetTypes[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unsupported data type %q (use int8, uint8, int16 or uint16)", s)
	}
	return dt, nil
}

type quantizeFlags struct {
	dataType       string
	outputDir      string
	recurseDumps   bool
	recurseWeights bool
	addRaw         bool
	addFrontier    bool
	oldLayout      bool
	normNames      bool
	noDecalib      bool
	noQuant        bool
	jobs           int
	manifest       string
}

func (f *quantizeFlags) options() calib.Options {
	opts := calib.SaveCalibFiles | calib.SaveWeightFiles
	set := func(on bool, flag calib.Options) {
		if on {
			opts |= flag
		}
	}
	set(f.addRaw, calib.AddRawCalibFiles)
	set(f.addFrontier, calib.SaveFrontierFiles)
	set(f.oldLayout, calib.UseLegacyLayout)
	set(f.normNames, calib.UnifyWeightNames)
	set(f.noDecalib, calib.OmitWeightsDecalib)
	set(f.noQuant, calib.OmitWeightsQuant)
	return opts
}

func quantizeCmd() *cli.Command {
	var f quantizeFlags

	return &cli.Command{
		Name:      "quantize",
		Aliases:   []string{"q", "quant"},
		Usage:     "Calibrate dumped activations and quantize weights into an integer type",
		ArgsUsage: "<quant-opts-file> <dump-dir> [weights-dir]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t", "data-type"},
				Usage:       "target data type (int8, uint8, int16, uint16)",
				Value:       "int8",
				Destination: &f.dataType,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Aliases:     []string{"o"},
				Usage:       "directory for calibration factors and quantized weights (created if missing)",
				Value:       ".",
				Destination: &f.outputDir,
			},
			&cli.BoolFlag{Name: "incl-dump-sub-dirs", Aliases: []string{"ids"}, Usage: "scan dump sub-directories recursively", Destination: &f.recurseDumps},
			&cli.BoolFlag{Name: "incl-weights-sub-dirs", Aliases: []string{"iws"}, Usage: "scan weights sub-directories recursively", Destination: &f.recurseWeights},
			&cli.BoolFlag{Name: "add-raw-cf", Aliases: []string{"ar"}, Usage: "also save factors before decalibration (\"nondecalib\" files)", Destination: &f.addRaw},
			&cli.BoolFlag{Name: "add-frontier-cf", Aliases: []string{"af"}, Usage: "also save the factors of every frontier", Destination: &f.addFrontier},
			&cli.BoolFlag{Name: "use-old-nnd-layout", Aliases: []string{"ulo"}, Usage: "write the legacy layout codes where possible", Destination: &f.oldLayout},
			&cli.BoolFlag{Name: "norm-names", Aliases: []string{"n", "nn"}, Usage: "name weights and factors after their primitive", Destination: &f.normNames},
			&cli.BoolFlag{Name: "disable-weights-decalibration", Aliases: []string{"dwc"}, Usage: "do not divide weights by the factors of their dependencies", Destination: &f.noDecalib},
			&cli.BoolFlag{Name: "disable-weights-quantization", Aliases: []string{"dwq"}, Usage: "copy weights in their original data type", Destination: &f.noQuant},
			&cli.IntFlag{
				Name:        "jobs",
				Aliases:     []string{"j"},
				Usage:       "dump files parsed concurrently (0 = number of CPUs)",
				Destination: &f.jobs,
			},
			&cli.StringFlag{
				Name:        "manifest",
				Usage:       "write a JSON manifest of the produced files to this path",
				Destination: &f.manifest,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 2 || cmd.NArg() > 3 {
				return cli.Exit("quantize: expected <quant-opts-file> <dump-dir> [weights-dir]", exitUsage)
			}
			cfg := configFrom(ctx)
			applyQuantizeConfig(cmd, cfg, &f)

			target, err := parseTargetType(f.dataType)
			if err != nil {
				return cli.Exit("quantize: "+err.Error(), exitUsage)
			}

			log := logger.FromContext(ctx)
			optsFile := cmd.Args().Get(0)
			opts, err := calibopts.Load(optsFile, log)
			if err != nil {
				return exitError(err)
			}

			run := calib.Config{
				DumpDir:           cmd.Args().Get(1),
				RecursiveDumps:    f.recurseDumps,
				WeightsDir:        cmd.Args().Get(2),
				RecursiveWeights:  f.recurseWeights,
				OutputDir:         f.outputDir,
				Target:            target,
				Options:           f.options(),
				FileTemplate:      cfg.FileTemplate,
				GroupFileTemplate: cfg.GroupFileTemplate,
				FrontierTemplate:  cfg.FrontierTemplate,
				Jobs:              f.jobs,
				Log:               log,
			}
			log.Info("starting quantization", "options_file", optsFile, "type", target.String(), "options", run.Options.String())
			start := time.Now()
			res, err := calib.Run(ctx, opts, run)
			if err != nil {
				return exitError(err)
			}
			log.Info("quantization finished", "files", len(res.Artifacts), "frontiers", len(res.Frontiers), "elapsed", time.Since(start))

			if f.manifest != "" {
				m := newManifest(runIDFrom(ctx), optsFile, run, res)
				if err := writeManifest(f.manifest, m); err != nil {
					return exitError(err)
				}
				log.Info("wrote manifest", "path", f.manifest)
			}
			return nil
		},
	}
}
