package calib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/samcharles93/nndquant/internal/frontier"
	"github.com/samcharles93/nndquant/internal/logger"
	"github.com/samcharles93/nndquant/pkg/nnd"
)

// Config controls one calibration run.
type Config struct {
	// DumpDir holds the <prim>_b<batch>_f<feature>.txt dump files.
	DumpDir        string
	RecursiveDumps bool

	// WeightsDir holds fp32 weight tensors. Empty disables weight handling.
	WeightsDir       string
	RecursiveWeights bool

	// OutputDir receives every saved file. Defaults to the working directory.
	OutputDir string

	// Target is the integer type factors and weights are calibrated for.
	Target  nnd.DataType
	Options Options

	FileTemplate      string
	GroupFileTemplate string
	FrontierTemplate  string

	// Jobs bounds the number of dump files parsed concurrently. Defaults to
	// GOMAXPROCS.
	Jobs int

	// Log receives progress and coverage warnings. Defaults to the logger
	// carried by the context.
	Log logger.Logger
}

func (c Config) namer() Namer {
	return Namer{File: c.FileTemplate, GroupFile: c.GroupFileTemplate}
}

func (c Config) encodeOptions() nnd.EncodeOptions {
	return nnd.EncodeOptions{Legacy: c.Options.Has(UseLegacyLayout)}
}

func (c *Config) setDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.FrontierTemplate == "" {
		c.FrontierTemplate = frontier.DefaultNameTemplate
	}
	if c.Jobs <= 0 {
		c.Jobs = runtime.GOMAXPROCS(0)
	}
}

func (c *Config) validate() error {
	if !c.Target.NeedsQuantFactors() {
		return fmt.Errorf("%w: %s", ErrUnsupportedTarget, c.Target)
	}
	fi, err := os.Stat(c.OutputDir)
	switch {
	case err == nil && !fi.IsDir():
		return fmt.Errorf("%w: %s", ErrOutputNotDir, c.OutputDir)
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return err
	}
	return nil
}
