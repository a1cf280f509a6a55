package main

import (
	"errors"
	"io/fs"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nndquant/internal/calib"
	"github.com/samcharles93/nndquant/internal/calibopts"
	"github.com/samcharles93/nndquant/pkg/nnd"
)

const (
	exitOK      = 0
	exitUsage   = 1 // bad arguments or config
	exitGraph   = 2 // calibration options graph errors
	exitFormat  = 3 // malformed .nnd files
	exitFailure = 4
)

func exitCode(err error) int {
	switch {
	case calibopts.IsGraphError(err):
		return exitGraph
	case nnd.IsFormatError(err):
		return exitFormat
	case errors.Is(err, fs.ErrNotExist),
		errors.Is(err, calib.ErrUnsupportedTarget),
		errors.Is(err, calib.ErrOutputNotDir):
		return exitUsage
	default:
		return exitFailure
	}
}

// exitError converts err into a cli exit error carrying its exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return err
	}
	return cli.Exit(err.Error(), exitCode(err))
}
