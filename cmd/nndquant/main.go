package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nndquant/internal/logger"
)

func main() {
	os.Exit(run(context.Background(), os.Args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	err := newApp(stdout, stderr).Run(ctx, args)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintln(stderr, err)
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return exitUsage
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "nndquant",
		Usage:     "Calibrate and quantize .nnd tensor files",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     append(loggingFlags(), configFlags()...),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return setup(ctx, cmd, stderr)
		},
		// Errors are reported by run so the exit code can be returned.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			quantizeCmd(),
			inspectCmd(stdout),
			aboutOptsFileCmd(stdout),
			versionCmd(stdout),
		},
	}
}

// setup loads the config file and installs the run logger.
func setup(ctx context.Context, cmd *cli.Command, stderr io.Writer) (context.Context, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := loadConfig(path, cmd.IsSet("config"))
	if err != nil {
		return ctx, cli.Exit(err.Error(), exitUsage)
	}
	applyLogConfig(cmd, cfg)

	level := logger.ParseLevel(logLevel)
	switch {
	case quiet:
		level = slog.LevelError
	case debug:
		level = slog.LevelDebug
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, cli.Exit(err.Error(), exitUsage)
	}

	id := uuid.New()
	log := logger.Build(stderr, format, level).With("run_id", id.String())
	ctx = logger.WithContext(ctx, log)
	ctx = context.WithValue(ctx, runIDKey{}, id)
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return ctx, nil
}

type runIDKey struct{}

func runIDFrom(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(runIDKey{}).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
