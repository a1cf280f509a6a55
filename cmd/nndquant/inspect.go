package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nndquant/pkg/nnd"
)

type tensorInfo struct {
	Path           string    `json:"path"`
	DataType       string    `json:"data_type"`
	Layout         string    `json:"layout"`
	Version        uint8     `json:"version"`
	Sizes          []uint64  `json:"sizes"`
	Elements       int       `json:"elements"`
	OutputFeatures int       `json:"output_features"`
	InputFeatures  int       `json:"input_features"`
	MaxAbs         []float32 `json:"max_abs,omitempty"`
}

func describe(path string, t *nnd.Tensor) tensorInfo {
	info := tensorInfo{
		Path:           path,
		DataType:       t.DataType.String(),
		Layout:         t.Layout.String(),
		Version:        t.Version,
		Sizes:          t.Sizes,
		Elements:       t.Len(),
		OutputFeatures: t.OutputFeatureCount(),
		InputFeatures:  t.InputFeatureCount(),
	}
	if m, err := t.MaxAbsPerOutputFeature(); err == nil {
		info.MaxAbs = m
	}
	return info
}

func inspectCmd(stdout io.Writer) *cli.Command {
	var (
		asJSON   bool
		maxLimit int
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header, shape and per-feature max-abs of .nnd files",
		ArgsUsage: "<file.nnd>...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print one JSON object per file", Destination: &asJSON},
			&cli.IntFlag{Name: "max-abs-limit", Usage: "limit printed max-abs values (0 = no limit)", Value: 16, Destination: &maxLimit},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return cli.Exit("inspect: expected at least one .nnd file", exitUsage)
			}

			enc := json.NewEncoder(stdout)
			for _, path := range cmd.Args().Slice() {
				t, err := nnd.Open(path)
				if err != nil {
					return exitError(err)
				}
				info := describe(path, t)
				if asJSON {
					if err := enc.Encode(info); err != nil {
						return exitError(err)
					}
					continue
				}
				printInfo(stdout, info, maxLimit)
			}
			return nil
		},
	}
}

func printInfo(w io.Writer, info tensorInfo, limit int) {
	_, _ = fmt.Fprintf(w, "%s\n", info.Path)
	_, _ = fmt.Fprintf(w, "  type:      %s\n", info.DataType)
	_, _ = fmt.Fprintf(w, "  layout:    %s\n", info.Layout)
	_, _ = fmt.Fprintf(w, "  version:   %d\n", info.Version)
	_, _ = fmt.Fprintf(w, "  sizes:     %v (%d elements)\n", info.Sizes, info.Elements)
	_, _ = fmt.Fprintf(w, "  features:  %d out, %d in\n", info.OutputFeatures, info.InputFeatures)
	if len(info.MaxAbs) == 0 {
		return
	}
	vals := info.MaxAbs
	more := 0
	if limit > 0 && len(vals) > limit {
		more = len(vals) - limit
		vals = vals[:limit]
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%g", v)
	}
	line := strings.Join(parts, " ")
	if more > 0 {
		line += fmt.Sprintf(" ... (%d more)", more)
	}
	_, _ = fmt.Fprintf(w, "  max abs:   %s\n", line)
}
