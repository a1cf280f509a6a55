package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
)

const optsFileHelp = `CALIBRATION OPTIONS FILE

The options file is a JSON object keyed by primitive name. The enclosing
braces may be omitted and a trailing comma is accepted. Example (AlexNet):

    "input":        [],
    "conv1":        ["input"],
    "conv2_group2": {"deps": "conv1",        "split": 2, "weights": "conv2"},
    "conv3":        "conv2_group2",
    "conv4_group2": {"deps": "conv3",        "split": 2, "weights": "conv4"},
    "conv5_group2": {"deps": "conv4_group2", "split": 2, "weights": "conv5"},
    "fc6":          {"deps": "conv5_group2", "dump_mode": "expand_single"},
    "fc7":          {"deps": "fc6",          "dump_mode": "expand_single"},
    "fc8":          {"deps": "fc7",          "dump_mode": "expand_single"},

DEPENDENCIES

    "a": []                      no dependencies ({} is the same)
    "b": "a"                     depends on a
    "c": ["a"]                   same as above
    "d": ["a", "b"]              one dependency frontier: a and b share factors
    "e": [["a"], ["b"]]          two dependency frontiers, one per list
    "f": [{"conv2_group2": 1}]   depends on the second feature group of a split primitive

The same forms are accepted under "deps" when other keys are present.

KEYS

    deps                            dependency list, see above
    split, groups                   number of feature groups (default 1)
    decalibrate_mode, decalib_mode  "-" (default): decalibrate the weights by the
                                        dependency frontier instead of the factors
                                    "+": divide the factors by the single dependency
                                        frontier
                                    "*": divide the factors by every dependency
                                        frontier
                                    true selects "+", false selects "-".
                                    "+" and "*" disable weight decalibration; use
                                    --add-raw-cf to also save the original factors.
    weights                         root name of the weight files (default: primitive name)
    dump_mode                       "normal" (default): one dump file per feature
                                    "expand_single": every value of a file is one
                                        feature, one file per batch item

FILES

    dumps      <prim>_gpu_b<batch>_f<feature>.txt
    weights    <root>[_g<group>]_{w,weights,b,bias,qf,mean}.nnd (group is one-based)
    output     <prim>[_g<group>]_[<attrib>_]{cf,weights,qf}.nnd
`

func aboutOptsFileCmd(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "about-opts-file",
		Usage: "Describe the calibration options file format",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, _ = fmt.Fprint(stdout, optsFileHelp)
			return nil
		},
	}
}
