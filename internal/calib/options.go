package calib

import "strings"

// Options is a bitmask selecting what Run returns, what it saves and how it
// treats weights.
type Options uint32

const (
	// RetCalibFiles keeps the calibration factor tensors in the result.
	RetCalibFiles Options = 0x00000001
	// RetFrontierFiles keeps the frontier factor tensors in the result.
	RetFrontierFiles Options = 0x00000002
	// RetWeightFiles keeps the weight and quant-factor tensors in the result.
	RetWeightFiles Options = 0x00000004

	SaveCalibFiles    Options = 0x00001000
	SaveFrontierFiles Options = 0x00002000
	SaveWeightFiles   Options = 0x00004000

	// UseLegacyLayout writes the fp16-offset layout codes.
	UseLegacyLayout Options = 0x01000000
	// OmitWeightsDecalib skips dividing weights by the factors of their
	// dependency frontier.
	OmitWeightsDecalib Options = 0x02000000
	// OmitWeightsQuant copies weights to the output instead of quantizing.
	OmitWeightsQuant Options = 0x04000000
	// AddRawCalibFiles also emits the factors a primitive had before its
	// own decalibration.
	AddRawCalibFiles Options = 0x08000000
	// UnifyWeightNames renames weights to <prim>[_g<n>]_weights.nnd.
	UnifyWeightNames Options = 0x10000000
)

// Has reports whether every bit of flag is set.
func (o Options) Has(flag Options) bool { return o&flag == flag }

var optionNames = []struct {
	flag Options
	name string
}{
	{RetCalibFiles, "ret_calib"},
	{RetFrontierFiles, "ret_frontier"},
	{RetWeightFiles, "ret_weights"},
	{SaveCalibFiles, "save_calib"},
	{SaveFrontierFiles, "save_frontier"},
	{SaveWeightFiles, "save_weights"},
	{UseLegacyLayout, "legacy_layout"},
	{OmitWeightsDecalib, "omit_weights_decalib"},
	{OmitWeightsQuant, "omit_weights_quant"},
	{AddRawCalibFiles, "add_raw_calib"},
	{UnifyWeightNames, "unify_names"},
}

func (o Options) String() string {
	var parts []string
	for _, n := range optionNames {
		if o.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
