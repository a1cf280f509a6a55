package main

import (
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/samcharles93/nndquant/internal/calib"
	"github.com/samcharles93/nndquant/internal/version"
)

// manifest records the inputs and products of one quantize run.
type manifest struct {
	RunID       uuid.UUID    `json:"run_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Tool        version.Info `json:"tool"`
	OptionsFile string       `json:"options_file"`
	DumpDir     string       `json:"dump_dir"`
	WeightsDir  string       `json:"weights_dir,omitempty"`
	OutputDir   string       `json:"output_dir"`
	Type        string       `json:"type"`
	Options     string       `json:"options"`

	Frontiers []manifestFrontier `json:"frontiers"`
	Deps      map[string][][]int `json:"deps"`
	Artifacts []calib.Artifact   `json:"artifacts"`
}

type manifestFrontier struct {
	Index   int      `json:"index"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func newManifest(id uuid.UUID, optsFile string, cfg calib.Config, res *calib.Result) manifest {
	m := manifest{
		RunID:       id,
		CreatedAt:   time.Now().UTC(),
		Tool:        version.Resolve(),
		OptionsFile: optsFile,
		DumpDir:     cfg.DumpDir,
		WeightsDir:  cfg.WeightsDir,
		OutputDir:   cfg.OutputDir,
		Type:        cfg.Target.String(),
		Options:     cfg.Options.String(),
		Deps:        res.Deps,
		Artifacts:   res.Artifacts,
	}
	if m.Artifacts == nil {
		m.Artifacts = []calib.Artifact{}
	}
	for _, f := range res.Frontiers {
		mf := manifestFrontier{Index: f.Index, Name: f.Name}
		for _, mem := range f.Members {
			mf.Members = append(mf.Members, mem.String())
		}
		m.Frontiers = append(m.Frontiers, mf)
	}
	return m
}

func writeManifest(path string, m manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
