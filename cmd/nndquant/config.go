package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfig = "NNDQUANT_CONFIG"

// Config represents the nndquant configuration file
// (~/.config/nndquant/config.yaml). Pointer fields distinguish "not set"
// from false or zero.
type Config struct {
	Type      string `yaml:"type"`
	OutputDir string `yaml:"output_dir"`
	Jobs      *int   `yaml:"jobs"`

	IncludeDumpSubdirs    *bool `yaml:"incl_dump_sub_dirs"`
	IncludeWeightsSubdirs *bool `yaml:"incl_weights_sub_dirs"`
	UseOldLayout          *bool `yaml:"use_old_nnd_layout"`
	NormNames             *bool `yaml:"norm_names"`

	// File name templates
	FileTemplate      string `yaml:"file_name_template"`
	GroupFileTemplate string `yaml:"group_file_name_template"`
	FrontierTemplate  string `yaml:"frontier_name_template"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "nndquant", "config.yaml")
}

// loadConfig reads the config file. A missing file yields a zero Config
// unless required is set.
func loadConfig(path string, required bool) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

type configKey struct{}

func configFrom(ctx context.Context) Config {
	cfg, _ := ctx.Value(configKey{}).(Config)
	return cfg
}

// applyLogConfig applies config file defaults to the logging flags when
// they were not set explicitly.
func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyQuantizeConfig applies config file defaults to the quantize flags.
func applyQuantizeConfig(c *cli.Command, cfg Config, f *quantizeFlags) {
	if cfg.Type != "" && !c.IsSet("type") {
		f.dataType = cfg.Type
	}
	if cfg.OutputDir != "" && !c.IsSet("output-dir") {
		f.outputDir = cfg.OutputDir
	}
	if cfg.Jobs != nil && !c.IsSet("jobs") {
		f.jobs = *cfg.Jobs
	}
	if cfg.IncludeDumpSubdirs != nil && !c.IsSet("incl-dump-sub-dirs") {
		f.recurseDumps = *cfg.IncludeDumpSubdirs
	}
	if cfg.IncludeWeightsSubdirs != nil && !c.IsSet("incl-weights-sub-dirs") {
		f.recurseWeights = *cfg.IncludeWeightsSubdirs
	}
	if cfg.UseOldLayout != nil && !c.IsSet("use-old-nnd-layout") {
		f.oldLayout = *cfg.UseOldLayout
	}
	if cfg.NormNames != nil && !c.IsSet("norm-names") {
		f.normNames = *cfg.NormNames
	}
}
