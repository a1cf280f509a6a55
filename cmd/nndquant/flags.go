package main

import "github.com/urfave/cli/v3"

var (
	logLevel   string
	logFormat  string
	debug      bool
	quiet      bool
	configPath string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
		&cli.BoolFlag{
			Name:        "quiet",
			Usage:       "only log errors",
			Destination: &quiet,
		},
	}
}

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to config file (default: $XDG_CONFIG_HOME/nndquant/config.yaml)",
			Sources:     cli.EnvVars(envConfig),
			Destination: &configPath,
		},
	}
}
