package main

import "github.com/urfave/cli/v3"

var (
	modelPath  string
	maxContext int64
	batchSize  int64
	threads    int64
	parts      int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to model weight file",
			Destination: &modelPath,
		},
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"max-ctx", "ctx", "c"},
			Usage:       "max context length",
			Value:       512,
			Destination: &maxContext,
		},
		&cli.Int64Flag{
			Name:        "batch",
			Aliases:     []string{"b"},
			Usage:       "prompt evaluation batch size",
			Value:       8,
			Destination: &batchSize,
		},
		&cli.Int64Flag{
			Name:        "threads",
			Usage:       "worker threads per matrix product (0 = all CPUs)",
			Destination: &threads,
		},
		&cli.Int64Flag{
			Name:        "parts",
			Usage:       "weight file part count override (0 = derive)",
			Destination: &parts,
		},
	}
}

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
			Usage:       "log format (json, text)",
			Value:       "text",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
