package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lantern/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println("lantern", version.String())
			if info := version.Resolve(); info.BuildTime != "" {
				fmt.Println("built", info.BuildTime)
			}
			return nil
		},
	}
}
