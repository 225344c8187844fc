package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lantern/internal/model"
)

func inspectCmd() *cli.Command {
	var (
		path    string
		asJSON  bool
		tensors bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print weight file header and tensor records",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to model weight file",
				Destination: &path,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "emit JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "tensors",
				Usage:       "list tensor records",
				Value:       true,
				Destination: &tensors,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if path == "" {
				return fmt.Errorf("no model given; pass --model")
			}
			info, err := model.Inspect(path)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			h := info.Hparams
			fmt.Printf("vocab:      %d\n", h.VocabSize)
			fmt.Printf("embd:       %d\n", h.EmbdDim)
			fmt.Printf("mult:       %d\n", h.Mult)
			fmt.Printf("heads:      %d\n", h.Heads)
			fmt.Printf("layers:     %d\n", h.Layers)
			fmt.Printf("rotary:     %d\n", h.RotaryDim)
			fmt.Printf("precision:  %s\n", h.Precision.String())
			if info.Parts > 0 {
				fmt.Printf("parts:      %d\n", info.Parts)
			}
			if tensors {
				fmt.Printf("tensors:    %d\n", len(info.Tensors))
				for _, t := range info.Tensors {
					fmt.Printf("  %-40s %6d x %-6d %-5s %d bytes\n",
						t.Name, t.Rows, t.Cols, t.TypeName, t.Bytes)
				}
			}
			return nil
		},
	}
}
