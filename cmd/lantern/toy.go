package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lantern/internal/logger"
	"github.com/samcharles93/lantern/internal/model"
	"github.com/samcharles93/lantern/internal/toy"
)

// toyCmd writes a tiny deterministic model, handy for smoke-testing the
// loader and server without real weights.
func toyCmd() *cli.Command {
	var (
		out       string
		seed      int64
		nParts    int64
		precision string
	)

	return &cli.Command{
		Name:  "toy",
		Usage: "Write a small deterministic model file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path",
				Value:       "toy.bin",
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "weight generation seed",
				Value:       1,
				Destination: &seed,
			},
			&cli.Int64Flag{
				Name:        "parts",
				Usage:       "number of file parts",
				Value:       1,
				Destination: &nParts,
			},
			&cli.StringFlag{
				Name:        "precision",
				Usage:       "weight precision (f32, f16, q4_0)",
				Value:       "f32",
				Destination: &precision,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			p := toy.DefaultParams()
			p.Seed = seed
			switch precision {
			case "f32":
				p.Precision = model.PrecisionF32
			case "f16":
				p.Precision = model.PrecisionF16
			case "q4_0":
				p.Precision = model.PrecisionQ4_0
			default:
				return fmt.Errorf("unsupported precision %q", precision)
			}
			if err := toy.Write(out, p, int(nParts)); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("toy model written",
				"path", out, "parts", nParts, "precision", precision)
			return nil
		},
	}
}
