package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lantern/internal/generate"
	"github.com/samcharles93/lantern/internal/logger"
)

func runCmd() *cli.Command {
	var (
		prompt        string
		predict       int64
		temp          float64
		topK          int64
		topP          float64
		repeatPenalty float64
		repeatLastN   int64
		seed          int64
		stopText      string
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate text from a prompt",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.Int64Flag{
				Name:        "predict",
				Aliases:     []string{"n", "steps"},
				Usage:       "number of tokens to generate",
				Value:       generate.DefaultPredict,
				Destination: &predict,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (negative = greedy)",
				Value:       generate.DefaultTemperature,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k sampling parameter",
				Value:       generate.DefaultTopK,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "top-p sampling parameter",
				Value:       generate.DefaultTopP,
				Destination: &topP,
			},
			&cli.Float64Flag{
				Name:        "repeat-penalty",
				Usage:       "repetition penalty (1.0 = disabled)",
				Value:       generate.DefaultRepeatPenalty,
				Destination: &repeatPenalty,
			},
			&cli.Int64Flag{
				Name:        "repeat-last-n",
				Usage:       "last n tokens to penalize",
				Value:       generate.DefaultRepeatLastN,
				Destination: &repeatLastN,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling RNG seed (0 = random)",
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "stop",
				Usage:       "stop generation once output ends with this text",
				Destination: &stopText,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyRunConfig(cmd, LoadConfig(),
				&temp, &topK, &topP, &repeatPenalty, &repeatLastN, &predict, &seed)

			if modelPath == "" {
				return fmt.Errorf("no model given; pass --model or set model_path in config")
			}

			cfg := generate.Config{
				ModelPath:     modelPath,
				ContextLength: int(maxContext),
				BatchSize:     int(batchSize),
				Threads:       int(threads),
				Parts:         int(parts),
				Predict:       int(predict),
				Seed:          seed,
				Temperature:   float32(temp),
				TopK:          int(topK),
				TopP:          float32(topP),
				RepeatPenalty: float32(repeatPenalty),
				RepeatLastN:   int(repeatLastN),
				StopText:      stopText,
			}

			sess := generate.NewSession(cfg, log)
			go sess.Run(ctx, prompt)

			for ev := range sess.Events() {
				switch ev.Kind {
				case generate.EventOutputToken:
					fmt.Print(ev.Token)
				case generate.EventCompleted:
					fmt.Println()
				case generate.EventFailed:
					fmt.Fprintln(os.Stdout)
					return ev.Err
				}
			}
			return nil
		},
	}
}
