package record

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"speechpipe/internal/app"
	"speechpipe/internal/app/audio"
	"speechpipe/internal/config"
)

var (
	configPath    string
	inputPath     string
	outputPath    string
	forceStrategy string
)

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "set config file path")
	Cmd.Flags().StringVarP(&inputPath, "input", "i", "", "WAV file to feed as the capture source")
	Cmd.Flags().StringVarP(&outputPath, "output", "o", "", "canonical path for the promoted recording")
	Cmd.Flags().StringVarP(&forceStrategy, "strategy", "s", "", "force a strategy (progressive|fallback|external)")

	Cmd.MarkFlagRequired("input")
	Cmd.MarkFlagRequired("output")
}

// captureWindow is how many frames each feed into the session carries,
// mimicking a microphone callback cadence.
const captureWindow = 4096

// Cmd represents the record command
var Cmd = &cobra.Command{
	Use:   "record",
	Short: "Run a recording session from a WAV file and print the transcript",
	Long: `Run a recording session from a WAV file and print the transcript

- The input WAV is streamed into the pipeline as if captured live
- Partial transcripts print as they arrive, the refined transcript at the end
- The recording is promoted to the output path only if it is valid`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		if forceStrategy != "" {
			cfg.Strategy.ForceStrategy = forceStrategy
		}

		samples, sampleRate, channels, err := audio.ReadWAV(inputPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg.Strategy.SampleRate = sampleRate
		cfg.Strategy.Channels = channels

		pipeline, err := app.InitializePipeline(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer pipeline.Close()

		source := make(chan []float32)
		go func() {
			defer close(source)
			for len(samples) > 0 {
				n := captureWindow * channels
				if n > len(samples) {
					n = len(samples)
				}
				source <- samples[:n]
				samples = samples[n:]
			}
		}()

		result, err := pipeline.Record(context.Background(), source, outputPath, func(partial string) {
			fmt.Printf("... %s\n", partial)
		})
		if err != nil {
			log.Fatal(err)
		}

		fmt.Println(result.Text)
		fmt.Printf("strategy=%s chunks=%d took=%s saved=%s\n",
			result.StrategyUsed, result.ChunksProcessed, result.ProcessingTime, outputPath)
	},
}
