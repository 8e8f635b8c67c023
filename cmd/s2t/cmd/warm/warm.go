package warm

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"speechpipe/internal/app"
	"speechpipe/internal/app/model"
	"speechpipe/internal/config"
)

var (
	configPath string
	retryModel string
)

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "set config file path")
	Cmd.Flags().StringVarP(&retryModel, "retry", "r", "", "re-arm a failed model before warming")
}

// Cmd represents the warm command
var Cmd = &cobra.Command{
	Use:   "warm",
	Short: "Warm the acceleration backends of all downloaded models",
	Long: `Warm the acceleration backends of all downloaded models

- Each model with an acceleration bundle is compiled and smoke-tested once
- Warm state persists, so already-warm models are skipped on the next run`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		pipeline, err := app.InitializePipeline(cfg)
		if err != nil {
			log.Fatal(err)
		}
		defer pipeline.Close()

		ctx := context.Background()
		if retryModel != "" {
			if err := pipeline.RetryFailed(ctx, retryModel); err != nil {
				log.Fatal(err)
			}
		}

		warmable, err := pipeline.Warmable()
		if err != nil {
			log.Fatal(err)
		}
		if len(warmable) == 0 {
			fmt.Println("no models with acceleration bundles found")
			return
		}

		container := mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithRefreshRate(120*time.Millisecond),
			mpb.WithWaitGroup(&sync.WaitGroup{}),
		)
		bar := container.AddBar(int64(len(warmable)),
			mpb.PrependDecorators(
				decor.Name("warming ", decor.WC{W: 8, C: decor.DindentRight}),
				decor.CountersNoUnit("(%d/%d)", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.NewPercentage("%.0f", decor.WCSyncSpace),
			),
		)

		var mu sync.Mutex
		failed := map[string]bool{}
		err = pipeline.Warm(ctx, func(modelID string, st model.State) {
			mu.Lock()
			if st == model.StateFailed {
				failed[modelID] = true
			}
			mu.Unlock()
			bar.Increment()
		})
		// Models skipped as already warm never report progress.
		bar.SetTotal(int64(len(warmable)), true)
		container.Wait()
		if err != nil {
			log.Fatal(err)
		}

		for _, desc := range warmable {
			status := "ready"
			if failed[desc.ID] {
				status = "failed"
			}
			fmt.Printf("%-20s %s\n", desc.ID, status)
		}
	},
}
