package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"speechpipe/internal/app"
	"speechpipe/internal/config"
)

var (
	configPath string
	limit      int
)

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "set config file path")
	Cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list")
}

// Cmd represents the history command
var Cmd = &cobra.Command{
	Use:   "history",
	Short: "List recent recording sessions",
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

		sessions, err := pipeline.History(context.Background(), limit)
		if err != nil {
			log.Fatal(err)
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions recorded yet")
			return
		}

		for _, s := range sessions {
			status := "ok"
			if s.ErrorMessage != "" {
				status = "error: " + s.ErrorMessage
			}
			fmt.Printf("%s  %-12s %6.1fs %3d chunks  %s\n",
				s.StartedAt.Format(time.RFC3339), s.Strategy, s.DurationSecs, s.Chunks, status)
		}
	},
}
