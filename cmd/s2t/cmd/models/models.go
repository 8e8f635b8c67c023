package models

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"speechpipe/internal/app"
	"speechpipe/internal/config"
)

var configPath string

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "set config file path")
}

// Cmd represents the models command
var Cmd = &cobra.Command{
	Use:   "models",
	Short: "List discovered models and their warm-up state",
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

		states, err := pipeline.ModelStates(context.Background())
		if err != nil {
			log.Fatal(err)
		}
		if len(states) == 0 {
			fmt.Println("no model state recorded yet, run `s2t warm` first")
			return
		}

		fmt.Printf("%-20s %-15s %s\n", "MODEL", "STATE", "REASON")
		for _, info := range states {
			fmt.Printf("%-20s %-15s %s\n", info.ModelID, info.State, info.Reason)
		}
	},
}
