package export

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"speechpipe/internal/app/history/export"
	"speechpipe/internal/app/history/sqlite"
	"speechpipe/internal/app/model"
	"speechpipe/internal/config"
)

var (
	configPath     string
	strategyName   string
	outputFilePath string
)

func init() {
	Cmd.Flags().StringVarP(&configPath, "config", "c", "", "set config file path")
	Cmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "only export sessions of one strategy")
	Cmd.Flags().StringVarP(&outputFilePath, "outputFilePath", "o", "", "set outputFilePath")

	Cmd.MarkFlagRequired("outputFilePath")
}

// Cmd represents the export command
var Cmd = &cobra.Command{
	Use:   "export",
	Short: "Export session history to excel",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		if err != nil {
			log.Fatal(err)
		}
		db, err := sqlite.NewSessionDB(cfg.HistoryDBPath)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()

		ctx := context.Background()
		var sessions []model.SessionRecord
		if strategyName != "" {
			sessions, err = db.FindByStrategy(ctx, strategyName)
		} else {
			sessions, err = db.List(ctx, 0)
		}
		if err != nil {
			log.Fatal(err)
		}

		if err := export.ToExcel(sessions, outputFilePath); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("export finished, exported file path: %v\n", outputFilePath)
	},
}
