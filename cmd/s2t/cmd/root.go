package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"speechpipe/cmd/s2t/cmd/export"
	"speechpipe/cmd/s2t/cmd/history"
	"speechpipe/cmd/s2t/cmd/models"
	"speechpipe/cmd/s2t/cmd/record"
	"speechpipe/cmd/s2t/cmd/version"
	"speechpipe/cmd/s2t/cmd/warm"
)

var Verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "s2t",
	Short: "A speech-to-text pipeline with warm model acceleration and live partial results",
	Long: `A speech-to-text pipeline driving local whisper.cpp models.
- Warm model acceleration once, reuse it across recordings
- Stream live partial transcripts from a fast model while an accurate model refines
- Finished recordings are promoted atomically and logged to sqlite.`,
	TraverseChildren: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(warm.Cmd)
	rootCmd.AddCommand(models.Cmd)
	rootCmd.AddCommand(record.Cmd)
	rootCmd.AddCommand(history.Cmd)
	rootCmd.AddCommand(export.Cmd)
	rootCmd.AddCommand(version.Cmd)

	rootCmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
}
