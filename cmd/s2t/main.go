package main

import (
	"fmt"
	"os"

	"speechpipe/cmd/s2t/cmd"
	"speechpipe/internal/config"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration warning: %v\n", err)
	}
	cmd.Execute()
}
