package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tekrar",
		Short: "Capture network calls and replay them",
		Long: "tekrar records script-issued HTTP requests, either through its capture proxy " +
			"or from events posted by a browser extension, and replays the oldest one on demand.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newClientCmds()...)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
