package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set during build
var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "capsule",
	Short:        "Send one-off HTTP requests or run request sets",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "capsule %s (%s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(newSendCmd(), newRunCmd(), versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
