package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stagehand",
	Short: "Stagehand is a staged dialogue pipeline engine",
	Long:  `Stagehand runs conversations through a validated stage graph, recording every turn in a replayable trace.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the stagehand.toml config file")
	rootCmd.PersistentFlags().String("catalog", "", "Path to the stage catalog YAML (overrides config)")
}
