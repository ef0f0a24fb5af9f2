package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/veloir/stagehand"
	"github.com/veloir/stagehand/internal/config"
	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/pkg/adapters/catalog"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/flags"
	"github.com/veloir/stagehand/pkg/runner"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Drive a conversation interactively in the terminal",
	Long:  `Runs the catalog with the default prompt-echo logic and an in-memory store, reading messages from stdin. Useful while authoring a catalog.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runChat(cmd); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("thread", "", "Thread id to use (default: random)")
}

func runChat(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	catalogPath, _ := cmd.Flags().GetString("catalog")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}

	loader := catalog.NewFileLoader(cfg.Catalog.Path)
	cat, err := loader.LoadCatalog(cmd.Context())
	if err != nil {
		return err
	}

	opts := []stagehand.Option{
		stagehand.WithLogger(logging.New(logging.ParseLevel(cfg.Log.Level))),
		stagehand.WithFlags(domain.FlagSet{
			flags.ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		}),
		stagehand.WithMaxStageRevisits(cfg.Pipeline.MaxStageRevisits),
	}
	for id := range cat.Stages {
		opts = append(opts, stagehand.WithLogic(id, promptEcho(cat.Stages[id])))
	}

	engine, err := stagehand.New(catalog.NewStaticLoader(cat), opts...)
	if err != nil {
		return err
	}

	threadID, _ := cmd.Flags().GetString("thread")
	if threadID == "" {
		threadID = uuid.NewString()
	}

	r := runner.NewRunner()
	return r.Run(context.Background(), engine, threadID)
}
