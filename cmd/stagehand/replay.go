package main

import (
	"encoding/json"
	"fmt"
	"os"

	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/veloir/stagehand/internal/config"
	redisadapter "github.com/veloir/stagehand/pkg/adapters/redis"
	"github.com/veloir/stagehand/pkg/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <thread-id>",
	Short: "Print a thread's recorded trace",
	Long:  `Loads the thread's trace from the configured store and prints the timeline. Summary mode only; a full replay needs the host's stage logic and runs through the server.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runReplay(cmd, args[0]); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Int64("up-to-seq", 0, "Stop after this sequence number (0 = all)")
	replayCmd.Flags().Bool("json", false, "Emit the timeline as JSON")
}

func runReplay(cmd *cobra.Command, threadID string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("replay needs a configured redis store (the in-memory store dies with the server)")
	}

	client := backend.NewClient(&backend.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := redisadapter.NewFromClient(client)

	upToSeq, _ := cmd.Flags().GetInt64("up-to-seq")
	asJSON, _ := cmd.Flags().GetBool("json")

	recs, err := store.LoadSequence(cmd.Context(), threadID)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no trace for thread %s", threadID)
	}

	result := &replay.Result{ThreadID: threadID, Mode: replay.ModeSummary}
	for _, rec := range recs {
		if upToSeq > 0 && rec.Seq > upToSeq {
			break
		}
		result.Steps = append(result.Steps, replay.Step{
			Seq:            rec.Seq,
			StageID:        rec.StageID,
			Intent:         rec.Intent,
			Message:        rec.Message,
			RecordedOutput: rec.Output,
			SideEffects:    rec.SideEffects,
		})
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(result)
	}
	for _, step := range result.Steps {
		fmt.Printf("#%d  %-20s intent=%s (%.2f)  %q\n",
			step.Seq, step.StageID, step.Intent.Category, step.Intent.Confidence, step.RecordedOutput.Text)
	}
	return nil
}
