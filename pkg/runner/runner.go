// Package runner drives a conversation loop over provided IO. It lets
// CLIs and tests interact with an engine without wiring HTTP.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"log/slog"

	"github.com/veloir/stagehand"
	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/pkg/domain"
)

// Runner handles the interactive loop for one thread using provided IO.
// This allows for easy testing and integration with different frontends.
type Runner struct {
	Input  io.Reader
	Output io.Writer

	// Headless suppresses prompts and banners, for piped input.
	Headless bool

	Logger *slog.Logger
}

// NewRunner creates a Runner with default Stdin/Stdout.
func NewRunner() *Runner {
	return &Runner{
		Input:  os.Stdin,
		Output: os.Stdout,
		Logger: logging.NewNop(),
	}
}

// Run reads messages line by line and executes them against the engine
// until the pipeline completes, the input ends, or the user quits.
// A routing failure is reported and the loop continues; the thread is
// untouched, so the user can rephrase.
func (r *Runner) Run(ctx context.Context, engine *stagehand.Engine, threadID string) error {
	if r.Input == nil || r.Output == nil {
		return fmt.Errorf("input and output must be set")
	}
	reader := bufio.NewReader(r.Input)

	if !r.Headless {
		fmt.Fprintf(r.Output, "--- thread %s ---\n", threadID)
	}

	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}
		message := strings.TrimSpace(line)
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}

		outcome, err := engine.Execute(ctx, threadID, message)
		if err != nil {
			var re *domain.RoutingError
			if errors.As(err, &re) {
				fmt.Fprintf(r.Output, "(no stage matched: %s)\n", re.Detail)
				continue
			}
			return fmt.Errorf("execution error: %w", err)
		}

		if outcome.Output.Text != "" {
			fmt.Fprintln(r.Output, outcome.Output.Text)
		}
		r.Logger.Debug("turn complete",
			"thread_id", threadID,
			"stage_id", outcome.StageID,
			"seq", outcome.Seq,
		)

		if outcome.EndOfPipeline {
			if !r.Headless {
				fmt.Fprintln(r.Output, "--- conversation complete ---")
			}
			return nil
		}
	}
}
