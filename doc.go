/*
Package stagehand is a deterministic dialogue pipeline engine for
building staged conversational applications.

A conversation is modeled as a validated graph of stages. Each inbound
message runs one pipeline turn: the message is classified into an
intent, guard predicates route the thread to its next stage, the
stage's logic executes, and the turn is captured in an append-only
trace before the thread state becomes visible. The trace makes every
conversation auditable and replayable after the fact.

# Concept

The engine owns state transitions, persistence ordering and the trace;
your application ("Host") supplies the stage logic and I/O. This
hexagonal split lets Stagehand sit behind any surface: CLI, HTTP
server, or a larger agent system.

# Key Features

  - Deterministic Execution: identical state, message and flags produce
    the identical transition. Non-deterministic classifier results are
    marked and substituted during replay.
  - Write-Ahead Trace: a turn's trace record is appended before thread
    state changes, so the recording never lags the state.
  - Validated Catalog: dangling transitions, unreachable stages and
    malformed guards are rejected before the pipeline starts.
  - Hexagonal Architecture: storage, locking, instruction sets and
    classification fallbacks are ports with swappable adapters.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/veloir/stagehand"
		"github.com/veloir/stagehand/pkg/adapters/catalog"
	)

	func main() {
		loader := catalog.NewFileLoader("./catalog.yaml")
		eng, err := stagehand.New(loader,
			stagehand.WithLogicFunc("greeting", greetLogic),
			// ... one binding per stage
		)
		if err != nil {
			log.Fatal(err)
		}

		out, err := eng.Execute(context.Background(), "thread-1", "hello there")
		if err != nil {
			log.Fatal(err)
		}
		log.Println(out.Output.Text)
	}
*/
package stagehand
