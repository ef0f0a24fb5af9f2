package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	backend "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/veloir/stagehand"
	httpadapter "github.com/veloir/stagehand/internal/adapters/http"
	"github.com/veloir/stagehand/internal/config"
	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/internal/metrics"
	"github.com/veloir/stagehand/pkg/adapters/catalog"
	redisadapter "github.com/veloir/stagehand/pkg/adapters/redis"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/flags"
	"github.com/veloir/stagehand/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Starts the pipeline engine in server mode, exposing a JSON API over HTTP.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(cmd); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	configPath, _ := cmd.Flags().GetString("config")
	catalogPath, _ := cmd.Flags().GetString("catalog")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if catalogPath != "" {
		cfg.Catalog.Path = catalogPath
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := logging.New(logging.ParseLevel(cfg.Log.Level))

	loader := catalog.NewFileLoader(cfg.Catalog.Path)
	cat, err := loader.LoadCatalog(cmd.Context())
	if err != nil {
		return err
	}

	initialFlags := domain.FlagSet{
		flags.ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		flags.UseLLMFallback:      cfg.Pipeline.UseLLMFallback,
	}
	for k, v := range cfg.Flags {
		initialFlags[k] = v
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	coll := metrics.NewCollectors(reg)

	opts := []stagehand.Option{
		stagehand.WithLogger(logger),
		stagehand.WithFlags(initialFlags),
		stagehand.WithMaxStageRevisits(cfg.Pipeline.MaxStageRevisits),
		stagehand.WithLifecycleHooks(coll.Hooks(domain.LifecycleHooks{})),
	}

	// Without host-registered logic the server echoes each stage's
	// instruction prompt, which is enough to drive and replay a catalog
	// during authoring.
	for id := range cat.Stages {
		opts = append(opts, stagehand.WithLogic(id, promptEcho(cat.Stages[id])))
	}

	if cfg.Redis.Addr != "" {
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := redisadapter.NewFromClient(client)
		opts = append(opts,
			stagehand.WithStateStore(store),
			stagehand.WithTraceStore(store),
		)
		if cfg.Redis.Lock {
			opts = append(opts, stagehand.WithLocker(redisadapter.NewLocker(client, "stagehand:lock:")))
		}
		logger.Info("using redis persistence", "addr", cfg.Redis.Addr, "lock", cfg.Redis.Lock)
	}

	engine, err := stagehand.New(catalog.NewStaticLoader(cat), opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	handler := httpadapter.NewHandler(engine,
		httpadapter.WithLogger(logger),
		httpadapter.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: handler,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "catalog", cfg.Catalog.Path)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("starting shutdown", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		logger.Info("server stopped gracefully")
	}
	return nil
}

// promptEcho is the default stage logic for standalone serving: it
// answers with the stage name and records no side effects.
func promptEcho(stage domain.Stage) ports.StageLogicFunc {
	return func(ctx context.Context, instr domain.InstructionSet, state *domain.ThreadState, profile domain.Profile, intent domain.IntentResult) (domain.StageOutput, []domain.SideEffect, error) {
		text := instr.Prompt
		if text == "" {
			text = fmt.Sprintf("[%s]", stage.Name)
		}
		return domain.StageOutput{
			Text: strings.TrimSpace(text),
			Data: map[string]any{"last_stage": stage.ID},
		}, nil, nil
	}
}
