// Package config loads the serve configuration. Precedence, lowest to
// highest: built-in defaults, TOML file, STAGEHAND_ environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full serve configuration.
type Config struct {
	Server struct {
		Addr string `koanf:"addr"`
	} `koanf:"server"`

	Catalog struct {
		Path string `koanf:"path"`
	} `koanf:"catalog"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`

		// Lock enables the distributed per-thread lock; only useful when
		// more than one replica serves the same Redis.
		Lock bool `koanf:"lock"`
	} `koanf:"redis"`

	Pipeline struct {
		MaxStageRevisits    int     `koanf:"max_stage_revisits"`
		ConfidenceThreshold float64 `koanf:"confidence_threshold"`
		UseLLMFallback      bool    `koanf:"use_llm_fallback"`
	} `koanf:"pipeline"`

	Flags map[string]any `koanf:"flags"`

	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

// Load reads the configuration. path may be empty, in which case only
// defaults, well-known file locations and the environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Load(confmap.Provider(map[string]any{
		"server.addr":                   ":8080",
		"catalog.path":                  "./catalog.yaml",
		"pipeline.confidence_threshold": 0.5,
		"log.level":                     "info",
	}, "."), nil)

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, candidate := range []string{"./stagehand.toml", "$HOME/.stagehand.toml"} {
			candidate = os.ExpandEnv(candidate)
			if _, err := os.Stat(candidate); err == nil {
				if err := k.Load(file.Provider(candidate), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("STAGEHAND_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "STAGEHAND_")), "_", ".", -1)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the loaded configuration for coherence.
func Validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}
	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", cfg.Pipeline.ConfidenceThreshold)
	}
	if cfg.Pipeline.MaxStageRevisits < 0 {
		return fmt.Errorf("max stage revisits must not be negative")
	}
	if cfg.Redis.Lock && cfg.Redis.Addr == "" {
		return fmt.Errorf("redis lock requires a redis addr")
	}
	return nil
}
