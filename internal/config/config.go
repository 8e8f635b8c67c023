// Package config loads the application configuration: environment credentials
// from .env files and the pipeline settings from a YAML file with sane
// defaults for every field.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"speechpipe/internal/app/strategy"
)

// AppConfig is the root configuration for the pipeline.
type AppConfig struct {
	// ModelsDir is scanned for ggml model files.
	ModelsDir string `yaml:"models_dir" validate:"required"`

	// EngineBackend selects how models transcribe: "local" runs the
	// whisper.cpp binary, "openai" calls the hosted transcription API.
	EngineBackend string `yaml:"engine_backend" validate:"oneof=local openai"`

	// WhisperBinary is the whisper.cpp executable used by the local backend.
	WhisperBinary string `yaml:"whisper_binary" validate:"required"`

	// RecordingsDir receives promoted canonical recordings.
	RecordingsDir string `yaml:"recordings_dir" validate:"required"`

	// StateBackend selects where model warm-up state persists.
	StateBackend string `yaml:"state_backend" validate:"oneof=memory sqlite postgres"`

	// StateDBPath is the sqlite file for the sqlite backend.
	StateDBPath string `yaml:"state_db_path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// HistoryDBPath is the sqlite file holding session history.
	HistoryDBPath string `yaml:"history_db_path" validate:"required"`

	// Development switches logging to the human-readable development format.
	Development bool `yaml:"development"`

	Strategy strategy.Config `yaml:"strategy"`
}

// Default returns the configuration used when no file overrides it.
func Default() AppConfig {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".speechpipe")
	return AppConfig{
		ModelsDir:     filepath.Join(base, "models"),
		EngineBackend: "local",
		WhisperBinary: "whisper-cli",
		RecordingsDir: filepath.Join(base, "recordings"),
		StateBackend:  "sqlite",
		StateDBPath:   filepath.Join(base, "state.db"),
		HistoryDBPath: filepath.Join(base, "history.db"),
		Strategy:      strategy.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path or a
// missing file yields the defaults unchanged.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
