//go:build wireinject
// +build wireinject

package app

import (
	"os"

	"github.com/google/wire"
	"go.uber.org/zap"

	"speechpipe/internal/app/engine"
	"speechpipe/internal/app/history"
	historysqlite "speechpipe/internal/app/history/sqlite"
	"speechpipe/internal/app/logger"
	"speechpipe/internal/app/registry"
	"speechpipe/internal/app/state"
	"speechpipe/internal/app/state/pg"
	statesqlite "speechpipe/internal/app/state/sqlite"
	"speechpipe/internal/app/strategy"
	"speechpipe/internal/config"
)

func provideLogger(cfg config.AppConfig) (*zap.Logger, error) {
	return logger.New(cfg.Development)
}

func provideRegistry(cfg config.AppConfig, log *zap.Logger) *registry.Registry {
	return registry.New(cfg.ModelsDir, log)
}

// provideStore selects the state backend from config. The sqlite file is the
// default; postgres serves multi-host deployments sharing warm state.
func provideStore(cfg config.AppConfig) (state.Store, error) {
	switch cfg.StateBackend {
	case "memory":
		return state.NewMemoryStore(), nil
	case "postgres":
		return pg.NewPostgresStore(cfg.PostgresDSN)
	default:
		return statesqlite.NewSQLiteStore(cfg.StateDBPath)
	}
}

func provideLoader(cfg config.AppConfig, log *zap.Logger) engine.Loader {
	if cfg.EngineBackend == "openai" {
		return engine.NewRemoteLoader(os.Getenv("OPENAI_API_KEY"), cfg.Strategy.TempDir)
	}
	return engine.NewWhisperCPPLoader(cfg.WhisperBinary, cfg.Strategy.TempDir, log)
}

func provideCache(loader engine.Loader, store state.Store, log *zap.Logger) *engine.Cache {
	return engine.NewCache(loader, state.NewAccelView(store), log)
}

func provideWarmer(store state.Store, reg *registry.Registry, cache *engine.Cache, log *zap.Logger) *state.Warmer {
	return state.NewWarmer(store, reg, cache, log)
}

func provideSelector(cfg config.AppConfig, reg *registry.Registry, store state.Store, cache *engine.Cache, log *zap.Logger) *strategy.Selector {
	return strategy.NewSelector(cfg.Strategy, reg, store, cache, log)
}

func provideHistoryDAO(cfg config.AppConfig) (history.SessionDAO, error) {
	return historysqlite.NewSessionDB(cfg.HistoryDBPath)
}

func InitializePipeline(cfg config.AppConfig) (*Pipeline, error) {
	wire.Build(
		NewPipeline,
		provideLogger,
		provideStore,
		provideLoader,
		provideCache,
		provideWarmer,
		provideSelector,
		provideRegistry,
		provideHistoryDAO,
	)
	return &Pipeline{}, nil
}
