package state

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/engine"
	"speechpipe/internal/app/model"
	"speechpipe/internal/app/registry"
)

const (
	smokeTestSampleRate = 16000
	smokeTestSeconds    = 1
)

// Warmer pre-loads and compiles model acceleration backends before the first
// real transcription request, so cold-start latency is not paid on demand.
type Warmer struct {
	store Store
	reg   *registry.Registry
	cache *engine.Cache
	log   *zap.Logger

	// OnProgress, when set, is called after each model's warm attempt settles.
	OnProgress func(modelID string, st model.State)

	mu       sync.Mutex
	inflight map[string]bool
}

func NewWarmer(store Store, reg *registry.Registry, cache *engine.Cache, log *zap.Logger) *Warmer {
	return &Warmer{
		store:    store,
		reg:      reg,
		cache:    cache,
		log:      log,
		inflight: make(map[string]bool),
	}
}

// DiscoverWarmable returns the models eligible for warming: downloaded base
// models that carry an acceleration bundle. Re-scans the directory each call.
func (w *Warmer) DiscoverWarmable() ([]model.Descriptor, error) {
	descriptors, err := w.reg.Discover()
	if err != nil {
		return nil, err
	}
	warmable := descriptors[:0]
	for _, d := range descriptors {
		if d.HasAccel {
			warmable = append(warmable, d)
		}
	}
	return warmable, nil
}

// WarmModels warms every discovered model that is not already Ready or
// Warming. Idempotent: concurrent calls coalesce per model, and a failure on
// one model never aborts warming of the others. Returns an error only when
// discovery itself fails.
func (w *Warmer) WarmModels(ctx context.Context) error {
	warmable, err := w.DiscoverWarmable()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, desc := range warmable {
		info, err := w.store.GetState(ctx, desc.ID)
		if err != nil {
			w.log.Warn("failed to read model state, skipping warm",
				zap.String("model", desc.ID), zap.Error(err))
			continue
		}
		if info.State == model.StateReady || info.State == model.StateWarming {
			w.log.Debug("model already warm or warming, skipping",
				zap.String("model", desc.ID), zap.String("state", string(info.State)))
			continue
		}

		wg.Add(1)
		go func(desc model.Descriptor) {
			defer wg.Done()
			w.warmOne(ctx, desc)
		}(desc)
	}
	wg.Wait()
	return nil
}

// warmOne runs a single model's Downloaded -> Warming -> Ready|Failed
// transition under the per-model warm lock.
func (w *Warmer) warmOne(ctx context.Context, desc model.Descriptor) {
	w.mu.Lock()
	if w.inflight[desc.ID] {
		w.mu.Unlock()
		return
	}
	w.inflight[desc.ID] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.inflight, desc.ID)
		w.mu.Unlock()
	}()

	w.log.Info("warming model", zap.String("model", desc.ID))
	if err := w.store.SetState(ctx, desc.ID, model.StateWarming, ""); err != nil {
		w.log.Warn("failed to persist warming state", zap.String("model", desc.ID), zap.Error(err))
		w.notify(desc.ID, model.StateFailed)
		return
	}

	if err := w.compileAndSmokeTest(ctx, desc); err != nil {
		w.log.Warn("model warm-up failed", zap.String("model", desc.ID), zap.Error(err))
		reason := apperrors.Wrapf(apperrors.ErrWarmUpFailed, "model %s: %v", desc.ID, err).Error()
		if err := w.store.SetState(ctx, desc.ID, model.StateFailed, reason); err != nil {
			w.log.Warn("failed to persist failed state", zap.String("model", desc.ID), zap.Error(err))
		}
		w.notify(desc.ID, model.StateFailed)
		return
	}

	// The Ready write must commit before anyone treats the model as warm.
	if err := w.store.SetState(ctx, desc.ID, model.StateReady, ""); err != nil {
		w.log.Warn("failed to persist ready state", zap.String("model", desc.ID), zap.Error(err))
		w.notify(desc.ID, model.StateFailed)
		return
	}
	w.log.Info("model warmed", zap.String("model", desc.ID))
	w.notify(desc.ID, model.StateReady)
}

// compileAndSmokeTest loads the engine, which compiles the acceleration
// backend on first use, then runs one second of silence through it to prove
// the compiled artifact actually works.
func (w *Warmer) compileAndSmokeTest(ctx context.Context, desc model.Descriptor) error {
	eng, err := w.cache.Warm(ctx, desc)
	if err != nil {
		return err
	}
	silence := make([]float32, smokeTestSampleRate*smokeTestSeconds)
	_, err = eng.Transcribe(ctx, silence, smokeTestSampleRate)
	return err
}

func (w *Warmer) notify(modelID string, st model.State) {
	if w.OnProgress != nil {
		w.OnProgress(modelID, st)
	}
}

// RetryFailed re-arms a Failed model for the next WarmModels pass
// (the one allowed backward transition, Failed -> Warming via manual retry).
func (w *Warmer) RetryFailed(ctx context.Context, modelID string) error {
	info, err := w.store.GetState(ctx, modelID)
	if err != nil {
		return err
	}
	if info.State != model.StateFailed {
		return apperrors.Newf("model %s is %s, only failed models can be retried", modelID, info.State)
	}
	return w.store.SetState(ctx, modelID, model.StateDownloaded, "")
}
