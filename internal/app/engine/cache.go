package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

// AccelReader reports whether a model's acceleration backend is warmed.
type AccelReader interface {
	IsAccelReady(ctx context.Context, modelID string) bool
}

// cacheEntry is a single-flight slot: the first caller loads, everyone else
// waits on done.
type cacheEntry struct {
	done  chan struct{}
	eng   Engine
	err   error
	accel bool
}

// Cache memoizes loaded engines per model id. Concurrent callers requesting
// the same model share the one in-progress load; duplicate acceleration
// compilation is slow and can corrupt shared native state. Successful entries
// live for the process lifetime; failed loads are evicted so a later call can
// retry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	loader  Loader
	states  AccelReader
	log     *zap.Logger
	metrics *Metrics

	// accelInit serializes the acceleration compile step specifically,
	// separate from the creation map: two different models compiling at once
	// can deadlock the native backend, which a per-model lock cannot prevent.
	accelInit sync.Mutex
}

func NewCache(loader Loader, states AccelReader, log *zap.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		loader:  loader,
		states:  states,
		log:     log,
		metrics: defaultMetrics,
	}
}

// GetOrCreate returns the shared engine for the model, loading it on first
// use. The accelerated path is only taken once the state store has committed
// the model as ready.
func (c *Cache) GetOrCreate(ctx context.Context, desc model.Descriptor) (Engine, error) {
	accel := desc.HasAccel && c.states != nil && c.states.IsAccelReady(ctx, desc.ID)
	return c.getOrCreate(ctx, desc, accel)
}

// Warm loads the accelerated engine regardless of recorded readiness. The
// warmer uses it to compile the acceleration backend in the first place.
func (c *Cache) Warm(ctx context.Context, desc model.Descriptor) (Engine, error) {
	return c.getOrCreate(ctx, desc, desc.HasAccel)
}

func (c *Cache) getOrCreate(ctx context.Context, desc model.Descriptor, accel bool) (Engine, error) {
	// A model warmed later must not be served a stale plain-path engine
	// under the same key, so readiness is part of the key.
	key := desc.ID
	if !accel {
		key += "#plain"
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.metrics.cacheHits.Inc()
		select {
		case <-e.done:
			return e.eng, e.err
		case <-ctx.Done():
			return nil, apperrors.Wrapf(ctx.Err(), "cancelled waiting for engine %s", desc.ID)
		}
	}

	e := &cacheEntry{done: make(chan struct{}), accel: accel}
	c.entries[key] = e
	c.mu.Unlock()

	c.log.Info("loading engine",
		zap.String("model", desc.ID),
		zap.Bool("accel", accel))
	c.metrics.loads.WithLabelValues(desc.ID).Inc()

	e.eng, e.err = c.load(ctx, desc, accel)
	if e.err != nil {
		e.err = apperrors.Wrapf(apperrors.ErrCacheCreationFailed, "model %s: %v", desc.ID, e.err)
		c.metrics.loadFailures.WithLabelValues(desc.ID).Inc()
		c.log.Warn("engine load failed", zap.String("model", desc.ID), zap.Error(e.err))

		// Evict so a later call can retry.
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
	}
	close(e.done)

	return e.eng, e.err
}

func (c *Cache) load(ctx context.Context, desc model.Descriptor, accel bool) (Engine, error) {
	if accel {
		c.accelInit.Lock()
		defer c.accelInit.Unlock()
	}
	return c.loader(ctx, desc, accel)
}

// Len returns the number of live engines, for diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
