package strategy

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"speechpipe/internal/app/engine"
	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
	"speechpipe/internal/app/queue"
	"speechpipe/internal/app/registry"
	"speechpipe/internal/app/state"
)

// Selector picks the best strategy for the models and backends currently
// available. Selection order: external backend when enabled, a forced
// override, progressive when two models are warm, fallback otherwise.
type Selector struct {
	cfg   Config
	reg   *registry.Registry
	store state.Store
	cache *engine.Cache
	log   *zap.Logger

	// newQueueClient is swappable in tests.
	newQueueClient func(addr string, log *zap.Logger) *queue.Client
}

func NewSelector(cfg Config, reg *registry.Registry, store state.Store, cache *engine.Cache, log *zap.Logger) *Selector {
	return &Selector{
		cfg:            cfg,
		reg:            reg,
		store:          store,
		cache:          cache,
		log:            log,
		newQueueClient: queue.NewClient,
	}
}

// Select builds the strategy for a new session. A forced strategy whose
// prerequisites are missing is a hard error, never a silent downgrade.
func (s *Selector) Select(ctx context.Context) (Strategy, error) {
	if s.cfg.External.Enabled {
		return s.external(), nil
	}
	if s.cfg.ForceStrategy != "" {
		return s.forced(ctx)
	}
	return s.automatic(ctx)
}

func (s *Selector) forced(ctx context.Context) (Strategy, error) {
	switch s.cfg.ForceStrategy {
	case "external":
		return s.external(), nil
	case "progressive":
		fast, accurate, ok, err := s.warmPair(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.Wrapf(apperrors.ErrStrategyMismatch,
				"progressive forced but fewer than two warm models are available")
		}
		s.logPick("progressive", "forced")
		return NewProgressive(s.cfg, fast, accurate, s.cache, s.log), nil
	case "fallback":
		desc, err := s.fastestModel(ctx)
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrStrategyMismatch,
				"fallback forced but no model is available: %v", err)
		}
		s.logPick("fallback", "forced")
		return NewFallback(s.cfg, desc, s.cache, s.log), nil
	default:
		return nil, apperrors.Wrapf(apperrors.ErrStrategyMismatch,
			"unknown forced strategy %q", s.cfg.ForceStrategy)
	}
}

func (s *Selector) automatic(ctx context.Context) (Strategy, error) {
	fast, accurate, ok, err := s.warmPair(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		s.logPick("progressive", "two warm models")
		return NewProgressive(s.cfg, fast, accurate, s.cache, s.log), nil
	}

	desc, err := s.fastestModel(ctx)
	if err != nil {
		return nil, err
	}
	s.logPick("fallback", "single model")
	return NewFallback(s.cfg, desc, s.cache, s.log), nil
}

func (s *Selector) external() Strategy {
	s.logPick("external", "backend configured")
	return NewExternal(s.cfg, s.newQueueClient(s.cfg.External.RedisAddr, s.log), s.log)
}

// warmPair returns the smallest and largest warm models when at least two
// distinct models are ready.
func (s *Selector) warmPair(ctx context.Context) (fast, accurate model.Descriptor, ok bool, err error) {
	descriptors, err := s.reg.Discover()
	if err != nil {
		return fast, accurate, false, err
	}
	warm := lo.Filter(descriptors, func(d model.Descriptor, _ int) bool {
		return state.IsAccelReady(ctx, s.store, d.ID)
	})
	if len(warm) < 2 {
		return fast, accurate, false, nil
	}
	// Discovery sorts by size ascending: smallest is fastest, largest is
	// most accurate.
	return warm[0], warm[len(warm)-1], true, nil
}

// fastestModel picks the smallest discovered model, preferring one whose
// acceleration is warm when sizes tie.
func (s *Selector) fastestModel(ctx context.Context) (model.Descriptor, error) {
	descriptors, err := s.reg.Discover()
	if err != nil {
		return model.Descriptor{}, err
	}
	if len(descriptors) == 0 {
		return model.Descriptor{}, apperrors.Wrap(apperrors.ErrModelNotFound, "no models discovered")
	}

	best := descriptors[0]
	for _, d := range descriptors[1:] {
		if d.SizeBytes < best.SizeBytes {
			best = d
			continue
		}
		if d.SizeBytes == best.SizeBytes &&
			!state.IsAccelReady(ctx, s.store, best.ID) &&
			state.IsAccelReady(ctx, s.store, d.ID) {
			best = d
		}
	}
	return best, nil
}

func (s *Selector) logPick(name, reason string) {
	s.log.Info("strategy selected", zap.String("strategy", name), zap.String("reason", reason))
}
