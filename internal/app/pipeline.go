// Package app wires the transcription pipeline together and drives a
// recording session end to end.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"speechpipe/internal/app/engine"
	"speechpipe/internal/app/history"
	"speechpipe/internal/app/model"
	"speechpipe/internal/app/state"
	"speechpipe/internal/app/strategy"
	"speechpipe/internal/config"
)

// Pipeline is the application core: model warm-up, strategy selection and
// session history behind one façade for the CLI.
type Pipeline struct {
	cfg      config.AppConfig
	log      *zap.Logger
	store    state.Store
	cache    *engine.Cache
	warmer   *state.Warmer
	selector *strategy.Selector
	history  history.SessionDAO
}

func NewPipeline(
	cfg config.AppConfig,
	log *zap.Logger,
	store state.Store,
	cache *engine.Cache,
	warmer *state.Warmer,
	selector *strategy.Selector,
	dao history.SessionDAO,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		log:      log,
		store:    store,
		cache:    cache,
		warmer:   warmer,
		selector: selector,
		history:  dao,
	}
}

// Warm warms every eligible model. onProgress, when non-nil, is called as
// each model's attempt settles.
func (p *Pipeline) Warm(ctx context.Context, onProgress func(modelID string, st model.State)) error {
	p.warmer.OnProgress = onProgress
	return p.warmer.WarmModels(ctx)
}

// Warmable lists the models eligible for warming.
func (p *Pipeline) Warmable() ([]model.Descriptor, error) {
	return p.warmer.DiscoverWarmable()
}

// RetryFailed re-arms a failed model for the next warm pass.
func (p *Pipeline) RetryFailed(ctx context.Context, modelID string) error {
	return p.warmer.RetryFailed(ctx, modelID)
}

// ModelStates returns the persisted warm-up state of every known model.
func (p *Pipeline) ModelStates(ctx context.Context) ([]model.StateInfo, error) {
	return p.store.List(ctx)
}

// Record runs one full recording session: samples are drained from source
// until it closes, partial transcripts are forwarded to onPartial, and the
// final result is persisted to history before being returned.
func (p *Pipeline) Record(ctx context.Context, source <-chan []float32, outputPath string, onPartial func(string)) (*model.TranscriptionResult, error) {
	strat, err := p.selector.Select(ctx)
	if err != nil {
		return nil, err
	}
	startedAt := time.Now()

	if err := strat.StartRecording(ctx, outputPath); err != nil {
		return nil, err
	}

	drained := make(chan struct{})
	if partials := strat.PartialResults(); partials != nil && onPartial != nil {
		go func() {
			defer close(drained)
			for text := range partials {
				onPartial(text)
			}
		}()
	} else {
		close(drained)
	}

	for samples := range source {
		if err := strat.ProcessSamples(ctx, samples); err != nil {
			strat.Cancel(ctx)
			<-drained
			p.saveHistory(ctx, strat.Name(), startedAt, nil, err)
			return nil, err
		}
	}

	result, err := strat.FinishRecording(ctx)
	<-drained
	p.saveHistory(ctx, strat.Name(), startedAt, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// saveHistory records the session outcome, success or failure. History
// failures are logged, never propagated into the transcription path.
func (p *Pipeline) saveHistory(ctx context.Context, strategyName string, startedAt time.Time, result *model.TranscriptionResult, sessionErr error) {
	rec := model.SessionRecord{
		ID:           newSessionID(),
		Strategy:     strategyName,
		StartedAt:    startedAt,
		DurationSecs: time.Since(startedAt).Seconds(),
	}
	if result != nil {
		rec.Chunks = result.ChunksProcessed
		rec.Text = result.Text
	}
	if sessionErr != nil {
		rec.ErrorMessage = sessionErr.Error()
	}
	if err := p.history.Save(ctx, rec); err != nil {
		p.log.Warn("failed to save session history", zap.Error(err))
	}
}

func newSessionID() string {
	return uuid.New().String()
}

// History lists the most recent sessions, newest first.
func (p *Pipeline) History(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	return p.history.List(ctx, limit)
}

// Close releases the pipeline's persistent resources.
func (p *Pipeline) Close() error {
	if err := p.history.Close(); err != nil {
		return err
	}
	return p.store.Close()
}
