package strategy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"speechpipe/internal/app/audio"
	"speechpipe/internal/app/engine"
	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

// errRefinementTimedOut marks the non-fatal refinement timeout in logs and
// session history.
var errRefinementTimedOut = apperrors.Wrap(apperrors.ErrRefinementTimeout, "refinement wait elapsed")

// chunk is one refinement window of the stream. The fast model produces the
// live partial, the accurate model refines it in the background, and finish
// merges whichever of the two is available, refined preferred.
type chunk struct {
	index   int
	samples []float32

	fastDone    chan struct{}
	fastText    string
	fastErr     error
	refinedDone chan struct{}
	refinedText string
	refinedErr  error
}

// Progressive streams live partials from a fast model while an accurate model
// refines each window in the background. Requires both models warm; the
// selector only picks it when that holds.
type Progressive struct {
	mu      sync.Mutex
	session session
	cfg     Config

	fast     model.Descriptor
	accurate model.Descriptor
	cache    *engine.Cache

	staging  *audio.StagingFile
	chunks   []*chunk
	buffer   []float32
	partials chan string
	jobs     sync.WaitGroup

	// runCtx bounds the fast and refinement jobs. Cancelled on Cancel and
	// once finish stops waiting for stragglers.
	runCtx     context.Context
	cancelJobs context.CancelFunc
	closeOnce  sync.Once

	log *zap.Logger
}

func NewProgressive(cfg Config, fast, accurate model.Descriptor, cache *engine.Cache, log *zap.Logger) *Progressive {
	return &Progressive{
		session:  session{id: uuid.New().String()},
		cfg:      cfg,
		fast:     fast,
		accurate: accurate,
		cache:    cache,
		partials: make(chan string, 16),
		log:      log,
	}
}

func (p *Progressive) Name() string { return "progressive" }

// windowSamples is the sample count of one refinement window.
func (p *Progressive) windowSamples() int {
	return p.cfg.RefinementChunkSecs * p.cfg.SampleRate * p.cfg.Channels
}

func (p *Progressive) StartRecording(ctx context.Context, outputPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.session.beginRecording(outputPath); err != nil {
		return err
	}
	staging, err := audio.NewStagingFile(p.cfg.TempDir, p.session.id, p.cfg.SampleRate, p.cfg.Channels, p.log)
	if err != nil {
		p.session.state = SessionFailed
		return err
	}
	p.staging = staging
	p.runCtx, p.cancelJobs = context.WithCancel(context.Background())
	p.log.Info("recording started",
		zap.String("session", p.session.id),
		zap.String("strategy", p.Name()),
		zap.String("fast_model", p.fast.ID),
		zap.String("accurate_model", p.accurate.ID))
	return nil
}

func (p *Progressive) ProcessSamples(ctx context.Context, samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.session.requireRecording(); err != nil {
		return err
	}
	if err := p.staging.Append(samples); err != nil {
		return err
	}

	p.buffer = append(p.buffer, samples...)
	for window := p.windowSamples(); len(p.buffer) >= window; {
		cut := make([]float32, window)
		copy(cut, p.buffer[:window])
		p.buffer = p.buffer[window:]
		p.dispatch(cut)
	}
	return nil
}

// dispatch registers a new chunk and starts its fast and refinement jobs on
// the session's run context. Caller holds p.mu.
func (p *Progressive) dispatch(samples []float32) {
	c := &chunk{
		index:       len(p.chunks),
		samples:     samples,
		fastDone:    make(chan struct{}),
		refinedDone: make(chan struct{}),
	}
	p.chunks = append(p.chunks, c)

	p.jobs.Add(2)
	go p.runFast(p.runCtx, c)
	go p.runRefinement(p.runCtx, c)
}

func (p *Progressive) runFast(ctx context.Context, c *chunk) {
	defer p.jobs.Done()
	defer close(c.fastDone)

	eng, err := p.cache.GetOrCreate(ctx, p.fast)
	if err != nil {
		c.fastErr = err
		p.log.Warn("fast engine unavailable", zap.Int("chunk", c.index), zap.Error(err))
		return
	}
	c.fastText, c.fastErr = eng.Transcribe(ctx, c.samples, p.cfg.SampleRate)
	if c.fastErr != nil {
		p.log.Warn("fast transcription failed", zap.Int("chunk", c.index), zap.Error(c.fastErr))
		return
	}
	select {
	case p.partials <- c.fastText:
	default:
		// A slow consumer must not stall capture.
		p.log.Debug("partial dropped, consumer not keeping up", zap.Int("chunk", c.index))
	}
}

func (p *Progressive) runRefinement(ctx context.Context, c *chunk) {
	defer p.jobs.Done()
	defer close(c.refinedDone)

	eng, err := p.cache.GetOrCreate(ctx, p.accurate)
	if err != nil {
		c.refinedErr = err
		p.log.Warn("accurate engine unavailable", zap.Int("chunk", c.index), zap.Error(err))
		return
	}
	c.refinedText, c.refinedErr = eng.Transcribe(ctx, c.samples, p.cfg.SampleRate)
	if c.refinedErr != nil {
		p.log.Warn("refinement failed", zap.Int("chunk", c.index), zap.Error(c.refinedErr))
	}
}

func (p *Progressive) FinishRecording(ctx context.Context) (*model.TranscriptionResult, error) {
	p.mu.Lock()
	if err := p.session.beginFinishing(); err != nil {
		p.mu.Unlock()
		return nil, err
	}

	// Flush the trailing partial window as a final chunk.
	if len(p.buffer) > 0 {
		tail := p.buffer
		p.buffer = nil
		p.dispatch(tail)
	}
	chunks := p.chunks
	p.mu.Unlock()

	started := time.Now()
	result, err := p.finish(ctx, started, chunks)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelJobs()
	p.closePartialsWhenIdle()
	if err != nil {
		p.session.state = SessionFailed
		p.staging.Discard()
		return nil, err
	}
	p.session.state = SessionDone
	return result, nil
}

func (p *Progressive) finish(ctx context.Context, started time.Time, chunks []*chunk) (*model.TranscriptionResult, error) {
	if err := p.staging.Finalize(); err != nil {
		return nil, err
	}
	if _, err := p.staging.Promote(p.session.outputPath); err != nil {
		return nil, err
	}

	timedOut := p.waitForJobs(ctx)
	if timedOut {
		p.log.Warn("substituting fast results",
			zap.String("session", p.session.id),
			zap.Duration("timeout", p.cfg.RefinementWaitTimeout.Std()),
			zap.Error(errRefinementTimedOut))
	}

	parts := lo.FilterMap(chunks, func(c *chunk, _ int) (string, bool) {
		return p.chunkText(c)
	})

	p.log.Info("recording finished",
		zap.String("session", p.session.id),
		zap.String("strategy", p.Name()),
		zap.Int("chunks", len(chunks)),
		zap.Bool("refinement_timed_out", timedOut),
		zap.Duration("processing", time.Since(started)))

	return &model.TranscriptionResult{
		Text:            strings.Join(parts, " "),
		ProcessingTime:  time.Since(started),
		StrategyUsed:    p.Name(),
		ChunksProcessed: len(chunks),
	}, nil
}

// waitForJobs blocks until all fast and refinement jobs settle, bounded by
// RefinementWaitTimeout. Reports whether the wait timed out; timing out is
// not fatal, unfinished chunks fall back to their fast text.
func (p *Progressive) waitForJobs(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		p.jobs.Wait()
		close(done)
	}()

	select {
	case <-done:
		return false
	case <-time.After(p.cfg.RefinementWaitTimeout.Std()):
		return true
	case <-ctx.Done():
		return true
	}
}

// closePartialsWhenIdle closes the partials channel once no job can send on
// it anymore. Jobs still in flight after a timed-out wait or a cancel would
// otherwise race the close and panic.
func (p *Progressive) closePartialsWhenIdle() {
	p.closeOnce.Do(func() {
		go func() {
			p.jobs.Wait()
			close(p.partials)
		}()
	})
}

// chunkText picks the best available text for a chunk: refined when the
// refinement finished cleanly, fast text otherwise. A chunk with neither
// contributes nothing.
func (p *Progressive) chunkText(c *chunk) (string, bool) {
	select {
	case <-c.refinedDone:
		if c.refinedErr == nil && c.refinedText != "" {
			return c.refinedText, true
		}
	default:
	}
	select {
	case <-c.fastDone:
		if c.fastErr == nil && c.fastText != "" {
			return c.fastText, true
		}
	default:
	}
	p.log.Warn("chunk produced no text", zap.Int("chunk", c.index))
	return "", false
}

func (p *Progressive) Cancel(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.session.state {
	case SessionDone, SessionFailed:
		return nil
	case SessionFinishing:
		// Finish in flight owns cleanup.
		return apperrors.Wrapf(apperrors.ErrSessionFinished, "session %s is finishing", p.session.id)
	case SessionCreated:
		p.session.state = SessionFailed
		p.closePartialsWhenIdle()
		return nil
	}
	p.staging.Discard()
	p.cancelJobs()
	p.closePartialsWhenIdle()
	p.session.state = SessionFailed
	p.log.Info("recording cancelled", zap.String("session", p.session.id))
	return nil
}

func (p *Progressive) PartialResults() <-chan string { return p.partials }
