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
	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

// Backend is the queue client recording windows are submitted to.
type Backend interface {
	Ping(ctx context.Context) error
	PushChunk(ctx context.Context, samples []float32, sampleRate, channels int) (string, error)
	PullTranscript(ctx context.Context, id string, timeout time.Duration) (string, error)
}

// externalChunk tracks one window submitted to the distributed backend.
type externalChunk struct {
	index int
	done  chan struct{}
	text  string
	err   error
}

// External offloads transcription to the distributed backend behind the redis
// queue. Windows are pushed as they fill and their transcripts pulled in the
// background, so partials stream in while the recording is still running.
type External struct {
	mu      sync.Mutex
	session session
	cfg     Config

	client   Backend
	staging  *audio.StagingFile
	chunks   []*externalChunk
	buffer   []float32
	partials chan string
	jobs     sync.WaitGroup

	// runCtx bounds the submit-and-pull jobs. Cancelled on Cancel and once
	// finish stops waiting for stragglers.
	runCtx     context.Context
	cancelJobs context.CancelFunc
	closeOnce  sync.Once

	log *zap.Logger
}

func NewExternal(cfg Config, client Backend, log *zap.Logger) *External {
	return &External{
		session:  session{id: uuid.New().String()},
		cfg:      cfg,
		client:   client,
		partials: make(chan string, 16),
		log:      log,
	}
}

func (e *External) Name() string { return "external" }

func (e *External) windowSamples() int {
	return e.cfg.RefinementChunkSecs * e.cfg.SampleRate * e.cfg.Channels
}

func (e *External) StartRecording(ctx context.Context, outputPath string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.session.beginRecording(outputPath); err != nil {
		return err
	}
	// Fail fast when the backend is unreachable rather than at finish.
	if err := e.client.Ping(ctx); err != nil {
		e.session.state = SessionFailed
		return err
	}
	staging, err := audio.NewStagingFile(e.cfg.TempDir, e.session.id, e.cfg.SampleRate, e.cfg.Channels, e.log)
	if err != nil {
		e.session.state = SessionFailed
		return err
	}
	e.staging = staging
	e.runCtx, e.cancelJobs = context.WithCancel(context.Background())
	e.log.Info("recording started",
		zap.String("session", e.session.id),
		zap.String("strategy", e.Name()))
	return nil
}

func (e *External) ProcessSamples(ctx context.Context, samples []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.session.requireRecording(); err != nil {
		return err
	}
	if err := e.staging.Append(samples); err != nil {
		return err
	}

	e.buffer = append(e.buffer, samples...)
	for window := e.windowSamples(); len(e.buffer) >= window; {
		cut := make([]float32, window)
		copy(cut, e.buffer[:window])
		e.buffer = e.buffer[window:]
		e.dispatch(cut)
	}
	return nil
}

// dispatch submits one window to the backend and pulls its transcript in the
// background, on the session's run context. Caller holds e.mu.
func (e *External) dispatch(samples []float32) {
	c := &externalChunk{
		index: len(e.chunks),
		done:  make(chan struct{}),
	}
	e.chunks = append(e.chunks, c)

	e.jobs.Add(1)
	go func() {
		defer e.jobs.Done()
		defer close(c.done)

		id, err := e.client.PushChunk(e.runCtx, samples, e.cfg.SampleRate, e.cfg.Channels)
		if err != nil {
			c.err = err
			e.log.Warn("failed to submit chunk", zap.Int("chunk", c.index), zap.Error(err))
			return
		}
		c.text, c.err = e.client.PullTranscript(e.runCtx, id, e.cfg.External.PullTimeout.Std())
		if c.err != nil {
			e.log.Warn("failed to pull transcript", zap.Int("chunk", c.index), zap.Error(c.err))
			return
		}
		select {
		case e.partials <- c.text:
		default:
			e.log.Debug("partial dropped, consumer not keeping up", zap.Int("chunk", c.index))
		}
	}()
}

func (e *External) FinishRecording(ctx context.Context) (*model.TranscriptionResult, error) {
	e.mu.Lock()
	if err := e.session.beginFinishing(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if len(e.buffer) > 0 {
		tail := e.buffer
		e.buffer = nil
		e.dispatch(tail)
	}
	chunks := e.chunks
	e.mu.Unlock()

	started := time.Now()
	result, err := e.finish(ctx, started, chunks)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelJobs()
	e.closePartialsWhenIdle()
	if err != nil {
		e.session.state = SessionFailed
		e.staging.Discard()
		return nil, err
	}
	e.session.state = SessionDone
	return result, nil
}

func (e *External) finish(ctx context.Context, started time.Time, chunks []*externalChunk) (*model.TranscriptionResult, error) {
	if err := e.staging.Finalize(); err != nil {
		return nil, err
	}
	if _, err := e.staging.Promote(e.session.outputPath); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		e.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, apperrors.Wrapf(ctx.Err(), "cancelled waiting for backend transcripts")
	}

	failed := lo.CountBy(chunks, func(c *externalChunk) bool { return c.err != nil })
	if failed == len(chunks) && len(chunks) > 0 {
		return nil, apperrors.Wrapf(apperrors.ErrExternalBackend,
			"all %d chunks failed for session %s", failed, e.session.id)
	}

	parts := lo.FilterMap(chunks, func(c *externalChunk, _ int) (string, bool) {
		return c.text, c.err == nil && c.text != ""
	})

	e.log.Info("recording finished",
		zap.String("session", e.session.id),
		zap.String("strategy", e.Name()),
		zap.Int("chunks", len(chunks)),
		zap.Int("failed_chunks", failed),
		zap.Duration("processing", time.Since(started)))

	return &model.TranscriptionResult{
		Text:            strings.Join(parts, " "),
		ProcessingTime:  time.Since(started),
		StrategyUsed:    e.Name(),
		ChunksProcessed: len(chunks),
	}, nil
}

// closePartialsWhenIdle closes the partials channel once no job can send on
// it anymore. Pulls still blocked on the backend would otherwise race the
// close and panic.
func (e *External) closePartialsWhenIdle() {
	e.closeOnce.Do(func() {
		go func() {
			e.jobs.Wait()
			close(e.partials)
		}()
	})
}

func (e *External) Cancel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.session.state {
	case SessionDone, SessionFailed:
		return nil
	case SessionFinishing:
		return apperrors.Wrapf(apperrors.ErrSessionFinished, "session %s is finishing", e.session.id)
	case SessionCreated:
		e.session.state = SessionFailed
		e.closePartialsWhenIdle()
		return nil
	}
	e.staging.Discard()
	e.cancelJobs()
	e.closePartialsWhenIdle()
	e.session.state = SessionFailed
	e.log.Info("recording cancelled", zap.String("session", e.session.id))
	return nil
}

func (e *External) PartialResults() <-chan string { return e.partials }
