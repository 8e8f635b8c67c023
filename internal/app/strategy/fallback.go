package strategy

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"speechpipe/internal/app/audio"
	"speechpipe/internal/app/engine"
	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

// Fallback transcribes the recording with a single model after capture ends,
// in one pass or, for long recordings with chunking enabled, window by
// window. No live partials; it is the strategy of last resort when only one
// warm model is available.
type Fallback struct {
	mu      sync.Mutex
	session session
	cfg     Config
	desc    model.Descriptor
	cache   *engine.Cache
	staging *audio.StagingFile
	buffer  []float32
	log     *zap.Logger
}

func NewFallback(cfg Config, desc model.Descriptor, cache *engine.Cache, log *zap.Logger) *Fallback {
	return &Fallback{
		session: session{id: uuid.New().String()},
		cfg:     cfg,
		desc:    desc,
		cache:   cache,
		log:     log,
	}
}

func (f *Fallback) Name() string { return "fallback" }

func (f *Fallback) StartRecording(ctx context.Context, outputPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.session.beginRecording(outputPath); err != nil {
		return err
	}
	staging, err := audio.NewStagingFile(f.cfg.TempDir, f.session.id, f.cfg.SampleRate, f.cfg.Channels, f.log)
	if err != nil {
		f.session.state = SessionFailed
		return err
	}
	f.staging = staging
	f.log.Info("recording started",
		zap.String("session", f.session.id),
		zap.String("strategy", f.Name()),
		zap.String("model", f.desc.ID))
	return nil
}

func (f *Fallback) ProcessSamples(ctx context.Context, samples []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.session.requireRecording(); err != nil {
		return err
	}
	if err := f.staging.Append(samples); err != nil {
		return err
	}
	f.buffer = append(f.buffer, samples...)
	return nil
}

func (f *Fallback) FinishRecording(ctx context.Context) (*model.TranscriptionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.session.beginFinishing(); err != nil {
		return nil, err
	}

	result, err := f.finish(ctx)
	if err != nil {
		f.session.state = SessionFailed
		f.staging.Discard()
		return nil, err
	}
	f.session.state = SessionDone
	return result, nil
}

func (f *Fallback) finish(ctx context.Context) (*model.TranscriptionResult, error) {
	started := time.Now()

	if err := f.staging.Finalize(); err != nil {
		return nil, err
	}
	if _, err := f.staging.Promote(f.session.outputPath); err != nil {
		return nil, err
	}

	eng, err := f.cache.GetOrCreate(ctx, f.desc)
	if err != nil {
		return nil, err
	}

	text, chunks, err := f.transcribe(ctx, eng)
	if err != nil {
		return nil, apperrors.Wrapf(err, "fallback transcription failed for session %s", f.session.id)
	}

	f.log.Info("recording finished",
		zap.String("session", f.session.id),
		zap.String("strategy", f.Name()),
		zap.Int("chunks", chunks),
		zap.Duration("processing", time.Since(started)))

	return &model.TranscriptionResult{
		Text:            text,
		ProcessingTime:  time.Since(started),
		StrategyUsed:    f.Name(),
		ChunksProcessed: chunks,
	}, nil
}

// transcribe runs one full-file pass, or window-by-window when the recording
// is long enough that a single pass would block too long.
func (f *Fallback) transcribe(ctx context.Context, eng engine.Engine) (string, int, error) {
	frames := len(f.buffer) / f.cfg.Channels
	durationSecs := frames / f.cfg.SampleRate
	if !f.cfg.EnableChunking || durationSecs <= f.cfg.ChunkingThresholdSecs {
		text, err := eng.TranscribeFile(ctx, f.session.outputPath)
		return text, 1, err
	}

	window := f.cfg.RefinementChunkSecs * f.cfg.SampleRate * f.cfg.Channels
	var parts []string
	chunks := 0
	for rest := f.buffer; len(rest) > 0; {
		n := window
		if n > len(rest) {
			n = len(rest)
		}
		text, err := eng.Transcribe(ctx, rest[:n], f.cfg.SampleRate)
		if err != nil {
			return "", chunks, err
		}
		if text != "" {
			parts = append(parts, text)
		}
		rest = rest[n:]
		chunks++
	}
	return strings.Join(parts, " "), chunks, nil
}

func (f *Fallback) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.session.state == SessionDone || f.session.state == SessionFailed {
		return nil
	}
	if f.staging != nil {
		f.staging.Discard()
	}
	f.session.state = SessionFailed
	f.log.Info("recording cancelled", zap.String("session", f.session.id))
	return nil
}

func (f *Fallback) PartialResults() <-chan string { return nil }
