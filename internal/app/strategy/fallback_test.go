package strategy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"speechpipe/internal/app/engine"
	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
	"speechpipe/internal/app/strategy"
	"speechpipe/internal/app/testutil"
)

func testConfig(t *testing.T) strategy.Config {
	t.Helper()
	cfg := strategy.DefaultConfig()
	cfg.TempDir = t.TempDir()
	cfg.RefinementChunkSecs = 1
	cfg.RefinementWaitTimeout = strategy.Duration(2 * time.Second)
	return cfg
}

func singleEngineCache(eng engine.Engine) *engine.Cache {
	loader := func(ctx context.Context, desc model.Descriptor, accel bool) (engine.Engine, error) {
		return eng, nil
	}
	return engine.NewCache(loader, nil, zap.NewNop())
}

// second returns one second of quiet audio at the config's sample rate.
func second(cfg strategy.Config) []float32 {
	samples := make([]float32, cfg.SampleRate*cfg.Channels)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func TestFallbackRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	eng := testutil.NewMockEngine().WithResponse("the whole recording")
	desc := model.Descriptor{ID: "tiny.en", Path: "/models/ggml-tiny.en.bin", SizeBytes: 100}
	strat := strategy.NewFallback(cfg, desc, singleEngineCache(eng), zap.NewNop())

	output := filepath.Join(t.TempDir(), "recording.wav")
	ctx := context.Background()

	require.NoError(t, strat.StartRecording(ctx, output))
	require.NoError(t, strat.ProcessSamples(ctx, second(cfg)))

	result, err := strat.FinishRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, "the whole recording", result.Text)
	assert.Equal(t, "fallback", result.StrategyUsed)
	assert.Equal(t, 1, result.ChunksProcessed)

	// The promoted file transcribed, not the staging file.
	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, output, calls[0].FilePath)

	_, err = os.Stat(output)
	assert.NoError(t, err)
}

func TestFallbackChunksLongRecording(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkingThresholdSecs = 2
	eng := testutil.NewMockEngine().WithResponse("chunk text")
	strat := strategy.NewFallback(cfg, model.Descriptor{ID: "tiny.en"}, singleEngineCache(eng), zap.NewNop())

	output := filepath.Join(t.TempDir(), "long.wav")
	ctx := context.Background()

	require.NoError(t, strat.StartRecording(ctx, output))
	for i := 0; i < 5; i++ {
		require.NoError(t, strat.ProcessSamples(ctx, second(cfg)))
	}

	result, err := strat.FinishRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, result.ChunksProcessed)
	assert.Equal(t, "chunk text chunk text chunk text chunk text chunk text", result.Text)

	// Every window went through the in-memory path, none through the file.
	window := cfg.RefinementChunkSecs * cfg.SampleRate * cfg.Channels
	calls := eng.Calls()
	require.Len(t, calls, 5)
	for _, call := range calls {
		assert.Empty(t, call.FilePath)
		assert.Equal(t, window, call.Samples)
	}

	// The recording is still promoted before transcription.
	_, err = os.Stat(output)
	assert.NoError(t, err)
}

func TestFallbackChunkingDisabledUsesSinglePass(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableChunking = false
	cfg.ChunkingThresholdSecs = 1
	eng := testutil.NewMockEngine().WithResponse("one pass")
	strat := strategy.NewFallback(cfg, model.Descriptor{ID: "tiny.en"}, singleEngineCache(eng), zap.NewNop())

	output := filepath.Join(t.TempDir(), "out.wav")
	ctx := context.Background()

	require.NoError(t, strat.StartRecording(ctx, output))
	for i := 0; i < 3; i++ {
		require.NoError(t, strat.ProcessSamples(ctx, second(cfg)))
	}

	result, err := strat.FinishRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksProcessed)

	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, output, calls[0].FilePath)
}

func TestFallbackSecondFinishFails(t *testing.T) {
	cfg := testConfig(t)
	strat := strategy.NewFallback(cfg, model.Descriptor{ID: "tiny.en"}, singleEngineCache(testutil.NewMockEngine()), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, strat.StartRecording(ctx, filepath.Join(t.TempDir(), "out.wav")))
	require.NoError(t, strat.ProcessSamples(ctx, second(cfg)))

	_, err := strat.FinishRecording(ctx)
	require.NoError(t, err)

	_, err = strat.FinishRecording(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSessionFinished)
}

func TestFallbackEmptyRecordingRejected(t *testing.T) {
	cfg := testConfig(t)
	strat := strategy.NewFallback(cfg, model.Descriptor{ID: "tiny.en"}, singleEngineCache(testutil.NewMockEngine()), zap.NewNop())
	ctx := context.Background()
	output := filepath.Join(t.TempDir(), "out.wav")

	require.NoError(t, strat.StartRecording(ctx, output))

	_, err := strat.FinishRecording(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEmptyRecording)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFallbackProcessBeforeStartFails(t *testing.T) {
	cfg := testConfig(t)
	strat := strategy.NewFallback(cfg, model.Descriptor{ID: "tiny.en"}, singleEngineCache(testutil.NewMockEngine()), zap.NewNop())

	err := strat.ProcessSamples(context.Background(), second(cfg))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotRecording)
}

func TestFallbackCancelRemovesStaging(t *testing.T) {
	cfg := testConfig(t)
	strat := strategy.NewFallback(cfg, model.Descriptor{ID: "tiny.en"}, singleEngineCache(testutil.NewMockEngine()), zap.NewNop())
	ctx := context.Background()

	require.NoError(t, strat.StartRecording(ctx, filepath.Join(t.TempDir(), "out.wav")))
	require.NoError(t, strat.ProcessSamples(ctx, second(cfg)))
	require.NoError(t, strat.Cancel(ctx))

	entries, err := os.ReadDir(cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging file must be removed on cancel")

	_, err = strat.FinishRecording(ctx)
	assert.Error(t, err)
}
