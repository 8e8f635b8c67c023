package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"speechpipe/internal/app/engine"
	"speechpipe/internal/app/model"
	"speechpipe/internal/app/registry"
	"speechpipe/internal/app/state"
	"speechpipe/internal/app/strategy"
	"speechpipe/internal/app/testutil"
	"speechpipe/internal/config"
)

// memoryDAO is an in-memory history.SessionDAO for pipeline tests.
type memoryDAO struct {
	mu      sync.Mutex
	records []model.SessionRecord
}

func (m *memoryDAO) Close() error { return nil }

func (m *memoryDAO) Save(_ context.Context, rec model.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryDAO) List(_ context.Context, limit int) ([]model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SessionRecord, len(m.records))
	copy(out, m.records)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryDAO) FindByStrategy(_ context.Context, name string) ([]model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionRecord
	for _, rec := range m.records {
		if rec.Strategy == name {
			out = append(out, rec)
		}
	}
	return out, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *memoryDAO) {
	t.Helper()

	modelsDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "ggml-tiny.en.bin"), []byte("model"), 0644))

	cfg := config.Default()
	cfg.ModelsDir = modelsDir
	cfg.Strategy.TempDir = t.TempDir()
	cfg.Strategy.RefinementChunkSecs = 1
	cfg.Strategy.RefinementWaitTimeout = strategy.Duration(time.Second)

	log := zap.NewNop()
	store := state.NewMemoryStore()
	loader, _ := testutil.CountingLoader(testutil.NewMockEngine().WithResponse("hello from the mock"))
	cache := engine.NewCache(loader, state.NewAccelView(store), log)
	reg := registry.New(modelsDir, log)
	warmer := state.NewWarmer(store, reg, cache, log)
	selector := strategy.NewSelector(cfg.Strategy, reg, store, cache, log)
	dao := &memoryDAO{}

	return NewPipeline(cfg, log, store, cache, warmer, selector, dao), dao
}

func feed(samples []float32) <-chan []float32 {
	source := make(chan []float32, 1)
	source <- samples
	close(source)
	return source
}

func TestRecordEndToEnd(t *testing.T) {
	pipeline, dao := newTestPipeline(t)
	output := filepath.Join(t.TempDir(), "recording.wav")

	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.1
	}

	result, err := pipeline.Record(context.Background(), feed(samples), output, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello from the mock", result.Text)
	assert.Equal(t, "fallback", result.StrategyUsed)

	_, err = os.Stat(output)
	assert.NoError(t, err)

	sessions, err := dao.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "fallback", sessions[0].Strategy)
	assert.Equal(t, "hello from the mock", sessions[0].Text)
	assert.Empty(t, sessions[0].ErrorMessage)
}

func TestRecordFailureIsPersisted(t *testing.T) {
	pipeline, dao := newTestPipeline(t)
	output := filepath.Join(t.TempDir(), "recording.wav")

	// An empty source never clears the empty-recording gate.
	empty := make(chan []float32)
	close(empty)

	_, err := pipeline.Record(context.Background(), empty, output, nil)
	require.Error(t, err)

	sessions, listErr := dao.List(context.Background(), 0)
	require.NoError(t, listErr)
	require.Len(t, sessions, 1)
	assert.NotEmpty(t, sessions[0].ErrorMessage)
}

func TestWarmThenModelStates(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	// tiny.en has no acceleration bundle, so warming is a no-op.
	require.NoError(t, pipeline.Warm(context.Background(), nil))

	states, err := pipeline.ModelStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}
