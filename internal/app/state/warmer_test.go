package state_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"speechpipe/internal/app/engine"
	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
	"speechpipe/internal/app/registry"
	"speechpipe/internal/app/state"
	"speechpipe/internal/app/testutil"
)

// writeModelFiles lays out a models directory with acceleration bundles.
func writeModelFiles(t *testing.T, dir string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-"+id+".bin"), []byte("model data"), 0644))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "ggml-"+id+"-encoder.mlmodelc"), 0755))
	}
}

func newWarmer(t *testing.T, dir string, loader engine.Loader) (*state.Warmer, state.Store) {
	t.Helper()
	store := state.NewMemoryStore()
	reg := registry.New(dir, zap.NewNop())
	cache := engine.NewCache(loader, state.NewAccelView(store), zap.NewNop())
	return state.NewWarmer(store, reg, cache, zap.NewNop()), store
}

func TestWarmModelsMarksReady(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "tiny.en", "base.en")

	loader, counter := testutil.CountingLoader(testutil.NewMockEngine())
	warmer, store := newWarmer(t, dir, loader)

	require.NoError(t, warmer.WarmModels(context.Background()))

	for _, id := range []string{"tiny.en", "base.en"} {
		info, err := store.GetState(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.StateReady, info.State)
		assert.False(t, info.LastWarmed.IsZero())
	}
	assert.Equal(t, 2, counter.Total())
}

func TestWarmModelsSkipsAlreadyReady(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "tiny.en")

	loader, counter := testutil.CountingLoader(testutil.NewMockEngine())
	warmer, store := newWarmer(t, dir, loader)
	require.NoError(t, store.SetState(context.Background(), "tiny.en", model.StateReady, ""))

	require.NoError(t, warmer.WarmModels(context.Background()))
	assert.Equal(t, 0, counter.Total(), "ready models must not warm again")
}

func TestWarmModelsFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "tiny.en", "base.en")

	loader := func(ctx context.Context, desc model.Descriptor, accel bool) (engine.Engine, error) {
		if desc.ID == "base.en" {
			return nil, apperrors.New("compile blew up")
		}
		return testutil.NewMockEngine(), nil
	}
	warmer, store := newWarmer(t, dir, loader)

	require.NoError(t, warmer.WarmModels(context.Background()))

	good, err := store.GetState(context.Background(), "tiny.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateReady, good.State)

	bad, err := store.GetState(context.Background(), "base.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, bad.State)
	assert.Contains(t, bad.Reason, "base.en")
}

func TestWarmProgressCallback(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "tiny.en")

	loader, _ := testutil.CountingLoader(testutil.NewMockEngine())
	warmer, _ := newWarmer(t, dir, loader)

	var settled atomic.Int32
	warmer.OnProgress = func(modelID string, st model.State) {
		assert.Equal(t, "tiny.en", modelID)
		assert.Equal(t, model.StateReady, st)
		settled.Add(1)
	}
	require.NoError(t, warmer.WarmModels(context.Background()))
	assert.Equal(t, int32(1), settled.Load())
}

func TestRetryFailedRequiresFailedState(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "tiny.en")

	loader, _ := testutil.CountingLoader(testutil.NewMockEngine())
	warmer, store := newWarmer(t, dir, loader)

	require.NoError(t, store.SetState(context.Background(), "tiny.en", model.StateReady, ""))
	assert.Error(t, warmer.RetryFailed(context.Background(), "tiny.en"))

	require.NoError(t, store.SetState(context.Background(), "tiny.en", model.StateFailed, "boom"))
	require.NoError(t, warmer.RetryFailed(context.Background(), "tiny.en"))

	info, err := store.GetState(context.Background(), "tiny.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateDownloaded, info.State)
}

func TestDiscoverWarmableFiltersPlainModels(t *testing.T) {
	dir := t.TempDir()
	writeModelFiles(t, dir, "tiny.en")
	// base.en has no acceleration bundle.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ggml-base.en.bin"), []byte("model data"), 0644))

	loader, _ := testutil.CountingLoader(testutil.NewMockEngine())
	warmer, _ := newWarmer(t, dir, loader)

	warmable, err := warmer.DiscoverWarmable()
	require.NoError(t, err)
	require.Len(t, warmable, 1)
	assert.Equal(t, "tiny.en", warmable[0].ID)
}
