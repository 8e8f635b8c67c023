package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechpipe/internal/app/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGetStateUnknownModel(t *testing.T) {
	store := newTestStore(t)

	info, err := store.GetState(context.Background(), "tiny.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateNotDownloaded, info.State)
	assert.Equal(t, "tiny.en", info.ModelID)
}

func TestSetStateRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetState(ctx, "tiny.en", model.StateWarming, ""))
	info, err := store.GetState(ctx, "tiny.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateWarming, info.State)
	assert.True(t, info.LastWarmed.IsZero())

	require.NoError(t, store.SetState(ctx, "tiny.en", model.StateReady, ""))
	info, err = store.GetState(ctx, "tiny.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateReady, info.State)
	assert.False(t, info.LastWarmed.IsZero())
}

func TestSetStateFailedKeepsLastWarmed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetState(ctx, "base.en", model.StateReady, ""))
	ready, err := store.GetState(ctx, "base.en")
	require.NoError(t, err)

	require.NoError(t, store.SetState(ctx, "base.en", model.StateFailed, "compile failed"))
	failed, err := store.GetState(ctx, "base.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, failed.State)
	assert.Equal(t, "compile failed", failed.Reason)
	assert.Equal(t, ready.LastWarmed.Unix(), failed.LastWarmed.Unix())
}

func TestStateSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SetState(ctx, "small.en", model.StateReady, ""))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.GetState(ctx, "small.en")
	require.NoError(t, err)
	assert.Equal(t, model.StateReady, info.State)
}

func TestListOrdersByModelID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetState(ctx, "tiny.en", model.StateReady, ""))
	require.NoError(t, store.SetState(ctx, "base.en", model.StateWarming, ""))

	states, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, "base.en", states[0].ModelID)
	assert.Equal(t, "tiny.en", states[1].ModelID)
}
