package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "speechpipe/internal/app/errors"
)

func newStaging(t *testing.T, dir string) *StagingFile {
	t.Helper()
	s, err := NewStagingFile(dir, "session-1", 16000, 1, zap.NewNop())
	require.NoError(t, err)
	return s
}

// oneSecond is enough audio to clear the empty-recording gate.
func oneSecond() []float32 {
	samples := make([]float32, 16000)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func TestPromoteMovesRecordingAtomically(t *testing.T) {
	dir := t.TempDir()
	s := newStaging(t, dir)
	canonical := filepath.Join(dir, "recording.wav")

	require.NoError(t, s.Append(oneSecond()))
	require.NoError(t, s.Finalize())

	size, err := s.Promote(canonical)
	require.NoError(t, err)
	assert.Greater(t, size, int64(MinValidWAVBytes))

	info, err := os.Stat(canonical)
	require.NoError(t, err)
	assert.Equal(t, size, info.Size())

	// Staging and the intermediate file are both gone.
	_, err = os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(canonical + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestPromoteRejectsEmptyRecording(t *testing.T) {
	dir := t.TempDir()
	s := newStaging(t, dir)
	canonical := filepath.Join(dir, "recording.wav")

	// Header only, no frames appended.
	require.NoError(t, s.Finalize())

	_, err := s.Promote(canonical)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrEmptyRecording)

	// The canonical path must stay absent on rejection.
	_, err = os.Stat(canonical)
	assert.True(t, os.IsNotExist(err))
}

func TestPromoteRequiresFinalize(t *testing.T) {
	dir := t.TempDir()
	s := newStaging(t, dir)

	require.NoError(t, s.Append(oneSecond()))
	_, err := s.Promote(filepath.Join(dir, "recording.wav"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStagingIO)
}

func TestAppendAfterFinalizeFails(t *testing.T) {
	s := newStaging(t, t.TempDir())
	require.NoError(t, s.Finalize())
	assert.Error(t, s.Append(oneSecond()))
}

func TestDurationTracksAppends(t *testing.T) {
	s := newStaging(t, t.TempDir())
	defer s.Discard()

	require.NoError(t, s.Append(oneSecond()))
	require.NoError(t, s.Append(oneSecond()))
	assert.Equal(t, 32000, s.Samples())
	assert.Equal(t, float64(2), s.Duration().Seconds())
}

func TestDiscardRemovesStagingFile(t *testing.T) {
	s := newStaging(t, t.TempDir())
	require.NoError(t, s.Append(oneSecond()))

	s.Discard()
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))

	// Idempotent.
	s.Discard()
}
