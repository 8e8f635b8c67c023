package audio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := []float32{0, 0.25, 0.5, -0.5, -0.25, 1, -1}

	require.NoError(t, WriteWAV(path, samples, 16000, 1))

	decoded, sampleRate, channels, err := ReadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, sampleRate)
	assert.Equal(t, 1, channels)
	require.Len(t, decoded, len(samples))
	for i := range samples {
		assert.InDelta(t, samples[i], decoded[i], 0.001, "sample %d", i)
	}
}

func TestWriteWAVClampsOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clipped.wav")
	require.NoError(t, WriteWAV(path, []float32{2.0, -3.0}, 16000, 1))

	decoded, _, _, err := ReadWAV(path)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.InDelta(t, 1.0, decoded[0], 0.001)
	assert.InDelta(t, -1.0, decoded[1], 0.001)
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file"), 0644))

	_, _, _, err := ReadWAV(path)
	assert.Error(t, err)
}

func TestReadWAVMissingFile(t *testing.T) {
	_, _, _, err := ReadWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
