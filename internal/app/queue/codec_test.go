package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	chunk := NewAudioChunk([]float32{0.1, -0.2, 0.3}, 16000, 1)

	payload, err := EncodeChunk(chunk)
	require.NoError(t, err)

	decoded, err := DecodeChunk(payload)
	require.NoError(t, err)
	assert.Equal(t, chunk.ID, decoded.ID)
	assert.Equal(t, chunk.Samples, decoded.Samples)
	assert.Equal(t, 16000, decoded.SampleRate)
	assert.Equal(t, 1, decoded.Channels)
}

func TestNewAudioChunkAssignsUniqueIDs(t *testing.T) {
	a := NewAudioChunk(nil, 16000, 1)
	b := NewAudioChunk(nil, 16000, 1)

	assert.NotEqual(t, a.ID, b.ID)
	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err)
}

func TestChunkDuration(t *testing.T) {
	chunk := NewAudioChunk(make([]float32, 32000), 16000, 2)
	assert.Equal(t, time.Second, chunk.Duration())

	empty := AudioChunk{}
	assert.Equal(t, time.Duration(0), empty.Duration())
}

func TestTranscriptRoundTrip(t *testing.T) {
	reply := Transcript{ID: uuid.New().String(), Text: "hello world", ProcessingTimeMs: 42}

	payload, err := EncodeTranscript(reply)
	require.NoError(t, err)

	decoded, err := DecodeTranscript(payload)
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)
}

func TestTranscriptCarriesBackendError(t *testing.T) {
	payload, err := EncodeTranscript(Transcript{ID: "abc", Error: "model crashed"})
	require.NoError(t, err)

	decoded, err := DecodeTranscript(payload)
	require.NoError(t, err)
	assert.Empty(t, decoded.Text)
	assert.Equal(t, "model crashed", decoded.Error)
}

func TestDecodeChunkRejectsGarbage(t *testing.T) {
	_, err := DecodeChunk([]byte("definitely not msgpack"))
	assert.Error(t, err)
}
