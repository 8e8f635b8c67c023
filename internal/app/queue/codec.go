// Package queue implements the boundary to the external distributed
// transcription backend: audio chunks pushed to a request queue, transcripts
// pulled from per-request reply queues, correlated by generated ids and
// carried as compact MessagePack frames.
package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// AudioChunk is one window of PCM audio submitted for transcription.
type AudioChunk struct {
	ID         string    `msgpack:"id"`
	Samples    []float32 `msgpack:"samples"`
	SampleRate int       `msgpack:"sample_rate"`
	Channels   int       `msgpack:"channels"`
	Timestamp  time.Time `msgpack:"timestamp"`
}

// NewAudioChunk assigns a fresh correlation id to the given samples.
func NewAudioChunk(samples []float32, sampleRate, channels int) AudioChunk {
	return AudioChunk{
		ID:         uuid.New().String(),
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		Timestamp:  time.Now().UTC(),
	}
}

// Duration returns the audio length carried by the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Transcript is the backend's reply for one chunk: text or an error, never both.
type Transcript struct {
	ID               string `msgpack:"id"`
	Text             string `msgpack:"text"`
	Error            string `msgpack:"error,omitempty"`
	ProcessingTimeMs int64  `msgpack:"processing_time_ms,omitempty"`
}

func EncodeChunk(c AudioChunk) ([]byte, error) {
	return msgpack.Marshal(c)
}

func DecodeChunk(data []byte) (AudioChunk, error) {
	var c AudioChunk
	err := msgpack.Unmarshal(data, &c)
	return c, err
}

func EncodeTranscript(t Transcript) ([]byte, error) {
	return msgpack.Marshal(t)
}

func DecodeTranscript(data []byte) (Transcript, error) {
	var t Transcript
	err := msgpack.Unmarshal(data, &t)
	return t, err
}
