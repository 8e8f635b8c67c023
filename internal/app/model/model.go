package model

import (
	"time"
)

// State represents the acceleration warm-up state of a speech model.
// Transitions are monotonic forward, except Failed -> Warming on a manual retry.
type State string

const (
	StateNotDownloaded State = "not_downloaded"
	StateDownloaded    State = "downloaded"
	StateWarming       State = "warming"
	StateReady         State = "ready"
	StateFailed        State = "failed"
)

// StateInfo is the persisted per-model state record.
type StateInfo struct {
	ModelID    string    `json:"model_id"`
	State      State     `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	LastWarmed time.Time `json:"last_warmed,omitempty"`
}

// Descriptor describes a speech model found on disk.
type Descriptor struct {
	// ID is the canonical model id, e.g. "tiny.en" for ggml-tiny.en.bin
	ID string `json:"id"`
	// Path is the absolute path to the base model file
	Path string `json:"path"`
	// SizeBytes is the base model file size
	SizeBytes int64 `json:"size_bytes"`
	// HasAccel reports whether an acceleration bundle exists next to the base model
	HasAccel bool `json:"has_accel"`
}

// TranscriptionResult is the final output of a recording session.
type TranscriptionResult struct {
	Text            string        `json:"text"`
	ProcessingTime  time.Duration `json:"processing_time"`
	StrategyUsed    string        `json:"strategy_used"`
	ChunksProcessed int           `json:"chunks_processed"`
}

// SessionRecord is the persisted history row for a finished recording session.
type SessionRecord struct {
	ID           string    `json:"id"`
	Strategy     string    `json:"strategy"`
	StartedAt    time.Time `json:"started_at"`
	DurationSecs float64   `json:"duration_secs"`
	Chunks       int       `json:"chunks"`
	Text         string    `json:"text"`
	ErrorMessage string    `json:"error_message,omitempty"`
}
