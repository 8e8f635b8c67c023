// Package strategy implements the transcription strategies that drive a
// recording session end to end: capture into a staging file, live partial
// results, and the finish path that promotes the recording and returns the
// final transcript.
package strategy

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

// Duration is a time.Duration that unmarshals from YAML strings like "15s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return apperrors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Strategy is one way of turning a recording session into text. A strategy
// instance owns exactly one session and is not reusable after finish or
// cancel.
type Strategy interface {
	// Name identifies the strategy in results and logs.
	Name() string

	// StartRecording opens the session and its staging file. outputPath is
	// the canonical path the recording is promoted to on finish.
	StartRecording(ctx context.Context, outputPath string) error

	// ProcessSamples appends captured samples to the session.
	ProcessSamples(ctx context.Context, samples []float32) error

	// FinishRecording stops capture, promotes the recording and returns the
	// final transcript. Calling it twice returns ErrSessionFinished.
	FinishRecording(ctx context.Context) (*model.TranscriptionResult, error)

	// Cancel abandons the session and removes the staging file.
	Cancel(ctx context.Context) error

	// PartialResults streams live partial transcripts. The channel is closed
	// when the session ends. Strategies without live output return nil.
	PartialResults() <-chan string
}

// Config carries the tunables shared by all strategies.
type Config struct {
	// ForceStrategy overrides automatic selection ("progressive", "fallback",
	// "external"). Empty means select automatically.
	ForceStrategy string `yaml:"force_strategy" validate:"omitempty,oneof=progressive fallback external"`

	SampleRate int `yaml:"sample_rate" validate:"required,min=8000,max=48000"`
	Channels   int `yaml:"channels" validate:"required,min=1,max=2"`

	// RefinementChunkSecs is the window length the progressive strategy cuts
	// the stream into for accurate-model refinement.
	RefinementChunkSecs int `yaml:"refinement_chunk_secs" validate:"required,min=1,max=120"`

	// EnableChunking lets the fallback strategy split recordings longer than
	// ChunkingThresholdSecs into refinement-sized windows instead of one pass.
	EnableChunking        bool `yaml:"enable_chunking"`
	ChunkingThresholdSecs int  `yaml:"chunking_threshold_secs" validate:"min=0,max=3600"`

	// RefinementWaitTimeout bounds how long finish waits for outstanding
	// refinement jobs before substituting fast-model text.
	RefinementWaitTimeout Duration `yaml:"refinement_wait_timeout" validate:"required"`

	// TempDir holds staging files while a session is live.
	TempDir string `yaml:"temp_dir" validate:"required"`

	// External configures the distributed backend used by the external
	// strategy.
	External ExternalConfig `yaml:"external"`
}

// ExternalConfig points at the redis queue of the distributed backend.
type ExternalConfig struct {
	Enabled     bool     `yaml:"enabled"`
	RedisAddr   string   `yaml:"redis_addr" validate:"required_with=Enabled"`
	PullTimeout Duration `yaml:"pull_timeout"`
}

// DefaultConfig returns the settings used when no config file overrides them.
func DefaultConfig() Config {
	return Config{
		SampleRate:            16000,
		Channels:              1,
		RefinementChunkSecs:   10,
		EnableChunking:        true,
		ChunkingThresholdSecs: 60,
		RefinementWaitTimeout: Duration(15 * time.Second),
		TempDir:               "/tmp/speechpipe",
		External: ExternalConfig{
			RedisAddr:   "localhost:6379",
			PullTimeout: Duration(60 * time.Second),
		},
	}
}

// Validate checks the config against its declared constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return apperrors.Wrapf(err, "invalid strategy config")
	}
	return nil
}

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	SessionCreated SessionState = iota
	SessionRecording
	SessionFinishing
	SessionDone
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionRecording:
		return "recording"
	case SessionFinishing:
		return "finishing"
	case SessionDone:
		return "done"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// session is the lifecycle bookkeeping embedded by every strategy. Callers
// hold the strategy's own mutex around these helpers.
type session struct {
	id         string
	state      SessionState
	outputPath string
	startedAt  time.Time
}

// beginRecording moves Created -> Recording.
func (s *session) beginRecording(outputPath string) error {
	if s.state != SessionCreated {
		return apperrors.Newf("session %s already started (state %s)", s.id, s.state)
	}
	s.state = SessionRecording
	s.outputPath = outputPath
	s.startedAt = time.Now()
	return nil
}

// beginFinishing moves Recording -> Finishing, rejecting double finish.
func (s *session) beginFinishing() error {
	switch s.state {
	case SessionRecording:
		s.state = SessionFinishing
		return nil
	case SessionDone, SessionFinishing, SessionFailed:
		return apperrors.Wrapf(apperrors.ErrSessionFinished, "session %s is %s", s.id, s.state)
	default:
		return apperrors.Wrapf(apperrors.ErrNotRecording, "session %s is %s", s.id, s.state)
	}
}

// requireRecording guards sample ingestion.
func (s *session) requireRecording() error {
	if s.state != SessionRecording {
		return apperrors.Wrapf(apperrors.ErrNotRecording, "session %s is %s", s.id, s.state)
	}
	return nil
}
