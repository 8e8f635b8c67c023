// Package engine defines the inference engine contract and the process-wide
// engine cache. Engines are opaque: the pipeline only needs transcribe(samples).
package engine

import (
	"context"

	"speechpipe/internal/app/model"
)

// Engine is a loaded speech model ready to run inference. Implementations
// must be safe for concurrent use; the cache hands the same instance to every
// caller for the process lifetime.
type Engine interface {
	// Transcribe runs inference on raw PCM samples at the given sample rate.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)

	// TranscribeFile runs inference on a WAV file.
	TranscribeFile(ctx context.Context, path string) (string, error)
}

// Loader creates an Engine for a model. accel reports whether the model's
// acceleration backend is warmed and should be used; loaders fall back to the
// plain path when it is false.
type Loader func(ctx context.Context, desc model.Descriptor, accel bool) (Engine, error)
