package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"speechpipe/internal/app/audio"
	"speechpipe/internal/app/model"
)

// RemoteEngine transcribes through the OpenAI audio API. It needs no local
// model file and no warm-up; useful when no local model is installed.
type RemoteEngine struct {
	client  *openai.Client
	tempDir string
}

// NewRemoteLoader returns a Loader backed by the OpenAI API. The descriptor's
// path is ignored; accel has no meaning for a remote engine.
func NewRemoteLoader(apiKey, tempDir string) Loader {
	return func(_ context.Context, _ model.Descriptor, _ bool) (Engine, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return &RemoteEngine{client: openai.NewClient(apiKey), tempDir: tempDir}, nil
	}
}

func (e *RemoteEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	wavPath := filepath.Join(e.tempDir, fmt.Sprintf("remote_%s.wav", uuid.New().String()))
	if err := audio.WriteWAV(wavPath, samples, sampleRate, 1); err != nil {
		return "", fmt.Errorf("failed to write inference input: %w", err)
	}
	defer os.Remove(wavPath)

	return e.TranscribeFile(ctx, wavPath)
}

func (e *RemoteEngine) TranscribeFile(ctx context.Context, path string) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("remote transcription failed: %w", err)
	}
	return resp.Text, nil
}
