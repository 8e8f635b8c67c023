package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"speechpipe/internal/app/audio"
	"speechpipe/internal/app/model"
)

// WhisperCPPEngine runs inference through the whisper.cpp main binary.
type WhisperCPPEngine struct {
	binaryPath string
	modelPath  string
	accel      bool
	tempDir    string
	log        *zap.Logger
}

// NewWhisperCPPLoader returns a Loader that creates whisper.cpp engines.
// When accel is false the binary is invoked with the GPU path disabled.
func NewWhisperCPPLoader(binaryPath, tempDir string, log *zap.Logger) Loader {
	return func(_ context.Context, desc model.Descriptor, accel bool) (Engine, error) {
		if _, err := os.Stat(desc.Path); err != nil {
			return nil, fmt.Errorf("model file not readable: %w", err)
		}
		return &WhisperCPPEngine{
			binaryPath: binaryPath,
			modelPath:  desc.Path,
			accel:      accel,
			tempDir:    tempDir,
			log:        log,
		}, nil
	}
}

func (e *WhisperCPPEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	wavPath := filepath.Join(e.tempDir, fmt.Sprintf("inference_%s.wav", uuid.New().String()))
	if err := audio.WriteWAV(wavPath, samples, sampleRate, 1); err != nil {
		return "", fmt.Errorf("failed to write inference input: %w", err)
	}
	defer os.Remove(wavPath)

	return e.TranscribeFile(ctx, wavPath)
}

func (e *WhisperCPPEngine) TranscribeFile(ctx context.Context, path string) (string, error) {
	outputBase := filepath.Join(e.tempDir, fmt.Sprintf("out_%s", uuid.New().String()))

	args := []string{
		"-m", e.modelPath,
		"-f", path,
		"-otxt",
		"-of", outputBase,
		"-np",
	}
	if !e.accel {
		args = append(args, "-ng")
	}

	command := exec.CommandContext(ctx, e.binaryPath, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	e.log.Debug("running inference command",
		zap.String("model", e.modelPath),
		zap.String("input", path))

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("inference command failed: %w, stderr: %s", err, stderr.String())
	}

	outputPath := outputBase + ".txt"
	defer os.Remove(outputPath)

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to read inference output: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
