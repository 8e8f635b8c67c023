package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"go.uber.org/zap"

	apperrors "speechpipe/internal/app/errors"
)

// MinValidWAVBytes is the smallest staging file accepted for promotion: the
// 44-byte RIFF header plus enough frames to carry actual speech. A file at or
// below this size is an empty recording.
const MinValidWAVBytes = 1024

// StagingFile accumulates audio for one recording session and later promotes
// it to the canonical recording path. It is owned exclusively by one Strategy
// instance and never shared across sessions.
type StagingFile struct {
	mu         sync.Mutex
	path       string
	f          *os.File
	enc        *wav.Encoder
	sampleRate int
	channels   int
	samples    int
	finalized  bool
	discarded  bool
	log        *zap.Logger
}

// NewStagingFile creates the staging WAV in dir, named by session id.
func NewStagingFile(dir, sessionID string, sampleRate, channels int, log *zap.Logger) (*StagingFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStagingIO, fmt.Sprintf("failed to create staging directory: %v", err))
	}

	path := filepath.Join(dir, fmt.Sprintf("staging_%s.wav", sessionID))
	f, err := os.Create(path)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrStagingIO, "failed to create staging file: %v", err)
	}

	return &StagingFile{
		path:       path,
		f:          f,
		enc:        wav.NewEncoder(f, sampleRate, bitDepth, channels, pcmFormat),
		sampleRate: sampleRate,
		channels:   channels,
		log:        log,
	}, nil
}

// Path returns the staging file path.
func (s *StagingFile) Path() string {
	return s.path
}

// Append writes a chunk of samples to the staging file.
func (s *StagingFile) Append(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized || s.discarded {
		return apperrors.Wrapf(apperrors.ErrStagingIO, "staging file %s is closed", s.path)
	}
	if err := s.enc.Write(toIntBuffer(samples, s.sampleRate, s.channels)); err != nil {
		return apperrors.Wrapf(apperrors.ErrStagingIO, "failed to append samples: %v", err)
	}
	s.samples += len(samples)
	return nil
}

// Samples returns the total sample count written so far.
func (s *StagingFile) Samples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Duration returns the recorded duration written so far.
func (s *StagingFile) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampleRate == 0 || s.channels == 0 {
		return 0
	}
	frames := s.samples / s.channels
	return time.Duration(frames) * time.Second / time.Duration(s.sampleRate)
}

// Finalize closes the encoder, fixing up the WAV header, and syncs to disk.
// No further appends are accepted.
func (s *StagingFile) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return apperrors.Wrapf(apperrors.ErrStagingIO, "staging file %s was discarded", s.path)
	}
	if s.finalized {
		return nil
	}
	if err := s.enc.Close(); err != nil {
		return apperrors.Wrapf(apperrors.ErrStagingIO, "failed to finalize staging file: %v", err)
	}
	if err := s.f.Sync(); err != nil {
		return apperrors.Wrapf(apperrors.ErrStagingIO, "failed to sync staging file: %v", err)
	}
	if err := s.f.Close(); err != nil {
		return apperrors.Wrapf(apperrors.ErrStagingIO, "failed to close staging file: %v", err)
	}
	s.finalized = true
	return nil
}

// Promote validates the finalized staging file and moves its content to the
// canonical path with write-then-atomic-replace semantics: the canonical path
// is never visible partially written, and on any failure it is left absent or
// unchanged. On success the staging file is deleted and the canonical byte
// count is returned.
func (s *StagingFile) Promote(canonicalPath string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.finalized {
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO, "staging file %s not finalized before promotion", s.path)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO, "failed to stat staging file: %v", err)
	}
	if info.Size() <= MinValidWAVBytes {
		return 0, apperrors.Wrapf(apperrors.ErrEmptyRecording,
			"staging file holds %d bytes, need more than %d", info.Size(), MinValidWAVBytes)
	}

	partial := canonicalPath + ".partial"
	written, err := copyFile(s.path, partial)
	if err != nil {
		os.Remove(partial)
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO, "failed to copy staging to %s: %v", partial, err)
	}
	if written != info.Size() {
		os.Remove(partial)
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO,
			"short copy: wrote %d of %d bytes", written, info.Size())
	}

	if err := os.Rename(partial, canonicalPath); err != nil {
		os.Remove(partial)
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO, "failed to promote recording: %v", err)
	}

	canonical, err := os.Stat(canonicalPath)
	if err != nil {
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO, "failed to verify canonical recording: %v", err)
	}
	if canonical.Size() != info.Size() {
		return 0, apperrors.Wrapf(apperrors.ErrStagingIO,
			"canonical recording holds %d bytes, staging held %d", canonical.Size(), info.Size())
	}

	if err := os.Remove(s.path); err != nil {
		s.log.Warn("failed to remove staging file after promotion",
			zap.String("path", s.path), zap.Error(err))
	}
	s.discarded = true
	return canonical.Size(), nil
}

// Discard removes the staging file. Safe to call on every exit path; the
// first call wins.
func (s *StagingFile) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.discarded {
		return
	}
	if !s.finalized {
		s.enc.Close()
		s.f.Close()
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("failed to remove staging file", zap.String("path", s.path), zap.Error(err))
	}
	s.discarded = true
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, in)
	if err != nil {
		out.Close()
		return written, err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return written, err
	}
	return written, out.Close()
}
