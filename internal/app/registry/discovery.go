// Package registry discovers speech models on disk and pairs each base model
// with its optional acceleration bundle.
package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	apperrors "speechpipe/internal/app/errors"
	"speechpipe/internal/app/model"
)

const (
	modelPrefix = "ggml-"
	modelSuffix = ".bin"
	accelSuffix = "-encoder.mlmodelc"
)

// Registry scans a models directory. Discovery is restartable: every call
// re-reads the directory so newly installed models are picked up.
type Registry struct {
	modelsDir string
	log       *zap.Logger
}

func New(modelsDir string, log *zap.Logger) *Registry {
	return &Registry{modelsDir: modelsDir, log: log}
}

// ModelsDir returns the directory this registry scans.
func (r *Registry) ModelsDir() string {
	return r.modelsDir
}

// Discover returns all base models found in the models directory, sorted by
// file size ascending. Models the installer has not finished writing (zero
// bytes) are skipped.
func (r *Registry) Discover() ([]model.Descriptor, error) {
	entries, err := os.ReadDir(r.modelsDir)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to scan models directory %s", r.modelsDir)
	}

	descriptors := make([]model.Descriptor, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, modelPrefix) || !strings.HasSuffix(name, modelSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			r.log.Warn("skipping unreadable model file", zap.String("file", name), zap.Error(err))
			continue
		}
		if info.Size() == 0 {
			r.log.Warn("skipping zero-byte model file", zap.String("file", name))
			continue
		}

		path := filepath.Join(r.modelsDir, name)
		descriptors = append(descriptors, model.Descriptor{
			ID:        ModelID(path),
			Path:      path,
			SizeBytes: info.Size(),
			HasAccel:  hasAccelBundle(path),
		})
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].SizeBytes < descriptors[j].SizeBytes
	})

	return descriptors, nil
}

// Find returns the descriptor for the given model id.
func (r *Registry) Find(id string) (model.Descriptor, error) {
	descriptors, err := r.Discover()
	if err != nil {
		return model.Descriptor{}, err
	}
	for _, d := range descriptors {
		if d.ID == id {
			return d, nil
		}
	}
	return model.Descriptor{}, apperrors.Wrapf(apperrors.ErrModelNotFound, "model %q not in %s", id, r.modelsDir)
}

// ModelID derives the canonical model id from a model file path,
// e.g. /models/ggml-tiny.en.bin -> "tiny.en".
func ModelID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, modelSuffix)
	return strings.TrimPrefix(base, modelPrefix)
}

// AccelBundlePath returns the expected acceleration bundle path for a model,
// e.g. /models/ggml-tiny.en.bin -> /models/ggml-tiny.en-encoder.mlmodelc.
func AccelBundlePath(modelPath string) string {
	stem := strings.TrimSuffix(filepath.Base(modelPath), modelSuffix)
	return filepath.Join(filepath.Dir(modelPath), stem+accelSuffix)
}

func hasAccelBundle(modelPath string) bool {
	_, err := os.Stat(AccelBundlePath(modelPath))
	return err == nil
}
