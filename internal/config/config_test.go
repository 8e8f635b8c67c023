package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.StateBackend, cfg.StateBackend)
	assert.Equal(t, def.Strategy.SampleRate, cfg.Strategy.SampleRate)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models_dir: /opt/models
state_backend: memory
strategy:
  sample_rate: 44100
  channels: 2
  refinement_chunk_secs: 5
  refinement_wait_timeout: 30s
  temp_dir: /tmp/staging
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/models", cfg.ModelsDir)
	assert.Equal(t, "memory", cfg.StateBackend)
	assert.Equal(t, 44100, cfg.Strategy.SampleRate)
	assert.Equal(t, 2, cfg.Strategy.Channels)
	assert.Equal(t, 30*time.Second, cfg.Strategy.RefinementWaitTimeout.Std())
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("state_backend: etcd\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidStrategyConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
strategy:
  force_strategy: telepathy
`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestGetAPIKeysValidatesFormat(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "bogus")
	_, err := GetAPIKeys()
	assert.Error(t, err)

	t.Setenv("OPENAI_API_KEY", "sk-0123456789abcdef0123456789abcdef")
	keys, err := GetAPIKeys()
	require.NoError(t, err)
	assert.NotEmpty(t, keys.OpenAI)
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("SPEECHPIPE_UNSET_KEY", "")
	assert.Equal(t, "fallback", Getenv("SPEECHPIPE_UNSET_KEY", "fallback"))

	t.Setenv("SPEECHPIPE_SET_KEY", "value")
	assert.Equal(t, "value", Getenv("SPEECHPIPE_SET_KEY", "fallback"))
}
