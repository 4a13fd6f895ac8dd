package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrzlen/memo-golang/pkg/audioio"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_PATH", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, audioio.DefaultConstraints(), cfg.Constraints())
	assert.Equal(t, 16000, cfg.OutputSampleRate)
	assert.Equal(t, 1, cfg.OutputChannels)
	assert.Equal(t, 1, cfg.Debugging)
	assert.Equal(t, "output", cfg.TakesDir)
	assert.Equal(t, ":8081", cfg.ListenAddr)
	assert.Empty(t, cfg.OpenAIAPIKey)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SAMPLE_RATE=44100\nCHANNELS=2\nNOISE_SUPPRESSION=true\nDEBUGGING=2\n"), 0644))
	t.Setenv("ENV_PATH", path)
	// godotenv never overrides, so the variables need cleaning up ourselves.
	for _, key := range []string{"SAMPLE_RATE", "CHANNELS", "NOISE_SUPPRESSION", "DEBUGGING"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), cfg.SampleRate)
	assert.Equal(t, uint32(2), cfg.Channels)
	assert.True(t, cfg.NoiseSuppression)
	assert.Equal(t, 2, cfg.Debugging)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ENV_PATH", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("CHANNELS", "6")

	_, err := Load()
	assert.Error(t, err)
}
