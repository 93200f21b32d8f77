package platform

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"CONFIG_FILE", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "GENERATION_TIMEOUT",
	"PORT", "BASE_DIR", "STATIC_DIR", "TEMP_SCRIPT_DIR", "RENDER_BACKEND", "MANIM_BINARY",
	"MANIM_IMAGE", "MAX_CONCURRENT_RENDERS", "TASK_RETENTION", "JANITOR_SCHEDULE",
	"FRONTEND_URL", "REDIS_URL", "LOG_PATH", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
}

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BASE_DIR", "/srv/visium")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, 90*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, BackendExec, cfg.RenderBackend)
	assert.Equal(t, int64(2), cfg.MaxConcurrentRenders)
	assert.Equal(t, filepath.Join("/srv/visium", "static"), cfg.StaticDir)
	assert.Equal(t, filepath.Join("/srv/visium", "static", "videos"), cfg.VideoDir())
	assert.Equal(t, filepath.Join("/srv/visium", "temp_scripts"), cfg.TempScriptDir)
	assert.Zero(t, cfg.TaskRetention)
}

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "visium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openai_api_key: sk-from-file
openai_model: gpt-4o
port: "9000"
render_backend: docker
task_retention: 24h
max_concurrent_renders: 6
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.OpenAIAPIKey)
	assert.Equal(t, "gpt-4o", cfg.OpenAIModel)
	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, BackendDocker, cfg.RenderBackend)
	assert.Equal(t, 24*time.Hour, cfg.TaskRetention)
	assert.Equal(t, int64(6), cfg.MaxConcurrentRenders)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	t.Setenv("RENDER_BACKEND", "cloud")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("RENDER_BACKEND", "")
	t.Setenv("GENERATION_TIMEOUT", "soon")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("GENERATION_TIMEOUT", "")
	t.Setenv("MAX_CONCURRENT_RENDERS", "0")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestSetupDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		StaticDir:     filepath.Join(root, "static"),
		TempScriptDir: filepath.Join(root, "temp_scripts"),
	}
	require.NoError(t, cfg.SetupDirectories())
	require.NoError(t, cfg.SetupDirectories())

	for _, dir := range []string{cfg.StaticDir, cfg.VideoDir(), cfg.TempScriptDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(path, "debug")
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	_, err = NewLogger("", "loud")
	assert.Error(t, err)
}
