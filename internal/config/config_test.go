package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/scamshield/internal/stage"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_NoFileGivesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "gemini-2.0-flash", cfg.Models.Director.Model)
	assert.Equal(t, "output", cfg.Visual.OutputDir)
	assert.Equal(t, stage.DefaultMaxRetries, cfg.MaxRetries)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	data := `
log_level: debug
use_deep_research: true
platform: tiktok
models:
  director:
    model: gemini-2.5-pro
    temperature: 0.9
    max_tokens: 2048
visual:
  output_dir: /tmp/assets
  poll:
    interval: 5s
store:
  kind: kuzu
  path: sessions.kuzu
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scamshield.yaml"), []byte(data), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.UseDeepResearch)
	assert.Equal(t, "tiktok", cfg.Platform)
	assert.Equal(t, "gemini-2.5-pro", cfg.Models.Director.Model)
	assert.InDelta(t, 0.9, cfg.Models.Director.Temperature, 1e-6)
	assert.Equal(t, "gemini-2.0-flash", cfg.Models.Linguistic.Model)
	assert.Equal(t, "/tmp/assets", cfg.Visual.OutputDir)
	assert.Equal(t, 5*time.Second, cfg.Visual.Poll.Interval)
	assert.Equal(t, 600*time.Second, cfg.Visual.Poll.Timeout)
	assert.Equal(t, StoreKuzu, cfg.Store.Kind)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YMLWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scamshield.yml"), []byte("platform: facebook\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scamshield.yaml"), []byte("platform: tiktok\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "facebook", cfg.Platform)
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scamshield.yml"), []byte("models: [not, a, map"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"GEMINI_API_KEY":           "key-123",
		"RESEARCH_MODEL":           "gemini-2.5-flash",
		"VEO_MODEL":                "veo-3.1-generate-preview",
		"VISUAL_AUDIO_IMAGE_MODEL": "imagen",
		"VISUAL_AUDIO_OUTPUT_DIR":  "out",
		"USE_DEEP_RESEARCH":        "true",
		"SKIP_SENSITIVITY_CHECK":   "1",
		"LOG_LEVEL":                "warn",
		"DIRECTOR_MODEL":           "  ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "key-123", cfg.APIKey)
	assert.Equal(t, "gemini-2.5-flash", cfg.Models.Research.Model)
	assert.Equal(t, "gemini-2.0-flash", cfg.Models.Director.Model)
	assert.Equal(t, "veo-3.1-generate-preview", cfg.Visual.VideoModel)
	assert.Equal(t, "imagen", cfg.Visual.ImageModel)
	assert.Equal(t, "out", cfg.Visual.OutputDir)
	assert.Equal(t, "warn", cfg.LogLevel)

	oc := cfg.Orchestrator()
	assert.True(t, oc.UseDeepResearch)
	assert.True(t, oc.SkipSensitivityCheck)

	vc := cfg.VisualConfig()
	assert.Equal(t, "out", vc.OutputDir)
	assert.Equal(t, "veo-3.1-generate-preview", vc.VideoModel)
}

func TestApplyEnv_BadBool(t *testing.T) {
	err := Default().ApplyEnv(env(map[string]string{"USE_DEEP_RESEARCH": "sometimes"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "USE_DEEP_RESEARCH")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Store.Kind = "redis"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.MaxRetries = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("SOCIAL_PLATFORM", "facebook")
	t.Setenv("SKIP_SENSITIVITY_CHECK", "")

	cfg, err := LoadEnv(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "facebook", cfg.Platform)
	assert.Len(t, cfg.RunnerOptions(), 1)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.APIKey = "secret"
	cfg.Platform = "tiktok"
	cfg.Visual.Poll.Interval = 5 * time.Second

	require.NoError(t, cfg.Save(filepath.Join(dir, FileNames[0])))

	data, err := os.ReadFile(filepath.Join(dir, FileNames[0]))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	got, err := Load(dir)
	require.NoError(t, err)
	cfg.APIKey = ""
	assert.Equal(t, cfg, got)
}
