// Package config loads scamshield.yml and the environment overrides that
// select models, output locations and pipeline switches.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dusk-indust/scamshield/internal/orchestrator"
	"github.com/dusk-indust/scamshield/internal/stage"
	"github.com/dusk-indust/scamshield/internal/visual"
)

// FileNames are tried in order by Load.
var FileNames = []string{"scamshield.yml", "scamshield.yaml"}

// Store kinds.
const (
	StoreMem  = "mem"
	StoreFile = "file"
	StoreKuzu = "kuzu"
)

// Config holds project-level settings.
type Config struct {
	// APIKey is read from GEMINI_API_KEY only and never from a file.
	APIKey string `yaml:"-"`

	LogLevel    string `yaml:"log_level,omitempty"`
	Development bool   `yaml:"development,omitempty"`

	UseDeepResearch      bool   `yaml:"use_deep_research,omitempty"`
	SkipSensitivityCheck bool   `yaml:"skip_sensitivity_check,omitempty"`
	Platform             string `yaml:"platform,omitempty"`
	MaxRetries           int    `yaml:"max_retries,omitempty"`

	Models       stage.Models `yaml:"models"`
	ResearchPoll Poll         `yaml:"research_poll"`
	Visual       Visual       `yaml:"visual"`
	Store        Store        `yaml:"store"`
}

// Poll bounds a long-running job.
type Poll struct {
	Interval time.Duration `yaml:"interval,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// Visual configures the visual_assets stage.
type Visual struct {
	ImageModel string `yaml:"image_model,omitempty"`
	VideoModel string `yaml:"video_model,omitempty"`
	OutputDir  string `yaml:"output_dir,omitempty"`
	Poll       Poll   `yaml:"poll"`
	Parallel   int    `yaml:"parallel,omitempty"`
}

// Store selects the session store.
type Store struct {
	Kind string `yaml:"kind,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// Default returns the stock configuration.
func Default() *Config {
	v := visual.DefaultConfig()
	return &Config{
		LogLevel:   "info",
		Platform:   "instagram",
		MaxRetries: stage.DefaultMaxRetries,
		Models:     stage.DefaultModels(),
		ResearchPoll: Poll{
			Interval: 10 * time.Second,
			Timeout:  600 * time.Second,
		},
		Visual: Visual{
			ImageModel: v.ImageModel,
			VideoModel: v.VideoModel,
			OutputDir:  v.OutputDir,
			Poll:       Poll{Interval: v.PollInterval, Timeout: v.PollTimeout},
			Parallel:   v.Parallel,
		},
		Store: Store{Kind: StoreFile, Path: filepath.Join(".scamshield", "sessions")},
	}
}

// Load reads scamshield.yml or scamshield.yaml from dir over the defaults.
// A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		break
	}
	return cfg, nil
}

// envString maps environment variables to string fields.
func (c *Config) envString() map[string]*string {
	return map[string]*string{
		"GEMINI_API_KEY":           &c.APIKey,
		"LOG_LEVEL":                &c.LogLevel,
		"RESEARCH_MODEL":           &c.Models.Research.Model,
		"DEEP_RESEARCH_AGENT":      &c.Models.DeepResearchAgent,
		"DIRECTOR_MODEL":           &c.Models.Director.Model,
		"LINGUISTIC_MODEL":         &c.Models.Linguistic.Model,
		"SENSITIVITY_MODEL":        &c.Models.Sensitivity.Model,
		"SOCIAL_MODEL":             &c.Models.Social.Model,
		"VISUAL_AUDIO_MODEL":       &c.Models.Visual.Model,
		"VISUAL_AUDIO_IMAGE_MODEL": &c.Visual.ImageModel,
		"VEO_MODEL":                &c.Visual.VideoModel,
		"VISUAL_AUDIO_OUTPUT_DIR":  &c.Visual.OutputDir,
		"SOCIAL_PLATFORM":          &c.Platform,
	}
}

// ApplyEnv overrides fields from getenv. Unset or blank variables leave the
// field alone.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	for key, field := range c.envString() {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*field = v
		}
	}
	for key, field := range map[string]*bool{
		"USE_DEEP_RESEARCH":      &c.UseDeepResearch,
		"SKIP_SENSITIVITY_CHECK": &c.SkipSensitivityCheck,
	} {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*field = b
	}
	return nil
}

// LoadEnv is Load followed by ApplyEnv over the process environment.
func LoadEnv(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values the pipeline cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Kind {
	case StoreMem, StoreFile, StoreKuzu:
	default:
		return fmt.Errorf("config: unknown store kind %q (want mem, file or kuzu)", c.Store.Kind)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must not be negative")
	}
	if c.Visual.Parallel < 0 {
		return fmt.Errorf("config: visual.parallel must not be negative")
	}
	return nil
}

// Orchestrator returns the orchestrator switches.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		UseDeepResearch:      c.UseDeepResearch,
		SkipSensitivityCheck: c.SkipSensitivityCheck,
		Platform:             c.Platform,
	}
}

// VisualConfig returns the visual pipeline settings. Zero values fall back
// to visual.DefaultConfig inside visual.New.
func (c *Config) VisualConfig() visual.Config {
	return visual.Config{
		ImageModel:   c.Visual.ImageModel,
		VideoModel:   c.Visual.VideoModel,
		OutputDir:    c.Visual.OutputDir,
		PollInterval: c.Visual.Poll.Interval,
		PollTimeout:  c.Visual.Poll.Timeout,
		Parallel:     c.Visual.Parallel,
	}
}

// RunnerOptions returns the stage runner options derived from the config.
// Streaming is added by the caller, which owns the backend.
func (c *Config) RunnerOptions() []stage.Option {
	return []stage.Option{stage.WithMaxRetries(c.MaxRetries)}
}

// Save writes c to path as YAML. The API key is never written.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
