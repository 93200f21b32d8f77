package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values come from an optional YAML file
// named by CONFIG_FILE, then from the environment (and .env), which wins.
type Config struct {
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIBaseURL     string        `yaml:"openai_base_url"`
	OpenAIModel       string        `yaml:"openai_model"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	Port          string `yaml:"port"`
	BaseDir       string `yaml:"base_dir"`
	StaticDir     string `yaml:"static_dir"`
	TempScriptDir string `yaml:"temp_script_dir"`

	RenderBackend        string `yaml:"render_backend"`
	ManimBinary          string `yaml:"manim_binary"`
	ManimImage           string `yaml:"manim_image"`
	MaxConcurrentRenders int64  `yaml:"max_concurrent_renders"`

	TaskRetention   time.Duration `yaml:"task_retention"`
	JanitorSchedule string        `yaml:"janitor_schedule"`

	FrontendURL string `yaml:"frontend_url"`
	RedisURL    string `yaml:"redis_url"`
	LogPath     string `yaml:"log_path"`
	LogLevel    string `yaml:"log_level"`
}

const (
	BackendExec   = "exec"
	BackendDocker = "docker"
)

// VideoDir is where finished videos are stored.
func (c Config) VideoDir() string {
	return filepath.Join(c.StaticDir, "videos")
}

// LoadConfig reads the configuration and fails if the model credential is missing.
func LoadConfig() (Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Config{
		OpenAIModel:          "gpt-4o-mini",
		GenerationTimeout:    90 * time.Second,
		Port:                 "8080",
		BaseDir:              ".",
		RenderBackend:        BackendExec,
		ManimBinary:          "manim",
		ManimImage:           "manimcommunity/manim:stable",
		MaxConcurrentRenders: 2,
		JanitorSchedule:      "@every 10m",
		LogLevel:             "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.OpenAIAPIKey == "" {
		return Config{}, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if cfg.RenderBackend != BackendExec && cfg.RenderBackend != BackendDocker {
		return Config{}, fmt.Errorf("RENDER_BACKEND must be %q or %q, got %q", BackendExec, BackendDocker, cfg.RenderBackend)
	}
	if cfg.MaxConcurrentRenders < 1 {
		return Config{}, fmt.Errorf("MAX_CONCURRENT_RENDERS must be at least 1")
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = filepath.Join(cfg.BaseDir, "static")
	}
	if cfg.TempScriptDir == "" {
		cfg.TempScriptDir = filepath.Join(cfg.BaseDir, "temp_scripts")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.Port, "PORT")
	setString(&cfg.BaseDir, "BASE_DIR")
	setString(&cfg.StaticDir, "STATIC_DIR")
	setString(&cfg.TempScriptDir, "TEMP_SCRIPT_DIR")
	setString(&cfg.RenderBackend, "RENDER_BACKEND")
	setString(&cfg.ManimBinary, "MANIM_BINARY")
	setString(&cfg.ManimImage, "MANIM_IMAGE")
	setString(&cfg.JanitorSchedule, "JANITOR_SCHEDULE")
	setString(&cfg.FrontendURL, "FRONTEND_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.LogPath, "LOG_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if err := setDuration(&cfg.GenerationTimeout, "GENERATION_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&cfg.TaskRetention, "TASK_RETENTION"); err != nil {
		return err
	}
	if v := os.Getenv("MAX_CONCURRENT_RENDERS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_RENDERS: %w", err)
		}
		cfg.MaxConcurrentRenders = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

// SetupDirectories creates the static, video and scratch directories.
func (c Config) SetupDirectories() error {
	for _, dir := range []string{c.StaticDir, c.VideoDir(), c.TempScriptDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
