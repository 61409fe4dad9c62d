package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string   `yaml:"listen_addr"`
	APIKeys     []string `yaml:"api_keys"`
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`

	BackendURL    string        `yaml:"backend_url"`
	BackendAPIKey string        `yaml:"backend_api_key"`
	BackendRPS    int           `yaml:"backend_rps"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`

	DBPath      string `yaml:"db_path"`
	DownloadDir string `yaml:"download_dir"`
	WebhookURL  string `yaml:"webhook_url"`
	SubmitRPS   int    `yaml:"submit_rps"`

	BadgeInterval   time.Duration `yaml:"badge_interval"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	RefreshDebounce time.Duration `yaml:"refresh_debounce"`
	SuccessGrace    time.Duration `yaml:"success_grace"`
	FailureGrace    time.Duration `yaml:"failure_grace"`
	PageSize        int           `yaml:"page_size"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:      ":8090",
		LogLevel:        "info",
		BackendRPS:      10,
		ReadyTimeout:    time.Minute,
		DBPath:          "reportwatch.db",
		DownloadDir:     "downloads",
		SubmitRPS:       2,
		BadgeInterval:   10 * time.Second,
		MonitorInterval: 2 * time.Second,
		RefreshDebounce: 500 * time.Millisecond,
		SuccessGrace:    3 * time.Second,
		FailureGrace:    2 * time.Second,
		PageSize:        10,
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then REPORTWATCH_* environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ListenAddr = getEnv("REPORTWATCH_LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnv("REPORTWATCH_LOG_LEVEL", cfg.LogLevel)
	cfg.BackendURL = getEnv("REPORTWATCH_BACKEND_URL", cfg.BackendURL)
	cfg.BackendAPIKey = getEnv("REPORTWATCH_BACKEND_API_KEY", cfg.BackendAPIKey)
	cfg.DBPath = getEnv("REPORTWATCH_DB_PATH", cfg.DBPath)
	cfg.DownloadDir = getEnv("REPORTWATCH_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.WebhookURL = getEnv("REPORTWATCH_WEBHOOK_URL", cfg.WebhookURL)
	cfg.APIKeys = getEnvList("REPORTWATCH_API_KEYS", cfg.APIKeys)
	cfg.CORSOrigins = getEnvList("REPORTWATCH_CORS_ORIGINS", cfg.CORSOrigins)

	ints := []struct {
		key string
		dst *int
	}{
		{"REPORTWATCH_BACKEND_RPS", &cfg.BackendRPS},
		{"REPORTWATCH_SUBMIT_RPS", &cfg.SubmitRPS},
		{"REPORTWATCH_PAGE_SIZE", &cfg.PageSize},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, *v.dst)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.key, err)
		}
		*v.dst = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REPORTWATCH_READY_TIMEOUT", &cfg.ReadyTimeout},
		{"REPORTWATCH_BADGE_INTERVAL", &cfg.BadgeInterval},
		{"REPORTWATCH_MONITOR_INTERVAL", &cfg.MonitorInterval},
		{"REPORTWATCH_REFRESH_DEBOUNCE", &cfg.RefreshDebounce},
		{"REPORTWATCH_SUCCESS_GRACE", &cfg.SuccessGrace},
		{"REPORTWATCH_FAILURE_GRACE", &cfg.FailureGrace},
	}
	for _, v := range durations {
		d, err := getEnvDuration(v.key, *v.dst)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.key, err)
		}
		*v.dst = d
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.BackendURL == "" {
		return errors.New("REPORTWATCH_BACKEND_URL must not be empty")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("page size %d must be between 1 and 100", c.PageSize)
	}
	if c.BackendRPS < 0 || c.SubmitRPS < 0 {
		return errors.New("rate limits must be >= 0")
	}
	for name, d := range map[string]time.Duration{
		"badge_interval":   c.BadgeInterval,
		"monitor_interval": c.MonitorInterval,
		"refresh_debounce": c.RefreshDebounce,
		"success_grace":    c.SuccessGrace,
		"failure_grace":    c.FailureGrace,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q must be one of: debug, info, warn, error", c.LogLevel)
	}
	return lvl, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
