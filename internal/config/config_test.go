package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_AllVarsSet(t *testing.T) {
	t.Setenv("REPORTWATCH_BACKEND_URL", "https://reports.example.com")
	t.Setenv("REPORTWATCH_BACKEND_API_KEY", "upstream")
	t.Setenv("REPORTWATCH_API_KEYS", "key1, key2,")
	t.Setenv("REPORTWATCH_LISTEN_ADDR", ":9090")
	t.Setenv("REPORTWATCH_DB_PATH", "/tmp/test.db")
	t.Setenv("REPORTWATCH_DOWNLOAD_DIR", "/tmp/dl")
	t.Setenv("REPORTWATCH_BADGE_INTERVAL", "15s")
	t.Setenv("REPORTWATCH_REFRESH_DEBOUNCE", "250ms")
	t.Setenv("REPORTWATCH_PAGE_SIZE", "25")
	t.Setenv("REPORTWATCH_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, ":9090")
	}
	if len(cfg.APIKeys) != 2 || cfg.APIKeys[0] != "key1" || cfg.APIKeys[1] != "key2" {
		t.Errorf("APIKeys = %v, want [key1 key2]", cfg.APIKeys)
	}
	if cfg.BackendAPIKey != "upstream" {
		t.Errorf("BackendAPIKey = %q", cfg.BackendAPIKey)
	}
	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/tmp/test.db")
	}
	if cfg.DownloadDir != "/tmp/dl" {
		t.Errorf("DownloadDir = %q", cfg.DownloadDir)
	}
	if cfg.BadgeInterval != 15*time.Second {
		t.Errorf("BadgeInterval = %v, want 15s", cfg.BadgeInterval)
	}
	if cfg.RefreshDebounce != 250*time.Millisecond {
		t.Errorf("RefreshDebounce = %v, want 250ms", cfg.RefreshDebounce)
	}
	if cfg.PageSize != 25 {
		t.Errorf("PageSize = %d, want 25", cfg.PageSize)
	}
	if lvl, _ := cfg.Level(); lvl != slog.LevelDebug {
		t.Errorf("Level = %v, want debug", lvl)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REPORTWATCH_BACKEND_URL", "http://localhost:8080")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MonitorInterval != 2*time.Second {
		t.Errorf("MonitorInterval = %v, want 2s", cfg.MonitorInterval)
	}
	if cfg.SuccessGrace != 3*time.Second || cfg.FailureGrace != 2*time.Second {
		t.Errorf("graces = %v/%v, want 3s/2s", cfg.SuccessGrace, cfg.FailureGrace)
	}
	if cfg.RefreshDebounce != 500*time.Millisecond {
		t.Errorf("RefreshDebounce = %v, want 500ms", cfg.RefreshDebounce)
	}
	if len(cfg.APIKeys) != 0 {
		t.Errorf("APIKeys = %v, want none", cfg.APIKeys)
	}
}

func TestLoad_MissingBackendURL(t *testing.T) {
	t.Setenv("REPORTWATCH_BACKEND_URL", "")

	_, err := Load("")
	if err == nil {
		t.Fatal("expected error when REPORTWATCH_BACKEND_URL is empty, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"page size not a number", "REPORTWATCH_PAGE_SIZE", "ten"},
		{"page size too large", "REPORTWATCH_PAGE_SIZE", "500"},
		{"bad duration", "REPORTWATCH_BADGE_INTERVAL", "often"},
		{"zero grace", "REPORTWATCH_SUCCESS_GRACE", "0s"},
		{"negative rps", "REPORTWATCH_SUBMIT_RPS", "-1"},
		{"bad log level", "REPORTWATCH_LOG_LEVEL", "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REPORTWATCH_BACKEND_URL", "http://localhost:8080")
			t.Setenv(tt.key, tt.value)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reportwatch.yaml")
	content := `
backend_url: https://reports.internal
api_keys: [ui-key]
badge_interval: 30s
failure_grace: 5s
page_size: 20
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REPORTWATCH_PAGE_SIZE", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BackendURL != "https://reports.internal" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if len(cfg.APIKeys) != 1 || cfg.APIKeys[0] != "ui-key" {
		t.Errorf("APIKeys = %v", cfg.APIKeys)
	}
	if cfg.BadgeInterval != 30*time.Second {
		t.Errorf("BadgeInterval = %v, want 30s", cfg.BadgeInterval)
	}
	if cfg.FailureGrace != 5*time.Second {
		t.Errorf("FailureGrace = %v, want 5s", cfg.FailureGrace)
	}
	if cfg.SuccessGrace != 3*time.Second {
		t.Errorf("SuccessGrace = %v, want default 3s", cfg.SuccessGrace)
	}
	if cfg.PageSize != 50 {
		t.Errorf("PageSize = %d, want env override 50", cfg.PageSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("REPORTWATCH_BACKEND_URL", "http://localhost:8080")

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		got, err := (&Config{LogLevel: tt.in}).Level()
		if (err != nil) != tt.wantErr {
			t.Errorf("Level(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
