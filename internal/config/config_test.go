package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SUBTLE_CONFIG", "GROQ_API_KEY", "GROQ_BASE_URL", "SUBTLE_ALLOWED_HOSTS", "PORT", "SUBTLE_ADDR", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())

	cfg, path, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no config file, got %q", path)
	}
	if cfg.Server.Addr != ":3001" || cfg.Translation.BatchSize != 80 || cfg.Storage.Expiry() != 30*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Transcription.MaxChunkBytes() != 24*1024*1024 {
		t.Fatalf("unexpected chunk bytes %d", cfg.Transcription.MaxChunkBytes())
	}
	if err := cfg.RequireAPIKey(); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestLoad_TOMLThenEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	content := `
work_dir = "/tmp/subtle-work"

[server]
addr = ":9000"
max_concurrent_jobs = 4

[translation]
batch_size = 50

[log]
level = "debug"
`
	if err := os.WriteFile(filepath.Join(dir, "subtle.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GROQ_API_KEY", " gsk_env ")
	t.Setenv("PORT", "8080")

	cfg, path, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if path != "subtle.toml" {
		t.Fatalf("expected subtle.toml, got %q", path)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("env PORT should win, got %q", cfg.Server.Addr)
	}
	if cfg.Server.MaxConcurrentJobs != 4 || cfg.Translation.BatchSize != 50 || cfg.Logging.Level != "debug" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Translation.MaxAttempts != 3 {
		t.Fatalf("unset values should keep defaults, got %d", cfg.Translation.MaxAttempts)
	}
	if cfg.Transcription.APIKey != "gsk_env" || cfg.RequireAPIKey() != nil {
		t.Fatalf("api key not taken from env: %q", cfg.Transcription.APIKey)
	}
	if cfg.WorkDir != "/tmp/subtle-work" {
		t.Fatalf("unexpected work dir %q", cfg.WorkDir)
	}
}

func TestLoad_YAMLByExtension(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	chdir(t, dir)
	p := filepath.Join(dir, "custom.yaml")
	content := "storage:\n  dir: /data/srt\n  expiry_minutes: 60\ntranscription:\n  chunk_seconds: 300\n"
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Dir != "/data/srt" || cfg.Storage.Expiry() != time.Hour || cfg.Transcription.ChunkSeconds != 300 {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
}

func TestLoad_RejectsBadBaseURL(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	t.Setenv("GROQ_BASE_URL", "http://api.groq.com/openai/v1")
	if _, _, err := Load(""); err == nil {
		t.Fatalf("expected base URL validation error")
	}

	t.Setenv("GROQ_BASE_URL", "https://llm.internal/v1")
	t.Setenv("SUBTLE_ALLOWED_HOSTS", "llm.internal, other.internal")
	if _, _, err := Load(""); err != nil {
		t.Fatalf("allowed host rejected: %v", err)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"zero jobs", func(c *Config) { c.Server.MaxConcurrentJobs = 0 }},
		{"zero batch", func(c *Config) { c.Translation.BatchSize = 0 }},
		{"hot temperature", func(c *Config) { c.Translation.Temperature = 3 }},
		{"zero chunk", func(c *Config) { c.Transcription.ChunkSeconds = 0 }},
		{"zero timeout", func(c *Config) { c.FFmpeg.ExtractTimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}
