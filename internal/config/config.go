package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Server configures the HTTP API.
type Server struct {
	Addr              string   `toml:"addr" yaml:"addr"`
	CORSOrigins       []string `toml:"cors_origins" yaml:"cors_origins"`
	MaxConcurrentJobs int      `toml:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
	UploadDir         string   `toml:"upload_dir" yaml:"upload_dir"`
	MaxUploadMB       int64    `toml:"max_upload_mb" yaml:"max_upload_mb"`
	StaticDir         string   `toml:"static_dir" yaml:"static_dir"`
}

// Storage configures where finished subtitles are kept and for how long.
type Storage struct {
	Dir                  string `toml:"dir" yaml:"dir"`
	ExpiryMinutes        int    `toml:"expiry_minutes" yaml:"expiry_minutes"`
	SweepIntervalMinutes int    `toml:"sweep_interval_minutes" yaml:"sweep_interval_minutes"`
}

// Transcription configures the speech service. The API key and base URL are
// shared with the chat service.
type Transcription struct {
	APIKey       string   `toml:"api_key" yaml:"api_key"`
	BaseURL      string   `toml:"base_url" yaml:"base_url"`
	AllowedHosts []string `toml:"allowed_hosts" yaml:"allowed_hosts"`
	Model        string   `toml:"model" yaml:"model"`
	ChunkSeconds int      `toml:"chunk_seconds" yaml:"chunk_seconds"`
	MaxChunkMB   int      `toml:"max_chunk_mb" yaml:"max_chunk_mb"`
}

type Translation struct {
	Model       string  `toml:"model" yaml:"model"`
	BatchSize   int     `toml:"batch_size" yaml:"batch_size"`
	MaxAttempts int     `toml:"max_attempts" yaml:"max_attempts"`
	Temperature float64 `toml:"temperature" yaml:"temperature"`
}

type FFmpeg struct {
	FFmpegPath            string `toml:"ffmpeg_path" yaml:"ffmpeg_path"`
	FFprobePath           string `toml:"ffprobe_path" yaml:"ffprobe_path"`
	ExtractTimeoutSeconds int    `toml:"extract_timeout_seconds" yaml:"extract_timeout_seconds"`
}

type Logging struct {
	Mode  string `toml:"mode" yaml:"mode"`
	Level string `toml:"level" yaml:"level"`
}

// Config holds every setting of the service and the CLI.
//
// Sections:
//   - Server: HTTP listener, CORS, job concurrency and uploads
//   - Storage: finished subtitle store and its expiry sweep
//   - Transcription: speech service connection and chunking
//   - Translation: chat model and batching
//   - FFmpeg: tool paths and extraction timeout
//   - Logging: encoder mode and level
type Config struct {
	Server        Server        `toml:"server" yaml:"server"`
	Storage       Storage       `toml:"storage" yaml:"storage"`
	Transcription Transcription `toml:"transcription" yaml:"transcription"`
	Translation   Translation   `toml:"translation" yaml:"translation"`
	FFmpeg        FFmpeg        `toml:"ffmpeg" yaml:"ffmpeg"`
	Logging       Logging       `toml:"log" yaml:"log"`
	WorkDir       string        `toml:"work_dir" yaml:"work_dir"`
}

// Load builds the configuration from defaults, then the config file (when one
// is found), then the environment. The returned path is the file that was
// read, or empty.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	resolved, err := resolvePath(path)
	if err != nil {
		return nil, "", err
	}
	if resolved != "" {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", err
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func resolvePath(path string) (string, error) {
	explicit := strings.TrimSpace(path)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv("SUBTLE_CONFIG"))
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("stat config: %w", err)
		}
		return explicit, nil
	}
	for _, candidate := range []string{"subtle.toml", "subtle.yaml", "subtle.yml"} {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat config: %w", err)
		}
	}
	return "", nil
}

func decodeFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = toml.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (s Storage) Expiry() time.Duration { return time.Duration(s.ExpiryMinutes) * time.Minute }

func (s Storage) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalMinutes) * time.Minute
}

func (f FFmpeg) ExtractTimeout() time.Duration {
	return time.Duration(f.ExtractTimeoutSeconds) * time.Second
}

func (t Transcription) MaxChunkBytes() int64 { return int64(t.MaxChunkMB) * 1024 * 1024 }

func (s Server) MaxUploadBytes() int64 { return s.MaxUploadMB * 1024 * 1024 }
