package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/forPelevin/subtle/internal/ports/adapters/groq"
)

func (c *Config) normalize() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
}

// Validate checks limits and the service base URL. The API key is optional
// here because the HTTP API accepts one per request; see RequireAPIKey.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if c.Server.MaxConcurrentJobs <= 0 {
		return errors.New("server.max_concurrent_jobs must be > 0")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.New("server.max_upload_mb must be > 0")
	}
	if strings.TrimSpace(c.Storage.Dir) == "" {
		return errors.New("storage.dir must be set")
	}
	if c.Storage.ExpiryMinutes <= 0 || c.Storage.SweepIntervalMinutes <= 0 {
		return errors.New("storage.expiry_minutes and storage.sweep_interval_minutes must be > 0")
	}
	if c.Transcription.ChunkSeconds <= 0 || c.Transcription.MaxChunkMB <= 0 {
		return errors.New("transcription.chunk_seconds and transcription.max_chunk_mb must be > 0")
	}
	if c.Translation.BatchSize <= 0 || c.Translation.MaxAttempts <= 0 {
		return errors.New("translation.batch_size and translation.max_attempts must be > 0")
	}
	if c.Translation.Temperature < 0 || c.Translation.Temperature > 2 {
		return fmt.Errorf("translation.temperature must be between 0 and 2, got %v", c.Translation.Temperature)
	}
	if c.FFmpeg.ExtractTimeoutSeconds <= 0 {
		return errors.New("ffmpeg.extract_timeout_seconds must be > 0")
	}
	return groq.ValidateBaseURL(c.Transcription.BaseURL, c.Transcription.AllowedHosts)
}

// RequireAPIKey fails when no service key is configured.
func (c *Config) RequireAPIKey() error {
	if c.Transcription.APIKey == "" {
		return errors.New("transcription.api_key is required. Set GROQ_API_KEY or add it to subtle.toml")
	}
	return nil
}
