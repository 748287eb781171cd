package config

import (
	"strconv"
	"strings"
)

// applyEnv overlays environment variables. lookup is os.LookupEnv outside tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = splitList(v)
		}
	}

	str("GROQ_API_KEY", &c.Transcription.APIKey)
	str("GROQ_BASE_URL", &c.Transcription.BaseURL)
	list("SUBTLE_ALLOWED_HOSTS", &c.Transcription.AllowedHosts)
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		c.Server.Addr = ":" + strings.TrimSpace(v)
	}
	str("SUBTLE_ADDR", &c.Server.Addr)
	list("SUBTLE_CORS_ORIGINS", &c.Server.CORSOrigins)
	num("SUBTLE_MAX_JOBS", &c.Server.MaxConcurrentJobs)
	str("SUBTLE_UPLOAD_DIR", &c.Server.UploadDir)
	str("SUBTLE_STATIC_DIR", &c.Server.StaticDir)
	str("SUBTLE_STORAGE_DIR", &c.Storage.Dir)
	num("SUBTLE_EXPIRY_MINUTES", &c.Storage.ExpiryMinutes)
	str("SUBTLE_WORK_DIR", &c.WorkDir)
	str("FFMPEG_PATH", &c.FFmpeg.FFmpegPath)
	str("FFPROBE_PATH", &c.FFmpeg.FFprobePath)
	str("LOG_MODE", &c.Logging.Mode)
	str("LOG_LEVEL", &c.Logging.Level)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
