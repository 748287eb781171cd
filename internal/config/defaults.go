package config

const (
	defaultAddr                 = ":3001"
	defaultCORSOrigin           = "http://localhost:5173"
	defaultMaxConcurrentJobs    = 2
	defaultMaxUploadMB          = 10 * 1024
	defaultStorageDir           = "storage"
	defaultUploadDir            = "uploads"
	defaultExpiryMinutes        = 30
	defaultSweepIntervalMinutes = 5
	defaultChunkSeconds         = 600
	defaultMaxChunkMB           = 24
	defaultBatchSize            = 80
	defaultMaxAttempts          = 3
	defaultTemperature          = 0.3
	defaultExtractTimeout       = 600
)

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              defaultAddr,
			CORSOrigins:       []string{defaultCORSOrigin},
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			UploadDir:         defaultUploadDir,
			MaxUploadMB:       defaultMaxUploadMB,
		},
		Storage: Storage{
			Dir:                  defaultStorageDir,
			ExpiryMinutes:        defaultExpiryMinutes,
			SweepIntervalMinutes: defaultSweepIntervalMinutes,
		},
		Transcription: Transcription{
			Model:        "whisper-large-v3",
			ChunkSeconds: defaultChunkSeconds,
			MaxChunkMB:   defaultMaxChunkMB,
		},
		Translation: Translation{
			Model:       "llama-3.3-70b-versatile",
			BatchSize:   defaultBatchSize,
			MaxAttempts: defaultMaxAttempts,
			Temperature: defaultTemperature,
		},
		FFmpeg: FFmpeg{
			ExtractTimeoutSeconds: defaultExtractTimeout,
		},
		Logging: Logging{
			Mode:  "auto",
			Level: "info",
		},
	}
}
