package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/subtle/internal/config"
	"github.com/forPelevin/subtle/internal/platform/logger"
	"github.com/forPelevin/subtle/internal/ports"
	"github.com/forPelevin/subtle/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/subtle/internal/ports/adapters/groq"
	"github.com/forPelevin/subtle/internal/types"
	"github.com/forPelevin/subtle/internal/usecase"
)

const missingKeyMessage = "No Groq API key configured. Set it in the app or in the server .env file."

// Request is one file to subtitle. APIKey overrides the configured key.
type Request struct {
	JobID          string
	InputPath      string
	OriginalName   string
	MimeType       string
	SourceLanguage string
	TargetLanguage string
	APIKey         string
}

// clientFunc returns the speech and chat clients for key, or ok=false when
// no key is available at all.
type clientFunc func(key string) (ports.Transcriber, ports.Translator, bool)

// Service wires the configured adapters into the subtitle usecase.
type Service struct {
	cfg     *config.Config
	audio   ports.AudioTool
	clients clientFunc
	log     *logger.Logger
}

func New(cfg *config.Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	audio := ffmpeg.New(cfg.FFmpeg.FFmpegPath, cfg.FFmpeg.FFprobePath, cfg.FFmpeg.ExtractTimeout())
	client := groq.New(
		cfg.Transcription.APIKey,
		cfg.Transcription.BaseURL,
		groq.WithModels(cfg.Transcription.Model, cfg.Translation.Model),
		groq.WithTemperature(cfg.Translation.Temperature),
	)
	return &Service{
		cfg:   cfg,
		audio: audio,
		clients: func(key string) (ports.Transcriber, ports.Translator, bool) {
			c := client.WithKey(key)
			return c, c, c.HasKey()
		},
		log: log,
	}
}

// HasKey reports whether a service key is configured server-side.
func (s *Service) HasKey() bool {
	_, _, ok := s.clients("")
	return ok
}

// Run subtitles one file and streams progress to sink.
func (s *Service) Run(ctx context.Context, req Request, sink ports.ProgressSink) (types.Result, error) {
	asr, translator, ok := s.clients(req.APIKey)
	if !ok {
		return types.Result{}, ports.Wrap(ports.ErrInput, "", "", missingKeyMessage, nil)
	}
	if err := os.MkdirAll(s.cfg.WorkDir, 0o755); err != nil {
		return types.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	uc := usecase.New(usecase.Deps{
		Audio:      s.audio,
		ASR:        asr,
		Translator: translator,
		Log:        s.log,
	})
	return uc.Run(ctx, usecase.Input{
		JobID:          req.JobID,
		InputPath:      req.InputPath,
		OriginalName:   req.OriginalName,
		MimeType:       req.MimeType,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
		WorkDir:        s.cfg.WorkDir,
		ChunkSeconds:   s.cfg.Transcription.ChunkSeconds,
		MaxChunkBytes:  s.cfg.Transcription.MaxChunkBytes(),
		BatchSize:      s.cfg.Translation.BatchSize,
		MaxAttempts:    s.cfg.Translation.MaxAttempts,
	}, sink)
}

// Manifest describes one CLI run next to its subtitles.
type Manifest struct {
	Input            string    `json:"input"`
	SRT              string    `json:"srt"`
	SourceLanguage   string    `json:"sourceLanguage"`
	TargetLanguage   string    `json:"targetLanguage,omitempty"`
	DetectedLanguage string    `json:"detectedLanguage"`
	Duration         float64   `json:"duration"`
	Segments         int       `json:"segments"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RunFile subtitles a local file and writes <run dir>/<name>.srt plus a
// manifest.json under outRoot. It returns the path of the SRT file.
func (s *Service) RunFile(ctx context.Context, req Request, outRoot string, sink ports.ProgressSink) (string, types.Result, error) {
	if req.InputPath == "" {
		return "", types.Result{}, errors.New("input is empty")
	}
	if req.OriginalName == "" {
		req.OriginalName = filepath.Base(req.InputPath)
	}
	if req.JobID == "" {
		req.JobID = hash(req.InputPath)
	}
	if outRoot == "" {
		outRoot = "out"
	}

	res, err := s.Run(ctx, req, sink)
	if err != nil {
		return "", types.Result{}, err
	}

	now := time.Now().UTC()
	runOutDir := buildRunOutDir(outRoot, req.InputPath, now)
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return "", types.Result{}, err
	}
	name := normalizePathSegment(strings.TrimSuffix(filepath.Base(req.InputPath), filepath.Ext(req.InputPath)))
	if name == "" {
		name = "subtitles"
	}
	srtPath := filepath.Join(runOutDir, name+".srt")
	if err := os.WriteFile(srtPath, []byte(res.SRT), 0o644); err != nil {
		return "", types.Result{}, err
	}

	b, err := json.MarshalIndent(Manifest{
		Input:            req.InputPath,
		SRT:              filepath.Base(srtPath),
		SourceLanguage:   req.SourceLanguage,
		TargetLanguage:   req.TargetLanguage,
		DetectedLanguage: res.DetectedLanguage,
		Duration:         res.Duration,
		Segments:         res.Segments,
		CreatedAt:        now,
	}, "", "  ")
	if err != nil {
		return "", types.Result{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runOutDir, "manifest.json"), b, 0o644); err != nil {
		return "", types.Result{}, err
	}
	s.log.Info("subtitles written", "srt", srtPath, "segments", res.Segments)
	return srtPath, res, nil
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.AudioTool = (*ffmpeg.Adapter)(nil)
var _ ports.Transcriber = (*groq.Adapter)(nil)
var _ ports.Translator = (*groq.Adapter)(nil)
