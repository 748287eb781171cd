package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/subtle/internal/ports"
)

const (
	DefaultExtractTimeout = 10 * time.Minute
	chunkPattern          = "chunk_%03d.mp3"
	maxStderr             = 2000
)

type Adapter struct {
	ffmpeg         string
	ffprobe        string
	extractTimeout time.Duration
}

func New(ffmpegPath, ffprobePath string, extractTimeout time.Duration) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if extractTimeout <= 0 {
		extractTimeout = DefaultExtractTimeout
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, extractTimeout: extractTimeout}
}

// ExtractAudio drops the video stream and re-encodes the audio to MP3.
// A failed or timed out run removes whatever it wrote to outPath.
func (a *Adapter) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	runCtx, cancel := context.WithTimeout(ctx, a.extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.ffmpeg,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "4",
		outPath,
	)
	cmd.WaitDelay = 5 * time.Second
	b, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if rmErr := os.Remove(outPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = errors.Join(err, fmt.Errorf("remove partial output: %w", rmErr))
	}
	if ctx.Err() != nil {
		return ports.Wrap(ports.ErrCancelled, "extracting", "ffmpeg", "", ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return ports.Wrap(ports.ErrExtraction, "extracting", "ffmpeg", fmt.Sprintf("timed out after %s", a.extractTimeout), err)
	}
	return ports.Wrap(ports.ErrExtraction, "extracting", "ffmpeg", "could not extract audio from the video file", fmt.Errorf("%w\n%s", err, tail(string(b), maxStderr)))
}

// SplitAudio cuts audioPath into consecutive pieces of at most chunkSeconds
// inside outDir and returns their paths in playback order.
func (a *Adapter) SplitAudio(ctx context.Context, audioPath, outDir string, chunkSeconds int) ([]string, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("ffmpeg split audio: chunk length must be > 0")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c:a", "libmp3lame",
		"-q:a", "4",
		filepath.Join(outDir, chunkPattern),
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg split audio: %w\n%s", err, tail(string(b), maxStderr))
	}

	chunks, err := filepath.Glob(filepath.Join(outDir, "chunk_*.mp3"))
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("ffmpeg split audio: no chunks produced in %s", outDir)
	}
	sort.Strings(chunks)
	return chunks, nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, tail(string(exitErr.Stderr), maxStderr))
		}
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return sec, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
