package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forPelevin/subtle/internal/domain/hallucination"
	"github.com/forPelevin/subtle/internal/domain/subtitles"
	"github.com/forPelevin/subtle/internal/domain/transcript"
	"github.com/forPelevin/subtle/internal/domain/translation"
	"github.com/forPelevin/subtle/internal/languages"
	"github.com/forPelevin/subtle/internal/platform/logger"
	"github.com/forPelevin/subtle/internal/ports"
	"github.com/forPelevin/subtle/internal/types"
)

type Deps struct {
	Audio      ports.AudioTool
	ASR        ports.Transcriber
	Translator ports.Translator
	Log        *logger.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return Usecase{d: d}
}

type Input struct {
	JobID        string
	InputPath    string
	OriginalName string
	MimeType     string

	SourceLanguage string
	TargetLanguage string

	// WorkDir is the parent of the per-run scratch directory.
	WorkDir       string
	ChunkSeconds  int
	MaxChunkBytes int64
	BatchSize     int
	MaxAttempts   int
}

// Run turns one audio or video file into SRT: extract audio (video only),
// transcribe in chunks, filter, translate when asked, restructure. Progress
// goes to sink; the caller reports the terminal outcome. A cancelled context
// yields an error matching ports.ErrCancelled and no result.
func (u Usecase) Run(ctx context.Context, in Input, sink ports.ProgressSink) (types.Result, error) {
	if sink == nil {
		sink = ports.SinkFunc(func(types.ProgressEvent) {})
	}
	if err := validateInput(in); err != nil {
		return types.Result{}, err
	}
	log := u.d.Log.With("job", in.JobID, "file", displayName(in))
	started := time.Now()

	runDir, err := os.MkdirTemp(in.WorkDir, "run-*")
	if err != nil {
		return types.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(runDir); err != nil {
			log.Warn("work dir cleanup failed", "dir", runDir, "error", err)
		}
	}()

	audioPath := in.InputPath
	if IsVideo(in.OriginalName, in.MimeType) {
		if err := checkpoint(ctx, types.StepExtracting); err != nil {
			return types.Result{}, err
		}
		sink.Emit(types.Progress(types.StepExtracting, "Extracting audio from video..."))
		audioPath = filepath.Join(runDir, "audio.mp3")
		if err := u.d.Audio.ExtractAudio(ctx, in.InputPath, audioPath); err != nil {
			return types.Result{}, stageError(ctx, ports.ErrExtraction, types.StepExtracting, "ffmpeg", err)
		}
		log.Info("audio extracted", "audio", audioPath)
	}

	if err := checkpoint(ctx, types.StepTranscribing); err != nil {
		return types.Result{}, err
	}
	sink.Emit(types.Progress(types.StepTranscribing, "Starting transcription..."))
	merged, err := u.transcribe(ctx, log, in, audioPath, runDir, sink)
	if err != nil {
		return types.Result{}, err
	}

	segs, report := hallucination.Filter(merged.Segments)
	if removed := report.Before - report.After; removed > 0 {
		log.Info("hallucinated segments removed", "before", report.Before, "after", report.After, "reasons", report.ByReason())
	}
	srt := subtitles.Serialize(segs)

	if NeedsTranslation(in.SourceLanguage, in.TargetLanguage, merged.Language) {
		if err := checkpoint(ctx, types.StepTranslating); err != nil {
			return types.Result{}, err
		}
		if u.d.Translator == nil {
			return types.Result{}, ports.Wrap(ports.ErrUpstream, string(types.StepTranslating), "", "no translator configured", nil)
		}
		sink.Emit(types.Progress(types.StepTranslating, fmt.Sprintf("Translating subtitles to %s...", languages.Name(in.TargetLanguage))))
		b := translation.New(u.d.Translator, log)
		if in.BatchSize > 0 {
			b.BatchSize = in.BatchSize
		}
		if in.MaxAttempts > 0 {
			b.MaxAttempts = in.MaxAttempts
		}
		srt, err = b.Translate(ctx, srt, in.SourceLanguage, in.TargetLanguage)
		if err != nil {
			return types.Result{}, stageError(ctx, ports.ErrUpstream, types.StepTranslating, "", err)
		}
	}

	if err := checkpoint(ctx, types.StepRestructuring); err != nil {
		return types.Result{}, err
	}
	sink.Emit(types.Progress(types.StepRestructuring, "Restructuring subtitles for readability..."))
	restructured := subtitles.Restructure(subtitles.Parse(srt))
	out := subtitles.Serialize(restructured)

	// A cancel that lands during the last stage still wins over the result.
	if err := checkpoint(ctx, types.StepRestructuring); err != nil {
		return types.Result{}, err
	}

	res := types.Result{
		SRT:              out,
		DetectedLanguage: merged.Language,
		Duration:         merged.Duration,
		Segments:         len(restructured),
	}
	log.Info("run finished", "segments", res.Segments, "language", res.DetectedLanguage, "duration_sec", res.Duration, "elapsed", time.Since(started).Round(time.Millisecond).String())
	return res, nil
}

func (u Usecase) transcribe(ctx context.Context, log *logger.Logger, in Input, audioPath, runDir string, sink ports.ProgressSink) (types.Transcription, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return types.Transcription{}, ports.Wrap(ports.ErrInput, string(types.StepTranscribing), "stat audio", "", err)
	}
	total, err := u.d.Audio.ProbeDuration(ctx, audioPath)
	if err != nil {
		return types.Transcription{}, stageError(ctx, ports.ErrInput, types.StepTranscribing, "probe duration", err)
	}

	chunkSeconds := in.ChunkSeconds
	if chunkSeconds <= 0 {
		chunkSeconds = transcript.DefaultChunkSeconds
	}

	if !transcript.NeedsChunking(info.Size(), total, in.MaxChunkBytes, chunkSeconds) {
		log.Info("transcribing directly", "size_mb", float64(info.Size())/(1<<20), "duration_sec", total)
		sink.Emit(types.ChunkProgress("Transcribing audio...", 1, 1))
		tr, err := u.d.ASR.Transcribe(ctx, audioPath, in.SourceLanguage)
		if err != nil {
			return types.Transcription{}, stageError(ctx, ports.ErrUpstream, types.StepTranscribing, "transcribe", err)
		}
		if err := checkpoint(ctx, types.StepTranscribing); err != nil {
			return types.Transcription{}, err
		}
		merged := transcript.Merge([]transcript.Chunk{{Duration: total, Transcription: tr}})
		if tr.Duration > 0 {
			merged.Duration = tr.Duration
		}
		return merged, nil
	}

	chunks, err := u.d.Audio.SplitAudio(ctx, audioPath, filepath.Join(runDir, "chunks"), chunkSeconds)
	if err != nil {
		return types.Transcription{}, stageError(ctx, ports.ErrExtraction, types.StepTranscribing, "split audio", err)
	}
	log.Info("audio split", "chunks", len(chunks), "chunk_seconds", chunkSeconds, "duration_sec", total)

	results := make([]transcript.Chunk, 0, len(chunks))
	var offset float64
	for i, path := range chunks {
		if err := checkpoint(ctx, types.StepTranscribing); err != nil {
			return types.Transcription{}, err
		}
		n := i + 1
		sink.Emit(types.ChunkProgress(fmt.Sprintf("Transcribing chunk %d of %d...", n, len(chunks)), n, len(chunks)))

		dur, err := u.d.Audio.ProbeDuration(ctx, path)
		if err != nil {
			return types.Transcription{}, stageError(ctx, ports.ErrExtraction, types.StepTranscribing, fmt.Sprintf("probe chunk %d/%d", n, len(chunks)), err)
		}
		tr, err := u.d.ASR.Transcribe(ctx, path, in.SourceLanguage)
		if err != nil {
			return types.Transcription{}, stageError(ctx, ports.ErrUpstream, types.StepTranscribing, fmt.Sprintf("chunk %d/%d", n, len(chunks)), err)
		}
		if err := checkpoint(ctx, types.StepTranscribing); err != nil {
			return types.Transcription{}, err
		}
		log.Debug("chunk transcribed", "chunk", n, "of", len(chunks), "duration_sec", dur, "segments", len(tr.Segments), "offset_sec", offset)
		offset += dur
		results = append(results, transcript.Chunk{Duration: dur, Transcription: tr})
	}
	return transcript.Merge(results), nil
}

// NeedsTranslation decides whether subtitles must be translated. A set
// source language is compared with the target; with auto-detection the
// detected language is compared instead.
func NeedsTranslation(source, target, detected string) bool {
	target = strings.TrimSpace(target)
	if target == "" || languages.IsAuto(target) {
		return false
	}
	if !languages.IsAuto(source) {
		return !languages.Same(source, target)
	}
	return !languages.Same(detected, target)
}

var (
	videoMimes = map[string]struct{}{
		"video/mp4": {}, "video/webm": {}, "video/mpeg": {}, "video/x-matroska": {}, "application/x-matroska": {},
	}
	videoExts = map[string]struct{}{
		".mp4": {}, ".webm": {}, ".mpeg": {}, ".mkv": {}, ".mov": {}, ".avi": {}, ".flv": {}, ".m4v": {},
	}
)

// IsVideo reports whether the upload needs its audio track extracted first.
func IsVideo(name, mimeType string) bool {
	if _, ok := videoMimes[strings.ToLower(strings.TrimSpace(mimeType))]; ok {
		return true
	}
	_, ok := videoExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.InputPath) == "" {
		return ports.Wrap(ports.ErrInput, "", "", "No audio file provided", nil)
	}
	if _, err := os.Stat(in.InputPath); err != nil {
		return ports.Wrap(ports.ErrInput, "", "", "audio file is not readable", err)
	}
	if s := strings.TrimSpace(in.SourceLanguage); s != "" && !languages.Valid(s) {
		return ports.Wrap(ports.ErrInput, "", "", fmt.Sprintf("unsupported source language %q", s), nil)
	}
	if t := strings.TrimSpace(in.TargetLanguage); t != "" && (!languages.Valid(t) || languages.IsAuto(t)) {
		return ports.Wrap(ports.ErrInput, "", "", fmt.Sprintf("unsupported output language %q", t), nil)
	}
	return nil
}

func checkpoint(ctx context.Context, step types.Step) error {
	if err := ctx.Err(); err != nil {
		return ports.Wrap(ports.ErrCancelled, string(step), "", "", err)
	}
	return nil
}

// stageError classifies a failed call: a cancelled context wins, an error
// that already carries a marker keeps it, anything else gets marker.
func stageError(ctx context.Context, marker error, step types.Step, op string, err error) error {
	if ctx.Err() != nil {
		return ports.Wrap(ports.ErrCancelled, string(step), op, "", ctx.Err())
	}
	for _, m := range []error{ports.ErrCancelled, ports.ErrInput, ports.ErrExtraction, ports.ErrUpstream} {
		if errors.Is(err, m) {
			return err
		}
	}
	return ports.Wrap(marker, string(step), op, "", err)
}

func displayName(in Input) string {
	if in.OriginalName != "" {
		return in.OriginalName
	}
	return filepath.Base(in.InputPath)
}
