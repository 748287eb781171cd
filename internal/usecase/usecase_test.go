package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/subtle/internal/domain/subtitles"
	"github.com/forPelevin/subtle/internal/ports"
	"github.com/forPelevin/subtle/internal/types"
)

type fakeAudio struct {
	totalDur   float64
	chunkDurs  []float64
	extractErr error
	extracted  int
}

func (f *fakeAudio) ExtractAudio(_ context.Context, _, outPath string) error {
	f.extracted++
	if f.extractErr != nil {
		return f.extractErr
	}
	return os.WriteFile(outPath, []byte("mp3"), 0o644)
}

func (f *fakeAudio) SplitAudio(_ context.Context, _, outDir string, _ int) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(f.chunkDurs))
	for i := range f.chunkDurs {
		p := filepath.Join(outDir, fmt.Sprintf("chunk_%03d.mp3", i))
		if err := os.WriteFile(p, []byte("chunk"), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeAudio) ProbeDuration(_ context.Context, path string) (float64, error) {
	var i int
	if _, err := fmt.Sscanf(filepath.Base(path), "chunk_%03d.mp3", &i); err == nil {
		return f.chunkDurs[i], nil
	}
	return f.totalDur, nil
}

type fakeASR struct {
	calls    int
	language string
	onCall   func(n int)
}

func (f *fakeASR) Transcribe(_ context.Context, _, _ string) (types.Transcription, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	return types.Transcription{
		Language: f.language,
		Duration: 42,
		Segments: []types.RawSegment{{Start: 10, End: 12, Text: fmt.Sprintf("Sentence number %d here.", f.calls)}},
	}, nil
}

type upperTranslator struct{ calls int }

func (u *upperTranslator) Complete(_ context.Context, _, user string) (string, error) {
	u.calls++
	return strings.ToUpper(user), nil
}

type recorder struct{ events []types.ProgressEvent }

func (r *recorder) Emit(ev types.ProgressEvent) { r.events = append(r.events, ev) }

func (r *recorder) steps() []types.Step {
	out := make([]types.Step, 0, len(r.events))
	for _, ev := range r.events {
		if len(out) == 0 || out[len(out)-1] != ev.Step {
			out = append(out, ev.Step)
		}
	}
	return out
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected work dir to be empty, found %d entries", len(entries))
	}
}

func TestRun_CancelDuringChunkStopsFurtherCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audio := &fakeAudio{totalDur: 2900, chunkDurs: []float64{600, 600, 600, 600, 500}}
	asr := &fakeASR{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	workDir := t.TempDir()
	rec := &recorder{}

	_, err := New(Deps{Audio: audio, ASR: asr}).Run(ctx, Input{
		InputPath:    writeInput(t, "talk.mp3"),
		OriginalName: "talk.mp3",
		WorkDir:      workDir,
		ChunkSeconds: 600,
	}, rec)
	if !errors.Is(err, ports.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if asr.calls != 2 {
		t.Fatalf("expected 2 transcription calls, got %d", asr.calls)
	}
	for _, ev := range rec.events {
		if ev.Type != types.EventProgress {
			t.Fatalf("unexpected terminal event on cancel: %+v", ev)
		}
	}
	assertEmptyDir(t, workDir)
}

func TestRun_AudioWithoutTranslation(t *testing.T) {
	audio := &fakeAudio{totalDur: 30}
	asr := &fakeASR{language: "en"}
	tr := &upperTranslator{}
	rec := &recorder{}
	workDir := t.TempDir()

	res, err := New(Deps{Audio: audio, ASR: asr, Translator: tr}).Run(context.Background(), Input{
		InputPath:      writeInput(t, "note.m4a"),
		OriginalName:   "note.m4a",
		MimeType:       "audio/x-m4a",
		SourceLanguage: "auto",
		TargetLanguage: "en",
		WorkDir:        workDir,
	}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if audio.extracted != 0 {
		t.Fatalf("audio input should not be extracted")
	}
	if tr.calls != 0 {
		t.Fatalf("translation should be skipped when detected language matches")
	}
	want := []types.Step{types.StepTranscribing, types.StepRestructuring}
	if got := rec.steps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
	if len(rec.events) != 3 || rec.events[1].Chunk == nil || *rec.events[1].Chunk != 1 || *rec.events[1].TotalChunks != 1 {
		t.Fatalf("expected start, single chunk and restructure events, got %+v", rec.events)
	}
	if res.DetectedLanguage != "en" || res.Duration != 42 || res.Segments != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if !strings.Contains(res.SRT, "00:00:10,000 --> 00:00:12,000\nSentence number 1 here.") {
		t.Fatalf("unexpected srt: %q", res.SRT)
	}
	assertEmptyDir(t, workDir)
}

func TestRun_VideoWithTranslation(t *testing.T) {
	audio := &fakeAudio{totalDur: 30}
	asr := &fakeASR{language: "english"}
	tr := &upperTranslator{}
	rec := &recorder{}

	res, err := New(Deps{Audio: audio, ASR: asr, Translator: tr}).Run(context.Background(), Input{
		InputPath:      writeInput(t, "upload-1"),
		OriginalName:   "clip.MKV",
		SourceLanguage: "auto",
		TargetLanguage: "es",
		WorkDir:        t.TempDir(),
	}, rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if audio.extracted != 1 || tr.calls != 1 {
		t.Fatalf("expected extraction and one translation call, got %d/%d", audio.extracted, tr.calls)
	}
	want := []types.Step{types.StepExtracting, types.StepTranscribing, types.StepTranslating, types.StepRestructuring}
	if got := rec.steps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("steps = %v, want %v", got, want)
	}
	if !strings.Contains(res.SRT, "SENTENCE NUMBER 1 HERE.") {
		t.Fatalf("expected translated text, got %q", res.SRT)
	}
}

func TestRun_ChunkedOffsets(t *testing.T) {
	audio := &fakeAudio{totalDur: 1330, chunkDurs: []float64{600, 600, 130}}
	asr := &fakeASR{language: "en"}

	res, err := New(Deps{Audio: audio, ASR: asr}).Run(context.Background(), Input{
		InputPath: writeInput(t, "long.wav"),
		WorkDir:   t.TempDir(),
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	segs := subtitles.Parse(res.SRT)
	if len(segs) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(segs))
	}
	for i, want := range []float64{10, 610, 1210} {
		if segs[i].Start != want {
			t.Fatalf("entry %d start = %v, want %v", i, segs[i].Start, want)
		}
	}
	if res.Duration != 1330 {
		t.Fatalf("expected measured duration 1330, got %v", res.Duration)
	}
}

func TestRun_ExtractionFailure(t *testing.T) {
	audio := &fakeAudio{extractErr: ports.Wrap(ports.ErrExtraction, "extracting", "ffmpeg", "could not extract audio from the video file", errors.New("exit status 1"))}
	asr := &fakeASR{}
	workDir := t.TempDir()

	_, err := New(Deps{Audio: audio, ASR: asr}).Run(context.Background(), Input{
		InputPath:    writeInput(t, "movie.mp4"),
		OriginalName: "movie.mp4",
		WorkDir:      workDir,
	}, nil)
	if !errors.Is(err, ports.ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if asr.calls != 0 {
		t.Fatalf("transcription must not run after failed extraction")
	}
	assertEmptyDir(t, workDir)
}

func TestRun_RejectsBadInput(t *testing.T) {
	uc := New(Deps{Audio: &fakeAudio{}, ASR: &fakeASR{}})
	tests := []struct {
		name string
		in   Input
	}{
		{"missing file", Input{InputPath: filepath.Join(t.TempDir(), "nope.mp3")}},
		{"bad source", Input{InputPath: writeInput(t, "a.mp3"), SourceLanguage: "klingon"}},
		{"auto target", Input{InputPath: writeInput(t, "b.mp3"), TargetLanguage: "auto"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.WorkDir = t.TempDir()
			if _, err := uc.Run(context.Background(), tt.in, nil); !errors.Is(err, ports.ErrInput) {
				t.Fatalf("expected ErrInput, got %v", err)
			}
		})
	}
}

func TestNeedsTranslation(t *testing.T) {
	tests := []struct {
		source, target, detected string
		want                     bool
	}{
		{"en", "", "en", false},
		{"en", "es", "en", true},
		{"es", "es", "en", false},
		{"auto", "es", "es", false},
		{"auto", "es", "english", true},
		{"", "en", "English", false},
		{"auto", "en", "", true},
	}
	for _, tt := range tests {
		if got := NeedsTranslation(tt.source, tt.target, tt.detected); got != tt.want {
			t.Fatalf("NeedsTranslation(%q, %q, %q) = %v, want %v", tt.source, tt.target, tt.detected, got, tt.want)
		}
	}
}

func TestIsVideo(t *testing.T) {
	tests := []struct {
		name, mime string
		want       bool
	}{
		{"a.mp3", "audio/mpeg", false},
		{"a.bin", "video/mp4", true},
		{"a.MOV", "", true},
		{"a.webm", "audio/webm", true},
		{"a.wav", "", false},
	}
	for _, tt := range tests {
		if got := IsVideo(tt.name, tt.mime); got != tt.want {
			t.Fatalf("IsVideo(%q, %q) = %v, want %v", tt.name, tt.mime, got, tt.want)
		}
	}
}
