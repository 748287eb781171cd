package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/subtle/internal/domain/subtitles"
	"github.com/forPelevin/subtle/internal/jobstore"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestLanguagesCommand(t *testing.T) {
	out, _, err := execute(t, "languages")
	if err != nil {
		t.Fatalf("languages: %v", err)
	}
	for _, want := range []string{"auto", "Auto-detect", "es", "Spanish", "zh-TW"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRestructureCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.srt")
	src := "1\n00:00:00,000 --> 00:00:02,000\nHello there.\n\n2\n00:00:02,000 --> 00:00:04,000\nHow are you?\n"
	if err := os.WriteFile(in, []byte(src), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	out := filepath.Join(dir, "out.srt")
	if _, _, err := execute(t, "restructure", in, "--out", out); err != nil {
		t.Fatalf("restructure: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	segs, err := subtitles.ParseStrict(string(b))
	if err != nil {
		t.Fatalf("output is not valid srt: %v\n%s", err, b)
	}
	if len(segs) == 0 {
		t.Fatalf("expected entries in output")
	}
	if !strings.Contains(string(b), "Hello there.") {
		t.Fatalf("text lost:\n%s", b)
	}
}

func TestRestructureRejectsMalformedSRT(t *testing.T) {
	in := filepath.Join(t.TempDir(), "bad.srt")
	if err := os.WriteFile(in, []byte("1\n00:00:xx,000 --> 00:00:01,000\nHello\n"), 0o644); err != nil {
		t.Fatalf("write srt: %v", err)
	}
	if _, _, err := execute(t, "restructure", in); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestJobsCommandListsStoredSubtitles(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SUBTLE_STORAGE_DIR", dir)
	store, err := jobstore.Open(dir, 30*time.Minute, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	id := uuid.NewString()
	if err := store.Save(context.Background(), id, "1\n00:00:00,000 --> 00:00:01,000\nHi\n", jobstore.Meta{OriginalFilename: "talk.mp4", DetectedLanguage: "en", Duration: 75}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = store.Close()

	out, _, err := execute(t, "jobs")
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	for _, want := range []string{id, "talk.srt", "1:15"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestTranscribeRejectsUnknownLanguage(t *testing.T) {
	_, _, err := execute(t, "transcribe", "--target", "klingon", "file.mp3")
	if err == nil || !strings.Contains(err.Error(), "unsupported target language") {
		t.Fatalf("expected target language error, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[float64]string{
		0:      "0:00",
		75.4:   "1:15",
		3725.0: "1:02:05",
	}
	for in, want := range tests {
		if got := formatDuration(in); got != want {
			t.Fatalf("formatDuration(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"1"}, {"2", "3"}}, []columnAlignment{alignLeft, alignRight})
	if !strings.Contains(out, "╭") || !strings.Contains(out, "A") || !strings.Contains(out, "3") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("expected empty output without headers")
	}
}
