package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/forPelevin/subtle/internal/domain/subtitles"
	"github.com/forPelevin/subtle/internal/ports"
	"github.com/forPelevin/subtle/internal/types"
)

type fakeTranslator struct {
	calls   []string
	replies []string
	err     error
}

func (f *fakeTranslator) Complete(_ context.Context, _, user string) (string, error) {
	f.calls = append(f.calls, user)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) > 0 {
		r := f.replies[0]
		f.replies = f.replies[1:]
		return r, nil
	}
	return strings.ToUpper(user), nil
}

func srtOf(n int) string {
	segs := make([]types.Segment, n)
	for i := range segs {
		segs[i] = types.Segment{Start: float64(i * 2), End: float64(i*2 + 1), Text: fmt.Sprintf("line %d", i+1)}
	}
	return subtitles.Serialize(segs)
}

func TestTranslate_BatchesSequentiallyInOrder(t *testing.T) {
	ft := &fakeTranslator{}
	b := New(ft, nil)

	out, err := b.Translate(context.Background(), srtOf(200), "en", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(ft.calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(ft.calls))
	}
	wantSizes := []int{80, 80, 40}
	for i, c := range ft.calls {
		if got := len(subtitles.SplitEntries(c)); got != wantSizes[i] {
			t.Fatalf("call %d: expected %d entries, got %d", i, wantSizes[i], got)
		}
	}
	if !strings.HasPrefix(ft.calls[1], "81\n") {
		t.Fatalf("second batch should start at entry 81, got %q", ft.calls[1][:10])
	}

	segs := subtitles.Parse(out)
	if len(segs) != 200 {
		t.Fatalf("expected 200 entries, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Text != fmt.Sprintf("LINE %d", i+1) {
			t.Fatalf("entry %d out of order: %q", i, s.Text)
		}
	}
	if !strings.HasSuffix(out, "0\n") || strings.HasSuffix(out, "\n\n") {
		t.Fatalf("expected single trailing newline, got %q", out[len(out)-10:])
	}
}

func TestTranslate_SingleCallWhenSmall(t *testing.T) {
	ft := &fakeTranslator{}
	in := srtOf(80)
	if _, err := New(ft, nil).Translate(context.Background(), in, "auto", "de"); err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(ft.calls) != 1 {
		t.Fatalf("expected a single call, got %d", len(ft.calls))
	}
}

func TestTranslate_RetriesOnCountMismatch(t *testing.T) {
	in := srtOf(3)
	ft := &fakeTranslator{replies: []string{
		"1\n00:00:00,000 --> 00:00:01,000\nuno dos",
		"```srt\n" + strings.ToUpper(in) + "```",
	}}
	out, err := New(ft, nil).Translate(context.Background(), in, "en", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(ft.calls) != 2 {
		t.Fatalf("expected a retry, got %d calls", len(ft.calls))
	}
	if got := len(subtitles.Parse(out)); got != 3 {
		t.Fatalf("expected 3 entries, got %d", got)
	}
}

func TestTranslate_PassesThroughAfterMaxAttempts(t *testing.T) {
	short := "1\n00:00:00,000 --> 00:00:01,000\nsolo"
	ft := &fakeTranslator{replies: []string{short, short, short}}
	out, err := New(ft, nil).Translate(context.Background(), srtOf(2), "en", "es")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(ft.calls) != DefaultMaxAttempts {
		t.Fatalf("expected %d calls, got %d", DefaultMaxAttempts, len(ft.calls))
	}
	if out != short+"\n" {
		t.Fatalf("expected last reply passed through, got %q", out)
	}
}

func TestTranslate_UpstreamError(t *testing.T) {
	ft := &fakeTranslator{err: errors.New("boom")}
	_, err := New(ft, nil).Translate(context.Background(), srtOf(2), "en", "es")
	if !errors.Is(err, ports.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestTranslate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ft := &fakeTranslator{}
	_, err := New(ft, nil).Translate(ctx, srtOf(2), "en", "es")
	if !errors.Is(err, ports.ErrCancelled) || len(ft.calls) != 0 {
		t.Fatalf("expected cancellation before any call, got %v (%d calls)", err, len(ft.calls))
	}
}

func TestSystemPrompt(t *testing.T) {
	p := SystemPrompt("auto", "es")
	if !strings.Contains(p, "into Spanish") || strings.Contains(p, " from ") {
		t.Fatalf("unexpected prompt: %q", p)
	}
	if !strings.Contains(SystemPrompt("de", "en"), "from German into English") {
		t.Fatalf("expected source language in prompt")
	}
}
