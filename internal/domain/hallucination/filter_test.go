package hallucination

import (
	"testing"

	"github.com/forPelevin/subtle/internal/types"
)

func seg(start float64, text string) types.RawSegment {
	return types.RawSegment{Start: start, End: start + 1, Text: text}
}

func ptr(v float64) *float64 { return &v }

func texts(segs []types.Segment) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.Text)
	}
	return out
}

func TestFilter_ScorePass(t *testing.T) {
	in := []types.RawSegment{
		seg(0, "Real speech here."),
		seg(1, "Thanks for watching!"),
		seg(2, "   "),
		{Start: 3, End: 4, Text: "quiet", NoSpeechProb: ptr(0.61)},
		{Start: 4, End: 5, Text: "loop", CompressionRatio: ptr(2.5)},
		{Start: 5, End: 6, Text: "borderline", NoSpeechProb: ptr(0.6), CompressionRatio: ptr(2.4)},
		seg(6, "[Music]"),
		seg(7, "[música]"),
		seg(8, "Subtítulos realizados por la comunidad de Amara.org"),
		seg(9, "Hasta luego."),
		seg(10, "We said hasta luego to them."),
		seg(11, "Please subscribe to the channel"),
	}
	out, rep := Filter(in)
	want := []string{"Real speech here.", "borderline", "We said hasta luego to them."}
	got := texts(out)
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %q, want %q", got, want)
		}
	}
	if rep.Before != len(in) || rep.After != len(want) {
		t.Fatalf("unexpected report counts: %+v", rep)
	}
	reasons := rep.ByReason()
	if reasons[ReasonNoSpeech] != 1 || reasons[ReasonCompression] != 1 || reasons[ReasonEmpty] != 1 {
		t.Fatalf("unexpected reasons: %v", reasons)
	}
}

func TestFilter_ConsecutiveRepeats(t *testing.T) {
	in := []types.RawSegment{
		seg(0, "Hello."),
		seg(1, "um um um"),
		seg(2, "Um, um, um!"),
		seg(3, "um um um"),
		seg(4, "Goodbye."),
	}
	out, _ := Filter(in)
	got := texts(out)
	if len(got) != 2 || got[0] != "Hello." || got[1] != "Goodbye." {
		t.Fatalf("expected run removed, got %q", got)
	}
}

func TestFilter_ShortAccidentalRepeatSurvivesWhenNotAdjacent(t *testing.T) {
	in := []types.RawSegment{
		seg(0, "Yes, yes."),
		seg(1, "Tell me more."),
		seg(2, "Yes, yes."),
		seg(3, "Okay."),
		seg(4, "Yes, yes."),
	}
	out, _ := Filter(in)
	if len(out) != len(in) {
		t.Fatalf("three scattered repeats should survive, got %q", texts(out))
	}
}

func TestFilter_GlobalRepeats(t *testing.T) {
	in := []types.RawSegment{
		seg(0, "I'll be right back"),
		seg(1, "First point."),
		seg(2, "I'll be right back."),
		seg(3, "Second point."),
		seg(4, "i'll be right back"),
		seg(5, "Third point."),
		seg(6, "I'll be right back!"),
	}
	out, rep := Filter(in)
	got := texts(out)
	if len(got) != 3 {
		t.Fatalf("expected global repeat removed, got %q", got)
	}
	if rep.ByReason()[ReasonGlobalRepeat] != 4 {
		t.Fatalf("expected 4 global repeat removals, got %v", rep.ByReason())
	}
}

func TestFilter_GlobalCountIgnoresMarkedSegments(t *testing.T) {
	// Two copies sit in a consecutive run, so only two unmarked copies remain
	// for the global count, which stays below the threshold.
	in := []types.RawSegment{
		seg(0, "same words"),
		seg(1, "same words"),
		seg(2, "between"),
		seg(3, "same words"),
		seg(4, "other"),
		seg(5, "same words"),
	}
	out, _ := Filter(in)
	got := texts(out)
	if len(got) != 4 {
		t.Fatalf("expected 4 survivors, got %q", got)
	}
}

func TestFilter_Empty(t *testing.T) {
	out, rep := Filter(nil)
	if out != nil || rep.Before != 0 || rep.After != 0 {
		t.Fatalf("unexpected result for empty input: %v %+v", out, rep)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Um, um, UM!  ":   "um um um",
		"¿Qué?  ¡Sí!":       "qué sí",
		"line\nbreak\tand;": "line break and",
		"...":               "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
