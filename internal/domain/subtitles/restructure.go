package subtitles

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/subtle/internal/types"
)

// Readability limits for a single subtitle entry.
const (
	MaxCharsPerLine = 42
	MaxLines        = 2
	MaxChars        = MaxCharsPerLine * MaxLines
	MinDuration     = 1.0
	MaxDuration     = 7.0
	MinGap          = 0.08
	MaxCPS          = 21.0

	// Entries shorter than this are folded into the previous entry when they fit.
	mergeBelow = 0.5

	// Absorbs float noise from repeated additions of MinGap/MinDuration.
	eps = 1e-9
)

// Restructure rewrites segments so every entry fits on two 42-character
// lines, stays on screen between one and seven seconds, reads at no more
// than 21 characters per second and leaves a small gap before the next one.
// The input slice is not modified.
func Restructure(segs []types.Segment) []types.Segment {
	if len(segs) == 0 {
		return nil
	}

	var split []types.Segment
	for _, s := range segs {
		split = append(split, splitSegment(s)...)
	}

	merged := mergeShort(split)
	enforceMinDuration(merged)
	enforceMinGap(merged)
	return merged
}

func textLen(s string) int { return utf8.RuneCountInString(s) }

func splitSegment(seg types.Segment) []types.Segment {
	text := strings.TrimSpace(seg.Text)
	n := textLen(text)
	dur := seg.End - seg.Start

	parts := max(
		int(math.Ceil(float64(n)/MaxChars)),
		int(math.Ceil(dur/MaxDuration-eps)),
		int(math.Ceil(float64(n)/(MaxCPS*MaxDuration))),
		1,
	)
	if parts <= 1 && n <= MaxChars && dur <= MaxDuration {
		return []types.Segment{{Start: seg.Start, End: seg.End, Text: WrapLines(text)}}
	}

	groups := splitAtBoundaries(text, parts)
	total := 0
	for _, g := range groups {
		total += textLen(g)
	}
	if total == 0 {
		total = 1
	}

	out := make([]types.Segment, 0, len(groups))
	start := seg.Start
	for i, g := range groups {
		last := i == len(groups)-1
		var end float64
		if last {
			end = seg.End
			if end-start < MinDuration {
				end = start + MinDuration
			}
		} else {
			share := float64(textLen(g)) / float64(total)
			end = start + math.Max(dur*share, MinDuration)
		}
		// Holds even when there are fewer pieces than parts.
		end = math.Min(end, start+MaxDuration)
		out = append(out, types.Segment{Start: start, End: end, Text: WrapLines(g)})
		start = end + MinGap
	}
	return out
}

// splitAtBoundaries cuts text into about parts length-balanced groups,
// preferring sentence ends, then clause punctuation, then plain word breaks.
func splitAtBoundaries(text string, parts int) []string {
	if parts <= 1 {
		return []string{text}
	}
	if pieces := splitAfter(text, ".!?"); len(pieces) >= parts {
		return distributeEvenly(breakLongPieces(pieces), parts)
	}
	if pieces := splitAfter(text, ",;:-"); len(pieces) >= parts {
		return distributeEvenly(breakLongPieces(pieces), parts)
	}
	return distributeEvenly(strings.Fields(text), parts)
}

// breakLongPieces replaces every piece that cannot fit in one entry by its
// words.
func breakLongPieces(pieces []string) []string {
	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if textLen(p) > MaxChars {
			out = append(out, strings.Fields(p)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// splitAfter breaks text at whitespace that directly follows one of the
// boundary characters.
func splitAfter(text, boundary string) []string {
	var (
		out []string
		cur []string
	)
	for _, w := range strings.Fields(text) {
		cur = append(cur, w)
		r, _ := utf8.DecodeLastRuneInString(w)
		if strings.ContainsRune(boundary, r) {
			out = append(out, strings.Join(cur, " "))
			cur = nil
		}
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

// distributeEvenly joins pieces into about groups runs of similar length.
// Lengths include the joining spaces. A run is closed early rather than grow
// past MaxChars, which can yield more than groups runs.
func distributeEvenly(pieces []string, groups int) []string {
	if len(pieces) <= groups {
		out := make([]string, 0, len(pieces))
		for _, p := range pieces {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}

	target := float64(textLen(strings.Join(pieces, " "))) / float64(groups)

	var (
		out    []string
		cur    []string
		curLen int
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.TrimSpace(strings.Join(cur, " ")))
		}
		cur = nil
		curLen = 0
	}
	for _, p := range pieces {
		pl := textLen(p)
		if len(cur) > 0 && curLen+1+pl > MaxChars {
			flush()
		}
		if len(cur) > 0 {
			curLen++
		}
		cur = append(cur, p)
		curLen += pl
		if float64(curLen) >= target && len(out) < groups-1 {
			flush()
		}
	}
	flush()

	kept := out[:0]
	for _, g := range out {
		if g != "" {
			kept = append(kept, g)
		}
	}
	return kept
}

// WrapLines greedily wraps text at MaxCharsPerLine. Anything that does not
// fit in MaxLines-1 lines is put on the last line rather than dropped.
func WrapLines(text string) string {
	if textLen(text) <= MaxCharsPerLine {
		return text
	}
	words := strings.Fields(text)
	var (
		lines []string
		cur   string
	)
	for i, w := range words {
		candidate := w
		if cur != "" {
			candidate = cur + " " + w
		}
		if textLen(candidate) <= MaxCharsPerLine {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
		}
		cur = w
		if len(lines) >= MaxLines-1 {
			lines = append(lines, strings.Join(words[i:], " "))
			return strings.Join(lines[:MaxLines], "\n")
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	if len(lines) > MaxLines {
		lines = lines[:MaxLines]
	}
	return strings.Join(lines, "\n")
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func mergeShort(segs []types.Segment) []types.Segment {
	out := make([]types.Segment, 0, len(segs))
	for _, s := range segs {
		if s.End-s.Start < mergeBelow && len(out) > 0 {
			prev := &out[len(out)-1]
			combined := strings.TrimSpace(flatten(prev.Text) + " " + flatten(s.Text))
			if textLen(combined) <= MaxChars && s.End-prev.Start <= MaxDuration+eps {
				prev.End = s.End
				prev.Text = WrapLines(combined)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

func enforceMinDuration(segs []types.Segment) {
	for i := range segs {
		s := &segs[i]
		if s.End-s.Start >= MinDuration-eps {
			continue
		}
		maxEnd := s.Start + MinDuration
		if i < len(segs)-1 {
			maxEnd = segs[i+1].Start - MinGap
		}
		s.End = math.Max(s.End, math.Min(s.Start+MinDuration, maxEnd))
	}
}

func enforceMinGap(segs []types.Segment) {
	for i := 0; i < len(segs)-1; i++ {
		cur, next := &segs[i], segs[i+1]
		if next.Start-cur.End >= MinGap-eps {
			continue
		}
		cur.End = next.Start - MinGap
		// Duration wins over gap when both cannot hold.
		if cur.End-cur.Start < MinDuration-eps {
			cur.End = cur.Start + MinDuration
		}
	}
}
