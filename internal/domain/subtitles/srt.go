package subtitles

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/forPelevin/subtle/internal/types"
)

var (
	blankLineRE = regexp.MustCompile(`\n[ \t\f\v]*\n`)
	timestampRE = regexp.MustCompile(`(\d+):(\d{1,2}):(\d{1,2})[,.](\d+)`)
)

// Serialize renders segments as SRT, numbering entries from 1.
func Serialize(segs []types.Segment) string {
	if len(segs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range segs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s", i+1, FormatTimestamp(s.Start), FormatTimestamp(s.End), strings.TrimSpace(s.Text))
	}
	b.WriteByte('\n')
	return b.String()
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm. Hours are not wrapped at 24.
func FormatTimestamp(sec float64) string {
	total := int64(math.Round(sec * 1000))
	if total < 0 {
		total = 0
	}
	h := total / 3_600_000
	m := (total / 60_000) % 60
	s := (total / 1000) % 60
	ms := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp accepts H:MM:SS,mmm with either ',' or '.' before the
// sub-second part.
func ParseTimestamp(value string) (float64, error) {
	m := timestampRE.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	frac := m[4]
	if len(frac) > 3 {
		frac = frac[:3]
	}
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac)
	return float64(h*3600+mi*60+s) + float64(ms)/1000, nil
}

// SplitEntries returns the non-empty blank-line-delimited blocks of an SRT
// document, each trimmed.
func SplitEntries(content string) []string {
	content = strings.TrimSpace(normalizeNewlines(content))
	if content == "" {
		return nil
	}
	var out []string
	for _, block := range blankLineRE.Split(content, -1) {
		if block = strings.TrimSpace(block); block != "" {
			out = append(out, block)
		}
	}
	return out
}

// Parse reads SRT text leniently: blocks without a timestamp line, with
// unreadable timestamps or with empty text are dropped.
func Parse(content string) []types.Segment {
	segs, _ := parse(content, false)
	return segs
}

// ParseStrict is Parse but fails on the first block whose timestamp line
// cannot be read.
func ParseStrict(content string) ([]types.Segment, error) {
	return parse(content, true)
}

func parse(content string, strict bool) ([]types.Segment, error) {
	var out []types.Segment
	for n, block := range SplitEntries(content) {
		lines := strings.Split(block, "\n")
		tsIdx := -1
		for i, l := range lines {
			if strings.Contains(l, "-->") {
				tsIdx = i
				break
			}
		}
		if tsIdx < 0 {
			continue
		}
		start, end, err := parseTimingLine(lines[tsIdx])
		if err != nil {
			if strict {
				return nil, fmt.Errorf("srt block %d: %w", n+1, err)
			}
			continue
		}
		text := strings.TrimSpace(strings.Join(lines[tsIdx+1:], "\n"))
		if text == "" {
			continue
		}
		out = append(out, types.Segment{Start: start, End: end, Text: text})
	}
	return out, nil
}

func parseTimingLine(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimestamp(parts[1])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
