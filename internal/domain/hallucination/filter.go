// Package hallucination drops transcript segments that the speech model
// invented rather than heard: silence captions, sign-offs, credit lines and
// looping repeats.
package hallucination

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/forPelevin/subtle/internal/types"
)

const (
	maxNoSpeechProb     = 0.6
	maxCompressionRatio = 2.4

	// A normalized text seen this many times across the file is treated as a loop.
	globalRepeatThreshold = 4
)

// Removal reasons reported in Report.ByReason.
const (
	ReasonEmpty             = "empty"
	ReasonNoSpeech          = "no_speech"
	ReasonCompression       = "compression_ratio"
	ReasonPattern           = "pattern"
	ReasonConsecutiveRepeat = "consecutive_repeat"
	ReasonGlobalRepeat      = "global_repeat"
)

var fillerPatterns = compile(
	`^sub(t[ií]tul|scri)`,
	`^subt[ií]tulos?\s+(por|de|provided|realizado)`,
	`^thanks?\s+for\s+watch`,
	`^thank\s+you\s+for\s+watch`,
	`^please\s+subscribe`,
	`^subscribe\s+(to|and)`,
	`^like\s+and\s+subscribe`,
	`^amara\.org`,
	`^www\.`,
	`^translated\s+by`,
	`^captioned\s+by`,
	`^copyright`,
	`^\[m[uú]sica\]$`,
	`^\[music\]$`,
	`^\[aplausos\]$`,
	`^\[applause\]$`,
	`^\[risas?\]$`,
	`^\[laughter\]$`,
	`^gracias\s+por\s+ver`,
	`^nos\s+vemos`,
	`^hasta\s+(la\s+pr[oó]xima|luego|pronto)\.?$`,
)

var punctSpaceRE = regexp.MustCompile(`[\p{P}\s]+`)

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?i)`+e))
	}
	return out
}

// Removal describes one dropped segment.
type Removal struct {
	Segment types.RawSegment
	Reason  string
}

// Report summarizes a Filter run.
type Report struct {
	Before   int
	After    int
	Removals []Removal
}

func (r Report) ByReason() map[string]int {
	out := make(map[string]int)
	for _, rm := range r.Removals {
		out[rm.Reason]++
	}
	return out
}

// Filter runs the score, consecutive-repeat and global-repeat passes in that
// order and returns the surviving segments in their original order.
func Filter(segs []types.RawSegment) ([]types.Segment, Report) {
	rep := Report{Before: len(segs)}
	if len(segs) == 0 {
		return nil, rep
	}

	reasons := make([]string, len(segs))
	normalized := make([]string, len(segs))
	for i, s := range segs {
		normalized[i] = Normalize(s.Text)
		reasons[i] = scoreReason(s)
	}

	markConsecutiveRepeats(normalized, reasons)
	markGlobalRepeats(normalized, reasons)

	out := make([]types.Segment, 0, len(segs))
	for i, s := range segs {
		if reasons[i] != "" {
			rep.Removals = append(rep.Removals, Removal{Segment: s, Reason: reasons[i]})
			continue
		}
		out = append(out, s.Segment())
	}
	rep.After = len(out)
	return out, rep
}

func scoreReason(s types.RawSegment) string {
	text := strings.TrimSpace(norm.NFC.String(s.Text))
	switch {
	case text == "":
		return ReasonEmpty
	case s.NoSpeechProb != nil && *s.NoSpeechProb > maxNoSpeechProb:
		return ReasonNoSpeech
	case s.CompressionRatio != nil && *s.CompressionRatio > maxCompressionRatio:
		return ReasonCompression
	case matchesFiller(text):
		return ReasonPattern
	}
	return ""
}

func matchesFiller(text string) bool {
	for _, re := range fillerPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// markConsecutiveRepeats marks every member of a run of two or more adjacent
// segments with the same normalized text, marked or not.
func markConsecutiveRepeats(normalized, reasons []string) {
	i := 0
	for i < len(normalized) {
		if normalized[i] == "" {
			i++
			continue
		}
		j := i + 1
		for j < len(normalized) && normalized[j] == normalized[i] {
			j++
		}
		if j-i >= 2 {
			for k := i; k < j; k++ {
				reasons[k] = ReasonConsecutiveRepeat
			}
		}
		i = j
	}
}

// markGlobalRepeats counts only segments that survived the earlier passes.
func markGlobalRepeats(normalized, reasons []string) {
	counts := make(map[string]int)
	for i, n := range normalized {
		if reasons[i] == "" && n != "" {
			counts[n]++
		}
	}
	for i, n := range normalized {
		if reasons[i] == "" && counts[n] >= globalRepeatThreshold {
			reasons[i] = ReasonGlobalRepeat
		}
	}
}

// Normalize folds text for repeat detection: NFC, lower case, punctuation
// and whitespace runs collapsed to one space.
func Normalize(text string) string {
	s := strings.ToLower(norm.NFC.String(text))
	s = punctSpaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
