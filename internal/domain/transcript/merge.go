package transcript

import (
	"strings"

	"github.com/forPelevin/subtle/internal/types"
)

const (
	DefaultChunkSeconds  = 600
	DefaultMaxChunkBytes = 24 * 1024 * 1024
)

// Chunk is the transcription of one slice of the source audio. Duration is
// measured from the chunk file itself, not taken from the service response.
type Chunk struct {
	Duration      float64
	Transcription types.Transcription
}

// NeedsChunking reports whether an audio file must be split before it is
// sent to the speech service.
func NeedsChunking(sizeBytes int64, durationSec float64, maxBytes int64, chunkSeconds int) bool {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxChunkBytes
	}
	if chunkSeconds <= 0 {
		chunkSeconds = DefaultChunkSeconds
	}
	return sizeBytes > maxBytes || durationSec > float64(chunkSeconds)
}

// Merge concatenates chunk transcriptions into one file-relative transcript.
// Each chunk is shifted by the summed measured durations of the chunks before
// it. The detected language is the first non-empty one.
func Merge(chunks []Chunk) types.Transcription {
	var (
		out    types.Transcription
		offset float64
	)
	for _, c := range chunks {
		if out.Language == "" {
			out.Language = strings.TrimSpace(c.Transcription.Language)
		}
		for _, s := range c.Transcription.Segments {
			s.Start += offset
			s.End += offset
			out.Segments = append(out.Segments, s)
		}
		offset += c.Duration
	}
	out.Duration = offset
	return out
}
