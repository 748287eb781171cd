package ports

import (
	"context"

	"github.com/forPelevin/subtle/internal/types"
)

type AudioTool interface {
	ExtractAudio(ctx context.Context, videoPath, outPath string) error
	SplitAudio(ctx context.Context, audioPath, outDir string, chunkSeconds int) ([]string, error)
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

type Transcriber interface {
	// Transcribe sends one audio file to the speech service. An empty or
	// "auto" language lets the service detect it.
	Transcribe(ctx context.Context, audioPath, language string) (types.Transcription, error)
}

type Translator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type ProgressSink interface {
	Emit(ev types.ProgressEvent)
}

// SinkFunc adapts a plain function to ProgressSink.
type SinkFunc func(types.ProgressEvent)

func (f SinkFunc) Emit(ev types.ProgressEvent) { f(ev) }
