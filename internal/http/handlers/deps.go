package handlers

import (
	"context"

	"github.com/forPelevin/subtle/internal/jobstore"
	"github.com/forPelevin/subtle/internal/pipeline"
	"github.com/forPelevin/subtle/internal/ports"
	"github.com/forPelevin/subtle/internal/types"
)

// Subtitler runs the subtitle pipeline for one uploaded file.
type Subtitler interface {
	HasKey() bool
	Run(ctx context.Context, req pipeline.Request, sink ports.ProgressSink) (types.Result, error)
}

// SubtitleStore keeps finished subtitles for download.
type SubtitleStore interface {
	Save(ctx context.Context, id, srt string, meta jobstore.Meta) error
	Get(ctx context.Context, id string) (string, jobstore.Meta, error)
	List(ctx context.Context) ([]jobstore.Entry, error)
	Delete(ctx context.Context, id string) error
}

var (
	_ Subtitler     = (*pipeline.Service)(nil)
	_ SubtitleStore = (*jobstore.Store)(nil)
)
