package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/forPelevin/subtle/internal/http/response"
	"github.com/forPelevin/subtle/internal/jobqueue"
	"github.com/forPelevin/subtle/internal/jobstore"
	"github.com/forPelevin/subtle/internal/languages"
	"github.com/forPelevin/subtle/internal/pipeline"
	"github.com/forPelevin/subtle/internal/platform/logger"
	"github.com/forPelevin/subtle/internal/types"
)

const (
	missingKeyMessage   = "No Groq API key configured. Set it in the app or in the server .env file."
	duplicateJobMessage = "A job with this ID is already running"
)

var allowedMimeTypes = map[string]struct{}{
	"audio/mpeg":             {},
	"audio/mp3":              {},
	"audio/mp4":              {},
	"audio/x-m4a":            {},
	"audio/m4a":              {},
	"audio/wav":              {},
	"audio/wave":             {},
	"audio/x-wav":            {},
	"audio/webm":             {},
	"audio/mpga":             {},
	"video/mp4":              {},
	"video/mpeg":             {},
	"video/webm":             {},
	"video/x-matroska":       {},
	"application/x-matroska": {},
}

type TranscribeHandler struct {
	Log       *logger.Logger
	Subtitler Subtitler
	Store     SubtitleStore
	Queue     *jobqueue.Queue

	UploadDir      string
	MaxUploadBytes int64
}

func NewTranscribeHandler(log *logger.Logger, s Subtitler, store SubtitleStore, q *jobqueue.Queue, uploadDir string, maxUploadBytes int64) *TranscribeHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TranscribeHandler{
		Log:            log,
		Subtitler:      s,
		Store:          store,
		Queue:          q,
		UploadDir:      uploadDir,
		MaxUploadBytes: maxUploadBytes,
	}
}

// Transcribe accepts a multipart upload and streams NDJSON progress events
// followed by one result or error event. Requests that fail validation get a
// JSON error and no stream.
func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	if h.MaxUploadBytes > 0 {
		// Multipart framing adds a little on top of the file itself.
		limit := h.MaxUploadBytes + 1<<20
		if c.Request.ContentLength > limit {
			h.tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	fh, err := c.FormFile("audio")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			h.tooLarge(c)
			return
		}
		response.RespondError(c, http.StatusBadRequest, "No audio file provided")
		return
	}
	if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
		h.tooLarge(c)
		return
	}
	mimeType := strings.ToLower(strings.TrimSpace(fh.Header.Get("Content-Type")))
	if _, ok := allowedMimeTypes[mimeType]; !ok {
		response.RespondError(c, http.StatusBadRequest, fmt.Sprintf("Unsupported file type: %s. Supported: mp3, wav, m4a, webm, mp4, mkv.", mimeType))
		return
	}

	apiKey := strings.TrimSpace(c.PostForm("groqApiKey"))
	if apiKey == "" && !h.Subtitler.HasKey() {
		response.RespondError(c, http.StatusBadRequest, missingKeyMessage)
		return
	}
	source := strings.TrimSpace(c.PostForm("sourceLanguage"))
	target := strings.TrimSpace(c.PostForm("outputLanguage"))
	if source != "" && !languages.Valid(source) {
		response.RespondError(c, http.StatusBadRequest, fmt.Sprintf("Unsupported source language: %s", source))
		return
	}
	if target != "" && (!languages.Valid(target) || languages.IsAuto(target)) {
		response.RespondError(c, http.StatusBadRequest, fmt.Sprintf("Unsupported output language: %s", target))
		return
	}
	jobID := strings.TrimSpace(c.PostForm("jobId"))
	if jobID == "" {
		jobID = uuid.NewString()
	} else if !jobstore.ValidID(jobID) {
		response.RespondError(c, http.StatusBadRequest, "Invalid job ID")
		return
	}

	if prev, exists := h.Queue.Get(jobID); exists && !prev.Status.Terminal() {
		response.RespondError(c, http.StatusConflict, duplicateJobMessage)
		return
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		h.Log.Error("create upload dir failed", "dir", h.UploadDir, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	uploadPath := filepath.Join(h.UploadDir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	defer func() {
		if err := os.Remove(uploadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.Log.Warn("upload cleanup failed", "path", uploadPath, "error", err)
		}
	}()
	if err := c.SaveUploadedFile(fh, uploadPath); err != nil {
		h.Log.Error("save upload failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	stream := newEventStream(c)
	req := pipeline.Request{
		JobID:          jobID,
		InputPath:      uploadPath,
		OriginalName:   fh.Filename,
		MimeType:       mimeType,
		SourceLanguage: source,
		TargetLanguage: target,
		APIKey:         apiKey,
	}

	stream.Emit(types.Progress(types.StepUploading, "Upload complete. Queued for processing..."))
	var (
		res   types.Result
		saved bool
	)
	_, err = h.Queue.Submit(c.Request.Context(), jobID, func(ctx context.Context) error {
		r, err := h.Subtitler.Run(ctx, req, stream)
		if err != nil {
			return err
		}
		res = r
		saved = h.save(ctx, jobID, r, fh.Filename)
		return nil
	})
	if err != nil {
		h.Log.Warn("submit job failed", "job", jobID, "error", err)
		stream.Emit(types.ProgressEvent{Type: types.EventError, Error: submitErrorMessage(err)})
		return
	}
	<-h.Queue.Done(jobID)

	final, _ := h.Queue.Get(jobID)
	switch final.Status {
	case jobqueue.StatusCompleted:
		ev := res.Event("")
		if saved {
			ev.JobID = jobID
		}
		stream.Emit(ev)
	case jobqueue.StatusError:
		stream.Emit(types.ProgressEvent{Type: types.EventError, Error: final.Error})
	default:
		// Cancelled: the client is gone or asked for it, nothing to report.
		h.Log.Info("job cancelled", "job", jobID)
	}
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, jobqueue.ErrDuplicate):
		return duplicateJobMessage
	case errors.Is(err, jobqueue.ErrClosed):
		return "Server is shutting down. Please retry."
	default:
		return "Internal server error"
	}
}

func (h *TranscribeHandler) tooLarge(c *gin.Context) {
	response.RespondError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("File too large. Maximum size is %s.", formatSize(h.MaxUploadBytes)))
}

func (h *TranscribeHandler) save(ctx context.Context, jobID string, res types.Result, original string) bool {
	if h.Store == nil {
		return false
	}
	err := h.Store.Save(context.WithoutCancel(ctx), jobID, res.SRT, jobstore.Meta{
		OriginalFilename: original,
		DetectedLanguage: res.DetectedLanguage,
		Duration:         res.Duration,
	})
	if err != nil {
		h.Log.Warn("store subtitles failed", "job", jobID, "error", err)
		return false
	}
	return true
}

// eventStream writes one JSON event per line and flushes after each. Emit
// is safe to call from the job goroutine.
type eventStream struct {
	c       *gin.Context
	mu      sync.Mutex
	started bool
}

func newEventStream(c *gin.Context) *eventStream {
	return &eventStream{c: c}
}

func (s *eventStream) startLocked() {
	if s.started {
		return
	}
	s.started = true
	h := s.c.Writer.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.c.Writer.WriteHeaderNow()
	s.c.Writer.Flush()
}

func (s *eventStream) Emit(ev types.ProgressEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
	if _, err := s.c.Writer.Write(append(b, '\n')); err != nil {
		return
	}
	s.c.Writer.Flush()
}

func formatSize(n int64) string {
	const gb = 1 << 30
	const mb = 1 << 20
	switch {
	case n >= gb && n%gb == 0:
		return fmt.Sprintf("%dGB", n/gb)
	case n >= mb:
		return fmt.Sprintf("%dMB", n/mb)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
