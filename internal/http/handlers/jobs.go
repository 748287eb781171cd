package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/subtle/internal/http/response"
	"github.com/forPelevin/subtle/internal/jobqueue"
	"github.com/forPelevin/subtle/internal/jobstore"
	"github.com/forPelevin/subtle/internal/platform/logger"
)

type JobHandler struct {
	Log   *logger.Logger
	Queue *jobqueue.Queue
	Store SubtitleStore
}

func NewJobHandler(log *logger.Logger, q *jobqueue.Queue, store SubtitleStore) *JobHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &JobHandler{Log: log, Queue: q, Store: store}
}

// ListJobs returns the jobs known to the queue and the subtitles still
// available for download.
func (h *JobHandler) ListJobs(c *gin.Context) {
	stored, err := h.Store.List(c.Request.Context())
	if err != nil {
		h.Log.Error("list stored subtitles failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if stored == nil {
		stored = []jobstore.Entry{}
	}
	response.RespondOK(c, gin.H{"jobs": h.Queue.List(), "stored": stored})
}

// DeleteJob cancels a queued or running job. For a finished job it removes
// the stored subtitles instead.
func (h *JobHandler) DeleteJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if !jobstore.ValidID(jobID) {
		response.RespondError(c, http.StatusBadRequest, "Invalid job ID")
		return
	}
	if h.Queue.Cancel(jobID) {
		h.Log.Info("job cancel requested", "job", jobID)
		response.RespondOK(c, gin.H{"jobId": jobID, "cancelled": true})
		return
	}

	ctx := c.Request.Context()
	if _, _, err := h.Store.Get(ctx, jobID); err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "Job not found")
			return
		}
		h.Log.Error("lookup stored subtitles failed", "job", jobID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	if err := h.Store.Delete(ctx, jobID); err != nil {
		h.Log.Error("delete stored subtitles failed", "job", jobID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	response.RespondOK(c, gin.H{"jobId": jobID, "deleted": true})
}
