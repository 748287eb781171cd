package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/subtle/internal/http/response"
	"github.com/forPelevin/subtle/internal/jobstore"
	"github.com/forPelevin/subtle/internal/platform/logger"
)

type DownloadHandler struct {
	Log   *logger.Logger
	Store SubtitleStore
}

func NewDownloadHandler(log *logger.Logger, store SubtitleStore) *DownloadHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &DownloadHandler{Log: log, Store: store}
}

func (h *DownloadHandler) Download(c *gin.Context) {
	jobID := c.Param("jobId")
	if !jobstore.ValidID(jobID) {
		response.RespondError(c, http.StatusBadRequest, "Invalid job ID")
		return
	}
	srt, meta, err := h.Store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			response.RespondError(c, http.StatusNotFound, "File not found or expired. Please regenerate.")
			return
		}
		h.Log.Error("read stored subtitles failed", "job", jobID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, jobstore.DownloadName(meta.OriginalFilename)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(srt))
}
