package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/forPelevin/subtle/internal/http/response"
)

// StaticHandler serves a built single page client. Unknown paths outside
// /api get index.html so client-side routes survive a reload.
type StaticHandler struct {
	Dir string
}

func NewStaticHandler(dir string) *StaticHandler { return &StaticHandler{Dir: dir} }

func (h *StaticHandler) Serve(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/api") {
		response.RespondError(c, http.StatusNotFound, "Not found")
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		response.RespondError(c, http.StatusNotFound, "Not found")
		return
	}
	rel := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+c.Request.URL.Path)), "/"))
	if rel != "" && rel != "." {
		p := filepath.Join(h.Dir, rel)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			c.File(p)
			return
		}
	}
	c.File(filepath.Join(h.Dir, "index.html"))
}
