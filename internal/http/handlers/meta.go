package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/forPelevin/subtle/internal/http/response"
	"github.com/forPelevin/subtle/internal/languages"
)

type MetaHandler struct {
	Subtitler Subtitler
}

func NewMetaHandler(s Subtitler) *MetaHandler { return &MetaHandler{Subtitler: s} }

// Config tells the client whether it has to supply its own API key.
func (h *MetaHandler) Config(c *gin.Context) {
	response.RespondOK(c, gin.H{"hasGroqApiKey": h.Subtitler != nil && h.Subtitler.HasKey()})
}

func (h *MetaHandler) Languages(c *gin.Context) {
	response.RespondOK(c, gin.H{"languages": languages.All()})
}
