package http

import (
	"github.com/gin-gonic/gin"

	httpH "github.com/forPelevin/subtle/internal/http/handlers"
	httpMW "github.com/forPelevin/subtle/internal/http/middleware"
	"github.com/forPelevin/subtle/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	CORSOrigins []string

	TranscribeHandler *httpH.TranscribeHandler
	DownloadHandler   *httpH.DownloadHandler
	MetaHandler       *httpH.MetaHandler
	JobHandler        *httpH.JobHandler
	HealthHandler     *httpH.HealthHandler

	// StaticHandler serves the built client when set.
	StaticHandler *httpH.StaticHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.TranscribeHandler != nil {
			api.POST("/transcribe", cfg.TranscribeHandler.Transcribe)
		}
		if cfg.DownloadHandler != nil {
			api.GET("/download/:jobId", cfg.DownloadHandler.Download)
		}
		if cfg.MetaHandler != nil {
			api.GET("/config", cfg.MetaHandler.Config)
			api.GET("/languages", cfg.MetaHandler.Languages)
		}
		if cfg.JobHandler != nil {
			api.GET("/jobs", cfg.JobHandler.ListJobs)
			api.DELETE("/jobs/:jobId", cfg.JobHandler.DeleteJob)
		}
	}

	if cfg.StaticHandler != nil {
		r.NoRoute(cfg.StaticHandler.Serve)
	}
	return r
}
