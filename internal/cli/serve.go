package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/subtle/internal/config"
	httpapi "github.com/forPelevin/subtle/internal/http"
	httpH "github.com/forPelevin/subtle/internal/http/handlers"
	"github.com/forPelevin/subtle/internal/jobqueue"
	"github.com/forPelevin/subtle/internal/jobstore"
	"github.com/forPelevin/subtle/internal/pipeline"
	"github.com/forPelevin/subtle/internal/platform/logger"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(runCtx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	store, err := jobstore.Open(cfg.Storage.Dir, cfg.Storage.Expiry(), log)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := pipeline.New(cfg, log)
	q := jobqueue.New(cfg.Server.MaxConcurrentJobs, log)

	rc := httpapi.RouterConfig{
		Log:               log,
		CORSOrigins:       cfg.Server.CORSOrigins,
		TranscribeHandler: httpH.NewTranscribeHandler(log, svc, store, q, cfg.Server.UploadDir, cfg.Server.MaxUploadBytes()),
		DownloadHandler:   httpH.NewDownloadHandler(log, store),
		MetaHandler:       httpH.NewMetaHandler(svc),
		JobHandler:        httpH.NewJobHandler(log, q, store),
		HealthHandler:     httpH.NewHealthHandler(),
	}
	if cfg.Server.StaticDir != "" {
		rc.StaticHandler = httpH.NewStaticHandler(cfg.Server.StaticDir)
	}
	server := httpapi.NewServer(rc)

	if !svc.HasKey() {
		log.Warn("no server API key configured, clients must send their own")
	}
	log.Info("server starting", "addr", cfg.Server.Addr, "max_jobs", cfg.Server.MaxConcurrentJobs, "storage", cfg.Storage.Dir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.Server.Addr)
	})
	g.Go(func() error {
		store.RunSweeper(gctx, cfg.Storage.SweepInterval())
		return nil
	})
	g.Go(func() error {
		pruneJobs(gctx, q, cfg.Storage.Expiry(), cfg.Storage.SweepInterval())
		return nil
	})
	g.Go(func() error {
		// Streaming handlers wait on their jobs, so jobs must stop for the
		// server to finish shutting down.
		<-gctx.Done()
		q.Close()
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}

// pruneJobs drops finished job snapshots once their subtitles would have
// expired anyway.
func pruneJobs(ctx context.Context, q *jobqueue.Queue, keep, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Prune(time.Now().Add(-keep))
		}
	}
}
