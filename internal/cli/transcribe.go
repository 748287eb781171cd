package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/forPelevin/subtle/internal/jobqueue"
	"github.com/forPelevin/subtle/internal/languages"
	"github.com/forPelevin/subtle/internal/pipeline"
	"github.com/forPelevin/subtle/internal/ports"
	"github.com/forPelevin/subtle/internal/types"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		source      string
		target      string
		outDir      string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "transcribe <file>...",
		Short: "Generate SRT subtitles for local audio or video files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !languages.Valid(source) {
				return fmt.Errorf("unsupported source language %q (see `subtle languages`)", source)
			}
			if target != "" && (!languages.Valid(target) || languages.IsAuto(target)) {
				return fmt.Errorf("unsupported target language %q (see `subtle languages`)", target)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}
			log, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			if concurrency <= 0 {
				concurrency = cfg.Server.MaxConcurrentJobs
			}
			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			svc := pipeline.New(cfg, log)
			q := jobqueue.New(concurrency, log)
			defer q.Close()

			type outcome struct {
				input string
				srt   string
				res   types.Result
			}
			var (
				mu       sync.Mutex
				outcomes = make(map[string]outcome, len(args))
				ids      = make([]string, 0, len(args))
			)
			stderr := cmd.ErrOrStderr()
			for _, arg := range args {
				input, err := filepath.Abs(arg)
				if err != nil {
					return err
				}
				if _, err := os.Stat(input); err != nil {
					return fmt.Errorf("stat input: %w", err)
				}
				id := uuid.NewString()
				name := filepath.Base(input)
				sink := ports.SinkFunc(func(ev types.ProgressEvent) {
					mu.Lock()
					defer mu.Unlock()
					fmt.Fprintf(stderr, "[%s] %s\n", name, ev.Message)
				})
				_, err = q.Submit(runCtx, id, func(jobCtx context.Context) error {
					srtPath, res, err := svc.RunFile(jobCtx, pipeline.Request{
						JobID:          id,
						InputPath:      input,
						OriginalName:   name,
						SourceLanguage: source,
						TargetLanguage: target,
					}, outDir, sink)
					if err != nil {
						return err
					}
					mu.Lock()
					outcomes[id] = outcome{input: input, srt: srtPath, res: res}
					mu.Unlock()
					return nil
				})
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			if err := q.Wait(runCtx); err != nil {
				return err
			}

			rows := make([][]string, 0, len(ids))
			failed := 0
			for i, id := range ids {
				snap, _ := q.Get(id)
				o := outcomes[id]
				status := string(snap.Status)
				if snap.Status == jobqueue.StatusError {
					failed++
					status = "error: " + snap.Error
				}
				rows = append(rows, []string{
					filepath.Base(args[i]),
					status,
					o.res.DetectedLanguage,
					strconv.Itoa(o.res.Segments),
					o.srt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Input", "Status", "Language", "Entries", "SRT"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			if runCtx.Err() != nil {
				return context.Canceled
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(ids))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", languages.Auto, "Spoken language code, or auto")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Translate subtitles into this language code")
	cmd.Flags().StringVarP(&outDir, "out", "o", "out", "Output directory")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Files processed at once (default server.max_concurrent_jobs)")
	return cmd
}
