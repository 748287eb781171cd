package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/subtle/internal/jobstore"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List stored subtitles that can still be downloaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobstore.Open(cfg.Storage.Dir, cfg.Storage.Expiry(), nil)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No stored subtitles")
				return nil
			}
			now := time.Now()
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				left := e.CreatedAt.Add(cfg.Storage.Expiry()).Sub(now).Round(time.Second)
				if left < 0 {
					left = 0
				}
				rows = append(rows, []string{
					e.ID,
					jobstore.DownloadName(e.OriginalFilename),
					e.DetectedLanguage,
					formatDuration(e.Duration),
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					left.String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "File", "Language", "Duration", "Created", "Expires In"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func formatDuration(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d%time.Hour) / int(time.Minute)
	s := int(d%time.Minute) / int(time.Second)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
