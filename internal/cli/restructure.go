package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forPelevin/subtle/internal/domain/subtitles"
)

func newRestructureCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "restructure <file.srt>",
		Short: "Re-time and re-wrap an existing SRT file for readability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			segs, err := subtitles.ParseStrict(string(b))
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			srt := subtitles.Serialize(subtitles.Restructure(segs))
			if out == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), srt)
				return err
			}
			if err := os.WriteFile(out, []byte(srt), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "restructured %d -> %d entries: %s\n", len(segs), len(subtitles.Parse(srt)), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to this file instead of stdout")
	return cmd
}
