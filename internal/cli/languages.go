package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/subtle/internal/languages"
)

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported language codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := languages.All()
			rows := make([][]string, 0, len(all))
			for _, l := range all {
				rows = append(rows, []string{l.Code, l.Name})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Language"}, rows, nil))
			return nil
		},
	}
}
