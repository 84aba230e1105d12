package cli

import (
	"fmt"

	"github.com/fmueller/voxapi/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "voxapi v%s\n", info.String())
			if info.Commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", info.Commit)
			}
			if info.Date != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built: %s\n", info.Date)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "go: %s\n", info.GoVersion)
			return nil
		},
	}
}
