package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/output"
	"github.com/Aman-CERP/ragsearch/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var (
		jsonOutput  bool
		shortOutput bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version information including git commit, build date, and Go version.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if shortOutput {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Short())
				return err
			}
			if jsonOutput {
				return output.New(cmd.OutOrStdout()).JSON(version.GetInfo())
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")
	cmd.Flags().BoolVar(&shortOutput, "short", false, "Output only the version number")
	return cmd
}
