package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/ui"
)

func newStatsCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:     "stats",
		Aliases: []string{"status"},
		Short:   "Show database counts and vector indexes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(false)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st, err := a.store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			info := ui.StatusInfo{
				Path:      a.store.Path(),
				Backend:   a.store.Backend(),
				IndexType: cfg.Vector.Type,
				Store:     st,
				Indexes:   a.registry.Models(),
				LoadTime:  a.loadTime,
			}
			if fi, err := os.Stat(a.store.Path()); err == nil {
				info.SizeBytes = fi.Size()
			}

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")
	return cmd
}
