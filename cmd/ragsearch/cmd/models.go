package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/output"
)

func newModelsCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List or prune embedding models",
	}
	cmd.AddCommand(newModelsListCmd(g))
	cmd.AddCommand(newModelsPruneCmd(g))
	return cmd
}

func newModelsListCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List indexed models with their dimension and vector count",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load(false)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			models, err := a.store.Models(cmd.Context())
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(models)
			}
			if len(models) == 0 {
				out.Status("", "No embeddings indexed.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "MODEL\tKIND\tDIM\tVECTORS")
			for _, m := range models {
				name := m.Model
				if m.Model == a.store.DefaultModel() {
					name += " (default)"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", name, m.Kind, m.Dim, m.Count)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newModelsPruneCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <model>",
		Short: "Delete every embedding of a model",
		Long: `Delete every embedding produced by a model. Chunks and documents are
kept, and other models' embeddings are untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(false)
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.registry.Prune(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if n == 0 {
				out.Warningf("No embeddings found for model %q", args[0])
				return nil
			}
			out.Successf("Pruned %d embeddings of model %q", n, args[0])
			return nil
		},
	}
}
