package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/output"
	"github.com/Aman-CERP/ragsearch/internal/store"
)

func newDocumentsCmd(g *globalOptions) *cobra.Command {
	var (
		filter     store.DocumentFilter
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "List documents, newest first",
		Long: `List indexed documents, newest first, optionally narrowed to one
source or category.

  ragsearch documents --category papers
  ragsearch documents --source wiki --limit 20`,
		Args: cobra.NoArgs,
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

			docs, err := a.store.ListDocuments(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(docs)
			}
			if len(docs) == 0 {
				out.Status("", "No documents.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tSOURCE\tCATEGORY\tTITLE")
			for _, d := range docs {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, orDash(d.Source), orDash(d.Category), d.Title)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&filter.Source, "source", "", "Only documents with this source")
	cmd.Flags().StringVar(&filter.Category, "category", "", "Only documents in this category")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "Maximum documents to list (0 lists all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
