package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/output"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/internal/store"
)

// defaultVectorThreshold is the similarity floor for `search vector` when
// --threshold is not given.
const defaultVectorThreshold = 0.8

type searchOptions struct {
	limit  int
	source string
	format string

	model      string
	kind       string
	vectorFile string
	probe      int

	// Separate fields: pflag writes each default into its variable.
	vectorThreshold float64
	hybridThreshold float64

	textWeight   float64
	vectorWeight float64
	allowDegrade bool
}

func newSearchCmd(g *globalOptions) *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search indexed chunks",
		Long: `Search indexed chunks by keywords, by vector similarity, or both.

Text queries support quoted phrases, OR and a leading '-' for exclusion:
  "neural network" OR transformer -rnn

Quote the whole query, or end the flags with '--', so an exclusion is not
read as a flag:
  ragsearch search text 'neural -rnn'
  ragsearch search text --source wiki -- neural -rnn

Query vectors are read from a JSON file holding either a bare array of
numbers or an object with an "embedding" array. Use '-' for stdin.`,
	}

	cmd.PersistentFlags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default from config)")
	cmd.PersistentFlags().StringVar(&opts.source, "source", "", "Only return chunks whose document has this source")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	cmd.AddCommand(newSearchTextCmd(g, opts))
	cmd.AddCommand(newSearchVectorCmd(g, opts))
	cmd.AddCommand(newSearchHybridCmd(g, opts))
	return cmd
}

func newSearchTextCmd(g *globalOptions, opts *searchOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "text [flags] [--] <query>",
		Short: "Rank chunks by keyword relevance",
		Example: `  ragsearch search text "neural network" OR transformer
  ragsearch search text -n 5 -- neural -rnn`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateFormat(); err != nil {
				return err
			}
			a, err := g.openForSearch(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			results, err := a.engine.SearchText(cmd.Context(), search.TextQuery{
				Query:  strings.Join(args, " "),
				Source: opts.source,
				Limit:  opts.limit,
			})
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), results, false, nil)
		},
	}
}

func newSearchVectorCmd(g *globalOptions, opts *searchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Rank chunks by similarity to a query vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validateFormat(); err != nil {
				return err
			}
			kind, err := store.ParseKind(opts.kind)
			if err != nil {
				return err
			}
			vec, vecModel, err := readQueryVector(cmd.InOrStdin(), opts.vectorFile)
			if err != nil {
				return err
			}
			a, err := g.openForSearch(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			threshold := opts.vectorThreshold
			results, err := a.engine.SearchVector(cmd.Context(), search.VectorQuery{
				Vector:      vec,
				Model:       opts.model,
				VectorModel: vecModel,
				Kind:        kind,
				Threshold:   &threshold,
				Source:      opts.source,
				Limit:       opts.limit,
				Probe:       opts.probe,
			})
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), results, false, nil)
		},
	}

	opts.vectorFlags(cmd)
	cmd.Flags().Float64Var(&opts.vectorThreshold, "threshold", defaultVectorThreshold, "Keep only similarity strictly above this value (0-1)")
	return cmd
}

func newSearchHybridCmd(g *globalOptions, opts *searchOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hybrid [flags] [--] <query>",
		Short: "Rank chunks by weighted keyword and vector scores",
		Long: `Rank chunks by a weighted sum of keyword relevance and vector similarity.

Both legs run concurrently. Weights default to the configured
search.weights; pass both --text-weight and --vector-weight to override.
Put '--' before a query whose words start with '-'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateFormat(); err != nil {
				return err
			}
			kind, err := store.ParseKind(opts.kind)
			if err != nil {
				return err
			}

			var weights *search.Weights
			textSet, vecSet := cmd.Flags().Changed("text-weight"), cmd.Flags().Changed("vector-weight")
			if textSet != vecSet {
				return fmt.Errorf("%w: set both --text-weight and --vector-weight, or neither", search.ErrInvalidWeights)
			}
			if textSet {
				weights = &search.Weights{Text: opts.textWeight, Vector: opts.vectorWeight}
			}

			var threshold *float64
			if cmd.Flags().Changed("threshold") {
				t := opts.hybridThreshold
				threshold = &t
			}

			vec, vecModel, err := readQueryVector(cmd.InOrStdin(), opts.vectorFile)
			if err != nil {
				return err
			}
			a, err := g.openForSearch(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			resp, err := a.engine.SearchHybrid(cmd.Context(), search.HybridQuery{
				Query:           strings.Join(args, " "),
				Vector:          vec,
				Model:           opts.model,
				VectorModel:     vecModel,
				Kind:            kind,
				Source:          opts.source,
				Limit:           opts.limit,
				Probe:           opts.probe,
				Weights:         weights,
				VectorThreshold: threshold,
				Degraded:        opts.allowDegrade,
			})
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), resp.Results, true, resp)
		},
	}

	opts.vectorFlags(cmd)
	cmd.Flags().Float64Var(&opts.hybridThreshold, "threshold", 0, "Drop vector candidates at or below this similarity (default: none)")
	cmd.Flags().Float64Var(&opts.textWeight, "text-weight", 0, "Weight of the keyword score")
	cmd.Flags().Float64Var(&opts.vectorWeight, "vector-weight", 0, "Weight of the vector score")
	cmd.Flags().BoolVar(&opts.allowDegrade, "allow-degrade", false, "Return keyword-only results if vector search fails")
	return cmd
}

func (o *searchOptions) vectorFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.vectorFile, "vector", "", "JSON file holding the query vector ('-' for stdin)")
	cmd.Flags().StringVar(&o.model, "model", "", "Embedding model to search (default from config)")
	cmd.Flags().StringVar(&o.kind, "kind", "", "Vector kind: body, chunk, description (default body)")
	cmd.Flags().IntVar(&o.probe, "probe", 0, "Index recall budget: HNSW ef_search or IVF lists probed (default from config)")
	_ = cmd.MarkFlagRequired("vector")
}

func (o *searchOptions) validateFormat() error {
	switch o.format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid format %q: use text or json", o.format)
	}
}

// hybridJSON is the JSON shape of a hybrid response.
type hybridJSON struct {
	Results  []search.ScoredChunk `json:"results"`
	Degraded bool                 `json:"degraded,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}

func (o *searchOptions) print(w io.Writer, results []search.ScoredChunk, hybrid bool, resp *search.Response) error {
	out := output.New(w)
	if o.format == "json" {
		if resp != nil {
			return out.JSON(hybridJSON{Results: results, Degraded: resp.Degraded, Reason: resp.Reason})
		}
		return out.JSON(results)
	}

	if resp != nil && resp.Degraded {
		out.Warningf("Vector search unavailable, showing keyword results only: %s", resp.Reason)
		out.Newline()
	}
	out.Results(results, hybrid)
	return nil
}

// openForSearch opens the database with vector indexes loaded.
func (g *globalOptions) openForSearch(cmd *cobra.Command) (*app, error) {
	cfg, err := g.load(false)
	if err != nil {
		return nil, err
	}
	return openApp(cmd.Context(), cfg, true)
}

// queryVectorFile is the object form of a query vector file.
type queryVectorFile struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// readQueryVector reads a query vector from path, or from stdin when path is
// "-". It accepts a bare JSON array or {"embedding": [...], "model": "..."}.
func readQueryVector(stdin io.Reader, path string) ([]float32, string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read query vector: %w", err)
	}
	return parseQueryVector(data)
}

func parseQueryVector(data []byte) ([]float32, string, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var vec []float32
		if err := json.Unmarshal([]byte(trimmed), &vec); err != nil {
			return nil, "", fmt.Errorf("invalid query vector: %w", err)
		}
		return vec, "", nil
	}

	var f queryVectorFile
	if err := json.Unmarshal([]byte(trimmed), &f); err != nil {
		return nil, "", fmt.Errorf("invalid query vector: %w", err)
	}
	if f.Embedding == nil {
		return nil, "", fmt.Errorf("invalid query vector: no \"embedding\" array")
	}
	return f.Embedding, f.Model, nil
}
