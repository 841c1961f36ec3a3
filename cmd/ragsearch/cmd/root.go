// Package cmd provides the CLI commands for ragsearch.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ragsearch/internal/config"
	ragerrors "github.com/Aman-CERP/ragsearch/internal/errors"
	"github.com/Aman-CERP/ragsearch/internal/logging"
	"github.com/Aman-CERP/ragsearch/internal/search"
	"github.com/Aman-CERP/ragsearch/pkg/version"
)

// globalOptions holds persistent flags and the lazily loaded configuration.
type globalOptions struct {
	configPath string
	dbPath     string
	debug      bool

	cfg        *config.Config
	logCleanup func()
}

// NewRootCmd creates the root command for the ragsearch CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalOptions{})
}

func newRootCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragsearch",
		Short: "Hybrid keyword and vector search over document chunks",
		Long: `ragsearch ranks document chunks by fusing full-text relevance with
vector similarity through a weighted sum.

Chunks, documents and their pre-computed embeddings live in one SQLite
database. Embeddings from several models can coexist; each query is
answered from one model's index.

  ragsearch index chunks.jsonl
  ragsearch search text "neural networks"
  ragsearch search hybrid "neural networks" --vector query.json
  ragsearch serve`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			g.close()
		},
	}

	cmd.SetVersionTemplate("ragsearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default: user config, then ./.ragsearch.yaml)")
	cmd.PersistentFlags().StringVar(&g.dbPath, "db", "", "Database path (overrides config and RAGSEARCH_DB_PATH)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newIndexCmd(g))
	cmd.AddCommand(newStatsCmd(g))
	cmd.AddCommand(newModelsCmd(g))
	cmd.AddCommand(newDocumentsCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints failures.
func Execute() error {
	g := &globalOptions{}
	// Failed commands skip PersistentPostRun.
	defer g.close()

	c, err := newRootCmd(g).ExecuteContextC(context.Background())
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(c, err, g.debug))
	}
	return err
}

// formatError renders err for the command that failed. Commands asked for
// JSON output get a JSON report; others get text with code and hint, plus
// cause and details when verbose.
func formatError(c *cobra.Command, err error, verbose bool) string {
	if errors.Is(err, context.Canceled) {
		return "Cancelled.\n"
	}
	re := search.Classify(err)
	if c != nil && wantsJSON(c) {
		if data, jerr := ragerrors.FormatJSON(re); jerr == nil {
			return string(data) + "\n"
		}
	}
	return ragerrors.FormatForCLI(re, verbose)
}

// wantsJSON reports whether c was run with --format json or --json.
func wantsJSON(c *cobra.Command) bool {
	lookup := func(name string) string {
		if f := c.Flags().Lookup(name); f != nil {
			return f.Value.String()
		}
		if f := c.InheritedFlags().Lookup(name); f != nil {
			return f.Value.String()
		}
		return ""
	}
	return lookup("format") == "json" || lookup("json") == "true"
}

// config loads configuration once. It honours --config and --db.
func (g *globalOptions) config() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}

	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		root, rerr := config.FindProjectRoot("")
		if rerr != nil {
			root = ""
		}
		cfg, err = config.Load(root)
	}
	if err != nil {
		return nil, ragerrors.ConfigError(err.Error(), err)
	}
	if g.dbPath != "" {
		cfg.Store.Path = g.dbPath
	}
	if g.debug {
		cfg.Logging.Level = "debug"
	}
	g.cfg = cfg
	return cfg, nil
}

// setupLogging sends logs to the configured file. Interactive commands keep
// stderr free for their own output unless --debug is set.
func (g *globalOptions) setupLogging(cfg *config.Config, serve bool) error {
	if g.logCleanup != nil {
		return nil
	}

	var (
		cleanup func()
		err     error
	)
	if serve {
		cleanup, err = logging.SetupServe(cfg.Logging)
	} else {
		logCfg := cfg.Logging
		logCfg.WriteToStderr = g.debug
		cleanup, err = logging.SetupDefault(logCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	g.logCleanup = cleanup
	slog.Debug("config_loaded", slog.String("db", cfg.Store.Path), slog.String("version", version.Version))
	return nil
}

// load is config plus logging, for commands that touch the database.
func (g *globalOptions) load(serve bool) (*config.Config, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	if err := g.setupLogging(cfg, serve); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (g *globalOptions) close() {
	if g.logCleanup != nil {
		g.logCleanup()
		g.logCleanup = nil
	}
}
