package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ragsearch/configs"
	"github.com/Aman-CERP/ragsearch/internal/config"
	"github.com/Aman-CERP/ragsearch/internal/output"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user configuration file.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/ragsearch/config.yaml)
  3. Project config (.ragsearch.yaml)
  4. Environment variables (RAGSEARCH_*, DATABASE_URL)
  5. Command-line flags (--db)`,
		Example: `  # Create user config with defaults
  ragsearch config init

  # Show effective configuration
  ragsearch config show

  # Print user config file path
  ragsearch config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, project bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Write a commented configuration template to ~/.config/ragsearch/config.yaml
(or $XDG_CONFIG_HOME/ragsearch/config.yaml if XDG_CONFIG_HOME is set).

With --project the template goes to ./.ragsearch.yaml instead. With --force
an existing user config is backed up before it is replaced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if project {
				return runConfigInitProject(cmd, force)
			}
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace existing configuration (keeps a backup)")
	cmd.Flags().BoolVar(&project, "project", false, "Create .ragsearch.yaml in the current directory")
	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := config.GetUserConfigPath()

	var backup string
	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", path)
			out.Newline()
			out.Status("💡", "Use --force to replace it with the template (a backup is kept)")
			return nil
		}
		var err error
		if backup, err = config.BackupUserConfig(); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	if err := writeTemplate(path, configs.UserConfigTemplate); err != nil {
		return err
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", path)
	if backup != "" {
		out.Statusf("💾", "Backup: %s", backup)
	}
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Uncomment the settings you want to change")
	out.Status("", "  2. Run 'ragsearch config show' to verify")
	return nil
}

func runConfigInitProject(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := config.ProjectConfigName

	if _, err := os.Stat(path); err == nil && !force {
		out.Warningf("%s already exists", path)
		out.Status("💡", "Use --force to overwrite it")
		return nil
	}
	if err := writeTemplate(path, configs.ProjectConfigTemplate); err != nil {
		return err
	}
	out.Successf("Created %s", path)
	return nil
}

func writeTemplate(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
