package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lajosnagyuk/hostprobe/pkg/config"
	"github.com/lajosnagyuk/hostprobe/pkg/log"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
		Long: `Manage the hostprobe configuration.

The file is TOML, read from ~/.hostprobe/config.toml unless --config or
HOSTPROBE_CONFIG names another. HOSTPROBE_TTL, HOSTPROBE_MAX_FILE_SIZE,
HOSTPROBE_COMMAND_TIMEOUT, HOSTPROBE_STRICT, HOSTPROBE_SANITIZE_ENV and
HOSTPROBE_PARALLEL override it.

Examples:
  hostprobe config show
  hostprobe config init
  hostprobe config path`,
	}

	cmd.AddCommand(
		newConfigShowCmd(a),
		newConfigPathCmd(a),
		newConfigInitCmd(a),
	)
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			p := NewPrinter(cmd)
			if p.IsStructured() {
				return p.Print(cfg)
			}
			data, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			_, err = p.Writer.Write(data)
			return err
		},
	}
}

func newConfigPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(a)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigInitCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(a)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("cannot access %s: %w", path, err)
			}

			data, err := config.Encode(config.Default())
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			log.OK("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func configPath(a *app) (string, error) {
	if a.cfgPath != "" {
		return a.cfgPath, nil
	}
	return config.DefaultConfigPath()
}
