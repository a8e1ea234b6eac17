package main

import (
	"fmt"
	"os"

	"github.com/SAGSA/dbbackupctl/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage dbbackupctl configuration. Subcommands allow viewing, validating,
and bootstrapping configuration files.`,
		Example: `  dbbackupctl config show
  dbbackupctl config validate
  dbbackupctl config init dbbackupctl.yaml`,
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigValidateCmd(),
		newConfigInitCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration in YAML format, with defaults and
day-selector fills applied.`,
		Example: `  dbbackupctl config show
  dbbackupctl config show --config /etc/dbbackupctl/dbbackupctl.yaml`,
		RunE: configShowRun,
	}
}

func configShowRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	data, err := yaml.Marshal(globalCfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println(string(data))

	return nil
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [FILE]",
		Short: "Validate a configuration file",
		Long: `Load a configuration file and report whether it is valid. With no
argument the file is auto-discovered like every other command does.`,
		Example: `  dbbackupctl config validate
  dbbackupctl config validate /etc/dbbackupctl/dbbackupctl.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: configValidateRun,
	}
}

func configValidateRun(cmd *cobra.Command, args []string) error {
	path := cfgPath
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		var err error
		path, err = config.FindConfigFile()
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}

	fmt.Printf("%s is valid (%d roots, %d policies)\n", path, len(cfg.Roots), len(cfg.Policies))
	return nil
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [FILE]",
		Short: "Write a starter configuration file",
		Long: `Write a starter configuration file with one example policy. The file
defaults to dbbackupctl.yaml in the current directory and is never
overwritten.`,
		Example: `  dbbackupctl config init
  dbbackupctl config init /etc/dbbackupctl/dbbackupctl.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: configInitRun,
	}
}

func configInitRun(cmd *cobra.Command, args []string) error {
	path := "dbbackupctl.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}

	weekly := 4
	cfg := config.DefaultConfig()
	cfg.Roots = []string{"/var/backups/sql"}
	cfg.Depth = 1
	cfg.DBPath = "/var/lib/dbbackupctl/dbbackupctl.db"
	cfg.Policies = []config.Policy{
		{
			Default:            true,
			KeepVersions:       7,
			KeepVersionsWeekly: &weekly,
			DaysOfWeek:         []string{"Sunday"},
		},
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Printf("Wrote starter configuration to %s\n", path)
	return nil
}
