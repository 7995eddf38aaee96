package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tasknerd/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		shown := *cfg
		if shown.Generative.APIKey != "" {
			shown.Generative.APIKey = "********"
		}
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", configPath, data)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := os.Stat(configPath); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
