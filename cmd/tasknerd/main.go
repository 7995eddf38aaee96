// Package main provides the tasknerd CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tasknerd/internal/config"
	"tasknerd/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
	ownerFlag  string

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tasknerd",
	Short: "tasknerd - a conversational todo list",
	Long: `tasknerd manages your tasks through plain-language conversation.

Say what you want ("add a task to buy milk by friday", "mark the milk one
as done", "show my pending tasks") and tasknerd asks for anything missing,
restates the change, and only touches your list after you confirm.

Run without arguments to start the interactive chat interface.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Database.Path = dbPath
		}
		if ownerFlag != "" {
			cfg.Conversation.DefaultOwner = ownerFlag
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// The chat UI owns the terminal; keep log lines out of it.
		if isInteractive(cmd) && cfg.Logging.Dir == "" {
			cfg.Logging.Dir = filepath.Join(filepath.Dir(cfg.Database.Path), "logs")
		}
		if err := logging.Initialize(cfg.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.ZapLogger()
		logging.Get(logging.CategoryConfig).Debug("Config loaded from %s (db=%s)", configPath, cfg.Database.Path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runChat(cmd, args)
	},
}

func isInteractive(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "tasknerd", "chat":
		return true
	}
	return false
}

func defaultConfigPath() string {
	if p := os.Getenv("TASKNERD_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(".tasknerd", "config.yaml")
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Task database path (overrides config and TASKNERD_DB)")
	rootCmd.PersistentFlags().StringVarP(&ownerFlag, "owner", "o", "", "Owner whose tasks are managed (default: config conversation.default_owner)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tracesCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
