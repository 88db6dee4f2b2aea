package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/profacademy/profacademy/internal/config"
	"github.com/profacademy/profacademy/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "profacademy",
	Short: "Learn to program with an AI professor",
	Long: `Professor Academy: a terminal tutor that teaches programming in German.
Pick a language, work through modules in the editor and let the professor
run and debug your code.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

// Execute runs the root command. ctx is cancelled on interrupt.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides PROFACADEMY_DB_PATH)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/profacademy/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Start the terminal interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApp(cmd)
	},
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the configured db_path, then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg != nil && cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}
