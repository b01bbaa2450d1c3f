// Command wagerd runs the wager ledger HTTP service and its maintenance
// commands.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atmx/wager-engine/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "wagerd",
	Short:         "Wager ledger and derived-aggregate engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a .toml or .yaml config file (optional)")
	rootCmd.AddCommand(serveCmd, migrateCmd, leaderboardCmd, reconcileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("wagerd failed", "err", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the configuration and installs the JSON
// logger at the configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}
