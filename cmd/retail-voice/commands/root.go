// Package commands is the retail-voice command line.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-retail-voice/internal/config"
	"github.com/teslashibe/go-retail-voice/internal/log"
)

// Version is overridden at build time with -ldflags "-X ...commands.Version=...".
var Version = "1.0.0"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "retail-voice",
	Short: "Voice assistant for a retail product catalog",
	Long: `retail-voice answers spoken or typed customer questions about products,
stock and store policies. Each utterance is transcribed, classified, served
from the catalog tool server and spoken back.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("RETAIL_VOICE_CONFIG"), "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves file, environment and persistent flags, validates,
// and initializes the process logger on logOut.
func loadConfig(logOut io.Writer) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	log.InitWriter(cfg.LogLevel, logOut)
	return cfg, nil
}
