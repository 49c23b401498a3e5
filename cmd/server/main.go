package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hls-live/internal/platform/config"
)

const appName = "Live Stream Server"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "hls-live",
	Short:   "RTMP to HLS live streaming server",
	Version: version,
	Long: `hls-live receives lifecycle hooks from an RTMP ingest server, authorizes
publishers by stream key and transcodes the accepted stream to HLS with ffmpeg.

Configuration is read from the environment (and a .env file when present):
  STREAM_KEY     - key publishers must use
  RTMP_HOST      - ingest server host ffmpeg pulls from
  HLS_PATH       - root directory for HLS output
  PORT           - REST API port
  HTTP_PORT      - HLS media port

Running without a subcommand is the same as "serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		path, _ := cmd.Flags().GetString("env-file")
		// A missing .env is fine; the environment and defaults still apply.
		if err := config.Load(path); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error), overrides LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json), overrides LOG_FORMAT")

	rootCmd.AddCommand(serveCmd, diagnoseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies the logging flags.
func loadConfig(cmd *cobra.Command) config.Config {
	cfg := config.FromEnv()
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat, _ = cmd.Flags().GetString("log-format")
	}
	return cfg
}
