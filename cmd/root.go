// Package cmd implements the hedgewatch command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/hedgewatch/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile   string
	verbose   bool
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "hedgewatch",
	Short: "Watch streaming hedge-fund analyses from the terminal",
	Long: `hedgewatch requests an analysis from the hedge-fund service and renders the
per-agent progress stream live. It can also relay one session at a time to
other clients over HTTP, server-sent events, and WebSocket.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.hedgewatch/config.json or $HEDGEWATCH_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default from config)")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// loadConfig loads the config or exits with a readable message.
func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %s\n", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the default slog handler writing to w. The format
// and level come from flags, falling back to the config file.
func setupLogging(w io.Writer) {
	format, level := logFormat, ""
	if cfg, err := config.Load(resolveConfigPath()); err == nil {
		if format == "" {
			format = cfg.Log.Format
		}
		level = cfg.Log.Level
	}
	if verbose {
		level = "debug"
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// redirectLogs moves logging into the configured log file so it does not
// tear a full-screen view. The returned func restores stderr logging.
func redirectLogs(cfg *config.Config) func() {
	path := config.ExpandHome(cfg.Log.File)
	if path == "" {
		setupLogging(io.Discard)
		return func() { setupLogging(os.Stderr) }
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		slog.Warn("log.file_unavailable", "path", path, "error", err)
		setupLogging(io.Discard)
		return func() { setupLogging(os.Stderr) }
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		slog.Warn("log.file_unavailable", "path", path, "error", err)
		setupLogging(io.Discard)
		return func() { setupLogging(os.Stderr) }
	}
	setupLogging(f)
	return func() {
		setupLogging(os.Stderr)
		f.Close()
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the hedgewatch version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hedgewatch %s\n", Version)
		},
	}
}
