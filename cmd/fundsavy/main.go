package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fundsavy/fundsavy"
	"github.com/fundsavy/fundsavy/internal/errors"
)

// Version information set at build time.
var (
	commit = "none"
	date   = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "fundsavy",
		Short: "Group savings chat server",
		Long: `fundsavy serves group documents, email, Google and phone sign-in,
and live group chat screens over WebSocket.

Configuration is read from fundsavy.json (or .yaml, .yml, .toml) in the
working directory, or from the file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file or directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		serveCmd(flags),
		watchCmd(flags),
		loginCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig loads the configuration selected by --config and applies the
// log flags.
func (f *globalFlags) loadConfig() (*fundsavy.Config, error) {
	var (
		cfg *fundsavy.Config
		err error
	)
	switch fi, statErr := os.Stat(f.config); {
	case f.config == "":
		cfg, err = fundsavy.LoadConfig(".")
	case statErr == nil && fi.IsDir():
		cfg, err = fundsavy.LoadConfig(f.config)
	default:
		cfg, err = fundsavy.LoadConfigFile(f.config)
	}
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger from the log configuration.
func newLogger(cfg fundsavy.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
