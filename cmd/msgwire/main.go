package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vango-dev/msgwire/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌┬┐┌─┐┌─┐┬ ┬┬┬─┐┌─┐
  │││└─┐│ ┬││││├┬┘├┤
  ┴ ┴└─┘└─┘└┴┘┴┴└─└─┘
`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

// logFlags are the persistent logging flags.
type logFlags struct {
	level string
	file  string
}

func newRootCmd() *cobra.Command {
	var lf logFlags

	rootCmd := &cobra.Command{
		Use:   "msgwire",
		Short: "Encode, inspect and serve msgwire binary messages",
		Long: `msgwire works with the msgwire binary message format: length-prefixed,
tagged frames that nest positionally.

  • encode JSON message descriptions to bytes
  • inspect frame trees, including quarantined datagrams
  • run a websocket echo server with Prometheus metrics
  • send messages to a running server`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(lf.level, lf.file, 0, 0)
		},
	}

	rootCmd.PersistentFlags().StringVar(&lf.level, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&lf.file, "log-file", "", "Write logs to a rotated file instead of stderr")

	rootCmd.AddCommand(
		encodeCmd(),
		inspectCmd(),
		serveCmd(),
		sendCmd(),
		benchCmd(),
		versionCmd(),
	)
	return rootCmd
}

// setupLogging installs the default slog logger. With a file, output goes
// through lumberjack with the given rotation limits (zero keeps the
// lumberjack defaults).
func setupLogging(level, file string, maxSizeMB, maxBackups int) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("unknown log level %q", level)).
			WithSuggestion("Use one of debug, info, warn, error")
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		}
	}
	slog.SetDefault(newLogger(out, lvl))
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
