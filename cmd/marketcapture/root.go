package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	verbose bool
	envFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "marketcapture",
		Short:         "Capture marketplace listings from intercepted API traffic and clean exported sheets.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger, level := newLogger(opts.verbose, os.Stdout)
			slog.SetDefault(logger)
			slog.SetLogLoggerLevel(level.Level())
		},
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file with MARKET_* settings (ignored when missing)")

	cmd.AddCommand(newScrapeCmd(opts), newCleanCmd(), newRunsCmd())
	return cmd
}

func newLogger(verbose bool, out io.Writer) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// openLogFile creates <dir>/<DD-MM-YYYY>/<prefix>_<DDMMYYYY>.log in append mode.
func openLogFile(dir, prefix string, day time.Time) (*os.File, error) {
	path := logFilePath(dir, prefix, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func logFilePath(dir, prefix string, day time.Time) string {
	name := fmt.Sprintf("%s_%s.log", prefix, day.Format("02012006"))
	return filepath.Join(dir, day.Format("02-01-2006"), name)
}
