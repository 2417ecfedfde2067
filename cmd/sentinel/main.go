package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sentinel/internal/container"
	"sentinel/internal/history"
	"sentinel/internal/settings"
)

// rootOptions carries the persistent flags and the logger built from them.
type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string

	logger *slog.Logger
	// prompt collects plugin answers for add. Replaced in tests.
	prompt promptFunc
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "sentinel:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&rootOptions{prompt: tuiPrompt})
}

func newRootCmdWith(opts *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:           "sentinel",
		Short:         "Static relationship and risk analysis for multi-agent Python code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.verbose, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Settings file (default <target>/.sentinel/settings.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text or json)")

	root.AddCommand(
		newScanCmd(opts),
		newAnalyzeCmd(opts),
		newAnalyzeGraphCmd(opts),
		newInspectCmd(opts),
		newInitCmd(opts),
		newAddCmd(opts),
		newRunCmd(opts),
		newListCmd(opts),
		newRemoveCmd(opts),
		newHistoryCmd(opts),
		newCompareCmd(opts),
		newServeCmd(opts),
	)
	return root
}

func newLogger(w io.Writer, verbose bool, format string) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
}

// loadSettings resolves --config, falling back to the target's settings file.
func (o *rootOptions) loadSettings(target string) (*settings.Settings, error) {
	if o.configPath != "" {
		return settings.LoadFile(o.configPath)
	}
	return settings.Load(target)
}

func openHistory() (*history.Store, error) {
	path, err := container.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.New(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
