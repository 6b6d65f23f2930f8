// Command kbharness runs knowledge-base audio test suites against a live
// speech pipeline: question audio is generated (or loaded), streamed into an
// STT provider like a microphone would, and the transcript is validated
// against the expected answer.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/unamentis/kbharness/internal/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "kbharness: %v\n", err)
		os.Exit(1)
	}
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "kbharness",
		Short:         "Audio test harness for knowledge-base voice pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml",
		"path to the YAML configuration file")

	root.AddCommand(
		newRunCmd(opts),
		newVoicesCmd(opts),
		newCheckCmd(),
		newHistoryCmd(opts),
		newSimilarCmd(opts),
	)
	return root
}

// loadConfig reads the configuration and installs the configured logger as
// the process default.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", o.configPath)
		}
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	return cfg, nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// embeddingDimensions resolves the vector dimension for the result store,
// defaulting to 1536 (OpenAI text-embedding-3-small) when unset.
func embeddingDimensions(cfg *config.Config) int {
	if cfg.Storage.EmbeddingDimensions > 0 {
		return cfg.Storage.EmbeddingDimensions
	}
	return 1536
}
