// Command cvctl is the operator tool for the render pipeline: it corrects,
// previews and renders documents from the shell and lists run history.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"resume-renderer/internal/config"
	"resume-renderer/internal/logging"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	cfg      config.Config
)

var rootCmd = &cobra.Command{
	Use:           "cvctl",
	Short:         "Correct, preview and render CV documents",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(correctCmd, previewCmd, renderCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
}

// readInput reads a file argument, or stdin for "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(b), nil
}
