package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chatscribe/internal/capture"
	"chatscribe/internal/config"
	"chatscribe/internal/logging"
)

var (
	// Global flags
	cfgPath   string
	verbose   bool
	threadURL string

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chatscribe",
	Short: "chatscribe - capture and export chat transcripts from a live browser tab",
	Long: `chatscribe attaches to a chat web UI over the Chrome DevTools protocol
and reconstructs the complete conversation transcript, even though the
page only renders a small virtualized window of messages at a time.

It scrolls the history into view, deduplicates and reconciles the
fragments it observes into a canonical record, mirrors the result to
local storage, and exports Markdown, HTML, or lossless JSON.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}

// newEngine builds an engine for the configured thread. Commands that
// only read or clear stored transcripts never touch the browser.
func newEngine() (*capture.Engine, error) {
	if threadURL == "" {
		return nil, fmt.Errorf("--url is required (the chat thread's page URL)")
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return capture.New(cfg, logger, threadURL)
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&threadURL, "url", "u", "", "chat thread page URL")

	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
