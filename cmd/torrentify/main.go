package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"torrentify/internal/config"
	"torrentify/internal/logging"
)

var (
	configFile string
	provider   *config.Provider
	logger     *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "torrentify",
	Short:         "Create release artifacts for a media library",
	Long:          "torrentify scans the configured media roots and produces .nfo, .torrent and metadata files for each release.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a config file (default: ./config.yaml)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	provider, err = config.NewProvider(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, _, err = logging.New(provider.Get().Log)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	return nil
}
