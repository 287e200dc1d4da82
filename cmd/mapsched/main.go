// mapsched serve a API de superfícies de mapa e renderiza snapshots avulsos.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"meshboard-maps/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := readConfig()
	var logger *slog.Logger

	root := &cobra.Command{
		Use:   "mapsched",
		Short: "Map surface scheduler and snapshot renderer",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.New(logging.Options{Level: cfg.logLevel, Format: cfg.logFormat})
			slog.SetDefault(logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level (debug, info, warn, error) (or LOG_LEVEL env)")
	root.PersistentFlags().StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format (text, json) (or LOG_FORMAT env)")
	root.PersistentFlags().StringVar(&cfg.tilesBaseURL, "tiles-url", cfg.tilesBaseURL, "Board backend base URL serving tilesets and styles (or TILES_BASE_URL env)")

	root.AddCommand(
		newServeCmd(&cfg, func() *slog.Logger { return logger }),
		newRenderCmd(&cfg, func() *slog.Logger { return logger }),
	)
	return root
}
