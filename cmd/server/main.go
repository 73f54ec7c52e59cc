// cmd/server/main.go
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ndstrzz/taedal-v7-sub000/internal/config"
)

var cfg *config.Config

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "negotiation-server",
		Short:        "Artwork license negotiation service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			return setupLogging(cfg.Log)
		},
	}

	root.AddCommand(serveCmd(), migrateCmd(), tailCmd(), tokenCmd())
	return root
}

func setupLogging(lc config.LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	if lc.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
