// cmd/server/tail.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ndstrzz/taedal-v7-sub000/internal/events"
	"github.com/ndstrzz/taedal-v7-sub000/internal/realtime"
)

// tail prints pg_notify events, optionally for one request only.
func tailCmd() *cobra.Command {
	var requestID string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream realtime events from the Postgres channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("tail needs the postgres driver, got %s", cfg.Database.Driver)
			}

			listener, err := realtime.NewPGListener(cfg.Database.DSN(), cfg.Realtime.PGChannel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := json.NewEncoder(cmd.OutOrStdout())
			err = listener.Run(ctx, func(evt events.Event) {
				if requestID != "" && evt.Topic != requestID {
					return
				}
				out.Encode(evt)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&requestID, "request", "", "only print events for this license request id")
	return cmd
}
