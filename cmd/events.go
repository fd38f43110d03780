/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/events"
	"github.com/userhub/apiserver/internal/logging"
	"github.com/userhub/apiserver/internal/mq"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect user lifecycle events",
}

// eventsTailCmd logs every user event published on the configured channel
// until interrupted.
var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow user lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		logger := logging.Init("userhub-events", cfg.LogLevel, cfg.AppEnv)

		broker, err := mq.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if broker == nil {
			return fmt.Errorf("events are disabled: set EVENTS_BACKEND to %q or %q",
				config.EventsBackendRabbitMQ, config.EventsBackendPubSub)
		}
		defer broker.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("tailing user events", "backend", cfg.Events.Backend, "channel", cfg.Events.Channel)
		err = events.Consume(ctx, broker, cfg.Events.Channel,
			func(_ context.Context, evt events.Event) error {
				logger.Info("user event",
					"event_id", evt.ID.String(),
					"event_type", string(evt.Type),
					"user_id", evt.UserID.String(),
					"occurred_at", evt.OccurredAt,
				)
				return nil
			},
			func(msg mq.Message, err error) {
				logger.Warn("skipping malformed event", "message_id", msg.ID, "error", err)
			},
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
