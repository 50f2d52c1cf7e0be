/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/pawhouse/apiserver/config"
	"github.com/pawhouse/apiserver/internal/mq"
	"github.com/pawhouse/apiserver/internal/services"
	"github.com/spf13/cobra"
)

// eventsCmd groups commands that work with the adoption event stream.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect adoption events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log adoption events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := newLogger(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("no mq backend configured (set MQ_BACKEND)")
		}
		defer queue.Close()

		logger.Info("tailing adoption events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.AdoptionChannel)
		err = queue.Subscribe(ctx, cfg.MQ.AdoptionChannel, func(ctx context.Context, msg mq.Message) error {
			var event services.AdoptionEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Malformed messages are acked, not requeued.
				logger.Warn("skip malformed event", "message_id", msg.ID, "error", err)
				return nil
			}
			logger.Info("adoption event",
				"message_id", msg.ID,
				"type", event.Type,
				"adoption_id", event.Adoption.ID,
				"status", event.Adoption.Status,
				"actor_id", event.ActorID,
				"occurred_at", event.OccurredAt,
			)
			return nil
		})
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
