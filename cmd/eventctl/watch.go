package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prohmpiriya/event-registration/internal/domain"
	"github.com/prohmpiriya/event-registration/pkg/kafka"
)

func (c *cli) newWatchCmd() *cobra.Command {
	var fromBeginning bool

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Print registration events from Kafka as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
				Brokers:       cfg.Kafka.Brokers,
				ClientID:      "eventctl",
				GroupID:       "eventctl-watch",
				Topics:        []string{cfg.Kafka.Topic},
				FromBeginning: fromBeginning,
			})
			if err != nil {
				return err
			}
			defer consumer.Close()

			out := cmd.OutOrStdout()
			return consumer.Run(ctx, func(ctx context.Context, msg *kafka.Message) error {
				var evt domain.RegistrationEvent
				if err := json.Unmarshal(msg.Value, &evt); err != nil {
					fmt.Fprintf(out, "%s undecodable message: %v\n", msg.Timestamp.Format("15:04:05"), err)
					return nil
				}
				fmt.Fprintf(out, "%s %-24s event=%s user=%s registration=%s\n",
					evt.OccurredAt.Format("15:04:05"), evt.Type, evt.EventID, evt.UserID, evt.RegistrationID)
				return nil
			})
		},
	}

	watchCmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "replay the topic from the earliest offset")
	return watchCmd
}
