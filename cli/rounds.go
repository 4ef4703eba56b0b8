package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/absmach/rendezvous/pkg/mqtt"
	"github.com/spf13/cobra"
)

var (
	defOffset uint64 = 0
	defLimit  uint64 = 10

	errNoBroker = errors.New("watch requires a configured MQTT broker, run `rendezvous-cli config` first")

	pubsub      mqtt.PubSub
	roundsTopic string
)

// SetPubSub wires the broker connection used by `rounds watch`.
func SetPubSub(ps mqtt.PubSub, topic string) {
	pubsub = ps
	roundsTopic = topic
}

func NewRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds [list|watch]",
		Short: "Round history",
		Long:  `List released rounds or watch round events live.`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List rounds",
		Long:  `List released rounds, oldest first.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := rsdk.ListRounds(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch round events",
		Long:  `Subscribe to the coordinator's round events and print each one until interrupted.`,
		Run: func(cmd *cobra.Command, args []string) {
			if pubsub == nil {
				logErrorCmd(*cmd, errNoBroker)

				return
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			handler := func(topic string, msg map[string]any) error {
				logJSONCmd(*cmd, msg)

				return nil
			}
			if err := pubsub.Subscribe(ctx, roundsTopic, handler); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Watching "+roundsTopic)

			<-ctx.Done()

			if err := pubsub.Unsubscribe(context.Background(), roundsTopic); err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(watchCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}
