package rendezvousd

import (
	"context"
	"time"

	"github.com/absmach/rendezvous/pkg/collective"
	"github.com/absmach/rendezvous/pkg/reduce"
	"github.com/absmach/supermq/pkg/server"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	logLevel       = "info"
	instanceID     = uuid.NewString()
	httpPort       = "9090"
	barrierTimeout = collective.DefTimeout
	warnInterval   = collective.DefWarnInterval
	reducerKind    = reduce.KindConcat
	wasmPath       = ""
	mqttAddress    = "tcp://localhost:1883"
	mqttQOS        = 2
	mqttTimeout    = 30 * time.Second
	clientID       = ""
	clientKey      = ""
	domainID       = ""
	channelID      = ""
)

var coordinatorCmd = []cobra.Command{
	{
		Use:   "start",
		Short: "Start coordinator",
		Long:  `Start coordinator.`,
		Run: func(cmd *cobra.Command, _ []string) {
			cfg := Config{
				LogLevel:       logLevel,
				InstanceID:     instanceID,
				BarrierTimeout: barrierTimeout,
				WarnInterval:   warnInterval,
				Reducer:        reducerKind,
				WasmPath:       wasmPath,
				MQTTAddress:    mqttAddress,
				MQTTQoS:        uint8(mqttQOS),
				MQTTTimeout:    mqttTimeout,
				ClientID:       clientID,
				ClientKey:      clientKey,
				DomainID:       domainID,
				ChannelID:      channelID,
				Server: server.Config{
					Port: httpPort,
				},
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			if err := StartCoordinator(ctx, cancel, cfg); err != nil {
				cmd.PrintErrf("failed to start coordinator: %s", err.Error())
			}
			cancel()
		},
	},
}

func NewCoordinatorCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "coordinator [start]",
		Short: "Coordinator management",
		Long:  `Start the rendezvous coordinator.`,
	}

	for i := range coordinatorCmd {
		cmd.AddCommand(&coordinatorCmd[i])
	}

	cmd.PersistentFlags().StringVarP(
		&logLevel,
		"log-level",
		"l",
		logLevel,
		"Log level",
	)

	cmd.PersistentFlags().StringVarP(
		&instanceID,
		"instance-id",
		"i",
		instanceID,
		"Instance ID",
	)

	cmd.PersistentFlags().StringVarP(
		&httpPort,
		"http-port",
		"p",
		httpPort,
		"HTTP Port",
	)

	cmd.PersistentFlags().DurationVarP(
		&barrierTimeout,
		"barrier-timeout",
		"b",
		barrierTimeout,
		"Barrier Timeout",
	)

	cmd.PersistentFlags().DurationVarP(
		&warnInterval,
		"warn-interval",
		"w",
		warnInterval,
		"Stall Warning Interval",
	)

	cmd.PersistentFlags().StringVarP(
		&reducerKind,
		"reducer",
		"r",
		reducerKind,
		"Reducer (rank0, concat, mean, wasm)",
	)

	cmd.PersistentFlags().StringVarP(
		&wasmPath,
		"wasm-path",
		"W",
		wasmPath,
		"Wasm Reducer Path",
	)

	cmd.PersistentFlags().StringVarP(
		&mqttAddress,
		"mqtt-address",
		"m",
		mqttAddress,
		"MQTT Address",
	)

	cmd.PersistentFlags().IntVarP(
		&mqttQOS,
		"mqtt-qos",
		"q",
		mqttQOS,
		"MQTT QOS",
	)

	cmd.PersistentFlags().DurationVarP(
		&mqttTimeout,
		"mqtt-timeout",
		"o",
		mqttTimeout,
		"MQTT Timeout",
	)

	cmd.PersistentFlags().StringVarP(
		&clientID,
		"client-id",
		"t",
		clientID,
		"Client ID",
	)

	cmd.PersistentFlags().StringVarP(
		&clientKey,
		"client-key",
		"k",
		clientKey,
		"Client Key",
	)

	cmd.PersistentFlags().StringVarP(
		&domainID,
		"domain-id",
		"d",
		domainID,
		"Domain ID",
	)

	cmd.PersistentFlags().StringVarP(
		&channelID,
		"channel-id",
		"c",
		channelID,
		"Channel ID",
	)

	return &cmd
}
