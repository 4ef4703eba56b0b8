package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/rendezvous"
	"github.com/absmach/rendezvous/cli"
	"github.com/absmach/rendezvous/pkg/mqtt"
	"github.com/absmach/rendezvous/pkg/sdk"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const brokerTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "rendezvous-cli",
		Short: "Rendezvous CLI",
		Long:  `Rendezvous CLI is a command line interface for interacting with the rendezvous coordinator.`,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				CoordinatorURL:  cli.DefCoordinatorURL,
				TLSVerification: cli.DefTLSVerification,
			}

			if _, err := os.Stat(cli.ConfigFileName); err == nil {
				cfg, err := rendezvous.LoadConfig(cli.ConfigFileName)
				if err != nil {
					log.Fatalf("failed to load %s: %s", cli.ConfigFileName, err.Error())
				}
				if cfg.Coordinator.URL != "" && !cmd.Flags().Changed("coordinator-url") {
					sdkConf.CoordinatorURL = cfg.Coordinator.URL
				}

				// The broker is dialed only for watch, every other
				// command talks plain HTTP.
				if cfg.Broker.Address != "" && cmd.Name() == "watch" {
					id := "rendezvous-cli-" + uuid.NewString()
					ps, err := mqtt.NewPubSub(cfg.Broker.Address, uint8(cfg.Broker.QoS), id, cfg.Coordinator.ClientID, cfg.Coordinator.ClientKey, "", "", brokerTimeout, slog.Default())
					if err != nil {
						log.Fatalf("failed to connect to MQTT broker: %s", err.Error())
					}
					topic := "m/" + cfg.Coordinator.DomainID + "/c/" + cfg.Coordinator.ChannelID + "/messages/rounds/#"
					cli.SetPubSub(ps, topic)
				}
			}

			s := sdk.NewSDK(sdkConf)
			cli.SetSDK(s)
		},
	}

	rootCmd.PersistentFlags().StringVarP(
		&cli.DefCoordinatorURL,
		"coordinator-url",
		"u",
		cli.DefCoordinatorURL,
		"Coordinator URL",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&cli.DefTLSVerification,
		"tls-verification",
		"v",
		cli.DefTLSVerification,
		"TLS Verification",
	)

	barrierCmd := cli.NewBarrierCmd()
	roundsCmd := cli.NewRoundsCmd()
	configCmd := cli.NewConfigCmd()

	rootCmd.AddCommand(barrierCmd)
	rootCmd.AddCommand(roundsCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
