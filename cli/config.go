package cli

import (
	"os"

	"github.com/absmach/rendezvous"
	"github.com/charmbracelet/huh"
	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
)

const (
	// ConfigFileName is read by the CLI on startup when present in the
	// working directory.
	ConfigFileName = "rendezvous.toml"

	filePermission = 0o644
)

func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate config file",
		Long:  `Interactively generate the ` + ConfigFileName + ` configuration file.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg := rendezvous.Config{
				Coordinator: rendezvous.CoordinatorConfig{
					URL: "http://localhost:9090",
				},
				Broker: rendezvous.BrokerConfig{
					Address: "tcp://localhost:1883",
					QoS:     2,
				},
			}

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Coordinator URL").
						Value(&cfg.Coordinator.URL),
					huh.NewInput().
						Title("Client ID").
						Description("SuperMQ client connected to the coordinator channel").
						Value(&cfg.Coordinator.ClientID),
					huh.NewInput().
						Title("Client key").
						EchoMode(huh.EchoModePassword).
						Value(&cfg.Coordinator.ClientKey),
					huh.NewInput().
						Title("Domain ID").
						Value(&cfg.Coordinator.DomainID),
					huh.NewInput().
						Title("Channel ID").
						Value(&cfg.Coordinator.ChannelID),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("MQTT broker address").
						Value(&cfg.Broker.Address),
					huh.NewSelect[int]().
						Title("MQTT QoS").
						Options(
							huh.NewOption("0 - at most once", 0),
							huh.NewOption("1 - at least once", 1),
							huh.NewOption("2 - exactly once", 2),
						).
						Value(&cfg.Broker.QoS),
				),
			)

			if err := form.Run(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			data, err := toml.Marshal(cfg)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			if err := os.WriteFile(ConfigFileName, data, filePermission); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "Successfully created "+ConfigFileName)
		},
	}
}
