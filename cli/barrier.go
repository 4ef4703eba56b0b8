package cli

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/absmach/rendezvous/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	DefTLSVerification = false
	DefCoordinatorURL  = "http://localhost:9090"
)

var errInvalidJSON = errors.New("data is not valid JSON")

var rsdk sdk.SDK

func SetSDK(s sdk.SDK) {
	rsdk = s
}

func parseRank(args []string) (worldRank, worldSize int, data json.RawMessage, err error) {
	worldRank, err = strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, nil, err
	}
	worldSize, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, nil, err
	}
	if len(args) > 2 {
		if !json.Valid([]byte(args[2])) {
			return 0, 0, nil, errInvalidJSON
		}
		data = json.RawMessage(args[2])
	}

	return worldRank, worldSize, data, nil
}

func NewBarrierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "barrier [broadcast|reduce|status]",
		Short: "Barrier operations",
		Long:  `Join broadcast or reduce rounds and inspect the active round.`,
	}

	broadcastCmd := &cobra.Command{
		Use:   "broadcast <world_rank> <world_size> [data]",
		Short: "Join a broadcast round",
		Long: `Join a broadcast round as <world_rank> of <world_size> and block until
every rank has arrived. Rank 0 supplies the payload every rank receives.

Examples:
  # rank 0 of 2, carrying the payload
  rendezvous-cli barrier broadcast 0 2 '{"checkpoint":"ckpt-42"}'

  # rank 1 of 2
  rendezvous-cli barrier broadcast 1 2`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 && len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			worldRank, worldSize, data, err := parseRank(args)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			out, err := rsdk.Broadcast(worldRank, worldSize, data)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, out)
		},
	}

	reduceCmd := &cobra.Command{
		Use:   "reduce <world_rank> <world_size> <data>",
		Short: "Join a reduce round",
		Long: `Join a reduce round as <world_rank> of <world_size>, submitting <data> as
this rank's vote. Every rank receives the coordinator's reduction.

Example:
  rendezvous-cli barrier reduce 0 2 '{"loss":0.25}'`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 3 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			worldRank, worldSize, data, err := parseRank(args)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			out, err := rsdk.Reduce(worldRank, worldSize, data)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, out)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show barrier status",
		Long:  `Show the counter, world size and reduced data of the active round.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			status, err := rsdk.Barrier()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, status)
		},
	}

	cmd.AddCommand(broadcastCmd)
	cmd.AddCommand(reduceCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}
