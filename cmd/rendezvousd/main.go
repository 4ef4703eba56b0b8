package main

import (
	"log"

	"github.com/absmach/rendezvous/rendezvousd"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rendezvousd",
		Short: "Rendezvous Daemon",
		Long:  `Rendezvous Daemon is a daemon that manages the lifecycle of the rendezvous coordinator.`,
	}

	coordinatorCmd := rendezvousd.NewCoordinatorCmd()

	rootCmd.AddCommand(coordinatorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
