package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vmbroker/internal/logging"
)

// terminateCmd represents the terminate command
var terminateCmd = &cobra.Command{
	Use:   "terminate <instance-id>...",
	Short: "Terminate machines by instance id",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		broker, err := newBroker()
		fatalOnError("Failed to set up broker", err)

		resp, err := broker.TerminateInstances(context.Background(), args...)
		fatalOnError("Failed to terminate instances", err)

		if !resp.Success {
			logging.Logger().Fatal("Terminate rejected: " + resp.Reason)
		}
		fmt.Printf("Terminated %d instance(s)\n", len(args))
	},
}

func init() {
	rootCmd.AddCommand(terminateCmd)
}
