package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var instancesReservationID string

// instancesCmd represents the instances command
var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Describe the machines of a reservation",
	Run: func(cmd *cobra.Command, args []string) {
		broker, err := newBroker()
		fatalOnError("Failed to set up broker", err)

		desc, err := broker.DescribeInstances(context.Background(), instancesReservationID)
		fatalOnError("Failed to describe instances", err)

		fmt.Printf("State: %s\n", desc.State)
		if desc.Reason != "" {
			fmt.Printf("Reason: %s\n", desc.Reason)
		}
		for i := range desc.InstanceIDs {
			fmt.Printf("%s\t%s\t%s\n", desc.InstanceIDs[i], desc.PublicIPs[i], desc.PrivateIPs[i])
		}
	},
}

func init() {
	rootCmd.AddCommand(instancesCmd)

	instancesCmd.Flags().StringVar(&instancesReservationID, "reservation", "", "Reservation id (required)")
	if err := instancesCmd.MarkFlagRequired("reservation"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}
}
