package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	attachDiskName     string
	attachDiskInstance string
)

// attachDiskCmd represents the attach-disk command
var attachDiskCmd = &cobra.Command{
	Use:   "attach-disk",
	Short: "Attach a persistent disk to a machine",
	Run: func(cmd *cobra.Command, args []string) {
		broker, err := newBroker()
		fatalOnError("Failed to set up broker", err)

		location, err := broker.AttachDisk(context.Background(), attachDiskName, attachDiskInstance)
		fatalOnError("Failed to attach disk", err)

		fmt.Printf("Disk %s attached to %s at %s\n", attachDiskName, attachDiskInstance, location)
	},
}

func init() {
	rootCmd.AddCommand(attachDiskCmd)

	attachDiskCmd.Flags().StringVar(&attachDiskName, "disk", "", "Disk id (required)")
	attachDiskCmd.Flags().StringVar(&attachDiskInstance, "instance", "", "Instance id (required)")
	for _, flag := range []string{"disk", "instance"} {
		if err := attachDiskCmd.MarkFlagRequired(flag); err != nil {
			panic(fmt.Sprintf("failed to mark flag as required: %v", err))
		}
	}
}
