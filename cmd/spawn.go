package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"vmbroker/internal/client"
	"vmbroker/internal/logging"
)

var (
	spawnCount int
	spawnRoles []string
	spawnDisks []string
)

// spawnCmd represents the spawn command
var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Provision machines and wait until they are reachable",
	Long: `Request a reservation of machines from the agent and block until every
machine is running, then print one record per machine. With a single --role
the label is replicated across the reservation; with several, roles are
assigned positionally and their number must match --count.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(spawnRoles) == 0 {
			logging.Logger().Fatal("At least one --role is required")
		}

		broker, err := newBroker()
		fatalOnError("Failed to set up broker", err)

		role := client.UniformRole(spawnRoles[0])
		if len(spawnRoles) > 1 {
			role = client.PerInstanceRoles(spawnRoles...)
		}

		records, err := broker.SpawnInstances(context.Background(), spawnCount, role, spawnDisks)
		fatalOnError("Failed to spawn instances", err)

		for _, r := range records {
			disk := r.DiskID
			if disk == "" {
				disk = "-"
			}
			fmt.Printf("%s\t%s\t%s\t%s\tdisk=%s\n", r.InstanceID, r.PublicIP, r.PrivateIP, r.Role, disk)
		}
	},
}

func init() {
	rootCmd.AddCommand(spawnCmd)

	spawnCmd.Flags().IntVarP(&spawnCount, "count", "n", 1, "Number of machines to provision")
	spawnCmd.Flags().StringSliceVar(&spawnRoles, "role", nil, "Job role label(s), one or one-per-machine")
	spawnCmd.Flags().StringSliceVar(&spawnDisks, "disks", nil, "Disk ids assigned positionally, empty entry for none")
}
