package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"vmbroker/internal/client"
	"vmbroker/internal/config"
	"vmbroker/internal/credentials"
	"vmbroker/internal/logging"
	"vmbroker/internal/rpc"

	"go.uber.org/zap"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmbroker",
	Short: "Broker machine provisioning through a same-host management agent",
	Long: `vmbroker talks to an infrastructure-management agent on this host to
create, inspect and terminate virtual machines and attach persistent disks,
hiding the agent's asynchronous provisioning behind synchronous commands.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newBroker wires config, credentials and transport into a broker for the
// client commands.
func newBroker() (*client.Broker, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	creds, err := credentials.Load(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	caller := rpc.NewClient(cfg.AgentURL, cfg.Secret)
	return client.NewBroker(caller, creds, logging.Logger()), nil
}

func fatalOnError(msg string, err error) {
	if err != nil {
		logging.Logger().Fatal(msg, zap.Error(err))
	}
}
