package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vmbroker/internal/agent"
	"vmbroker/internal/agent/backend"
	"vmbroker/internal/agent/registry"
	"vmbroker/internal/config"
	"vmbroker/internal/credentials"
	"vmbroker/internal/logging"
)

// agentCmd represents the agent command
var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the infrastructure-management agent",
	Long: `Serve the provisioning protocol over TLS. The agent fronts the cloud
provider named in the credentials file and keeps reservation state in memory,
or in etcd when etcd_endpoints is configured.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		fatalOnError("Failed to load configuration", err)

		creds, err := credentials.Load(cfg.CredentialsFile)
		fatalOnError("Failed to load credentials", err)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		be, err := backend.New(ctx, creds, logging.Logger())
		fatalOnError("Failed to create backend", err)

		var store registry.Store
		if len(cfg.EtcdEndpoints) > 0 {
			store, err = registry.NewEtcdStore(cfg.EtcdEndpoints)
			fatalOnError("Failed to connect reservation store", err)
		} else {
			store = registry.NewMemoryStore()
		}
		defer store.Close()

		a := agent.New(agent.Config{
			ListenAddr: cfg.ListenAddr,
			Secret:     cfg.Secret,
			CertFile:   cfg.TLSCert,
			KeyFile:    cfg.TLSKey,
			PoolSize:   cfg.MaxProvisioners,
		}, store, be, logging.Logger())

		logging.Logger().Info("Starting agent",
			zap.String("infrastructure", creds.Infrastructure),
			zap.String("listen_addr", cfg.ListenAddr))

		if err := a.ListenAndServe(ctx); err != nil {
			logging.Logger().Fatal("Agent exited", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(agentCmd)
}
