package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetd-io/fleetd/internal/record"
	"github.com/fleetd-io/fleetd/internal/registry"
	"github.com/fleetd-io/fleetd/internal/replicate"
	"github.com/fleetd-io/fleetd/internal/router"
	"github.com/fleetd-io/fleetd/internal/store"
)

// NewNodeCommand creates the `fleetd node` command: the node-local
// daemon running the local store, the sync replayer, and the liveness
// registry with its staleness sweeper.
func NewNodeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "node",
		Short: "Run the node-local daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			log := opts.Logger().With().Str("component", "node").Str("node_id", cfg.LocalNodeID).Logger()

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return err
			}

			st, err := store.Open(filepath.Join(cfg.DataDir, cfg.LocalNodeID+".db"))
			if err != nil {
				return err
			}
			defer st.Close()
			st.SetMaxRetries(cfg.Replication.MaxRetries)

			hubURL := ""
			if cfg.Replication.Enabled {
				hubURL = cfg.Hub.Addr
			}
			client := replicate.NewClient(st, cfg.LocalNodeID, hubURL, log)
			client.SetTimeout(cfg.Replication.Timeout)

			reg := registry.New(log)
			for _, n := range cfg.Nodes {
				if n.Enabled {
					reg.RegisterNode(n.ID, n.Host, n.Port)
				}
			}

			sweeper := registry.NewSweeper(reg, cfg.Liveness.SweepInterval, cfg.Liveness.HeartbeatTimeout, log)
			replayer := replicate.NewReplayer(st, client, cfg.Replication.ReplayInterval, cfg.Replication.ReplayBatch, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go sweeper.Run(ctx)
			go replayer.Run(ctx)

			// Keep the local node's own heartbeat fresh; the sweep only
			// ever demotes entries that stop calling this.
			go func() {
				ticker := time.NewTicker(cfg.Liveness.SweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-ticker.C:
						reg.HeartbeatNode(cfg.LocalNodeID)
					case <-ctx.Done():
						return
					}
				}
			}()

			if _, ok := reg.Node(cfg.LocalNodeID); ok {
				if err := reg.UpdateNodeStatus(cfg.LocalNodeID, record.StatusReady); err != nil {
					log.Warn().Err(err).Msg("could not mark local node ready")
				}
			}

			best := router.SelectBest(reg.NodeStatuses(), cfg.Scores(), cfg.LocalNodeID)
			log.Info().Str("best_node", best).Msg("initial routing decision")

			log.Info().Str("data_dir", cfg.DataDir).Bool("replication", cfg.Replication.Enabled).Msg("node daemon running")
			<-ctx.Done()

			if _, ok := reg.Node(cfg.LocalNodeID); ok {
				if err := reg.UpdateNodeStatus(cfg.LocalNodeID, record.StatusOffline); err != nil {
					log.Warn().Err(err).Msg("could not mark local node offline")
				}
			}
			log.Info().Msg("node daemon stopped")
			return nil
		},
	}
}
