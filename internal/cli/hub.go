package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fleetd-io/fleetd/internal/hub"
	"github.com/fleetd-io/fleetd/internal/registry"
)

// NewHubCommand creates the `fleetd hub` command: the central replication
// target plus the cluster-wide liveness view.
func NewHubCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hub",
		Short: "Run the central hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Config()
			if err != nil {
				return err
			}
			log := opts.Logger().With().Str("component", "hub").Logger()

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return err
			}

			store, err := hub.OpenStore(filepath.Join(cfg.DataDir, "hub.db"))
			if err != nil {
				return err
			}
			defer store.Close()

			reg := registry.New(log)
			sweeper := registry.NewSweeper(reg, cfg.Liveness.SweepInterval, cfg.Liveness.HeartbeatTimeout, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go sweeper.Run(ctx)

			srv := &http.Server{
				Addr:    cfg.Hub.Listen,
				Handler: hub.NewServer(store, reg, log).Router(),
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			log.Info().Str("listen", cfg.Hub.Listen).Msg("hub listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
}
