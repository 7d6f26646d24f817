package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the `fleetd status` command: a quick check of
// hub reachability and the cluster-wide node view.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show hub health and registered nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Config()
			if err != nil {
				return err
			}

			base := strings.TrimRight(cfg.Hub.Addr, "/")
			client := &http.Client{Timeout: 5 * time.Second}

			resp, err := client.Get(base + "/health")
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "hub: unreachable (%v)\n", err)
				return nil
			}
			resp.Body.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "hub: %s\n", resp.Status)

			nodesResp, err := client.Get(base + "/nodes")
			if err != nil {
				return nil
			}
			defer nodesResp.Body.Close()

			var nodes []map[string]any
			if err := json.NewDecoder(nodesResp.Body).Decode(&nodes); err != nil {
				return nil
			}
			for _, n := range nodes {
				fmt.Fprintf(cmd.OutOrStdout(), "node %v\t%v\tstatus=%v\n", n["node_id"], n["hostname"], n["status"])
			}
			return nil
		},
	}
}
