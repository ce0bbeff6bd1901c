package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"couplesync/backend/internal/chat"
	"couplesync/backend/internal/config"
	"couplesync/backend/internal/metrics"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/storage"
)

func newSweepCmd(a *app) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete messages older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(cfg *config.Config, store storage.Backend) error {
				w := cfg.RetentionWindow
				if window > 0 {
					w = window
				}
				n, err := chat.SweepStore(cmd.Context(), store, models.NewPaths(cfg.RoomID), w, a.now())
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d message(s)\n", n)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&window, "window", 0, "Override the configured retention window")
	return cmd
}

func newReapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Fire the disconnect writes of expired presence leases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(_ *config.Config, store storage.Backend) error {
				n, err := store.Reap(cmd.Context())
				metrics.LeasesReaped.Add(float64(n))
				fmt.Fprintf(cmd.OutOrStdout(), "reaped %d lease(s)\n", n)
				return err
			})
		},
	}
}
