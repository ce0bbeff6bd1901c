package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"couplesync/backend/internal/config"
	"couplesync/backend/internal/models"
	"couplesync/backend/internal/settings"
	"couplesync/backend/internal/storage"
)

func newWhoamiCmd(a *app) *cobra.Command {
	var presence bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the selected role and room",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var role models.Role
			var source string
			err := a.withSettings(func(cfg *config.Config, repo settings.Repository) error {
				if cfg.Role != "" {
					r, err := models.ParseRole(cfg.Role)
					if err != nil {
						return err
					}
					role, source = r, "config"
					return nil
				}
				r, err := settings.LoadRole(cmd.Context(), repo)
				if errors.Is(err, settings.ErrNoRole) {
					return nil
				}
				role, source = r, "saved"
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if role == "" {
				fmt.Fprintln(out, "role: (none selected)")
				return nil
			}
			fmt.Fprintf(out, "role: %s (%s)\n", role, source)
			if !presence {
				return nil
			}
			return a.withStore(cmd.Context(), func(cfg *config.Config, store storage.Backend) error {
				paths := models.NewPaths(cfg.RoomID)
				fmt.Fprintf(out, "room: %s\n", paths.Room)
				snap, err := storage.ReadOnce(cmd.Context(), store, paths.Presence(role.Other()))
				if err != nil {
					return err
				}
				var rec models.PresenceRecord
				if err := snap.Decode(&rec); err != nil {
					fmt.Fprintln(out, "partner: unknown")
					return nil
				}
				state := "offline"
				if rec.LivenessOK(a.now(), cfg.LivenessThreshold) {
					state = "online"
				}
				fmt.Fprintf(out, "partner: %s (last heartbeat %s)\n", state, models.FromMillis(rec.LastHeartbeat).Format("2006-01-02 15:04:05"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&presence, "presence", false, "Also read the partner's presence from the store")
	return cmd
}

func newSetRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role A|B",
		Short: "Persist the role used when none is configured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := models.ParseRole(args[0])
			if err != nil {
				return err
			}
			return a.withSettings(func(_ *config.Config, repo settings.Repository) error {
				if err := settings.SaveRole(cmd.Context(), repo, role); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "role set to %s\n", role)
				return nil
			})
		},
	}
}

func newResetRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-role",
		Short: "Forget the saved role so the next start asks again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSettings(func(_ *config.Config, repo settings.Repository) error {
				if err := settings.ResetRole(cmd.Context(), repo); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "role cleared")
				return nil
			})
		},
	}
}
