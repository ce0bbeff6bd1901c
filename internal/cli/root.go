// Package cli implements the couplesync admin commands.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"couplesync/backend/internal/config"
	"couplesync/backend/internal/settings"
	"couplesync/backend/internal/storage"
)

// app holds what commands need to reach the outside world. Tests swap these.
type app struct {
	configPath string

	loadConfig   func(path string) (*config.Config, error)
	openSettings func(cfg *config.Config) (settings.Repository, error)
	openStore    func(ctx context.Context, cfg *config.Config) (storage.Backend, error)
	now          func() time.Time
}

func defaultApp() *app {
	return &app{
		loadConfig: func(path string) (*config.Config, error) {
			if path == "" {
				return config.Load()
			}
			return config.LoadFrom(path)
		},
		openSettings: func(cfg *config.Config) (settings.Repository, error) {
			return settings.Open(cfg.Settings.Driver, cfg.Settings.Path, cfg.Settings.DSN)
		},
		openStore: func(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
			return cfg.OpenStore(ctx)
		},
		now: time.Now,
	}
}

// NewRootCmd returns the admin command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultApp())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "couplesync-admin",
		Short:         "Maintenance commands for a couplesync client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: $COUPLESYNC_CONFIG or ./couplesync.yaml)")

	root.AddCommand(
		newWhoamiCmd(a),
		newSetRoleCmd(a),
		newResetRoleCmd(a),
		newSweepCmd(a),
		newReapCmd(a),
	)
	return root
}

func (a *app) loadCfg() (*config.Config, error) {
	return a.loadConfig(a.configPath)
}

// withSettings opens the settings repository for the duration of fn.
func (a *app) withSettings(fn func(cfg *config.Config, repo settings.Repository) error) error {
	cfg, err := a.loadCfg()
	if err != nil {
		return err
	}
	repo, err := a.openSettings(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(cfg, repo)
}

func (a *app) withStore(ctx context.Context, fn func(cfg *config.Config, store storage.Backend) error) error {
	cfg, err := a.loadCfg()
	if err != nil {
		return err
	}
	store, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}
