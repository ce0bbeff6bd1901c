package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"couplesync/backend/internal/api/handler"
	"couplesync/backend/internal/chathub"
	"couplesync/backend/internal/config"
	"couplesync/backend/internal/localization"
	"couplesync/backend/internal/logging"
	"couplesync/backend/internal/notify"
	"couplesync/backend/internal/settings"
	"couplesync/backend/internal/storage"
	"couplesync/backend/internal/supervisor"
	"couplesync/backend/internal/telegram"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("couplesync stopped")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := settings.Open(cfg.Settings.Driver, cfg.Settings.Path, cfg.Settings.DSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	role, err := settings.ResolveRole(ctx, repo, cfg.Role)
	if errors.Is(err, settings.ErrNoRole) {
		log.Error().Msg("no role selected: set COUPLESYNC_ROLE or run `couplesync-admin set-role A|B`")
		return err
	}
	if err != nil {
		return err
	}

	sessionCfg, err := cfg.SessionConfig(role)
	if err != nil {
		return err
	}

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := handler.NewHub()
	sinks := notify.Fanout{notify.NewLogNotifier(), hub}
	var tg *telegram.Notifier
	if cfg.Telegram.Enabled() {
		tg = telegram.NewNotifier(telegram.Config{
			Token:         cfg.Telegram.Token,
			ChatID:        cfg.Telegram.ChatID,
			RatePerMinute: cfg.Telegram.RatePerMinute,
		})
		sinks = append(sinks, tg)
	}
	sinks.RequestPermissions(ctx)

	texts := localization.Texts{L: localization.Builtin(), Lang: cfg.Language}
	session := chathub.NewSession(sessionCfg, store, sinks, texts)
	session.AddListener(hub)

	if cfg.Logging.Level != "debug" && cfg.Logging.Level != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:           cfg.HTTP.Addr,
		Handler:        handler.NewHandler(session, hub).Router(),
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	httpSvc := supervisor.NewHTTPServerService(server, 5*time.Second)
	httpSvc.OnShutdown = hub.Close

	tree := supervisor.NewTree(logging.Component("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddEngineService(supervisor.OneShot{Service: session})
	tree.AddEngineService(&storage.LeaseReaper{Store: store, Interval: cfg.ReaperInterval})
	tree.AddAPIService(httpSvc)
	if cfg.Telegram.Enabled() && cfg.Telegram.Commands {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			log.Warn().Err(err).Msg("telegram commands disabled")
		} else {
			tree.AddAPIService(telegram.NewCommands(bot, session, cfg.Telegram.ChatID))
		}
	}

	log.Info().
		Str("role", role.String()).
		Str("room", cfg.RoomID).
		Str("store", cfg.Store.Driver).
		Str("http", cfg.HTTP.Addr).
		Bool("telegram", tg != nil).
		Msg("couplesync starting")

	err = tree.Serve(ctx)
	if tg != nil {
		tg.Wait()
	}
	return err
}
