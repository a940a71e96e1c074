// Package app composes the client: config, logging, storage, socket
// transport, REST client, coordinator and the terminal UI, wired with fx.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/TERAMED-SA/provision-chat/internal/api"
	"github.com/TERAMED-SA/provision-chat/internal/bus"
	"github.com/TERAMED-SA/provision-chat/internal/chat"
	"github.com/TERAMED-SA/provision-chat/internal/config"
	"github.com/TERAMED-SA/provision-chat/internal/lock"
	"github.com/TERAMED-SA/provision-chat/internal/logging"
	"github.com/TERAMED-SA/provision-chat/internal/session"
	"github.com/TERAMED-SA/provision-chat/internal/status"
	"github.com/TERAMED-SA/provision-chat/internal/store"
	"github.com/TERAMED-SA/provision-chat/internal/transport"
	"github.com/TERAMED-SA/provision-chat/internal/tui"
)

// Params holds the resolved identity and session passed to the fx module.
type Params struct {
	SessionName string
	UserID      string
	CompanyID   string
	Verbose     bool
}

// Module returns the fx module for the chat client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideTransport,
			provideAPIClient,
			provideCoordinator,
			provideTUI,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	return config.Load(session.ConfigPath())
}

// The TUI owns the terminal, so logs go to the session file only. Verbose
// runs tee to stderr as well, for callers redirecting 2> to a pipe or file.
func provideLogger(p Params) (*zap.Logger, error) {
	if p.Verbose {
		return logging.New(session.LogPath(p.SessionName), p.SessionName)
	}
	return logging.NewFileOnly(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideTransport(cfg *config.Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *transport.Manager {
	return transport.NewManager(cfg.SocketURL, b, machine, logger)
}

func provideAPIClient(cfg *config.Config, logger *zap.Logger) *api.Client {
	return api.NewClient(cfg.APIURL, time.Duration(cfg.HTTPTimeoutSec)*time.Second, logger)
}

func provideCoordinator(p Params, client *api.Client, mgr *transport.Manager, db *store.DB, b *bus.Bus, logger *zap.Logger) (*chat.Coordinator, error) {
	return chat.New(chat.Params{UserID: p.UserID, CompanyID: p.CompanyID}, client, mgr, db, b, logger)
}

func provideTUI(p Params, coord *chat.Coordinator, machine *status.Machine, b *bus.Bus) *tui.App {
	return tui.NewApp(coord, machine, b, p.SessionName)
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, ui *tui.App, coord *chat.Coordinator, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			coord.Start()

			// The UI blocks until the user quits; its exit ends the process.
			go func() {
				if err := ui.Run(); err != nil {
					logger.Error("tui error", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()

			logger.Info("client started", zap.String("user", coord.LocalID()))
			return nil
		},
		OnStop: func(_ context.Context) error {
			ui.Stop()
			coord.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
