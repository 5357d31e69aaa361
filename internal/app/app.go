// Package app assembles the configured services and runs them.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	spcfg "stockpilot/internal/config"
	"stockpilot/internal/ledger"
	"stockpilot/internal/logger"
	transporthttp "stockpilot/internal/transport/http"
	"stockpilot/internal/worker"
)

// App owns the running services and their shared shutdown.
type App struct {
	cfg    *spcfg.Config
	ledger *ledger.Service
	worker *worker.Worker
	server *transporthttp.Server
	closer func() error
}

// NewApp builds the application from config without starting anything.
func NewApp(cfg *spcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Ledger exposes the trade ledger, used by replay and test harnesses.
func (a *App) Ledger() *ledger.Service {
	if a == nil {
		return nil
	}
	return a.ledger
}

// Run starts the worker loop and the HTTP server, blocking until ctx is
// cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()

	group, ctx := errgroup.WithContext(ctx)

	if a.cfg.Worker.RunOnStart {
		report := a.worker.RunOnce(ctx)
		logger.Infof("startup tick: %d accounts, %d trades, %d errors",
			report.Accounts, report.TradesExecuted, len(report.Errors))
	}

	if err := a.worker.Start(ctx); err != nil {
		return err
	}
	group.Go(func() error {
		<-ctx.Done()
		a.worker.Stop()
		return nil
	})

	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Run(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	return group.Wait()
}

func (a *App) close() {
	if a.closer == nil {
		return
	}
	if err := a.closer(); err != nil {
		logger.Warnf("closing stores: %v", err)
	}
}
