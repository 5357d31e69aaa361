package app

import (
	"context"
	"fmt"
	"time"

	"stockpilot/internal/broker"
	spcfg "stockpilot/internal/config"
	"stockpilot/internal/indicator"
	"stockpilot/internal/ledger"
	"stockpilot/internal/logger"
	"stockpilot/internal/market"
	"stockpilot/internal/market/yahoo"
	"stockpilot/internal/notifier"
	"stockpilot/internal/store"
	"stockpilot/internal/store/equitylog"
	"stockpilot/internal/store/gormstore"
	"stockpilot/internal/strategy"
	transporthttp "stockpilot/internal/transport/http"
	"stockpilot/internal/worker"
)

type appBuilderDeps interface {
	Build() (*App, error)
}

func provideAppBuilder(cfg *spcfg.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

func provideAppFromBuilder(b appBuilderDeps, _ context.Context) (*App, error) {
	return b.Build()
}

// AppBuilder constructs the service graph. The Fn hooks let tests swap out
// individual pieces without a real database or network.
type AppBuilder struct {
	cfg *spcfg.Config

	sourceFn func(spcfg.MarketConfig) market.Source
	brokerFn func(spcfg.BrokerConfig, market.Source) (broker.Broker, error)
	notifyFn func(spcfg.NotifyConfig) notifier.Notifier

	storeOverride  store.Store
	equityOverride store.EquityStore
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *spcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:      cfg,
		sourceFn: buildMarketSource,
		brokerFn: buildBroker,
		notifyFn: buildNotifier,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func WithMarketSource(fn func(spcfg.MarketConfig) market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sourceFn = fn
		}
	}
}

func WithBroker(fn func(spcfg.BrokerConfig, market.Source) (broker.Broker, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.brokerFn = fn
		}
	}
}

func WithNotifier(fn func(spcfg.NotifyConfig) notifier.Notifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifyFn = fn
		}
	}
}

func WithStorageOverrides(st store.Store, eq store.EquityStore) AppBuilderOption {
	return func(b *AppBuilder) {
		if st != nil {
			b.storeOverride = st
		}
		if eq != nil {
			b.equityOverride = eq
		}
	}
}

// Build assembles the full application.
func (b *AppBuilder) Build() (*App, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	st, eq, closer, err := b.resolveStores(cfg)
	if err != nil {
		return nil, err
	}

	source := b.sourceFn(cfg.Market)

	brk, err := b.brokerFn(cfg.Broker, source)
	if err != nil {
		closer()
		return nil, err
	}
	logger.Infof("broker backend: %s", brk.Name())

	svc := ledger.NewService(st, eq, brk, source,
		ledger.WithQuoteTimeout(time.Duration(cfg.Market.QuoteTimeoutSeconds)*time.Second),
		ledger.WithMaxParallelQuotes(cfg.Market.MaxParallelQuotes),
	)

	engine := indicator.NewEngine(source)
	evaluator := strategy.NewEvaluator(engine)
	notify := b.notifyFn(cfg.Notify)

	w := worker.New(svc, st, evaluator, notify,
		time.Duration(cfg.Worker.IntervalSeconds)*time.Second,
		worker.WithDefaultQuantity(cfg.Worker.DefaultQuantity),
	)

	var server *transporthttp.Server
	if cfg.Server.Enabled {
		server = transporthttp.NewServer(cfg.Server.Addr, svc, st, source, engine, w)
	}

	return &App{
		cfg:    cfg,
		ledger: svc,
		worker: w,
		server: server,
		closer: func() error { closer(); return nil },
	}, nil
}

func (b *AppBuilder) resolveStores(cfg *spcfg.Config) (store.Store, store.EquityStore, func(), error) {
	if b.storeOverride != nil && b.equityOverride != nil {
		return b.storeOverride, b.equityOverride, func() {}, nil
	}

	gs, err := gormstore.NewGormStore(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening ledger database: %w", err)
	}
	el, err := equitylog.New(cfg.Database.EquityLogPath)
	if err != nil {
		gs.Close()
		return nil, nil, nil, fmt.Errorf("opening equity log: %w", err)
	}

	var st store.Store = gs
	var eq store.EquityStore = el
	if b.storeOverride != nil {
		st = b.storeOverride
	}
	if b.equityOverride != nil {
		eq = b.equityOverride
	}
	closer := func() {
		if err := el.Close(); err != nil {
			logger.Warnf("closing equity log: %v", err)
		}
		if err := gs.Close(); err != nil {
			logger.Warnf("closing ledger database: %v", err)
		}
	}
	return st, eq, closer, nil
}

func buildMarketSource(cfg spcfg.MarketConfig) market.Source {
	timeout := time.Duration(cfg.QuoteTimeoutSeconds) * time.Second
	src := yahoo.NewSource(timeout)
	cache := market.NewMemoryCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	return market.NewCachedSource(src, cache)
}

func buildBroker(cfg spcfg.BrokerConfig, source market.Source) (broker.Broker, error) {
	switch cfg.Mode {
	case "kis":
		return broker.NewKIS(cfg.KIS)
	case "simulated", "":
		return broker.NewSimulated(source), nil
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Mode)
	}
}

func buildNotifier(cfg spcfg.NotifyConfig) notifier.Notifier {
	if cfg.Telegram.Enabled {
		return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return notifier.Noop{}
}
