// Package http exposes the trading system over a JSON REST API.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stockpilot/internal/indicator"
	"stockpilot/internal/ledger"
	"stockpilot/internal/logger"
	"stockpilot/internal/market"
	"stockpilot/internal/store"
	"stockpilot/internal/worker"
)

// Server wires the API handlers to the underlying services.
type Server struct {
	addr       string
	ledger     *ledger.Service
	store      store.Store
	source     market.Source
	indicators *indicator.Engine
	worker     *worker.Worker

	httpSrv *http.Server
}

func NewServer(addr string, svc *ledger.Service, st store.Store, src market.Source, ind *indicator.Engine, w *worker.Worker) *Server {
	return &Server{
		addr:       addr,
		ledger:     svc,
		store:      st,
		source:     src,
		indicators: ind,
		worker:     w,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	s.registerRoutes(router)

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("http server listening on %s", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// Handler builds the router without binding a listener, used by tests.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/accounts", s.handleCreateAccount)
		api.GET("/accounts", s.handleListAccounts)
		api.GET("/accounts/:id", s.handleGetAccount)
		api.PUT("/accounts/:id/autotrade", s.handleSetAutoTrade)
		api.GET("/accounts/:id/portfolio", s.handleGetPortfolio)
		api.GET("/accounts/:id/trades", s.handleListTrades)
		api.POST("/accounts/:id/trades", s.handlePlaceTrade)
		api.GET("/accounts/:id/equity", s.handleEquityHistory)
		api.GET("/accounts/:id/equity/chart", s.handleEquityChart)

		api.POST("/accounts/:id/strategies", s.handleCreateStrategy)
		api.GET("/accounts/:id/strategies", s.handleListStrategies)
		api.GET("/strategies/:id", s.handleGetStrategy)
		api.PUT("/strategies/:id", s.handleUpdateStrategy)
		api.PUT("/strategies/:id/toggle", s.handleToggleStrategy)
		api.DELETE("/strategies/:id", s.handleDeleteStrategy)

		api.GET("/quotes/:symbol", s.handleGetQuote)
		api.GET("/symbols/search", s.handleSearchSymbols)
		api.GET("/indicators/:symbol", s.handleGetIndicators)

		api.POST("/worker/tick", s.handleWorkerTick)
		api.GET("/worker/status", s.handleWorkerStatus)
	}
}
