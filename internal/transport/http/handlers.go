package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"stockpilot/internal/broker"
	"stockpilot/internal/ledger"
	"stockpilot/internal/report"
	"stockpilot/internal/store"
	"stockpilot/internal/strategy"
)

type createAccountRequest struct {
	Username       string  `json:"username" binding:"required"`
	InitialBalance float64 `json:"initial_balance"`
}

type autoTradeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

type placeTradeRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required"`
}

type strategyRequest struct {
	Name   string             `json:"name" binding:"required"`
	Symbol string             `json:"symbol" binding:"required"`
	Type   string             `json:"type" binding:"required"`
	Params map[string]float64 `json:"params"`
	Active bool               `json:"active"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --------------------------- accounts ------------------------------------

func (s *Server) handleCreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	acct, err := s.ledger.OpenAccount(c.Request.Context(), req.Username, req.InitialBalance)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, acct)
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.ledger.ListAccounts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (s *Server) handleGetAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	acct, err := s.ledger.GetAccount(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

func (s *Server) handleSetAutoTrade(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req autoTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.ledger.SetAutoTrade(c.Request.Context(), id, *req.Enabled); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "auto_trade": *req.Enabled})
}

func (s *Server) handleGetPortfolio(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	portfolio, err := s.ledger.GetUserPortfolio(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

func (s *Server) handleListTrades(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	trades, err := s.ledger.GetTradeHistory(c.Request.Context(), id, queryInt(c, "limit", 100))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handlePlaceTrade(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req placeTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	side, ok := broker.ParseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "side must be BUY or SELL"})
		return
	}
	result, err := s.ledger.ExecuteTrade(c.Request.Context(), id, req.Symbol, side, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleEquityHistory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	points, err := s.ledger.GetEquityHistory(c.Request.Context(), id, queryInt(c, "limit", 1000))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) handleEquityChart(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	points, err := s.ledger.GetEquityHistory(c.Request.Context(), id, queryInt(c, "limit", 1000))
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.RenderEquityChart(&buf, id, points); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// --------------------------- strategies ----------------------------------

func (s *Server) handleCreateStrategy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := strategy.ValidateParams(req.Type, req.Params); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.ledger.GetAccount(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	rec, err := s.store.CreateStrategy(c.Request.Context(), store.Strategy{
		AccountID: id,
		Name:      req.Name,
		Symbol:    strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Type:      req.Type,
		Params:    req.Params,
		Active:    req.Active,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListStrategies(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	list, err := s.store.ListStrategies(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetStrategy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, found, err := s.store.GetStrategy(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUpdateStrategy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req strategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := strategy.ValidateParams(req.Type, req.Params); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	rec, found, err := s.store.GetStrategy(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	rec.Name = req.Name
	rec.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	rec.Type = req.Type
	rec.Params = req.Params
	rec.Active = req.Active
	if err := s.store.UpdateStrategy(c.Request.Context(), rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleToggleStrategy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	rec, found, err := s.store.GetStrategy(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not found"})
		return
	}
	rec.Active = !rec.Active
	if err := s.store.UpdateStrategy(c.Request.Context(), rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteStrategy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteStrategy(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --------------------------- market --------------------------------------

func (s *Server) handleGetQuote(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	quote, err := s.source.GetQuote(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":         quote.Symbol,
		"name":           quote.Name,
		"price":          quote.Price,
		"previous_close": quote.PreviousClose,
		"change":         quote.Change(),
		"change_percent": quote.ChangePercent(),
		"currency":       quote.Currency,
		"updated_at":     quote.UpdatedAt,
	})
}

func (s *Server) handleSearchSymbols(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}
	match, err := s.source.FindTicker(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, match)
}

func (s *Server) handleGetIndicators(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	interval := c.DefaultQuery("interval", "1d")
	snap, err := s.indicators.GetIndicators(c.Request.Context(), symbol, interval, queryInt(c, "lookback", 120))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// --------------------------- worker --------------------------------------

func (s *Server) handleWorkerTick(c *gin.Context) {
	report := s.worker.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleWorkerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": s.worker.Running()})
}

// --------------------------- helpers -------------------------------------

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return v
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientQuantity):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ledger.ErrQuoteUnavailable), errors.Is(err, broker.ErrRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
