// Package api exposes backtests over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/eps-trader/internal/backtest"
	"github.com/amirphl/eps-trader/internal/candle"
	"github.com/amirphl/eps-trader/internal/db"
	"github.com/amirphl/eps-trader/internal/journal"
	"github.com/amirphl/eps-trader/internal/metrics"
	"github.com/amirphl/eps-trader/internal/strategy"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultListLimit = 20

// BacktestRequest is the JSON body of POST /api/v1/backtests. Thresholds
// holds only the keys to change; the rest keep the runner's values.
type BacktestRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	InitialBalance float64         `json:"initial_balance"`
	HonorExits     *bool           `json:"honor_exits"`
	Thresholds     json.RawMessage `json:"thresholds"`
}

func (r BacktestRequest) toRequest(base strategy.Thresholds) (backtest.Request, error) {
	req := backtest.Request{
		Symbol:         r.Symbol,
		InitialBalance: r.InitialBalance,
		HonorExits:     r.HonorExits,
	}
	var err error
	if len(r.Thresholds) > 0 && string(r.Thresholds) != "null" {
		th := base
		if err := json.Unmarshal(r.Thresholds, &th); err != nil {
			return req, fmt.Errorf("invalid thresholds: %w", err)
		}
		if err := th.Validate(); err != nil {
			return req, err
		}
		req.Thresholds = &th
	}
	if req.From, err = parseDay(r.From); err != nil {
		return req, fmt.Errorf("invalid from: %w", err)
	}
	if req.To, err = parseDay(r.To); err != nil {
		return req, fmt.Errorf("invalid to: %w", err)
	}
	if r.InitialBalance < 0 {
		return req, fmt.Errorf("%w: %v", backtest.ErrInvalidBalance, r.InitialBalance)
	}
	return req, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(candle.DateLayout, s)
}

// Server serves backtests. Store may be nil, in which case runs are not
// retrievable after the POST that created them.
type Server struct {
	Runner *backtest.Runner
	Store  db.RunStorage
	Logger *zerolog.Logger
}

func NewServer(runner *backtest.Runner, store db.RunStorage, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{Runner: runner, Store: store, Logger: logger}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.setupRoutes(r)
	return r
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	{
		api.POST("/backtests", s.handleBacktestRequest)
		api.GET("/backtests", s.handleListBacktests)
		api.GET("/backtests/:id", s.handleGetBacktest)
		api.DELETE("/backtests/:id", s.handleDeleteBacktest)
		api.GET("/journal", s.handleJournal)
	}
}

func (s *Server) handleBacktestRequest(c *gin.Context) {
	var body BacktestRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := body.toRequest(s.Runner.Thresholds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := s.Runner.Run(c.Request.Context(), req)
	if err != nil {
		s.Logger.Error().Err(err).Str("symbol", body.Symbol).Msg("API | backtest request failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, run)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, backtest.ErrInvalidBalance),
		errors.Is(err, candle.ErrEmptySeries),
		errors.Is(err, backtest.ErrInvalidRange),
		errors.Is(err, strategy.ErrInsufficientData),
		errors.Is(err, strategy.ErrInvalidThresholds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetBacktest(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "runs are not stored"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	run, err := s.Store.GetRun(c.Request.Context(), id)
	if errors.Is(err, db.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.Logger.Error().Err(err).Str("run_id", id.String()).Msg("API | get run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleListBacktests(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []*backtest.Run{}})
		return
	}
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.Store.ListRuns(c.Request.Context(), strings.ToUpper(c.Query("symbol")), limit)
	if err != nil {
		s.Logger.Error().Err(err).Msg("API | list runs failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*backtest.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleDeleteBacktest(c *gin.Context) {
	if s.Store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "runs are not stored"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	if err := s.Store.DeleteRuns(c.Request.Context(), []uuid.UUID{id}); err != nil {
		s.Logger.Error().Err(err).Str("run_id", id.String()).Msg("API | delete run failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleJournal lists journaled events; query parameters type, symbol, from
// and to narrow the result.
func (s *Server) handleJournal(c *gin.Context) {
	if s.Runner.Journal == nil {
		c.JSON(http.StatusOK, gin.H{"events": []journal.Event{}})
		return
	}
	from, err := parseDay(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseDay(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	events, err := s.Runner.Journal.GetEvents(c.Query("type"), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := []journal.Event{}
	for _, e := range events {
		if symbol := c.Query("symbol"); symbol == "" || strings.EqualFold(symbol, e.Symbol) {
			out = append(out, e)
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}

func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"strategy":  s.Runner.Strategy,
	})
}
