package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gridsim/engine"
)

// errorStatus maps engine errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound), errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidOrder),
		errors.Is(err, engine.ErrInsufficientBudget),
		errors.Is(err, engine.ErrSessionExists),
		errors.Is(err, engine.ErrSessionStopped):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(errorStatus(err), gin.H{"error": err.Error()})
}

type startSessionRequest struct {
	Item               string  `json:"item" binding:"required"`
	Wallet             string  `json:"wallet"`
	Mode               string  `json:"mode"`
	OrderMode          string  `json:"order_mode"`
	BasePrice          float64 `json:"base_price"`
	StepPct            float64 `json:"step_pct"`
	LevelsPerSide      int     `json:"levels_per_side"`
	TakeProfitPct      float64 `json:"take_profit_pct"`
	StopLossPct        float64 `json:"stop_loss_pct"`
	TotalInvestmentUSD float64 `json:"total_investment_usd"`
}

func (s *Server) handleStartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := &engine.GridConfig{
		Item:               req.Item,
		Wallet:             req.Wallet,
		Mode:               engine.Mode(req.Mode),
		OrderMode:          engine.OrderMode(req.OrderMode),
		BasePrice:          req.BasePrice,
		StepPct:            req.StepPct,
		LevelsPerSide:      req.LevelsPerSide,
		TakeProfitPct:      req.TakeProfitPct,
		StopLossPct:        req.StopLossPct,
		TotalInvestmentUSD: req.TotalInvestmentUSD,
	}

	snap, err := s.sessions.StartSession(cfg)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleTick(c *gin.Context) {
	var req struct {
		Price *float64 `json:"price"`
	}
	// an empty body is a valid tick with no price observation
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, snap, err := s.sessions.Tick(c.Param("item"), req.Price)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"filled":    res.Filled,
		"new_fills": res.NewFills,
		"price":     res.Price,
		"no_price":  res.NoPrice,
		"session":   snap,
	})
}

func (s *Server) handleAddOrder(c *gin.Context) {
	var req struct {
		Side        string  `json:"side" binding:"required"`
		Price       float64 `json:"price" binding:"required"`
		Quantity    float64 `json:"quantity"`
		USDNotional float64 `json:"usd_notional"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := s.sessions.AddManualOrder(c.Param("item"), engine.Side(req.Side), req.Price, req.Quantity, req.USDNotional)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	if err := s.sessions.CancelOrder(c.Param("item"), c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (s *Server) handleCancelAll(c *gin.Context) {
	n, err := s.sessions.CancelAll(c.Param("item"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

func (s *Server) handleStopSession(c *gin.Context) {
	if err := s.sessions.StopSession(c.Param("item")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	all := c.Query("all") == "true"
	if err := s.sessions.ClearHistory(c.Param("item"), all); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": true, "all": all})
}

func (s *Server) handleResetSession(c *gin.Context) {
	if err := s.sessions.ResetSession(c.Param("item")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (s *Server) handleAutorun(c *gin.Context) {
	var req struct {
		Enabled     bool `json:"enabled"`
		IntervalSec int  `json:"interval_sec"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	interval := time.Duration(req.IntervalSec) * time.Second
	if err := s.sessions.SetAutorun(c.Param("item"), req.Enabled, interval); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"autorun": req.Enabled})
}

func (s *Server) handleAttachSeries(c *gin.Context) {
	var req struct {
		Series []float64 `json:"series" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.sessions.AttachSeries(c.Param("item"), req.Series); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attached": len(req.Series)})
}

func (s *Server) handleListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.ListSessions()})
}

func (s *Server) handleGetSession(c *gin.Context) {
	snap, err := s.sessions.GetSession(c.Param("item"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleListOrders(c *gin.Context) {
	snap, err := s.sessions.GetSession(c.Param("item"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": snap.Orders, "open": snap.OpenOrders})
}

func (s *Server) handleListFills(c *gin.Context) {
	snap, err := s.sessions.GetSession(c.Param("item"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	fills := snap.Fills
	if v := c.Query("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 && limit < len(fills) {
			fills = fills[len(fills)-limit:]
		}
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills})
}

func (s *Server) handleGetBudget(c *gin.Context) {
	budget, err := s.sessions.GetBudget(c.Param("item"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, budget)
}

func (s *Server) handleGetProfit(c *gin.Context) {
	state, err := s.sessions.GetProfitState(c.Param("wallet"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleRecordPnl(c *gin.Context) {
	var req struct {
		Item     string  `json:"item" binding:"required"`
		FillID   string  `json:"fill_id"`
		Side     string  `json:"side"`
		Delta    float64 `json:"delta"`
		FilledAt int64   `json:"filled_at"` // unix milliseconds
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fill := engine.Fill{
		OrderID: req.FillID,
		Side:    engine.Side(req.Side),
		Time:    time.UnixMilli(req.FilledAt),
	}
	res, err := s.sessions.RecordRealizedPnl(c.Param("wallet"), req.Item, fill, req.Delta)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
