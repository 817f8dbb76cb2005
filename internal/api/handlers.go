package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roma-trading/internal/perf"
	"roma-trading/internal/risk"
)

func limitQuery(c *gin.Context, def, max int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) listAgents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"agents": s.Agents.Statuses()})
}

func (s *Server) getAgentStatus(c *gin.Context) {
	status, ok := s.Agents.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_AGENT",
			"error": "unknown agent id",
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getAgentCycles(c *gin.Context) {
	id := c.Param("id")
	limit := limitQuery(c, 20, 200)
	cycles, err := s.Journal.RecentCycles(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": cycles})
}

func (s *Server) getAgentTrades(c *gin.Context) {
	id := c.Param("id")
	limit := limitQuery(c, 50, 500)
	trades, err := s.Journal.TradeHistory(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) getAgentEquity(c *gin.Context) {
	id := c.Param("id")
	limit := limitQuery(c, 200, 2000)
	points, err := s.Journal.EquityHistory(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": points})
}

func (s *Server) getAgentPerformance(c *gin.Context) {
	id := c.Param("id")

	lookback := perf.DefaultLookback
	initial := float64(perf.DefaultInitialEquity)
	if ac, ok := s.Store.Agent(id); ok {
		if ac.Strategy.PerformanceLookback > 0 {
			lookback = ac.Strategy.PerformanceLookback
		}
		if ac.Strategy.InitialBalance > 0 {
			initial = ac.Strategy.InitialBalance
		}
	}

	trades, err := s.Journal.TradeHistory(c.Request.Context(), id, lookback)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	// History is newest first; metrics want chronological order.
	ordered := make([]perf.Trade, len(trades))
	for i, t := range trades {
		ordered[len(trades)-1-i] = perf.Trade{Symbol: t.Symbol, PnL: t.PnLUSD}
	}
	c.JSON(http.StatusOK, perf.Calculate(ordered, lookback, initial))
}

func (s *Server) getAgentRisk(c *gin.Context) {
	cfg, ok := s.Store.Risk(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_AGENT",
			"error": "unknown agent id",
		})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// updateAgentRisk persists new limits. They take effect at the next
// cycle: a cycle snapshots its risk config at validation time.
func (s *Server) updateAgentRisk(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.Store.Risk(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "UNKNOWN_AGENT",
			"error": "unknown agent id",
		})
		return
	}

	var cfg risk.Config
	if err := c.BindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if cfg.MaxPositions <= 0 || cfg.MaxLeverage <= 0 ||
		cfg.MaxSingleTradePct <= 0 || cfg.MaxTotalExposurePct <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_LIMITS",
			"error": "limits must be positive",
		})
		return
	}

	if err := s.Store.UpdateRisk(id, cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, cfg)
}
