// Package api exposes the operator portal: agent status, cycle history,
// performance read-models, and risk-config editing. It reads the same
// journal and config store the agents use; it never talks to the venue.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"roma-trading/internal/agent"
	"roma-trading/internal/events"
	"roma-trading/internal/journal"
	"roma-trading/pkg/config"
)

// Agents is the manager surface the portal reads. Narrow so tests can
// stub it without running real agents.
type Agents interface {
	Statuses() []agent.Status
	Status(id string) (agent.Status, bool)
}

// Server wires HTTP endpoints around the journal and the event bus.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	Store   *config.Store
	Journal *journal.Journal
	Agents  Agents
}

func NewServer(store *config.Store, j *journal.Journal, agents Agents, bus *events.Bus) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Bus:     bus,
		Store:   store,
		Journal: j,
		Agents:  agents,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.Store.Server().AuthSecret))
		{
			protected.GET("/agents", s.listAgents)
			protected.GET("/agents/:id/status", s.getAgentStatus)
			protected.GET("/agents/:id/cycles", s.getAgentCycles)
			protected.GET("/agents/:id/trades", s.getAgentTrades)
			protected.GET("/agents/:id/equity", s.getAgentEquity)
			protected.GET("/agents/:id/performance", s.getAgentPerformance)
			protected.GET("/agents/:id/risk", s.getAgentRisk)
			protected.PUT("/agents/:id/risk", s.updateAgentRisk)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
