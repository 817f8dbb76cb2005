package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"roma-trading/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// websocket pushes cycle and order updates to the dashboard as they
// happen. Price ticks ride the same connection when a stream is wired.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	cycles, unsubCycles := s.Bus.Subscribe(events.EventCycleCompleted, 100)
	defer unsubCycles()
	orders, unsubOrders := s.Bus.Subscribe(events.EventOrderSubmitted, 100)
	defer unsubOrders()
	ticks, unsubTicks := s.Bus.Subscribe(events.EventPriceTick, 100)
	defer unsubTicks()

	for {
		var msg any
		var ok bool
		select {
		case msg, ok = <-cycles:
		case msg, ok = <-orders:
		case msg, ok = <-ticks:
		case <-c.Request.Context().Done():
			return
		}
		if !ok {
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
