package aster

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultStreamURL is the production websocket endpoint.
const DefaultStreamURL = "wss://fstream.asterdex.com/ws"

// MarkPrice is one mark-price tick from the stream.
type MarkPrice struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// StreamClient consumes Aster public websocket streams.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; an empty URL uses production.
func NewStreamClient(streamURL string) *StreamClient {
	if streamURL == "" {
		streamURL = DefaultStreamURL
	}
	return &StreamClient{
		StreamURL: strings.TrimRight(streamURL, "/"),
		dialer:    websocket.DefaultDialer,
	}
}

type markPriceMessage struct {
	Event  string `json:"e"`
	Symbol string `json:"s"`
	Price  string `json:"p"`
	Time   int64  `json:"E"`
}

// SubscribeMarkPrice listens to the mark-price stream for symbol and
// pushes parsed ticks into a channel. Slow consumers drop ticks rather
// than stall the read loop. It returns the channel and a stop function.
func (c *StreamClient) SubscribeMarkPrice(ctx context.Context, symbol string) (<-chan MarkPrice, func(), error) {
	stream := fmt.Sprintf("%s@markPrice", strings.ToLower(symbol))
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial aster ws: %w", err)
	}

	out := make(chan MarkPrice, 100)
	// stop only tears down the connection; the read loop owns the
	// channel and closes it on exit, so the consumer can call stop at
	// any point without racing a send.
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("aster ws read error: %v", err)
				return
			}

			var m markPriceMessage
			if err := json.Unmarshal(msg, &m); err != nil || m.Event != "markPriceUpdate" {
				continue
			}
			tick := MarkPrice{
				Symbol: m.Symbol,
				Price:  parseFloat(m.Price),
				Time:   time.UnixMilli(m.Time),
			}
			select {
			case out <- tick:
			default:
			}
		}
	}()

	return out, stop, nil
}
