package entity

import (
	"context"

	"github.com/goccy/go-json"
)

// TradingClient is the per-account REST surface the replication engine
// depends on. Implemented by the exchange package, faked in tests.
type TradingClient interface {
	PlaceOrder(ctx context.Context, params PlaceOrderParams) (*OrderEvent, error)
	CancelOrderByClientID(ctx context.Context, clientID string) error
	GetOpenOrders(ctx context.Context) ([]OrderEvent, error)
}

// StreamMessage is one decoded frame from a leader's order stream. The engine
// only acts on the "orders" channel; Data then matches the OrderEvent shape.
type StreamMessage struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

// OrderStream is one authenticated websocket session against the exchange.
// A session is single-use: after ReadMessage fails the owner discards it and
// dials a fresh one.
type OrderStream interface {
	Connect(ctx context.Context) error
	SubscribeOrders() error
	Ping() error
	ReadMessage() (*StreamMessage, error)
	Close() error
}

// StreamDialer produces a fresh OrderStream for a leader. The subscription
// manager closes over the leader id and its dialer at creation time, so
// connection identity is never recovered by scanning a table.
type StreamDialer func() OrderStream
