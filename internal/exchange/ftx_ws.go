package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultWsURL = "wss://ftx.com/ws/"

// OrderStream is one authenticated websocket session delivering private order
// updates for a single account. It implements entity.OrderStream and is
// single-use: after a read failure the owner dials a new one.
type OrderStream struct {
	wsURL      string
	apiKey     string
	apiSecret  string
	subaccount string

	writeMu sync.Mutex
	conn    *websocket.Conn
}

func NewOrderStream(wsURL, apiKey, apiSecret, subaccount string) *OrderStream {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		wsURL = defaultWsURL
	}

	return &OrderStream{
		wsURL:      wsURL,
		apiKey:     strings.TrimSpace(apiKey),
		apiSecret:  strings.TrimSpace(apiSecret),
		subaccount: strings.TrimSpace(subaccount),
	}
}

// NewStreamDialer returns an entity.StreamDialer producing fresh sessions
// for one account's credentials.
func NewStreamDialer(wsURL, apiKey, apiSecret, subaccount string) entity.StreamDialer {
	return func() entity.OrderStream {
		return NewOrderStream(wsURL, apiKey, apiSecret, subaccount)
	}
}

type wsRequest struct {
	Op      string `json:"op"`
	Channel string `json:"channel,omitempty"`
	Args    any    `json:"args,omitempty"`
}

type wsLoginArgs struct {
	Key        string `json:"key"`
	Sign       string `json:"sign"`
	Time       int64  `json:"time"`
	Subaccount string `json:"subaccount,omitempty"`
}

// Connect dials the websocket endpoint and authenticates the session. The
// login signature is HMAC-SHA256(secret, "<ms>websocket_login") hex encoded.
func (s *OrderStream) Connect(ctx context.Context) error {
	if s.apiKey == "" || s.apiSecret == "" {
		return fmt.Errorf("stream credentials are missing")
	}

	logrus.Debugf("connecting to %s", s.wsURL)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, s.wsURL, nil)
	if err != nil {
		return err
	}

	conn.SetPongHandler(func(string) error {
		return nil
	})

	now := time.Now().UnixMilli()
	login := wsRequest{
		Op: "login",
		Args: wsLoginArgs{
			Key:        s.apiKey,
			Sign:       signPayload(s.apiSecret, fmt.Sprintf("%dwebsocket_login", now)),
			Time:       now,
			Subaccount: s.subaccount,
		},
	}

	if err := conn.WriteJSON(login); err != nil {
		_ = conn.Close()
		return fmt.Errorf("websocket login failed: %w", err)
	}

	s.conn = conn

	return nil
}

func (s *OrderStream) SubscribeOrders() error {
	return s.writeJSON(wsRequest{Op: "subscribe", Channel: "orders"})
}

func (s *OrderStream) Ping() error {
	return s.writeJSON(wsRequest{Op: "ping"})
}

// ReadMessage blocks until the next frame arrives and decodes its envelope.
// The payload under Data is left raw for the caller to interpret.
func (s *OrderStream) ReadMessage() (*entity.StreamMessage, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("stream is not connected")
	}

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var message entity.StreamMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, fmt.Errorf("stream message parse failed: %w", err)
	}

	return &message, nil
}

func (s *OrderStream) Close() error {
	if s.conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}

// writeJSON serializes control frames; the heartbeat ticker and the
// subscribe call can otherwise race on the connection.
func (s *OrderStream) writeJSON(v any) error {
	if s.conn == nil {
		return fmt.Errorf("stream is not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteJSON(v)
}
