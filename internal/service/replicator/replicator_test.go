package replicator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/krobus00/copy-trader-service/internal/entity"
)

type fakeTradingClient struct {
	mu          sync.Mutex
	placeCalls  []entity.PlaceOrderParams
	cancelCalls []string
	openOrders  []entity.OrderEvent
	placeErrs   []error
	cancelErr   error
	openErr     error
}

func (f *fakeTradingClient) PlaceOrder(_ context.Context, params entity.PlaceOrderParams) (*entity.OrderEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.placeCalls = append(f.placeCalls, params)
	if len(f.placeErrs) > 0 {
		err := f.placeErrs[0]
		f.placeErrs = f.placeErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	return &entity.OrderEvent{ClientID: params.ClientID}, nil
}

func (f *fakeTradingClient) CancelOrderByClientID(_ context.Context, clientID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelCalls = append(f.cancelCalls, clientID)
	return f.cancelErr
}

func (f *fakeTradingClient) GetOpenOrders(_ context.Context) ([]entity.OrderEvent, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.openOrders, nil
}

func (f *fakeTradingClient) placed() []entity.PlaceOrderParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.PlaceOrderParams(nil), f.placeCalls...)
}

func mustGraph(t *testing.T, follows map[string]map[string]string) *entity.FollowGraph {
	t.Helper()
	graph, err := entity.BuildFollowGraph(follows)
	if err != nil {
		t.Fatalf("build follow graph: %v", err)
	}
	return graph
}

func newTestReplicator(t *testing.T, follows map[string]map[string]string, followers map[string]entity.TradingClient) *Replicator {
	t.Helper()
	return New(mustGraph(t, follows), followers, NewDedupLedger(nil), nil, Options{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
}

func limitEvent(clientID string, status entity.OrderStatus, size string) entity.OrderEvent {
	price := decimal.NewFromInt(100)
	return entity.OrderEvent{
		ID:       7001,
		ClientID: clientID,
		Market:   "BTC-PERP",
		Type:     entity.OrderTypeLimit,
		Side:     entity.OrderSideBuy,
		Price:    &price,
		Size:     decimal.RequireFromString(size),
		Status:   status,
	}
}

func TestReplicateEventFansOutScaledOrders(t *testing.T) {
	f1 := &fakeTradingClient{}
	f2 := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{
			"F1": {"L": "50%"},
			"F2": {"L": "100%"},
		},
		map[string]entity.TradingClient{"F1": f1, "F2": f2},
	)

	engine.ReplicateEvent(context.Background(), "L", limitEvent("c1", entity.OrderStatusNew, "2"))

	f1Calls := f1.placed()
	if len(f1Calls) != 1 {
		t.Fatalf("F1 got %d placements, want 1", len(f1Calls))
	}
	if !f1Calls[0].Size.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("F1 size = %s, want 1", f1Calls[0].Size)
	}
	if f1Calls[0].ClientID != "c1" {
		t.Fatalf("F1 client id = %s, want c1", f1Calls[0].ClientID)
	}

	f2Calls := f2.placed()
	if len(f2Calls) != 1 {
		t.Fatalf("F2 got %d placements, want 1", len(f2Calls))
	}
	if !f2Calls[0].Size.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("F2 size = %s, want 2", f2Calls[0].Size)
	}
}

func TestReplicateEventSuppressesDuplicate(t *testing.T) {
	follower := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)
	ctx := context.Background()

	engine.ReplicateEvent(ctx, "L", limitEvent("X", entity.OrderStatusNew, "1"))
	engine.ReplicateEvent(ctx, "L", limitEvent("X", entity.OrderStatusOpen, "1"))

	if got := len(follower.placed()); got != 1 {
		t.Fatalf("duplicate was replicated: %d placements, want 1", got)
	}

	engine.ReplicateEvent(ctx, "L", limitEvent("Y", entity.OrderStatusOpen, "1"))

	if got := len(follower.placed()); got != 2 {
		t.Fatalf("unseen id was not replicated: %d placements, want 2", got)
	}
}

func TestReplicateEventCancelsClosedOrders(t *testing.T) {
	follower := &fakeTradingClient{cancelErr: errors.New("Order not found")}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)
	ctx := context.Background()

	// cancel is attempted even for an order the follower never carried,
	// and a rejection stays benign
	engine.ReplicateEvent(ctx, "L", limitEvent("gone", entity.OrderStatusClosed, "1"))

	if len(follower.cancelCalls) != 1 || follower.cancelCalls[0] != "gone" {
		t.Fatalf("cancel calls = %v, want [gone]", follower.cancelCalls)
	}
	if len(follower.placed()) != 0 {
		t.Fatal("closed limit order must not be placed")
	}

	// cancel does not touch the ledger: the same id still replicates later
	engine.ReplicateEvent(ctx, "L", limitEvent("gone", entity.OrderStatusOpen, "1"))
	if len(follower.placed()) != 1 {
		t.Fatal("cancel must not record a delivery in the ledger")
	}
}

func TestReplicateEventPlacesClosedMarketOrders(t *testing.T) {
	follower := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	event := entity.OrderEvent{
		ID:       7002,
		ClientID: "m1",
		Market:   "BTC-PERP",
		Type:     entity.OrderTypeMarket,
		Side:     entity.OrderSideSell,
		Size:     decimal.NewFromInt(1),
		Status:   entity.OrderStatusClosed,
	}
	engine.ReplicateEvent(context.Background(), "L", event)

	if len(follower.placed()) != 1 {
		t.Fatal("market fills replicate even when reported closed")
	}
	if len(follower.cancelCalls) != 0 {
		t.Fatal("market fills are never cancelled")
	}
}

func TestReplicateEventSkipsZeroScaledSize(t *testing.T) {
	follower := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "1%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	engine.ReplicateEvent(context.Background(), "L", limitEvent("tiny", entity.OrderStatusNew, "0.01"))

	if len(follower.placed()) != 0 {
		t.Fatal("zero scaled size must be skipped, not placed")
	}
}

func TestReplicateEventSkipsUnknownLeader(t *testing.T) {
	follower := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	engine.ReplicateEvent(context.Background(), "stranger", limitEvent("c1", entity.OrderStatusNew, "1"))

	if len(follower.placed()) != 0 {
		t.Fatal("event for a leader without followers must be ignored")
	}
}

func TestReplicateEventSkipsFollowerWithoutClient(t *testing.T) {
	// the follower is in the graph but its client was excluded at startup
	// (missing credentials); it must receive zero calls for the whole run
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{},
	)

	engine.ReplicateEvent(context.Background(), "L", limitEvent("c1", entity.OrderStatusNew, "1"))
	engine.ReplicateEvent(context.Background(), "L", limitEvent("c1", entity.OrderStatusClosed, "1"))
}

func TestPlaceWithRetryRecoversFromTransientFailures(t *testing.T) {
	follower := &fakeTradingClient{placeErrs: []error{
		errors.New("connection reset"),
		errors.New("connection reset"),
		nil,
	}}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	engine.ReplicateEvent(context.Background(), "L", limitEvent("c1", entity.OrderStatusNew, "1"))

	if got := len(follower.placed()); got != 3 {
		t.Fatalf("placement attempts = %d, want 3", got)
	}
	snapshot := engine.Metrics().Snapshot()
	if snapshot.OrdersPlaced != 1 {
		t.Fatalf("orders placed = %d, want 1", snapshot.OrdersPlaced)
	}
	if snapshot.Failures != 0 {
		t.Fatalf("failures = %d, want 0", snapshot.Failures)
	}
}

func TestPlaceWithRetryGivesUpAfterFourAttempts(t *testing.T) {
	transient := errors.New("connection reset")
	follower := &fakeTradingClient{placeErrs: []error{transient, transient, transient, transient}}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)
	ctx := context.Background()

	engine.ReplicateEvent(ctx, "L", limitEvent("c1", entity.OrderStatusNew, "1"))

	if got := len(follower.placed()); got != 4 {
		t.Fatalf("placement attempts = %d, want 4 (1 + 3 retries)", got)
	}
	snapshot := engine.Metrics().Snapshot()
	if snapshot.OrdersPlaced != 0 {
		t.Fatalf("orders placed = %d, want 0", snapshot.OrdersPlaced)
	}
	if snapshot.Failures != 1 {
		t.Fatalf("failures = %d, want 1", snapshot.Failures)
	}

	// the failed delivery was not recorded: the next notification for the
	// same id replicates again
	engine.ReplicateEvent(ctx, "L", limitEvent("c1", entity.OrderStatusOpen, "1"))
	if got := len(follower.placed()); got != 5 {
		t.Fatalf("failed delivery must not be recorded as delivered, attempts = %d", got)
	}
}

func TestPlaceWithRetryStopsOnExchangeRejection(t *testing.T) {
	follower := &fakeTradingClient{placeErrs: []error{
		&entity.APIError{StatusCode: 400, Message: "Size too small"},
	}}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	engine.ReplicateEvent(context.Background(), "L", limitEvent("c1", entity.OrderStatusNew, "1"))

	if got := len(follower.placed()); got != 1 {
		t.Fatalf("rejected order was retried: %d attempts, want 1", got)
	}
}

func TestHandleStreamMessage(t *testing.T) {
	follower := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)
	ctx := context.Background()

	// frames off the orders channel are ignored
	engine.HandleStreamMessage(ctx, "L", &entity.StreamMessage{
		Channel: "fills",
		Type:    "update",
		Data:    json.RawMessage(`{"market":"BTC-PERP"}`),
	})
	// malformed payloads are dropped, not fatal
	engine.HandleStreamMessage(ctx, "L", &entity.StreamMessage{
		Channel: "orders",
		Type:    "update",
		Data:    json.RawMessage(`{"size":"not-a-number"}`),
	})
	if len(follower.placed()) != 0 {
		t.Fatal("ignored frames must not place orders")
	}

	// an order event without a clientId is normalized to the exchange id
	engine.HandleStreamMessage(ctx, "L", &entity.StreamMessage{
		Channel: "orders",
		Type:    "update",
		Data:    json.RawMessage(`{"id":9205,"clientId":null,"market":"ETH-PERP","type":"limit","side":"buy","price":2000,"size":1,"status":"new","reduceOnly":false,"ioc":false,"postOnly":false}`),
	})

	calls := follower.placed()
	if len(calls) != 1 {
		t.Fatalf("placements = %d, want 1", len(calls))
	}
	if calls[0].ClientID != "9205" {
		t.Fatalf("client id = %q, want exchange id fallback 9205", calls[0].ClientID)
	}
}
