package replicator

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/krobus00/copy-trader-service/internal/entity"
)

func openOrder(id int64, clientID, market string) entity.OrderEvent {
	price := decimal.NewFromInt(50)
	return entity.OrderEvent{
		ID:       id,
		ClientID: clientID,
		Market:   market,
		Type:     entity.OrderTypeLimit,
		Side:     entity.OrderSideBuy,
		Price:    &price,
		Size:     decimal.NewFromInt(2),
		Status:   entity.OrderStatusOpen,
	}
}

func TestReconcileLeaderPlacesMissingOrders(t *testing.T) {
	leader := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(1, "A", "BTC-PERP"),
		openOrder(2, "B", "ETH-PERP"),
	}}
	follower := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(1, "A", "BTC-PERP"),
	}}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "50%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	if err := engine.ReconcileLeader(context.Background(), "L", leader); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	calls := follower.placed()
	if len(calls) != 1 {
		t.Fatalf("placements = %d, want only the missing order", len(calls))
	}
	if calls[0].ClientID != "B" {
		t.Fatalf("placed client id = %q, want B", calls[0].ClientID)
	}
	if !calls[0].Size.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("reconciled size = %s, want scaled size 1", calls[0].Size)
	}
}

func TestReconcileLeaderLeavesExtraFollowerOrdersAlone(t *testing.T) {
	leader := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(1, "A", "BTC-PERP"),
	}}
	follower := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(1, "A", "BTC-PERP"),
		openOrder(9, "stale", "BTC-PERP"),
	}}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	if err := engine.ReconcileLeader(context.Background(), "L", leader); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if len(follower.placed()) != 0 {
		t.Fatal("follower already holds every leader order, nothing to place")
	}
	if len(follower.cancelCalls) != 0 {
		t.Fatal("reconciliation must not cancel follower orders the leader lacks")
	}
}

func TestReconcileLeaderMatchesByExchangeIDFallback(t *testing.T) {
	// both sides report the order without a client id; normalization maps it
	// to the exchange id on each, so the diff still lines up
	leader := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(42, "", "BTC-PERP"),
	}}
	follower := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(42, "", "BTC-PERP"),
	}}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	if err := engine.ReconcileLeader(context.Background(), "L", leader); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if got := len(follower.placed()); got != 0 {
		t.Fatalf("matching orders were re-placed: %d placements", got)
	}
}

func TestReconcileLeaderSurfacesLeaderFetchError(t *testing.T) {
	leader := &fakeTradingClient{openErr: errors.New("timeout")}
	follower := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{"F": {"L": "100%"}},
		map[string]entity.TradingClient{"F": follower},
	)

	if err := engine.ReconcileLeader(context.Background(), "L", leader); err == nil {
		t.Fatal("leader snapshot failure must be reported to the caller")
	}
	if len(follower.placed()) != 0 {
		t.Fatal("no placements without a leader snapshot")
	}
}

func TestReconcileLeaderSkipsFollowerOnFetchError(t *testing.T) {
	leader := &fakeTradingClient{openOrders: []entity.OrderEvent{
		openOrder(1, "A", "BTC-PERP"),
	}}
	broken := &fakeTradingClient{openErr: errors.New("timeout")}
	healthy := &fakeTradingClient{}
	engine := newTestReplicator(t,
		map[string]map[string]string{
			"F1": {"L": "100%"},
			"F2": {"L": "100%"},
		},
		map[string]entity.TradingClient{"F1": broken, "F2": healthy},
	)

	if err := engine.ReconcileLeader(context.Background(), "L", leader); err != nil {
		t.Fatalf("one broken follower must not abort the sweep: %v", err)
	}

	if len(broken.placed()) != 0 {
		t.Fatal("no placements on a follower whose snapshot failed")
	}
	if len(healthy.placed()) != 1 {
		t.Fatalf("healthy follower placements = %d, want 1", len(healthy.placed()))
	}
}
