package replicator

import (
	"context"
	"sync"

	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/sirupsen/logrus"
)

// LedgerStore holds the most recently replicated client order id per
// (leader, follower) pair. It is a latest-value cache, never a history:
// exactly one record per pair, process lifetime, rebuilt from the exchange by
// the reconciliation sweep after a restart.
type LedgerStore interface {
	LastDelivered(ctx context.Context, leaderID, followerID string) (string, bool, error)
	SetLastDelivered(ctx context.Context, leaderID, followerID, clientID string) error
}

// DedupLedger decides whether an incoming order event still needs to be
// replicated to a follower.
type DedupLedger struct {
	store LedgerStore
}

func NewDedupLedger(store LedgerStore) *DedupLedger {
	if store == nil {
		store = NewMemoryLedgerStore()
	}

	return &DedupLedger{store: store}
}

// ShouldReplicate reports true when the event is a fresh order (status new),
// a market order (fills are always re-checked), or carries a client id other
// than the last one delivered for this pair. Store failures fail open: a
// duplicate placement is benign because the exchange dedupes by client id,
// a dropped replication is not.
func (l *DedupLedger) ShouldReplicate(ctx context.Context, leaderID, followerID, clientID string, status entity.OrderStatus, orderType entity.OrderType) bool {
	if status == entity.OrderStatusNew || orderType == entity.OrderTypeMarket {
		return true
	}

	last, found, err := l.store.LastDelivered(ctx, leaderID, followerID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"leader":   leaderID,
			"follower": followerID,
		}).Warnf("ledger read failed, replicating anyway: %v", err)
		return true
	}

	return !found || last != clientID
}

// RecordDelivered overwrites the pair's latest delivered client id. Called
// once per successful replication, never on cancels.
func (l *DedupLedger) RecordDelivered(ctx context.Context, leaderID, followerID, clientID string) {
	if err := l.store.SetLastDelivered(ctx, leaderID, followerID, clientID); err != nil {
		logrus.WithFields(logrus.Fields{
			"leader":   leaderID,
			"follower": followerID,
		}).Warnf("ledger write failed: %v", err)
	}
}

type pairKey struct {
	leaderID   string
	followerID string
}

// MemoryLedgerStore is the default store: a mutex-guarded map. Callbacks for
// different leaders can target the same follower concurrently, so the lock is
// not optional.
type MemoryLedgerStore struct {
	mu      sync.RWMutex
	entries map[pairKey]string
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{entries: make(map[pairKey]string)}
}

func (s *MemoryLedgerStore) LastDelivered(_ context.Context, leaderID, followerID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clientID, found := s.entries[pairKey{leaderID: leaderID, followerID: followerID}]
	return clientID, found, nil
}

func (s *MemoryLedgerStore) SetLastDelivered(_ context.Context, leaderID, followerID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[pairKey{leaderID: leaderID, followerID: followerID}] = clientID
	return nil
}
