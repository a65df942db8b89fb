package replicator

import (
	"sync"
	"sync/atomic"
)

// Metrics counts replication activity for the status endpoint. Counters are
// bumped from every leader's callback goroutine.
type Metrics struct {
	eventsSeen    atomic.Int64
	ordersPlaced  atomic.Int64
	cancelsIssued atomic.Int64
	failures      atomic.Int64

	mu           sync.RWMutex
	leaderStates map[string]string
}

type MetricsSnapshot struct {
	EventsSeen    int64             `json:"events_seen"`
	OrdersPlaced  int64             `json:"orders_placed"`
	CancelsIssued int64             `json:"cancels_issued"`
	Failures      int64             `json:"failures"`
	LeaderStates  map[string]string `json:"leader_states"`
}

func NewMetrics() *Metrics {
	return &Metrics{leaderStates: make(map[string]string)}
}

func (m *Metrics) EventSeen()    { m.eventsSeen.Add(1) }
func (m *Metrics) OrderPlaced()  { m.ordersPlaced.Add(1) }
func (m *Metrics) CancelIssued() { m.cancelsIssued.Add(1) }
func (m *Metrics) Failure()      { m.failures.Add(1) }

func (m *Metrics) SetLeaderState(leaderID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaderStates[leaderID] = state
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	states := make(map[string]string, len(m.leaderStates))
	for leaderID, state := range m.leaderStates {
		states[leaderID] = state
	}
	m.mu.RUnlock()

	return MetricsSnapshot{
		EventsSeen:    m.eventsSeen.Load(),
		OrdersPlaced:  m.ordersPlaced.Load(),
		CancelsIssued: m.cancelsIssued.Load(),
		Failures:      m.failures.Load(),
		LeaderStates:  states,
	}
}
