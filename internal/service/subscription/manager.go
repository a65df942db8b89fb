package subscription

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/krobus00/copy-trader-service/internal/service/replicator"
)

const (
	defaultHeartbeatInterval = 15 * time.Second

	reconnectMinDelay = 1 * time.Second
	reconnectMaxDelay = 15 * time.Second
	reconnectFactor   = 2.0
)

// Manager owns the stream lifecycle for exactly one leader: dial, login,
// subscribe, reconcile, read. The leader id is fixed at construction, so an
// incoming message never needs its origin recovered by comparison. One
// Manager runs per leader goroutine; failures on one leader's connection are
// invisible to the others.
type Manager struct {
	leaderID     string
	dial         entity.StreamDialer
	leaderClient entity.TradingClient
	engine       *replicator.Replicator
	heartbeat    time.Duration
}

func NewManager(leaderID string, dial entity.StreamDialer, leaderClient entity.TradingClient, engine *replicator.Replicator, heartbeat time.Duration) *Manager {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	return &Manager{
		leaderID:     leaderID,
		dial:         dial,
		leaderClient: leaderClient,
		engine:       engine,
		heartbeat:    heartbeat,
	}
}

// Run drives the connect/read loop until the context is cancelled. Each
// failed session is followed by a fresh dial after a capped backoff with
// jitter; the attempt counter resets once a session establishes.
func (m *Manager) Run(ctx context.Context) {
	logger := logrus.WithField("leader", m.leaderID)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		m.engine.Metrics().SetLeaderState(m.leaderID, "connecting")

		stream := m.dial()
		if err := m.runSession(ctx, stream, logger); err != nil {
			m.engine.Metrics().SetLeaderState(m.leaderID, "disconnected")

			if ctx.Err() != nil {
				return
			}

			wait := reconnectDelay(attempt, rng)
			attempt++
			logger.WithFields(logrus.Fields{
				"retry_in": wait.String(),
				"attempt":  attempt,
			}).Warnf("leader stream failed: %v", err)

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}

		// session ended without error only on shutdown
		m.engine.Metrics().SetLeaderState(m.leaderID, "stopped")
		return
	}
}

// runSession runs one stream session to completion. The reconciliation sweep
// happens after subscribing and before the read loop, so orders placed while
// disconnected are caught up exactly once per session.
func (m *Manager) runSession(ctx context.Context, stream entity.OrderStream, logger *logrus.Entry) error {
	if err := stream.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		_ = stream.Close()
	}()

	if err := stream.SubscribeOrders(); err != nil {
		return err
	}

	logger.Info("leader stream subscribed")
	m.engine.Metrics().SetLeaderState(m.leaderID, "connected")

	if err := m.engine.ReconcileLeader(ctx, m.leaderID, m.leaderClient); err != nil {
		// streaming still proceeds: the next session retries the sweep
		logger.Errorf("reconciliation sweep failed: %v", err)
	}

	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)

	// The heartbeat runs on its own goroutine so a slow replication
	// fan-out cannot starve the keep-alive.
	go func() {
		ticker := time.NewTicker(m.heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := stream.Ping(); err != nil {
					logger.Warnf("heartbeat failed: %v", err)
					return
				}
			case <-ctx.Done():
				return
			case <-stopHeartbeat:
				return
			}
		}
	}()

	for {
		message, err := stream.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		m.engine.HandleStreamMessage(ctx, m.leaderID, message)
	}
}

func reconnectDelay(attempt int, rng *rand.Rand) time.Duration {
	backoff := float64(reconnectMinDelay) * math.Pow(reconnectFactor, float64(attempt))
	if backoff > float64(reconnectMaxDelay) {
		backoff = float64(reconnectMaxDelay)
	}

	jitterWindow := int64(reconnectMinDelay)
	jitter := time.Duration(rng.Int63n(jitterWindow + 1))

	wait := time.Duration(backoff) + jitter
	if wait > reconnectMaxDelay {
		return reconnectMaxDelay
	}

	return wait
}
