package replicator

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/copy-trader-service/internal/constant"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxRetries          = 3
	defaultRetryDelay          = 50 * time.Millisecond
	defaultFollowerMaxInflight = 4
)

// ActionPublisher receives one audit record per attempted replication.
// Nil disables journaling entirely.
type ActionPublisher interface {
	PublishCopyAction(ctx context.Context, action entity.CopyAction) error
}

type Options struct {
	MaxRetries          int
	RetryDelay          time.Duration
	FollowerMaxInflight int64
}

// Replicator turns leader order events into scaled, deduplicated order
// actions on followers. Event handling is synchronous: one event is fully
// fanned out before the leader's next one is read, so a leader's events keep
// their stream order. Different leaders run on different goroutines and meet
// only in the ledger and the per-follower semaphores.
type Replicator struct {
	graph     *entity.FollowGraph
	followers map[string]entity.TradingClient
	ledger    *DedupLedger
	journal   ActionPublisher
	metrics   *Metrics

	maxRetries  int
	retryDelay  time.Duration
	maxInflight int64

	semMu        sync.Mutex
	followerSems map[string]*semaphore.Weighted
}

func New(graph *entity.FollowGraph, followers map[string]entity.TradingClient, ledger *DedupLedger, journal ActionPublisher, opts Options) *Replicator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.FollowerMaxInflight <= 0 {
		opts.FollowerMaxInflight = defaultFollowerMaxInflight
	}
	if ledger == nil {
		ledger = NewDedupLedger(nil)
	}

	return &Replicator{
		graph:        graph,
		followers:    followers,
		ledger:       ledger,
		journal:      journal,
		metrics:      NewMetrics(),
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		maxInflight:  opts.FollowerMaxInflight,
		followerSems: make(map[string]*semaphore.Weighted),
	}
}

func (r *Replicator) Metrics() *Metrics {
	return r.metrics
}

// HandleStreamMessage consumes one decoded frame from a leader's stream.
// Frames off the orders channel are ignored; malformed payloads are logged
// and dropped so one leader's anomalous message never takes down processing
// for the others.
func (r *Replicator) HandleStreamMessage(ctx context.Context, leaderID string, message *entity.StreamMessage) {
	if message == nil || message.Channel != constant.OrdersChannel {
		return
	}
	if message.Type != "" && message.Type != "update" {
		return
	}

	var event entity.OrderEvent
	if err := json.Unmarshal(message.Data, &event); err != nil {
		logrus.WithField("leader", leaderID).Warnf("dropping malformed order event: %v", err)
		return
	}

	event.Normalize()
	r.metrics.EventSeen()

	logrus.WithFields(logrus.Fields{
		"leader":          leaderID,
		"market":          event.Market,
		"status":          event.Status,
		"type":            event.Type,
		"client_order_id": event.ClientID,
	}).Debug("incoming order event")

	r.ReplicateEvent(ctx, leaderID, event)
}

// ReplicateEvent classifies one normalized order event and fans it out to
// every follower of the leader. Classification per follower:
//   - closed non-market orders are cancelled, bypassing the ledger in both
//     directions (a cancel for an order the follower never had is benign)
//   - new orders, market orders, and client ids the ledger has not seen yet
//     are placed at the follower's scale
//   - anything else is a redundant notification and is ignored
func (r *Replicator) ReplicateEvent(ctx context.Context, leaderID string, event entity.OrderEvent) {
	relations := r.graph.Followers(leaderID)
	if len(relations) == 0 {
		return
	}

	for _, relation := range relations {
		client, ok := r.followers[relation.FollowerID]
		if !ok {
			// follower was excluded at startup, usually for missing credentials
			logrus.WithField("follower", relation.FollowerID).Debug("no trading client for follower, skipping")
			continue
		}

		if event.Status == entity.OrderStatusClosed && event.Type != entity.OrderTypeMarket {
			r.cancelForFollower(ctx, leaderID, relation.FollowerID, client, event)
			continue
		}

		if !r.ledger.ShouldReplicate(ctx, leaderID, relation.FollowerID, event.ClientID, event.Status, event.Type) {
			logrus.WithFields(logrus.Fields{
				"leader":          leaderID,
				"follower":        relation.FollowerID,
				"client_order_id": event.ClientID,
			}).Debug("order already delivered, skipping")
			continue
		}

		r.placeForFollower(ctx, relation, client, event)
	}
}

// placeForFollower sizes and places one leader order on one follower, then
// records the delivery and journals the outcome. Shared by the streaming path
// and the reconciliation sweep.
func (r *Replicator) placeForFollower(ctx context.Context, relation entity.FollowRelation, client entity.TradingClient, event entity.OrderEvent) {
	logger := logrus.WithFields(logrus.Fields{
		"leader":          relation.LeaderID,
		"follower":        relation.FollowerID,
		"market":          event.Market,
		"client_order_id": event.ClientID,
	})

	size, ok := ScaleSize(event.Size, relation.ScalePercent)
	if !ok {
		logger.Warnf("scaled size of %s at %s%% rounds to zero, skipping", event.Size, relation.ScalePercent)
		return
	}

	params := entity.PlaceOrderParams{
		Market:     event.Market,
		Side:       event.Side,
		Price:      event.Price,
		Type:       event.Type,
		Size:       size,
		ReduceOnly: event.ReduceOnly,
		IOC:        event.IOC,
		PostOnly:   event.PostOnly,
		ClientID:   event.ClientID,
	}

	err := r.placeWithRetry(ctx, relation.FollowerID, client, params)
	if err != nil {
		r.metrics.Failure()
		r.journalAction(ctx, buildCopyAction(relation.LeaderID, relation.FollowerID, entity.CopyActionPlace, params, err))
		return
	}

	r.metrics.OrderPlaced()
	r.ledger.RecordDelivered(ctx, relation.LeaderID, relation.FollowerID, event.ClientID)
	r.journalAction(ctx, buildCopyAction(relation.LeaderID, relation.FollowerID, entity.CopyActionPlace, params, nil))
}

// placeWithRetry issues the placement call, retrying transient connectivity
// failures after a short fixed delay up to maxRetries additional attempts.
// The same client order id is sent on every attempt so the exchange itself
// dedupes a retry that raced a slow success. Exchange rejections are final.
// A placement failure is logged and returned, never escalated: it must not
// stall replication to other followers.
func (r *Replicator) placeWithRetry(ctx context.Context, followerID string, client entity.TradingClient, params entity.PlaceOrderParams) error {
	sem := r.followerSemaphore(followerID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := client.PlaceOrder(ctx, params)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"follower":        followerID,
				"market":          params.Market,
				"side":            params.Side,
				"size":            params.Size.String(),
				"price":           params.PriceString(),
				"client_order_id": params.ClientID,
			}).Info("order replicated")
			return nil
		}

		lastErr = err
		if !entity.IsTransientError(err) || attempt == r.maxRetries {
			break
		}

		select {
		case <-time.After(r.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logrus.WithFields(logrus.Fields{
		"follower": followerID,
		"market":   params.Market,
		"side":     params.Side,
		"size":     params.Size.String(),
		"price":    params.PriceString(),
	}).Errorf("order could not be replicated: %v", lastErr)

	return lastErr
}

// cancelForFollower issues a cancel-by-client-id. The ledger is neither
// consulted nor updated: cancellation is always attempted, and a rejection
// for an order the follower never carried stays at debug level.
func (r *Replicator) cancelForFollower(ctx context.Context, leaderID, followerID string, client entity.TradingClient, event entity.OrderEvent) {
	logger := logrus.WithFields(logrus.Fields{
		"leader":          leaderID,
		"follower":        followerID,
		"market":          event.Market,
		"client_order_id": event.ClientID,
	})

	sem := r.followerSemaphore(followerID)
	if err := sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer sem.Release(1)

	params := entity.PlaceOrderParams{
		Market:   event.Market,
		Side:     event.Side,
		Price:    event.Price,
		Type:     event.Type,
		Size:     event.Size,
		ClientID: event.ClientID,
	}

	if err := client.CancelOrderByClientID(ctx, event.ClientID); err != nil {
		logger.Debugf("cancel not applied: %v", err)
		r.journalAction(ctx, buildCopyAction(leaderID, followerID, entity.CopyActionCancel, params, err))
		return
	}

	r.metrics.CancelIssued()
	logger.Info("order cancel replicated")
	r.journalAction(ctx, buildCopyAction(leaderID, followerID, entity.CopyActionCancel, params, nil))
}

func (r *Replicator) followerSemaphore(followerID string) *semaphore.Weighted {
	r.semMu.Lock()
	defer r.semMu.Unlock()

	sem, ok := r.followerSems[followerID]
	if !ok {
		sem = semaphore.NewWeighted(r.maxInflight)
		r.followerSems[followerID] = sem
	}

	return sem
}

func (r *Replicator) journalAction(ctx context.Context, action entity.CopyAction) {
	if r.journal == nil {
		return
	}

	if err := r.journal.PublishCopyAction(ctx, action); err != nil {
		logrus.Warnf("journal publish failed: %v", err)
	}
}

func buildCopyAction(leaderID, followerID, actionType string, params entity.PlaceOrderParams, actionErr error) entity.CopyAction {
	action := entity.CopyAction{
		LeaderID:      leaderID,
		FollowerID:    followerID,
		Action:        actionType,
		Market:        params.Market,
		Side:          string(params.Side),
		Size:          params.Size,
		Price:         params.Price,
		ClientOrderID: params.ClientID,
		Status:        entity.CopyActionStatusDone,
		CreatedAt:     time.Now().UTC(),
	}

	if actionErr != nil {
		action.Status = entity.CopyActionStatusFailed
		action.ErrorMessage = sql.NullString{String: actionErr.Error(), Valid: true}
	}

	return action
}
