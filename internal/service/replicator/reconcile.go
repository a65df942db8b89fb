package replicator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/krobus00/copy-trader-service/internal/entity"
)

// ReconcileLeader closes the gap between "leader placed an order before the
// stream existed" and "follower never got it". It runs once per leader after
// every stream (re)connect, before steady-state processing: leader open
// orders are diffed against each follower's open orders by client order id,
// and anything missing is replicated through the regular sizing and retry
// path. Follower orders the leader no longer has open are left alone.
func (r *Replicator) ReconcileLeader(ctx context.Context, leaderID string, leaderClient entity.TradingClient) error {
	relations := r.graph.Followers(leaderID)
	if len(relations) == 0 {
		return nil
	}

	leaderOrders, err := leaderClient.GetOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("fetch open orders for leader %s: %w", leaderID, err)
	}

	for i := range leaderOrders {
		leaderOrders[i].Normalize()
	}

	for _, relation := range relations {
		if err := ctx.Err(); err != nil {
			return err
		}

		client, ok := r.followers[relation.FollowerID]
		if !ok {
			continue
		}

		followerOrders, err := client.GetOpenOrders(ctx)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"leader":   leaderID,
				"follower": relation.FollowerID,
			}).Errorf("fetch follower open orders failed, skipping reconciliation: %v", err)
			continue
		}

		held := make(map[string]struct{}, len(followerOrders))
		for i := range followerOrders {
			followerOrders[i].Normalize()
			held[followerOrders[i].ClientID] = struct{}{}
		}

		replicated := 0
		for _, order := range leaderOrders {
			if _, exists := held[order.ClientID]; exists {
				continue
			}

			r.placeForFollower(ctx, relation, client, order)
			replicated++
		}

		if replicated > 0 {
			logrus.WithFields(logrus.Fields{
				"leader":   leaderID,
				"follower": relation.FollowerID,
				"count":    replicated,
			}).Info("reconciliation replicated missing orders")
		}
	}

	return nil
}
