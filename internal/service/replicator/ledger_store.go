package replicator

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLedgerStore shares the dedup ledger between replicator instances. The
// in-memory store stays the default; this one is selected only when
// replication.ledger_cache_dsn is configured. Semantics are identical:
// latest delivered client id per pair, nothing else.
type RedisLedgerStore struct {
	client *redis.Client
}

func NewRedisLedgerStore(cacheDSN string) (*RedisLedgerStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("ledger cache dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse ledger cache dsn: %w", err)
	}

	return &RedisLedgerStore{client: redis.NewClient(options)}, nil
}

func ledgerKey(leaderID, followerID string) string {
	return fmt.Sprintf("copy_trader:ledger:%s:%s", leaderID, followerID)
}

func (s *RedisLedgerStore) LastDelivered(ctx context.Context, leaderID, followerID string) (string, bool, error) {
	clientID, err := s.client.Get(ctx, ledgerKey(leaderID, followerID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, err
	}

	return clientID, true, nil
}

func (s *RedisLedgerStore) SetLastDelivered(ctx context.Context, leaderID, followerID, clientID string) error {
	return s.client.Set(ctx, ledgerKey(leaderID, followerID), clientID, 0).Err()
}

func (s *RedisLedgerStore) Close() error {
	return s.client.Close()
}
