package bootstrap

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/krobus00/copy-trader-service/internal/config"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/krobus00/copy-trader-service/internal/exchange"
	"github.com/krobus00/copy-trader-service/internal/infrastructure"
	"github.com/krobus00/copy-trader-service/internal/service/journal"
	"github.com/krobus00/copy-trader-service/internal/service/replicator"
	"github.com/krobus00/copy-trader-service/internal/service/subscription"
	"github.com/krobus00/copy-trader-service/internal/util"
)

// StartReplicator wires and runs the replication engine: follow graph from
// config, one trading client per credentialed account, one stream manager
// goroutine per followed leader.
func StartReplicator(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	graph, err := entity.BuildFollowGraph(config.Env.FollowTables())
	util.ContinueOrFatal(err)

	// follower REST clients; parties without credentials are excluded up
	// front and logged exactly once
	followerClients := make(map[string]entity.TradingClient)
	for followerID, follower := range config.Env.Followers {
		if !follower.HasCredentials() {
			logrus.Errorf("missing api credentials for follower %s, skipping", followerID)
			continue
		}

		followerClients[followerID] = exchange.NewClient(
			config.Env.Exchange.RestURL,
			follower.APIKey,
			follower.APISecret,
			follower.Subaccount,
		)
	}

	ledgerStore, closeLedger := buildLedgerStore()

	var actionPublisher replicator.ActionPublisher
	cleanup := map[string]operation{}

	if config.Env.Journal.Enabled {
		nc, js, err := infrastructure.NewJetstream()
		util.ContinueOrFatal(err)

		publisher := journal.NewJetstreamPublisher(js)
		err = publisher.JetstreamEventInit(ctx)
		util.ContinueOrFatal(err)

		actionPublisher = publisher
		cleanup["nats connection"] = func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		}
	}

	engine := replicator.New(graph, followerClients, replicator.NewDedupLedger(ledgerStore), actionPublisher, replicator.Options{
		MaxRetries:          config.Env.Replication.MaxRetries,
		RetryDelay:          config.Env.Replication.RetryDelay,
		FollowerMaxInflight: config.Env.Replication.FollowerMaxInflight,
	})

	started := 0
	for _, leaderID := range graph.Leaders() {
		leader, ok := config.Env.Leaders[leaderID]
		if !ok || !leader.HasCredentials() {
			logrus.Errorf("missing api credentials for leader %s, skipping", leaderID)
			continue
		}

		leaderClient := exchange.NewClient(
			config.Env.Exchange.RestURL,
			leader.APIKey,
			leader.APISecret,
			leader.Subaccount,
		)
		dialer := exchange.NewStreamDialer(
			config.Env.Exchange.WsURL,
			leader.APIKey,
			leader.APISecret,
			leader.Subaccount,
		)

		manager := subscription.NewManager(leaderID, dialer, leaderClient, engine, config.Env.Replication.HeartbeatInterval)
		go manager.Run(ctx)
		started++
	}

	if started == 0 {
		util.ContinueOrFatal(errors.New("no leader stream could be started, nothing to replicate"))
	}

	statusServer := infrastructure.NewStatusServer(
		config.Env.Port["status_http"],
		config.Env.GracefulShutdownTimeout,
		func() any { return engine.Metrics().Snapshot() },
	)
	go func() {
		if err := statusServer.Start(); err != nil {
			logrus.Error(err)
		}
	}()

	logrus.Infof("replication engine started for %d leaders", started)

	cleanup["leader streams"] = func(ctx context.Context) error {
		cancel()
		return nil
	}
	cleanup["status server"] = func(ctx context.Context) error {
		return statusServer.Shutdown(ctx)
	}
	cleanup["ledger store"] = func(ctx context.Context) error {
		return closeLedger()
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, cleanup)
	<-wait
}

// buildLedgerStore picks the shared Redis store when a cache DSN is
// configured, otherwise the default in-memory one.
func buildLedgerStore() (replicator.LedgerStore, func() error) {
	dsn := config.Env.Replication.LedgerCacheDSN
	if dsn == "" {
		return replicator.NewMemoryLedgerStore(), func() error { return nil }
	}

	store, err := replicator.NewRedisLedgerStore(dsn)
	util.ContinueOrFatal(err)

	logrus.Info("dedup ledger backed by redis")
	return store, store.Close
}
