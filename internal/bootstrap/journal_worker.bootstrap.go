package bootstrap

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/krobus00/copy-trader-service/internal/config"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/krobus00/copy-trader-service/internal/infrastructure"
	"github.com/krobus00/copy-trader-service/internal/repository"
	"github.com/krobus00/copy-trader-service/internal/service/journal"
	"github.com/krobus00/copy-trader-service/internal/util"
)

// StartJournalWorker runs the audit consumer: it drains copy-action events
// from the work queue into the journal database.
func StartJournalWorker(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journalDB, err := infrastructure.NewPostgresConnection(ctx, config.Env.Database["journal"])
	util.ContinueOrFatal(err)
	infrastructure.StartPostgresHealthCheck(ctx, journalDB, config.Env.Database["journal"].PingInterval)

	nc, js, err := infrastructure.NewJetstream()
	util.ContinueOrFatal(err)

	copyActionRepo := repository.NewCopyActionRepository(journalDB)
	journalService := journal.NewJournalService(copyActionRepo, js)

	subscribers := []entity.Subscriber{journalService}
	for _, v := range subscribers {
		err = v.JetstreamEventSubscribe(ctx)
		util.ContinueOrFatal(err)
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, map[string]operation{
		"journal database": func(ctx context.Context) error {
			cancel()
			return journalDB.Close()
		},
		"nats connection": func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		},
	})

	<-wait
}
