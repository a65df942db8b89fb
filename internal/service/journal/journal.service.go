package journal

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/krobus00/copy-trader-service/internal/config"
	"github.com/krobus00/copy-trader-service/internal/constant"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/krobus00/copy-trader-service/internal/repository"
	"github.com/krobus00/copy-trader-service/internal/util"
)

// JournalService drains the copy-action work queue into the audit table.
// The table is write-only from the engine's point of view: no dedup or
// reconciliation state is ever read back from it.
type JournalService struct {
	copyActionRepo *repository.CopyActionRepository
	js             nats.JetStreamContext
}

func NewJournalService(copyActionRepo *repository.CopyActionRepository, js nats.JetStreamContext) *JournalService {
	return &JournalService{
		copyActionRepo: copyActionRepo,
		js:             js,
	}
}

func (s *JournalService) JetstreamEventInit(ctx context.Context) error {
	return ensureCopyActionStream(ctx, s.js)
}

func (s *JournalService) JetstreamEventSubscribe(ctx context.Context) error {
	err := s.JetstreamEventInit(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	_, err = s.js.QueueSubscribe(
		constant.CopyActionStreamSubjectRecorded,
		constant.CopyActionQueueGroup,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(config.Env.NatsJetstream.TimeoutHandler["record_copy_action"], msg, s.handleCopyActionEvent)
			if err != nil {
				logrus.Errorf("error processing message: %v", err)
				return
			}

			err = msg.Ack()
			if err != nil {
				logrus.Errorf("failed to acknowledge message: %v", err)
				return
			}
		},
		nats.ManualAck(),
		nats.Durable(constant.CopyActionQueueGroup),
	)
	util.ContinueOrFatal(err)

	return nil
}

func (s *JournalService) handleCopyActionEvent(ctx context.Context, msg *nats.Msg) (err error) {
	logger := logrus.WithFields(logrus.Fields{
		"req": string(msg.Data),
	})

	var req *entity.CopyActionEvent
	err = json.Unmarshal(msg.Data, &req)
	if err != nil {
		logger.Error(err)
		return err
	}

	defer func() {
		if err != nil {
			req.RetryCount++
			if req.RetryCount >= config.Env.NatsJetstream.MaxRetries {
				return
			}

			err := util.PublishEvent(s.js, constant.CopyActionStreamSubjectRecorded, req)
			if err != nil {
				logger.Error(err)
				return
			}
		}
	}()

	err = s.copyActionRepo.Create(ctx, &req.Data)
	if err != nil {
		logger.Error(err)
		return err
	}

	return nil
}
