package journal

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/krobus00/copy-trader-service/internal/constant"
	"github.com/krobus00/copy-trader-service/internal/entity"
	"github.com/krobus00/copy-trader-service/internal/util"
)

// JetstreamPublisher pushes copy-action audit records onto the journal work
// queue. The replicator holds it behind the ActionPublisher interface and
// runs with nil when journaling is disabled.
type JetstreamPublisher struct {
	js nats.JetStreamContext
}

func NewJetstreamPublisher(js nats.JetStreamContext) *JetstreamPublisher {
	return &JetstreamPublisher{js: js}
}

func (p *JetstreamPublisher) JetstreamEventInit(ctx context.Context) error {
	return ensureCopyActionStream(ctx, p.js)
}

func (p *JetstreamPublisher) PublishCopyAction(_ context.Context, action entity.CopyAction) error {
	return util.PublishEvent(p.js, constant.CopyActionStreamSubjectRecorded, entity.CopyActionEvent{
		RetryCount: 0,
		Data:       action,
	})
}

func ensureCopyActionStream(ctx context.Context, js nats.JetStreamContext) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.CopyActionStreamName,
		Subjects:  []string{constant.CopyActionStreamSubjectAll},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
	}

	stream, err := js.StreamInfo(constant.CopyActionStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.CopyActionStreamName)
		_, err = js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.CopyActionStreamName)
	_, err = js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	return nil
}
