package workers

import (
	"context"

	"zk-tax-system/internal/outbox"
	"zk-tax-system/internal/store"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/robfig/cron"
)

const (
	outboxWorkerName = "OutboxCronWorker"
	outboxBatch      = 100
)

// PublisherSource resolves broker publishers by alias.
type PublisherSource interface {
	Publisher(alias rabbitmq.PublisherAlias) rabbitmq.IRabbitmqPublisher
}

type OutboxWorker struct {
	repository store.OutboxRepository
	publishers PublisherSource
	spec       string
	clock      timeutil.Clock
	cron       *cron.Cron
	logger     *logger.Logger
}

func NewOutboxWorker(repository store.OutboxRepository, publishers PublisherSource, spec string, l *logger.Logger) *OutboxWorker {
	return &OutboxWorker{
		repository: repository,
		publishers: publishers,
		spec:       spec,
		clock:      timeutil.SystemClock,
		cron:       cron.New(),
		logger:     l.Named(outboxWorkerName),
	}
}

var _ rabbitmq.WorkerService = (*OutboxWorker)(nil)

func (ow *OutboxWorker) GetServiceName() string {
	return outboxWorkerName
}

func (ow *OutboxWorker) StartService(ctx context.Context) error {
	if err := ow.cron.AddFunc(ow.spec, func() { ow.ProcessOutboxEvents(ctx) }); err != nil {
		ow.logger.Errorf(err, "Could not add function to %s", outboxWorkerName)
		return err
	}

	ow.cron.Start()
	<-ctx.Done()
	ow.cron.Stop()
	return nil
}

// ProcessOutboxEvents publishes one batch and returns how many events went out.
func (ow *OutboxWorker) ProcessOutboxEvents(ctx context.Context) int {
	events, err := ow.repository.Pending(ctx, outboxBatch)
	if err != nil {
		ow.logger.Error(err, "Could not read events from database")
		return 0
	}

	published := 0
	for _, e := range events {
		publisher := ow.publishers.Publisher(rabbitmq.PublisherAlias(e.Publisher))
		if err := publisher.Publish(outbox.RawMessage(e.Payload)); err != nil {
			ow.logger.Errorf(err, "Can't publish outbox event %s", e.EventId)
			if err := ow.repository.RecordFailure(ctx, e.Id, err); err != nil {
				ow.logger.Error(err, "Could not record outbox failure")
			}
			if e.Retry+1 >= store.MaxOutboxRetries {
				ow.logger.Warnf("Outbox event %s exceeded %d retries and needs manual attention", e.EventId, store.MaxOutboxRetries)
			}
			continue
		}
		if err := ow.repository.MarkPublished(ctx, e.Id, ow.clock()); err != nil {
			ow.logger.Error(err, "Could not mark outbox event as published")
			continue
		}
		published++
	}
	return published
}
