package workers

import (
	"context"
	"encoding/json"

	"zk-tax-system/internal/model"
	dtocommon "zk-tax-system/pkg/dto_common"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	reasoncodes "zk-tax-system/pkg/reason_codes"

	amqp "github.com/rabbitmq/amqp091-go"
)

const RevocationConsumerAlias rabbitmq.ConsumerAlias = "ProofRevocationConsumer"

type Revoker interface {
	Revoke(ctx context.Context, id, reason string) (*model.IncomeProof, error)
}

// RevocationWorker applies revocation requests published by administrative systems.
type RevocationWorker struct {
	revoker  Revoker
	consumer rabbitmq.IRabbitmqConsumer
	logger   *logger.Logger
}

func NewRevocationWorker(revoker Revoker, consumer rabbitmq.IRabbitmqConsumer, l *logger.Logger) *RevocationWorker {
	return &RevocationWorker{
		revoker:  revoker,
		consumer: consumer,
		logger:   l.Named(string(RevocationConsumerAlias)),
	}
}

var _ rabbitmq.WorkerService = (*RevocationWorker)(nil)

func (w *RevocationWorker) GetServiceName() string {
	return string(RevocationConsumerAlias)
}

func (w *RevocationWorker) StartService(ctx context.Context) error {
	w.logger.Info("Starting proof revocation worker")
	return w.consumer.StartConsuming(ctx, func(d amqp.Delivery) error {
		return w.handle(ctx, d)
	})
}

// handle returns an error only for transient failures, which the consumer requeues
// once. Requests that can never succeed are logged and acknowledged.
func (w *RevocationWorker) handle(ctx context.Context, d amqp.Delivery) error {
	var req dtocommon.ProofRevocationRequestDto
	if err := json.Unmarshal(d.Body, &req); err != nil {
		w.logger.Errorf(err, "Dropping malformed revocation request")
		return nil
	}

	_, err := w.revoker.Revoke(ctx, req.ProofId, req.Reason)
	switch reasoncodes.CodeOf(err) {
	case reasoncodes.ErrValidation, reasoncodes.ErrNotFound, reasoncodes.ErrStateConflict:
		w.logger.Warnf("Revocation of proof %s not applied: %s", req.ProofId, reasoncodes.MessageOf(err))
		return nil
	}
	if err != nil {
		return err
	}
	w.logger.Infof("Proof %s revoked from queue", req.ProofId)
	return nil
}
