package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"zk-tax-system/internal/database"
	"zk-tax-system/internal/model"
	"zk-tax-system/internal/store"
	dtocommon "zk-tax-system/pkg/dto_common"
	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	reasoncodes "zk-tax-system/pkg/reason_codes"
	"zk-tax-system/pkg/utilities"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	calls []time.Time
	n     int
	err   error
}

func (f *fakeExpirer) ExpireOverdue(_ context.Context, now time.Time) (int, error) {
	f.calls = append(f.calls, now)
	return f.n, f.err
}

func TestExpiryWorkerSweep(t *testing.T) {
	expirer := &fakeExpirer{n: 3}
	w := NewExpiryWorker(expirer, "@every 1m", logger.Nop())
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	w.clock = func() time.Time { return fixed }

	assert.Equal(t, 3, w.Sweep(context.Background()))
	require.Len(t, expirer.calls, 1)
	assert.Equal(t, fixed, expirer.calls[0])

	expirer.err = errors.New("db down")
	expirer.n = 0
	assert.Equal(t, 0, w.Sweep(context.Background()))
}

func TestExpiryWorkerStartService(t *testing.T) {
	w := NewExpiryWorker(&fakeExpirer{}, "not a schedule", logger.Nop())
	assert.Error(t, w.StartService(context.Background()))

	w = NewExpiryWorker(&fakeExpirer{}, "@every 1h", logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, w.StartService(ctx))
	assert.Equal(t, expiryWorkerName, w.GetServiceName())
}

type settlement struct {
	acked    bool
	requeued bool
}

func (s *settlement) Ack(uint64, bool) error {
	s.acked = true
	return nil
}

func (s *settlement) Nack(_ uint64, _ bool, requeue bool) error {
	s.requeued = requeue
	return nil
}

func (s *settlement) Reject(_ uint64, requeue bool) error {
	s.requeued = requeue
	return nil
}

// fakeConsumer hands each body to the handler and settles it the way the broker consumer does.
type fakeConsumer struct {
	deliveries  [][]byte
	redelivered bool
	results     []error
	settled     []*settlement
}

func (f *fakeConsumer) StartConsuming(_ context.Context, handler func(amqp.Delivery) error) error {
	for _, body := range f.deliveries {
		s := &settlement{}
		d := amqp.Delivery{Body: body, Acknowledger: s, Redelivered: f.redelivered}
		err := handler(d)
		if settleErr := rabbitmq.Settle(d, err); settleErr != nil {
			return settleErr
		}
		f.results = append(f.results, err)
		f.settled = append(f.settled, s)
	}
	return nil
}

type fakeRevoker struct {
	revoked map[string]string
	err     error
}

func (f *fakeRevoker) Revoke(_ context.Context, id, reason string) (*model.IncomeProof, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.revoked[id] = reason
	return &model.IncomeProof{Id: id, Status: model.StatusRevoked}, nil
}

func request(t *testing.T, id, reason string) []byte {
	t.Helper()
	b, err := dtocommon.ProofRevocationRequestDto{ProofId: id, Reason: reason}.Serialize()
	require.NoError(t, err)
	return b
}

func TestRevocationWorkerAppliesRequests(t *testing.T) {
	revoker := &fakeRevoker{revoked: map[string]string{}}
	consumer := &fakeConsumer{deliveries: [][]byte{
		request(t, "p-1", "fraud"),
		[]byte("{not json"),
	}}

	w := NewRevocationWorker(revoker, consumer, logger.Nop())
	require.NoError(t, w.StartService(context.Background()))

	assert.Equal(t, map[string]string{"p-1": "fraud"}, revoker.revoked)
	assert.Equal(t, []error{nil, nil}, consumer.results)
}

func TestRevocationWorkerErrorHandling(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		requeue bool
	}{
		{"already terminal", reasoncodes.New(reasoncodes.ErrStateConflict, "proof is revoked"), false},
		{"unknown proof", reasoncodes.New(reasoncodes.ErrNotFound, "proof not found"), false},
		{"missing reason", reasoncodes.New(reasoncodes.ErrValidation, "reason is required"), false},
		{"storage failure", errors.New("connection reset"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			consumer := &fakeConsumer{deliveries: [][]byte{request(t, "p-1", "fraud")}}
			w := NewRevocationWorker(&fakeRevoker{err: tc.err}, consumer, logger.Nop())
			require.NoError(t, w.StartService(context.Background()))

			require.Len(t, consumer.results, 1)
			if tc.requeue {
				assert.Error(t, consumer.results[0])
			} else {
				assert.NoError(t, consumer.results[0])
			}
			assert.Equal(t, !tc.requeue, consumer.settled[0].acked)
			assert.Equal(t, tc.requeue, consumer.settled[0].requeued)
		})
	}
}

func TestRevocationWorkerDropsRepeatedFailure(t *testing.T) {
	consumer := &fakeConsumer{deliveries: [][]byte{request(t, "p-1", "fraud")}, redelivered: true}
	w := NewRevocationWorker(&fakeRevoker{err: errors.New("connection reset")}, consumer, logger.Nop())
	require.NoError(t, w.StartService(context.Background()))

	require.Len(t, consumer.settled, 1)
	assert.Error(t, consumer.results[0])
	assert.False(t, consumer.settled[0].acked)
	assert.False(t, consumer.settled[0].requeued)
}

type failingPublisher struct{}

func (failingPublisher) Publish(utilities.Serializable) error { return errors.New("broker unavailable") }

type publisherMap map[rabbitmq.PublisherAlias]rabbitmq.IRabbitmqPublisher

func (m publisherMap) Publisher(alias rabbitmq.PublisherAlias) rabbitmq.IRabbitmqPublisher {
	return m[alias]
}

func TestOutboxWorkerPublishesAndRetries(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenInMemory("outbox_worker_" + uuid.NewString())
	require.NoError(t, err)
	repo := store.NewOutboxRepository(db)

	_, err = repo.Add(ctx, "ProofEventPublisher", []byte(`{"proof_id":"p-1"}`))
	require.NoError(t, err)
	_, err = repo.Add(ctx, "PaymentEventPublisher", []byte(`{"payment_id":"pay-1"}`))
	require.NoError(t, err)

	proofEvents := &rabbitmq.MemoryPublisher{}
	w := NewOutboxWorker(repo, publisherMap{
		"ProofEventPublisher":   proofEvents,
		"PaymentEventPublisher": failingPublisher{},
	}, "@every 10s", logger.Nop())

	assert.Equal(t, 1, w.ProcessOutboxEvents(ctx))
	require.Equal(t, 1, proofEvents.Count())
	assert.JSONEq(t, `{"proof_id":"p-1"}`, string(proofEvents.Messages[0]))

	pending, err := repo.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Retry)
	assert.Equal(t, "broker unavailable", pending[0].LastError)

	for i := 1; i < store.MaxOutboxRetries; i++ {
		w.ProcessOutboxEvents(ctx)
	}
	pending, err = repo.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, proofEvents.Count())
}
