package workers

import (
	"context"
	"time"

	"zk-tax-system/pkg/logger"
	"zk-tax-system/pkg/rabbitmq"
	"zk-tax-system/pkg/utilities/timeutil"

	"github.com/robfig/cron"
)

const expiryWorkerName = "ProofExpiryCronWorker"

type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// ExpiryWorker periodically moves overdue proofs to expired. Transitions also expire
// lazily, the sweep keeps stored statuses current for readers that bypass them.
type ExpiryWorker struct {
	expirer Expirer
	spec    string
	clock   timeutil.Clock
	cron    *cron.Cron
	logger  *logger.Logger
}

func NewExpiryWorker(expirer Expirer, spec string, l *logger.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		expirer: expirer,
		spec:    spec,
		clock:   timeutil.SystemClock,
		cron:    cron.New(),
		logger:  l.Named(expiryWorkerName),
	}
}

var _ rabbitmq.WorkerService = (*ExpiryWorker)(nil)

func (w *ExpiryWorker) GetServiceName() string {
	return expiryWorkerName
}

func (w *ExpiryWorker) StartService(ctx context.Context) error {
	if err := w.cron.AddFunc(w.spec, func() { w.Sweep(ctx) }); err != nil {
		w.logger.Errorf(err, "Could not schedule %s with %q", expiryWorkerName, w.spec)
		return err
	}

	w.cron.Start()
	w.logger.Infof("Expiry sweep scheduled %s", w.spec)
	<-ctx.Done()
	w.cron.Stop()
	return nil
}

// Sweep runs one expiry pass.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	n, err := w.expirer.ExpireOverdue(ctx, w.clock())
	if err != nil {
		w.logger.Error(err, "Expiry sweep failed")
	}
	if n > 0 {
		w.logger.Infof("Expired %d proofs", n)
	}
	return n
}
