package scheduler

import (
	"context"
	"log"
	"time"

	businessflow "github.com/meridianpay/meridian/business_flow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var uncreditedPaidOrders = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "meridian_uncredited_paid_orders",
	Help: "Paid deposit orders without a completed transaction at the last reconciliation pass",
})

// ReconciliationWorker watches the gap between paid orders and their
// ledger credits. It exposes the gap as a gauge and replays the
// crediting step for any order stuck in it.
type ReconciliationWorker struct {
	webhookFlow businessflow.WebhookFlow
	logger      *log.Logger
	interval    time.Duration
	batchSize   int
}

func NewReconciliationWorker(
	webhookFlow businessflow.WebhookFlow,
	interval time.Duration,
	batchSize int,
) *ReconciliationWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ReconciliationWorker{
		webhookFlow: webhookFlow,
		logger:      newWorkerLogger("reconciler ", "reconciler.log"),
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Start launches the worker loop in a background goroutine and returns a stop function
func (w *ReconciliationWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()

	return cancel
}

// RunOnce performs a single reconciliation pass
func (w *ReconciliationWorker) RunOnce(ctx context.Context) {
	scanned, repaired, err := w.webhookFlow.ReconcileUncredited(ctx, w.batchSize)
	if err != nil {
		w.logger.Printf("reconciler: pass failed after %d orders: %v", scanned, err)
	}
	uncreditedPaidOrders.Set(float64(scanned - repaired))
	if scanned > 0 {
		w.logger.Printf("reconciler: scanned %d uncredited paid orders, repaired %d", scanned, repaired)
	}
}
