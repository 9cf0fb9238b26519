package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/meridianpay/meridian/models"
	"github.com/meridianpay/meridian/repository"
	"github.com/meridianpay/meridian/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var expiredOrdersTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "meridian_expired_orders_total",
	Help: "Pending deposit orders moved to expired by the sweeper",
})

// ExpirySweeper periodically moves pending orders past their TTL to
// expired. Each order moves through the same conditional transition the
// webhook path uses, so a payment landing mid-sweep wins the race.
type ExpirySweeper struct {
	orderRepo repository.DepositOrderRepository
	logger    *log.Logger
	interval  time.Duration
	batchSize int
}

func NewExpirySweeper(orderRepo repository.DepositOrderRepository, interval time.Duration, batchSize int) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ExpirySweeper{
		orderRepo: orderRepo,
		logger:    newWorkerLogger("sweeper ", "sweeper.log"),
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start launches the sweeper loop in a background goroutine and returns a stop function
func (s *ExpirySweeper) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	return cancel
}

// RunOnce performs a single sweep pass
func (s *ExpirySweeper) RunOnce(ctx context.Context) {
	stale, err := s.orderRepo.StalePending(ctx, utils.UTCNow(), s.batchSize)
	if err != nil {
		s.logger.Printf("sweeper: list stale pending orders failed: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	s.logger.Printf("sweeper: found %d stale pending orders", len(stale))

	expired := 0
	for _, order := range stale {
		res, err := s.orderRepo.Transition(ctx, order.ID,
			models.DepositOrderStatusPending, models.DepositOrderStatusExpired,
			map[string]any{"status_reason": "ttl elapsed"})
		if err != nil {
			s.logger.Printf("sweeper: expire order %s failed: %v", order.Reference, err)
			continue
		}
		if res.Applied {
			expired++
			expiredOrdersTotal.Inc()
		}
	}
	if expired > 0 {
		s.logger.Printf("sweeper: expired %d orders", expired)
	}
}
