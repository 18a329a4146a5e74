package credit

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// PendingReviewer reports pending payments the provider has not settled yet.
type PendingReviewer interface {
	FlagStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// ReconcileWorker periodically audits the ledger and flags long-pending payments.
type ReconcileWorker struct {
	ledger      *Service
	payments    PendingReviewer
	interval    time.Duration
	reviewAfter time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewReconcileWorker creates a new reconcile worker. payments may be nil.
func NewReconcileWorker(ledger *Service, payments PendingReviewer, interval, reviewAfter time.Duration) *ReconcileWorker {
	if interval == 0 {
		interval = 10 * time.Minute
	}
	return &ReconcileWorker{
		ledger:      ledger,
		payments:    payments,
		interval:    interval,
		reviewAfter: reviewAfter,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background worker
func (w *ReconcileWorker) Start() {
	log.Info().Dur("interval", w.interval).Msg("Starting ledger reconcile worker...")
	go w.loop()
}

// Stop stops the worker and waits for the current run to finish.
func (w *ReconcileWorker) Stop() {
	log.Info().Msg("Stopping ledger reconcile worker...")
	close(w.stopCh)
	<-w.doneCh
}

func (w *ReconcileWorker) loop() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			w.RunOnce(context.Background())
		case <-w.stopCh:
			return
		}
	}
}

// RunOnce performs a single audit pass.
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	drift, err := w.ledger.Drift(ctx, 100)
	if err != nil {
		log.Error().Err(err).Msg("Failed to audit credit ledger")
	}
	for _, d := range drift {
		log.Error().
			Str("user_id", d.UserID).
			Int64("balance", d.Balance).
			Int64("ledger_sum", d.LedgerSum).
			Int64("difference", d.Difference()).
			Msg("Credit balance does not match ledger")
	}

	if w.payments == nil || w.reviewAfter <= 0 {
		return
	}
	count, err := w.payments.FlagStalePending(ctx, time.Now().Add(-w.reviewAfter))
	if err != nil {
		log.Error().Err(err).Msg("Failed to check pending payments")
	} else if count > 0 {
		log.Warn().Int64("count", count).Msg("Pending payments awaiting provider outcome")
	}
}
