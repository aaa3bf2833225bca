package catalog

import (
	"context"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
)

const (
	janitorReconcilePage   = 500
	defaultJanitorInterval = time.Hour
)

// JanitorConfig controls the background maintenance loops. A zero ReconcileInterval disables
// periodic reconciliation.
type JanitorConfig struct {
	Interval          time.Duration
	Retention         time.Duration
	ReconcileInterval time.Duration
}

// Janitor prunes expired reservation records and periodically rebuilds projections.
type Janitor struct {
	pruner item.ReservationPruner
	sync   *Synchronizer
	cfg    JanitorConfig
	log    observability.Logger
	now    func() time.Time
}

func NewJanitor(pruner item.ReservationPruner, sync *Synchronizer, cfg JanitorConfig, tel observability.Observability) *Janitor {
	in := newInstruments(tel)
	if cfg.Interval <= 0 {
		cfg.Interval = defaultJanitorInterval
	}
	return &Janitor{
		pruner: pruner,
		sync:   sync,
		cfg:    cfg,
		log:    in.log.With(observability.F("component", "janitor")),
		now:    time.Now,
	}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	prune := time.NewTicker(j.cfg.Interval)
	defer prune.Stop()

	var reconcile <-chan time.Time
	if j.cfg.ReconcileInterval > 0 && j.sync != nil {
		t := time.NewTicker(j.cfg.ReconcileInterval)
		defer t.Stop()
		reconcile = t.C
	}

	j.log.Info("janitor_started",
		observability.F("interval", j.cfg.Interval.String()),
		observability.F("reconcile_interval", j.cfg.ReconcileInterval.String()),
	)
	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor_stopped")
			return
		case <-prune.C:
			j.Prune(ctx)
		case <-reconcile:
			j.Reconcile(ctx)
		}
	}
}

// Prune drops reservation records older than the retention window.
func (j *Janitor) Prune(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.cfg.Retention)
	n, err := j.pruner.PruneReservations(ctx, cutoff)
	if err != nil {
		j.log.Error("reservation_prune_failed", observability.Err(err))
		return 0
	}
	if n > 0 {
		j.log.Info("reservations_pruned",
			observability.F("count", n),
			observability.F("before", cutoff),
		)
	}
	return n
}

func (j *Janitor) Reconcile(ctx context.Context) {
	report, err := j.sync.ReconcileAll(ctx, janitorReconcilePage)
	if err != nil {
		j.log.Error("reconcile_failed",
			observability.F("scanned", report.Scanned),
			observability.Err(err),
		)
		return
	}
	j.log.Info("reconcile_done",
		observability.F("scanned", report.Scanned),
		observability.F("upserts", report.Upserts),
		observability.F("deletes", report.Deletes),
		observability.F("failed", report.Failed),
	)
}
