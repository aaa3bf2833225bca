package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
)

const (
	projectionPeer       = "projection"
	opUpsert             = "upsert"
	opDelete             = "delete"
	defaultReconcilePage = 500
)

// Synchronizer keeps the search projection in line with the ledger. The ledger is authoritative;
// projection writes after a committed mutation are best effort and never undo it.
type Synchronizer struct {
	ledger      item.Ledger
	store       item.ProjectionStore
	in          instruments
	syncCounter observability.Counter
}

func NewSynchronizer(ledger item.Ledger, store item.ProjectionStore, tel observability.Observability) *Synchronizer {
	in := newInstruments(tel)
	if tel == nil {
		tel = observability.Nop()
	}
	return &Synchronizer{
		ledger:      ledger,
		store:       store,
		in:          in,
		syncCounter: tel.Metrics().Counter(observability.MProjectionSync),
	}
}

// Sync upserts the projection of a freshly committed item. Failures are logged and counted.
func (s *Synchronizer) Sync(ctx context.Context, it *item.Item) {
	if s == nil || s.store == nil || it == nil {
		return
	}
	if err := s.upsert(ctx, it); err != nil {
		logctx.FromOr(ctx, s.in.log).Error("projection_sync_failed",
			observability.F("item_id", it.ID),
			observability.F("version", it.Version),
			observability.Err(err),
		)
	}
}

// Resync rebuilds the projection of one item from the ledger, deleting it when the item no
// longer exists. Unlike Sync, errors are returned.
func (s *Synchronizer) Resync(ctx context.Context, id int64) error {
	_, err := s.resync(ctx, id)
	return err
}

func (s *Synchronizer) resync(ctx context.Context, id int64) (string, error) {
	if s.store == nil {
		return "", nil
	}
	it, err := s.ledger.Get(ctx, id)
	if errors.Is(err, item.ErrNotFound) {
		if err := s.delete(ctx, id); err != nil {
			return opDelete, err
		}
		return opDelete, nil
	}
	if err != nil {
		return "", fmt.Errorf("catalog: resync %d: %w", id, err)
	}
	return opUpsert, s.upsert(ctx, it)
}

// ReconcileReport summarises a full reconciliation pass.
type ReconcileReport struct {
	Scanned int `json:"scanned"`
	Upserts int `json:"upserts"`
	Deletes int `json:"deletes"`
	Failed  int `json:"failed"`
}

// ReconcileAll pages through every ledger id and resyncs it. Per-item failures are counted and
// the pass continues; only a listing failure or cancellation stops it.
func (s *Synchronizer) ReconcileAll(ctx context.Context, pageSize int) (ReconcileReport, error) {
	var report ReconcileReport
	if pageSize <= 0 {
		pageSize = defaultReconcilePage
	}
	out := s.in.run(ctx, "catalog.reconcile", "ReconcileAll",
		[]attribute.KeyValue{attribute.Int("page_size", pageSize)}, nil,
		func(ctx context.Context, logger observability.Logger) application.Outcome {
			var after int64
			for {
				if err := ctx.Err(); err != nil {
					return application.Classify(err)
				}
				ids, err := s.ledger.ListIDs(ctx, after, pageSize)
				if err != nil {
					return application.Classify(fmt.Errorf("catalog: list ids: %w", err))
				}
				for _, id := range ids {
					report.Scanned++
					op, err := s.resync(ctx, id)
					if err != nil {
						report.Failed++
						logger.Warn("reconcile_item_failed",
							observability.F("item_id", id),
							observability.Err(err),
						)
						continue
					}
					switch op {
					case opUpsert:
						report.Upserts++
					case opDelete:
						report.Deletes++
					}
				}
				if len(ids) < pageSize {
					logger.Info("reconcile_completed",
						observability.F("scanned", report.Scanned),
						observability.F("upserts", report.Upserts),
						observability.F("deletes", report.Deletes),
						observability.F("failed", report.Failed),
					)
					return application.Done()
				}
				after = ids[len(ids)-1]
			}
		})
	return report, out.Err
}

func (s *Synchronizer) upsert(ctx context.Context, it *item.Item) error {
	return s.call(ctx, opUpsert, func(ctx context.Context) error {
		return s.store.Upsert(ctx, item.NewProjection(it))
	})
}

func (s *Synchronizer) delete(ctx context.Context, id int64) error {
	return s.call(ctx, opDelete, func(ctx context.Context) error {
		return s.store.Delete(ctx, id)
	})
}

func (s *Synchronizer) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	s.syncCounter.Add(1,
		observability.L("operation", op),
		observability.L("outcome", outcome),
	)
	s.in.extCounter.Add(1,
		observability.L("peer", projectionPeer),
		observability.L("endpoint", op),
		observability.L("outcome", outcome),
	)
	s.in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", projectionPeer),
		observability.L("endpoint", op),
	)
	if err != nil {
		return fmt.Errorf("catalog: projection %s: %w", op, err)
	}
	return nil
}
