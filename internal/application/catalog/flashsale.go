package catalog

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseFlashSale = "catalog.flash_sale"

// Flash-sale anomaly kinds.
const (
	AnomalyMissingSnapshot = "missing_snapshot"
	AnomalyDuplicateStart  = "duplicate_start"
	AnomalyEndWhenInactive = "end_when_inactive"
)

// ApplyFlashSale drives the price state machine of one item. Read and transition form one unit;
// a version conflict re-runs the whole handler through redelivery.
type ApplyFlashSale struct {
	ledger    item.Ledger
	sync      *Synchronizer
	in        instruments
	anomalies observability.Counter
}

func NewApplyFlashSale(ledger item.Ledger, sync *Synchronizer, tel observability.Observability) *ApplyFlashSale {
	in := newInstruments(tel)
	if tel == nil {
		tel = observability.Nop()
	}
	return &ApplyFlashSale{
		ledger:    ledger,
		sync:      sync,
		in:        in,
		anomalies: tel.Metrics().Counter(observability.MFlashSaleAnomalies),
	}
}

var _ application.UseCase[message.FlashSaleEvent, application.Outcome] = (*ApplyFlashSale)(nil)

func (uc *ApplyFlashSale) Execute(ctx context.Context, cmd message.FlashSaleEvent) (application.Outcome, error) {
	out := uc.in.run(ctx, useCaseFlashSale, "ApplyFlashSale",
		[]attribute.KeyValue{
			attribute.Int64("item.id", cmd.ItemID),
			attribute.Int64("flash_sale.id", cmd.FlashSaleID),
			attribute.String("flash_sale.event", string(cmd.Type)),
		},
		[]observability.Field{
			observability.F("item_id", cmd.ItemID),
			observability.F("flash_sale_id", cmd.FlashSaleID),
			observability.F("event_type", string(cmd.Type)),
		},
		func(ctx context.Context, logger observability.Logger) application.Outcome {
			return uc.apply(ctx, logger, cmd)
		})
	return out, out.Err
}

func (uc *ApplyFlashSale) apply(ctx context.Context, logger observability.Logger, cmd message.FlashSaleEvent) application.Outcome {
	if err := cmd.Validate(); err != nil {
		return reject(logger, err)
	}
	it, err := uc.ledger.Get(ctx, cmd.ItemID)
	if err != nil {
		return application.Classify(fmt.Errorf("catalog: get item: %w", err))
	}
	expected := it.Version
	price := it.Price

	var tr item.Transition
	switch cmd.Type {
	case message.FlashSaleStart:
		tr, err = it.StartFlashSale(cmd.SalePrice.Decimal, cmd.EndTime)
		if err != nil {
			return reject(logger, err)
		}
		if !tr.Applied {
			uc.anomaly(logger, AnomalyDuplicateStart, tr)
			return application.Skip(application.ReasonNoTransition)
		}
	default:
		tr = it.EndFlashSale()
		if !tr.Applied {
			uc.anomaly(logger, AnomalyEndWhenInactive, tr)
			return application.Skip(application.ReasonNoTransition)
		}
		if tr.MissingSnapshot {
			uc.anomalies.Add(1, observability.L("kind", AnomalyMissingSnapshot))
			logger.Error("flash_sale_snapshot_missing",
				observability.F("kept_price", it.Price.String()),
			)
		}
	}

	if err := uc.ledger.CompareAndSwap(ctx, it, expected); err != nil {
		return application.Classify(fmt.Errorf("catalog: flash sale: %w", err))
	}
	logger.Info("flash_sale_transition",
		observability.F("from", string(tr.From)),
		observability.F("to", string(tr.To)),
		observability.F("previous_price", price.String()),
		observability.F("price", it.Price.String()),
	)
	uc.sync.Sync(ctx, it)
	return application.Done()
}

func (uc *ApplyFlashSale) anomaly(logger observability.Logger, kind string, tr item.Transition) {
	uc.anomalies.Add(1, observability.L("kind", kind))
	logger.Warn("flash_sale_transition_skipped",
		observability.F("kind", kind),
		observability.F("state", string(tr.From)),
	)
}
