package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseSetStock = "catalog.set_stock"

// SetStock applies absolute stock values published by the vendor path. Updates whose source is
// ignored (this service's own fanout, order-service traffic) are acknowledged untouched.
type SetStock struct {
	ledger  item.Ledger
	sync    *Synchronizer
	ignored map[string]struct{}
	in      instruments
}

func NewSetStock(ledger item.Ledger, sync *Synchronizer, ignoredSources []string, tel observability.Observability) *SetStock {
	ignored := make(map[string]struct{}, len(ignoredSources))
	for _, s := range ignoredSources {
		if s = strings.TrimSpace(s); s != "" {
			ignored[s] = struct{}{}
		}
	}
	return &SetStock{
		ledger:  ledger,
		sync:    sync,
		ignored: ignored,
		in:      newInstruments(tel),
	}
}

var _ application.UseCase[message.StockUpdate, application.Outcome] = (*SetStock)(nil)

func (uc *SetStock) Execute(ctx context.Context, cmd message.StockUpdate) (application.Outcome, error) {
	out := uc.in.run(ctx, useCaseSetStock, "SetStock",
		[]attribute.KeyValue{
			attribute.Int64("item.id", cmd.ItemID),
			attribute.Int("stock.absolute", cmd.Stock),
			attribute.String("stock.source", cmd.Source),
		},
		[]observability.Field{
			observability.F("item_id", cmd.ItemID),
			observability.F("stock", cmd.Stock),
			observability.F("source", cmd.Source),
		},
		func(ctx context.Context, logger observability.Logger) application.Outcome {
			if _, skip := uc.ignored[cmd.Source]; skip {
				logger.Debug("stock_update_ignored_source")
				return application.Skip(application.ReasonIgnoredSource)
			}
			if err := cmd.Validate(); err != nil {
				return reject(logger, err)
			}
			it, err := uc.ledger.Get(ctx, cmd.ItemID)
			if err != nil {
				return application.Classify(fmt.Errorf("catalog: get item: %w", err))
			}
			expected := it.Version
			changed, err := it.SetStock(cmd.Stock)
			if err != nil {
				return reject(logger, err)
			}
			if !changed {
				uc.sync.Sync(ctx, it)
				return application.Skip(application.ReasonUnchanged)
			}
			if err := uc.ledger.CompareAndSwap(ctx, it, expected); err != nil {
				return application.Classify(fmt.Errorf("catalog: set stock: %w", err))
			}
			uc.sync.Sync(ctx, it)
			return application.Done()
		})
	return out, out.Err
}
