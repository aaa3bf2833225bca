package catalog

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseRollback = "catalog.rollback"

// RollbackStock returns previously reserved units to stock. It is the saga compensation and never
// checks sufficiency.
type RollbackStock struct {
	ledger    item.Ledger
	sync      *Synchronizer
	publisher domoutbox.Publisher
	in        instruments
}

func NewRollbackStock(ledger item.Ledger, sync *Synchronizer, publisher domoutbox.Publisher, tel observability.Observability) *RollbackStock {
	return &RollbackStock{
		ledger:    ledger,
		sync:      sync,
		publisher: publisher,
		in:        newInstruments(tel),
	}
}

var _ application.UseCase[message.RollbackRequest, application.Outcome] = (*RollbackStock)(nil)

func (uc *RollbackStock) Execute(ctx context.Context, cmd message.RollbackRequest) (application.Outcome, error) {
	out := uc.in.run(ctx, useCaseRollback, "RollbackStock",
		[]attribute.KeyValue{
			attribute.Int64("item.id", cmd.ItemID),
			attribute.Int("rollback.quantity", cmd.Quantity),
		},
		[]observability.Field{
			observability.F("item_id", cmd.ItemID),
			observability.F("quantity", cmd.Quantity),
		},
		func(ctx context.Context, logger observability.Logger) application.Outcome {
			if err := cmd.Validate(); err != nil {
				return reject(logger, err)
			}
			it, err := uc.ledger.Get(ctx, cmd.ItemID)
			if err != nil {
				return application.Classify(fmt.Errorf("catalog: get item: %w", err))
			}
			expected := it.Version
			if err := it.Restock(cmd.Quantity); err != nil {
				return reject(logger, err)
			}
			if err := uc.ledger.CompareAndSwap(ctx, it, expected); err != nil {
				return application.Classify(fmt.Errorf("catalog: rollback: %w", err))
			}
			uc.sync.Sync(ctx, it)

			// The increment is committed and not idempotent, so a failed fanout is reported
			// rather than redelivered.
			err = uc.in.publish(ctx, uc.publisher, message.StockUpdate{
				ItemID: cmd.ItemID,
				Stock:  it.Stock,
				Source: SourceRollback,
			})
			if err != nil {
				logger.Error("stock_fanout_failed", observability.Err(err))
			}
			return application.Done()
		})
	return out, out.Err
}
