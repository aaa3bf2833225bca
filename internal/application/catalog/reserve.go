package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	useCaseReserve = "catalog.reserve"

	// SourceReservation and SourceRollback tag the stock fanout emitted by the saga.
	SourceReservation = "reservation"
	SourceRollback    = "rollback"
)

// ReserveStock applies one reservation request: decrement on sufficient stock, FAILED response
// otherwise. A request that was already applied is answered again without a second decrement.
type ReserveStock struct {
	ledger    item.Ledger
	sync      *Synchronizer
	publisher domoutbox.Publisher
	source    string
	in        instruments
	now       func() time.Time
}

func NewReserveStock(ledger item.Ledger, sync *Synchronizer, publisher domoutbox.Publisher, source string, tel observability.Observability) *ReserveStock {
	return &ReserveStock{
		ledger:    ledger,
		sync:      sync,
		publisher: publisher,
		source:    source,
		in:        newInstruments(tel),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var _ application.UseCase[message.ReservationRequest, application.Outcome] = (*ReserveStock)(nil)

func (uc *ReserveStock) Execute(ctx context.Context, cmd message.ReservationRequest) (application.Outcome, error) {
	out := uc.in.run(ctx, useCaseReserve, "ReserveStock",
		[]attribute.KeyValue{
			attribute.Int64("order.id", cmd.OrderID),
			attribute.Int64("item.id", cmd.ItemID),
			attribute.Int("reservation.quantity", cmd.Quantity),
		},
		[]observability.Field{
			observability.F("order_id", cmd.OrderID),
			observability.F("item_id", cmd.ItemID),
			observability.F("quantity", cmd.Quantity),
		},
		func(ctx context.Context, logger observability.Logger) application.Outcome {
			return uc.reserve(ctx, logger, cmd)
		})
	return out, out.Err
}

func (uc *ReserveStock) reserve(ctx context.Context, logger observability.Logger, cmd message.ReservationRequest) application.Outcome {
	if err := cmd.Validate(); err != nil {
		return reject(logger, err)
	}

	applied, err := uc.ledger.FindReservation(ctx, cmd.OrderID, cmd.ItemID)
	if err != nil {
		return application.Classify(fmt.Errorf("catalog: find reservation: %w", err))
	}
	if applied != nil {
		return uc.replay(ctx, logger, cmd, applied)
	}

	it, err := uc.ledger.Get(ctx, cmd.ItemID)
	if err != nil {
		return application.Classify(fmt.Errorf("catalog: get item: %w", err))
	}
	expected := it.Version

	if err := it.Reserve(cmd.Quantity); err != nil {
		if !errors.Is(err, item.ErrInsufficientStock) {
			return reject(logger, err)
		}
		logger.Warn("reservation_insufficient_stock",
			observability.F("current_stock", it.Stock),
		)
		resp := message.ReservationResponse{
			OrderID:        cmd.OrderID,
			ItemID:         cmd.ItemID,
			Status:         message.ReservationFailed,
			ResultingStock: it.Stock,
			Source:         uc.source,
		}
		if err := uc.in.publish(ctx, uc.publisher, resp); err != nil {
			return application.RetryLater(application.ReasonPublishFailure, err)
		}
		return application.Outcome{Disposition: application.Committed, Reason: application.ReasonInsufficientStock}
	}

	r := item.Reservation{
		OrderID:        cmd.OrderID,
		ItemID:         cmd.ItemID,
		Quantity:       cmd.Quantity,
		ResultingStock: it.Stock,
		AppliedAt:      uc.now(),
	}
	if err := uc.ledger.CompareAndSwapReservation(ctx, it, expected, r); err != nil {
		if errors.Is(err, item.ErrVersionConflict) {
			logger.Warn("reservation_version_conflict", observability.F("expected_version", expected))
		}
		return application.Classify(fmt.Errorf("catalog: reserve: %w", err))
	}
	trace.SpanFromContext(ctx).AddEvent("stock.reserved",
		trace.WithAttributes(attribute.Int("stock.resulting", it.Stock)))

	uc.sync.Sync(ctx, it)

	if err := uc.emit(ctx, cmd, r.ResultingStock, it.Stock); err != nil {
		return application.RetryLater(application.ReasonPublishFailure, err)
	}
	return application.Done()
}

// replay answers an already applied reservation from the recorded result.
func (uc *ReserveStock) replay(ctx context.Context, logger observability.Logger, cmd message.ReservationRequest, applied *item.Reservation) application.Outcome {
	logger.Info("reservation_already_applied",
		observability.F("resulting_stock", applied.ResultingStock),
		observability.F("applied_at", applied.AppliedAt),
	)
	it, err := uc.ledger.Get(ctx, cmd.ItemID)
	if err != nil {
		return application.Classify(fmt.Errorf("catalog: get item: %w", err))
	}
	uc.sync.Sync(ctx, it)
	if err := uc.emit(ctx, cmd, applied.ResultingStock, it.Stock); err != nil {
		return application.RetryLater(application.ReasonPublishFailure, err)
	}
	return application.Skip(application.ReasonDuplicate)
}

func (uc *ReserveStock) emit(ctx context.Context, cmd message.ReservationRequest, resulting, current int) error {
	resp := message.ReservationResponse{
		OrderID:        cmd.OrderID,
		ItemID:         cmd.ItemID,
		Status:         message.ReservationSucceeded,
		ResultingStock: resulting,
		Source:         uc.source,
	}
	if err := uc.in.publish(ctx, uc.publisher, resp); err != nil {
		return err
	}
	return uc.in.publish(ctx, uc.publisher, message.StockUpdate{
		ItemID: cmd.ItemID,
		Stock:  current,
		Source: SourceReservation,
	})
}
