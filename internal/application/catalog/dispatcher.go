package catalog

import (
	"context"
	"fmt"

	"github.com/Zhima-Mochi/minishop-catalog/internal/application"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
)

// Dispatcher routes a decoded inbound message to its use case.
type Dispatcher struct {
	reserve   application.UseCase[message.ReservationRequest, application.Outcome]
	rollback  application.UseCase[message.RollbackRequest, application.Outcome]
	setStock  application.UseCase[message.StockUpdate, application.Outcome]
	flashSale application.UseCase[message.FlashSaleEvent, application.Outcome]
}

func NewDispatcher(
	reserve application.UseCase[message.ReservationRequest, application.Outcome],
	rollback application.UseCase[message.RollbackRequest, application.Outcome],
	setStock application.UseCase[message.StockUpdate, application.Outcome],
	flashSale application.UseCase[message.FlashSaleEvent, application.Outcome],
) *Dispatcher {
	return &Dispatcher{
		reserve:   reserve,
		rollback:  rollback,
		setStock:  setStock,
		flashSale: flashSale,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg message.Message) application.Outcome {
	var out application.Outcome
	switch m := msg.(type) {
	case message.ReservationRequest:
		out, _ = d.reserve.Execute(ctx, m)
	case message.RollbackRequest:
		out, _ = d.rollback.Execute(ctx, m)
	case message.StockUpdate:
		out, _ = d.setStock.Execute(ctx, m)
	case message.FlashSaleEvent:
		out, _ = d.flashSale.Execute(ctx, m)
	default:
		return application.Classify(message.Invalid("", fmt.Sprintf("unsupported message %T", msg)))
	}
	return out
}
