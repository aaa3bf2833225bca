package application

import (
	"context"
	"errors"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
)

// Disposition tells the transport what to do with a delivery after a handler ran.
type Disposition string

const (
	// Committed: the business effect is durable; acknowledge.
	Committed Disposition = "committed"
	// Skipped: nothing to do (duplicate, no-op transition, ignored source); acknowledge.
	Skipped Disposition = "skipped"
	// Rejected: the message is malformed; acknowledge and drop.
	Rejected Disposition = "rejected"
	// NotFound: the referenced item does not exist; acknowledge, optionally dead-letter.
	NotFound Disposition = "not_found"
	// Retry: transient failure; redeliver with backoff, dead-letter on exhaustion.
	Retry Disposition = "retry"
)

// Failure reasons carried on Outcome and dead letters.
const (
	ReasonInvalidMessage    = "invalid_message"
	ReasonItemNotFound      = "item_not_found"
	ReasonVersionConflict   = "version_conflict"
	ReasonInsufficientStock = "insufficient_stock"
	ReasonDuplicate         = "duplicate"
	ReasonNoTransition      = "no_transition"
	ReasonIgnoredSource     = "ignored_source"
	ReasonUnchanged         = "unchanged"
	ReasonStoreFailure      = "store_failure"
	ReasonPublishFailure    = "publish_failure"
	ReasonCanceled          = "canceled"
	ReasonPanic             = "panic"
)

// Outcome is the explicit result of handling one inbound message.
type Outcome struct {
	Disposition Disposition
	Reason      string
	Err         error
}

func Done() Outcome { return Outcome{Disposition: Committed} }

func Skip(reason string) Outcome { return Outcome{Disposition: Skipped, Reason: reason} }

func RetryLater(reason string, err error) Outcome {
	return Outcome{Disposition: Retry, Reason: reason, Err: err}
}

func (o Outcome) Retryable() bool { return o.Disposition == Retry }

// Acknowledge reports whether the delivery may be acknowledged without further handling.
func (o Outcome) Acknowledge() bool { return o.Disposition != Retry }

// Classify maps an error returned by a store or domain call onto an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return Done()
	case errors.Is(err, message.ErrInvalidMessage),
		errors.Is(err, item.ErrInvalidQuantity),
		errors.Is(err, item.ErrNegativeQuantity),
		errors.Is(err, item.ErrNegativeStock),
		errors.Is(err, item.ErrNegativePrice):
		return Outcome{Disposition: Rejected, Reason: ReasonInvalidMessage, Err: err}
	case errors.Is(err, item.ErrNotFound):
		return Outcome{Disposition: NotFound, Reason: ReasonItemNotFound, Err: err}
	case errors.Is(err, item.ErrVersionConflict):
		return RetryLater(ReasonVersionConflict, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RetryLater(ReasonCanceled, err)
	default:
		return RetryLater(ReasonStoreFailure, err)
	}
}
