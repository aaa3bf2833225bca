// Package application holds the ports shared by catalog use cases.
package application

import "context"

// UseCase handles one decoded inbound command. Catalog use cases return an Outcome as R; the
// error mirrors Outcome.Err for callers that only check errors.
type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}
