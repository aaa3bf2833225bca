package outbox

import "errors"

var ErrBusStopped = errors.New("outbox: bus stopped")
