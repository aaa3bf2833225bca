// Package observability bundles concrete tracer, logger and metrics adapters into one
// observability.Observability handed to use cases, the gateway and the HTTP layer.
package observability

import (
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

// New bundles the adapters. Nil parts fall back to their no-op implementations.
func New(tracer observability.Tracer, logger observability.Logger, metrics observability.Metrics) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return provider{tracer: tracer, logger: logger, metrics: metrics}
}

func (p provider) Tracer() observability.Tracer   { return p.tracer }
func (p provider) Logger() observability.Logger   { return p.logger }
func (p provider) Metrics() observability.Metrics { return p.metrics }
