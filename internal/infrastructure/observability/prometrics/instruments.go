package prometrics

import "github.com/Zhima-Mochi/minishop-catalog/internal/observability"

// Instruments registers every catalog metric on r and serves them by key.
// Keys without an instrument resolve to no-ops.
func Instruments(r Registry) observability.Metrics {
	return &instrumentSet{
		counters: map[observability.MetricKey]observability.Counter{
			observability.MUsecaseRequests: r.Counter(string(observability.MUsecaseRequests),
				"Total number of use case invocations.", "use_case", "outcome"),
			observability.MExternalRequests: r.Counter(string(observability.MExternalRequests),
				"Calls to external peers (broker, projection store).", "peer", "endpoint", "outcome"),
			observability.MHTTPRequests: r.Counter(string(observability.MHTTPRequests),
				"Total HTTP requests served.", "method", "route", "status"),
			observability.MGatewayMessages: r.Counter(string(observability.MGatewayMessages),
				"Inbound messages by final disposition.", "channel", "disposition"),
			observability.MDeadLetters: r.Counter(string(observability.MDeadLetters),
				"Messages routed to a dead-letter channel.", "channel", "reason"),
			observability.MProjectionSync: r.Counter(string(observability.MProjectionSync),
				"Projection store writes by outcome.", "operation", "outcome"),
			observability.MFlashSaleAnomalies: r.Counter(string(observability.MFlashSaleAnomalies),
				"Flash-sale data-integrity anomalies.", "kind"),
		},
		histograms: map[observability.MetricKey]observability.Histogram{
			observability.MUsecaseDuration: r.Histogram(string(observability.MUsecaseDuration),
				"Duration of use case execution in seconds.", nil, "use_case"),
			observability.MExternalRequestDuration: r.Histogram(string(observability.MExternalRequestDuration),
				"Duration of external peer calls in seconds.", nil, "peer", "endpoint"),
			observability.MHTTPRequestDuration: r.Histogram(string(observability.MHTTPRequestDuration),
				"Duration of HTTP requests in seconds.", nil, "method", "route"),
		},
	}
}

type instrumentSet struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (s *instrumentSet) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := s.counters[name]; ok {
		return c
	}
	return observability.NopCounter()
}

func (s *instrumentSet) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := s.histograms[name]; ok {
		return h
	}
	return observability.NopHistogram()
}
