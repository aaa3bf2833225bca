package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/shopspring/decimal"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	fail   func(domoutbox.Event) error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		if err := p.fail(e); err != nil {
			return err
		}
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) published() []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domoutbox.Event(nil), p.events...)
}

// conflictingLedger reports a version conflict on every write.
type conflictingLedger struct {
	*memory.ItemLedger
}

func (conflictingLedger) CompareAndSwap(context.Context, *item.Item, int64) error {
	return item.ErrVersionConflict
}

func (conflictingLedger) CompareAndSwapReservation(context.Context, *item.Item, int64, item.Reservation) error {
	return item.ErrVersionConflict
}

type failingProjections struct{}

func (failingProjections) Upsert(context.Context, item.Projection) error {
	return errors.New("search unavailable")
}

func (failingProjections) Delete(context.Context, int64) error {
	return errors.New("search unavailable")
}

// countingMetrics records counter increments keyed by metric and sorted label pairs.
type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]float64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{counts: make(map[string]float64)}
}

func (m *countingMetrics) Counter(name observability.MetricKey) observability.Counter {
	return &countingCounter{m: m, name: string(name)}
}

func (m *countingMetrics) Histogram(observability.MetricKey) observability.Histogram {
	return observability.NopHistogram()
}

func (m *countingMetrics) get(name string, labels ...observability.Label) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[metricID(name, labels)]
}

type countingCounter struct {
	m    *countingMetrics
	name string
}

func (c *countingCounter) Add(d float64, labels ...observability.Label) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.counts[metricID(c.name, labels)] += d
}

func (c *countingCounter) Bind(labels ...observability.Label) observability.BoundCounter {
	return boundCounting{c: c, labels: labels}
}

type boundCounting struct {
	c      *countingCounter
	labels []observability.Label
}

func (b boundCounting) Add(d float64) { b.c.Add(d, b.labels...) }

func metricID(name string, labels []observability.Label) string {
	parts := []string{name}
	for _, l := range labels {
		parts = append(parts, l.Key+"="+l.Value)
	}
	return strings.Join(parts, ",")
}

type testTelemetry struct {
	metrics observability.Metrics
	logger  observability.Logger
}

func (t testTelemetry) Tracer() observability.Tracer   { return observability.NopTracer() }
func (t testTelemetry) Logger() observability.Logger   { return t.logger }
func (t testTelemetry) Metrics() observability.Metrics { return t.metrics }

type fixture struct {
	ledger      *memory.ItemLedger
	projections *memory.ProjectionStore
	publisher   *recordingPublisher
	metrics     *countingMetrics
	tel         observability.Observability
	sync        *Synchronizer
}

func newFixture(items ...*item.Item) *fixture {
	f := &fixture{
		ledger:      memory.NewItemLedger(0),
		projections: memory.NewProjectionStore(),
		publisher:   &recordingPublisher{},
		metrics:     newCountingMetrics(),
	}
	for _, it := range items {
		f.ledger.Put(it)
	}
	f.tel = testTelemetry{metrics: f.metrics, logger: observability.NopLogger()}
	f.sync = NewSynchronizer(f.ledger, f.projections, f.tel)
	return f
}

func (f *fixture) item(id int64) *item.Item {
	it, err := f.ledger.Get(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return it
}

func priced(id int64, stock int, price int64) *item.Item {
	return &item.Item{ID: id, Name: "item", Stock: stock, Price: decimal.NewFromInt(price)}
}

func obsL(k, v string) observability.Label { return observability.L(k, v) }
