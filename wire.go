package main

import (
	"context"
	"errors"
	"sync"

	"github.com/Zhima-Mochi/minishop-catalog/internal/config"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/item"
	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	domoutbox "github.com/Zhima-Mochi/minishop-catalog/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/search"
	"github.com/Zhima-Mochi/minishop-catalog/internal/observability"
	"github.com/Zhima-Mochi/minishop-catalog/internal/presentation/gateway"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ledgerStore interface {
	item.Ledger
	item.ReservationPruner
}

// buildLedger picks Postgres when DATABASE_URL is set and the in-memory ledger otherwise.
func buildLedger(ctx context.Context, cfg config.Config, logger *zap.Logger) (ledgerStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("ledger_in_memory", zap.Int("dedup_window", cfg.DedupWindow))
		return memory.NewItemLedger(cfg.DedupWindow), func() {}, nil
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.InitializeSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("ledger_postgres_ready")
	return postgres.NewLedger(pool), pool.Close, nil
}

// buildProjections picks Elasticsearch when ELASTICSEARCH_URLS is set and the in-memory store
// otherwise. A missing index is created; failing to reach the cluster only degrades projections.
func buildProjections(ctx context.Context, cfg config.Config, logger *zap.Logger) (item.ProjectionStore, error) {
	if len(cfg.ElasticsearchURLs) == 0 {
		logger.Warn("projection_in_memory")
		return memory.NewProjectionStore(), nil
	}
	client, err := search.NewClient(cfg.ElasticsearchURLs)
	if err != nil {
		return nil, err
	}
	store := search.NewProjectionStore(client, cfg.ElasticsearchIndex)
	if err := store.EnsureIndex(ctx); err != nil {
		logger.Warn("projection_index_unavailable", zap.Error(err))
	}
	return store, nil
}

// transport groups the broker-facing pieces so main can run and close them uniformly.
type transport struct {
	publisher domoutbox.Publisher
	run       func(ctx context.Context, gw *gateway.Gateway)
	close     func(ctx context.Context) error
}

func buildTransport(cfg config.Config, tp trace.TracerProvider, tel observability.Observability) (transport, error) {
	if cfg.Transport == config.TransportMemory {
		return memoryTransport(tel), nil
	}
	return kafkaTransport(cfg, tp, tel)
}

// memoryTransport runs everything on one in-process bus. Inbound traffic arrives through
// POST /admin/messages/{channel}.
func memoryTransport(tel observability.Observability) transport {
	bus := outbox.NewBus(tel.Logger())
	return transport{
		publisher: bus,
		run: func(ctx context.Context, gw *gateway.Gateway) {
			gw.Subscribe(bus, message.Inbound...)
			bus.Start(ctx)
			<-ctx.Done()
		},
		close: func(ctx context.Context) error {
			bus.Stop(ctx)
			return nil
		},
	}
}

func kafkaTransport(cfg config.Config, tp trace.TracerProvider, tel observability.Observability) (transport, error) {
	writer, err := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.ClientID, tp)
	if err != nil {
		return transport{}, err
	}
	producer := kafka.NewProducer(writer, cfg.Topics, cfg.DLQSuffix)

	var consumers []*kafka.Consumer
	return transport{
		publisher: producer,
		run: func(ctx context.Context, gw *gateway.Gateway) {
			var wg sync.WaitGroup
			for _, ch := range message.Inbound {
				readers := make([]kafka.Reader, 0, cfg.Kafka.WorkersPerChannel)
				for range cfg.Kafka.WorkersPerChannel {
					readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
						Brokers:           cfg.Kafka.Brokers,
						GroupID:           cfg.Kafka.GroupID,
						Topic:             cfg.Topics[ch],
						AutoOffsetReset:   cfg.Kafka.AutoOffsetReset,
						QueueCapacity:     cfg.Kafka.MaxPollRecords,
						SessionTimeout:    cfg.Kafka.SessionTimeout,
						HeartbeatInterval: cfg.Kafka.HeartbeatInterval,
					}))
				}
				c := kafka.NewConsumer(ch, readers, gw.Handle, tel.Logger())
				consumers = append(consumers, c)
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.Run(ctx)
				}()
			}
			wg.Wait()
		},
		close: func(context.Context) error {
			var errs []error
			for _, c := range consumers {
				errs = append(errs, c.Close())
			}
			errs = append(errs, producer.Close())
			return errors.Join(errs...)
		},
	}, nil
}
