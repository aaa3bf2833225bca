// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"
	"github.com/Zhima-Mochi/minishop-catalog/internal/infrastructure/kafka"
)

const (
	TransportKafka  = "kafka"
	TransportMemory = "memory"
)

type Config struct {
	ServiceName     string
	Env             string
	HTTPAddr        string
	ShutdownTimeout time.Duration
	Transport       string

	Kafka     Kafka
	Topics    map[message.Channel]string
	DLQSuffix string
	Retry     Retry

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	ReservationRetention time.Duration
	DedupWindow          int
	JanitorInterval      time.Duration
	ReconcileInterval    time.Duration

	ElasticsearchURLs  []string
	ElasticsearchIndex string

	StockSource         string
	StockIgnoredSources []string

	OTel OTel
}

type Kafka struct {
	Brokers           []string
	GroupID           string
	ClientID          string
	AutoOffsetReset   string
	MaxPollRecords    int
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	WorkersPerChannel int
}

type Retry struct {
	Max           int
	Backoff       time.Duration
	NonRetryable  []string
	DLQOnNotFound bool
}

type OTel struct {
	Endpoint   string
	AuthHeader string
	Insecure   bool
}

// DefaultIgnoredSources are the stock-update origins that the catalog already applied itself
// or that only echo a reservation.
var DefaultIgnoredSources = []string{"catalog-service", "reservation", "rollback", "order-service"}

// Load reads the environment, applies defaults and reports every invalid value at once.
func Load() (Config, error) {
	var p parser

	cfg := Config{
		ServiceName:     p.str("SERVICE_NAME", "minishop-catalog"),
		Env:             p.str("ENV", "local"),
		HTTPAddr:        p.str("HTTP_ADDR", ":8080"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Transport:       strings.ToLower(p.str("TRANSPORT", TransportKafka)),
		Kafka: Kafka{
			Brokers:           p.list("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:           p.str("KAFKA_GROUP_ID", "catalog-service"),
			ClientID:          p.str("KAFKA_CLIENT_ID", "catalog-service"),
			AutoOffsetReset:   strings.ToLower(p.str("KAFKA_AUTO_OFFSET_RESET", "latest")),
			MaxPollRecords:    p.integer("KAFKA_MAX_POLL_RECORDS", 100),
			SessionTimeout:    p.duration("KAFKA_SESSION_TIMEOUT", 30*time.Second),
			HeartbeatInterval: p.duration("KAFKA_HEARTBEAT_INTERVAL", 3*time.Second),
			WorkersPerChannel: p.integer("KAFKA_WORKERS_PER_CHANNEL", 3),
		},
		Topics:    topics(&p),
		DLQSuffix: p.str("DLQ_SUFFIX", kafka.DefaultDeadLetterSuffix),
		Retry: Retry{
			Max:           p.integer("RETRY_MAX", 3),
			Backoff:       p.duration("RETRY_BACKOFF", time.Second),
			NonRetryable:  p.list("RETRY_NON_RETRYABLE", nil),
			DLQOnNotFound: p.boolean("DLQ_ON_NOT_FOUND", false),
		},
		DatabaseURL:          p.str("DATABASE_URL", ""),
		DBMaxConns:           int32(p.integer("DB_MAX_CONNS", 10)),
		DBMinConns:           int32(p.integer("DB_MIN_CONNS", 1)),
		ReservationRetention: p.duration("RESERVATION_RETENTION", 7*24*time.Hour),
		DedupWindow:          p.integer("DEDUP_WINDOW", 10000),
		JanitorInterval:      p.duration("JANITOR_INTERVAL", time.Hour),
		ReconcileInterval:    p.duration("RECONCILE_INTERVAL", 0),
		ElasticsearchURLs:    p.list("ELASTICSEARCH_URLS", nil),
		ElasticsearchIndex:   p.str("ELASTICSEARCH_INDEX", "items"),
		StockSource:          p.str("STOCK_SOURCE", "catalog-service"),
		StockIgnoredSources:  p.list("STOCK_IGNORED_SOURCES", DefaultIgnoredSources),
		OTel: OTel{
			Endpoint:   p.str("OTEL_ENDPOINT", ""),
			AuthHeader: p.str("OTEL_AUTH_HEADER", ""),
			Insecure:   p.boolean("OTEL_INSECURE", false),
		},
	}

	p.errs = append(p.errs, cfg.validate()...)
	if len(p.errs) > 0 {
		return cfg, fmt.Errorf("config: %w", errors.Join(p.errs...))
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	switch c.Transport {
	case TransportKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS must not be empty"))
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("KAFKA_GROUP_ID must not be empty"))
		}
	case TransportMemory:
	default:
		errs = append(errs, fmt.Errorf("TRANSPORT must be %q or %q, got %q", TransportKafka, TransportMemory, c.Transport))
	}
	if c.Kafka.AutoOffsetReset != "earliest" && c.Kafka.AutoOffsetReset != "latest" {
		errs = append(errs, fmt.Errorf("KAFKA_AUTO_OFFSET_RESET must be earliest or latest, got %q", c.Kafka.AutoOffsetReset))
	}
	if c.Kafka.WorkersPerChannel < 1 {
		errs = append(errs, errors.New("KAFKA_WORKERS_PER_CHANNEL must be at least 1"))
	}
	if c.Kafka.MaxPollRecords < 1 {
		errs = append(errs, errors.New("KAFKA_MAX_POLL_RECORDS must be at least 1"))
	}
	if c.DLQSuffix == "" {
		errs = append(errs, errors.New("DLQ_SUFFIX must not be empty"))
	}
	if c.Retry.Max < 0 {
		errs = append(errs, errors.New("RETRY_MAX must not be negative"))
	}
	if c.Retry.Backoff < 0 {
		errs = append(errs, errors.New("RETRY_BACKOFF must not be negative"))
	}
	if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max >= 1", c.DBMinConns, c.DBMaxConns))
	}
	if c.DedupWindow < 1 {
		errs = append(errs, errors.New("DEDUP_WINDOW must be at least 1"))
	}
	if c.ReservationRetention <= 0 {
		errs = append(errs, errors.New("RESERVATION_RETENTION must be positive"))
	}
	if c.JanitorInterval <= 0 {
		errs = append(errs, errors.New("JANITOR_INTERVAL must be positive"))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must not be negative"))
	}
	if c.StockSource == "" {
		errs = append(errs, errors.New("STOCK_SOURCE must not be empty"))
	}
	return errs
}

// TopicEnv is the environment key overriding the topic of ch, e.g. TOPIC_RESERVATION_REQUEST.
func TopicEnv(ch message.Channel) string {
	return "TOPIC_" + strings.ToUpper(strings.ReplaceAll(string(ch), "-", "_"))
}

func topics(p *parser) map[message.Channel]string {
	out := kafka.DefaultTopics()
	for ch, def := range out {
		out[ch] = p.str(TopicEnv(ch), def)
	}
	return out
}

// parser collects every malformed value so Load can report them together.
type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// duration accepts Go duration strings ("1500ms", "2h") or bare seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) list(key string, def []string) []string {
	v := p.str(key, "")
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
