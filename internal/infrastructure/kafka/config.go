package kafka

import (
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-catalog/internal/domain/message"

	kafkago "github.com/segmentio/kafka-go"
)

// DefaultTopics maps logical channels onto the topic names used by the upstream services.
func DefaultTopics() map[message.Channel]string {
	return map[message.Channel]string{
		message.ChannelReservationRequest:  "stock-reservation-requests",
		message.ChannelReservationResponse: "stock-reservation-responses",
		message.ChannelRollbackRequest:     "stock-rollback-request",
		message.ChannelStockUpdate:         "inventory-updates",
		message.ChannelFlashSale:           "flash-sale",
	}
}

const DefaultDeadLetterSuffix = "-dlq"

// ReaderConfig holds the consumer-group settings shared by every inbound channel.
type ReaderConfig struct {
	Brokers           []string
	GroupID           string
	Topic             string
	AutoOffsetReset   string
	QueueCapacity     int
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
}

// NewReader builds a consumer-group reader with synchronous commits; offsets only move when
// the consumer commits explicitly.
func NewReader(cfg ReaderConfig) *kafkago.Reader {
	start := kafkago.LastOffset
	if strings.EqualFold(cfg.AutoOffsetReset, "earliest") {
		start = kafkago.FirstOffset
	}
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		QueueCapacity:     cfg.QueueCapacity,
		SessionTimeout:    cfg.SessionTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		StartOffset:       start,
		CommitInterval:    0,
		MaxBytes:          10e6,
	})
}
