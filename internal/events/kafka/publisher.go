package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

// DefaultTopic receives ledger change events.
const DefaultTopic = "cashbook.ledger_changed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher forwards ledger changes to Kafka. Failures are logged, never
// returned, because the mutation has already been committed.
type Publisher struct {
	writer  messageWriter
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher constructs a publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
	}, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, logger: logger, timeout: 5 * time.Second}
}

// LedgerChanged implements ledger.Notifier.
func (p *Publisher) LedgerChanged(ctx context.Context, change ledger.Change) {
	data, err := json.Marshal(change)
	if err != nil {
		p.logger.Error("encode ledger change", slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(change.Kind), Value: data}); err != nil {
		p.logger.Warn("publish ledger change", slog.String("kind", string(change.Kind)), slog.Any("error", err))
	}
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
