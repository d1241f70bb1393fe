package notify

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	accounts "github.com/versehub/go-accounts"
)

// KafkaConfig holds the broker settings for the mail event producer.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	TLS      bool     `yaml:"tls"`
}

// MailEvent is the payload published for the mail service.
type MailEvent struct {
	accounts.Message
	OccurredAt time.Time `json:"occurred_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes each message as a MailEvent keyed by account id,
// so events for one account stay ordered on a partition.
type KafkaNotifier struct {
	writer messageWriter
	logger accounts.Logger
	now    accounts.Clock
}

var _ accounts.Notifier = (*KafkaNotifier)(nil)

func NewKafkaNotifier(cfg KafkaConfig, logger accounts.Logger) *KafkaNotifier {
	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	if cfg.TLS {
		transport.TLS = &tls.Config{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Transport:    transport,
		WriteTimeout: 10 * time.Second,
	}
	return newKafkaNotifier(writer, logger, time.Now)
}

func newKafkaNotifier(w messageWriter, logger accounts.Logger, now accounts.Clock) *KafkaNotifier {
	if logger == nil {
		logger = accounts.NewSlogLogger(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &KafkaNotifier{writer: w, logger: logger, now: now}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg accounts.Message) error {
	at := n.now().UTC()
	value, err := json.Marshal(MailEvent{Message: msg, OccurredAt: at})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode mail event")
	}

	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.AccountID, 10)),
		Value: value,
		Time:  at,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish mail event").
			WithMetadata(map[string]any{"kind": string(msg.Kind)})
	}

	n.logger.Debug("kafka: published %s event for account %d", msg.Kind, msg.AccountID)
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
