package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/FreightDesk/internal/errs"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r messageReader
}

func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return &Consumer{
		r: kafka.NewReader(cfg),
	}
}

func newConsumerWithReader(r messageReader) *Consumer {
	return &Consumer{r: r}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

// Consume commits a message only after handler succeeded; a handler error stops the loop
// and the message is redelivered to the next consumer of the group.
func (c *Consumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			return errors.Wrap(err, "commit message")
		}
	}
}

// ConsumeJSON decodes every value into T before calling handle. Values that do not decode,
// and messages handle rejects with a validation or not-found error, are logged and committed
// so one bad message cannot block the partition. Other handler errors stop the loop.
func ConsumeJSON[T any](ctx context.Context, c *Consumer, log *slog.Logger, handle func(ctx context.Context, msg T) error) error {
	return c.Consume(ctx, func(key, value []byte) error {
		var msg T
		if err := json.Unmarshal(value, &msg); err != nil {
			log.Warn("kafka: skip undecodable message", "key", string(key), "err", err)
			return nil
		}
		err := handle(ctx, msg)
		switch errs.KindOf(err) {
		case errs.KindValidation, errs.KindNotFound:
			log.Warn("kafka: skip rejected message", "key", string(key), "err", err)
			return nil
		}
		return err
	})
}
