package kafka

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Producer struct {
	w       messageWriter
	retries uint64
	wait    time.Duration
}

// NewProducer retries a failed write up to retries times with exponential backoff.
func NewProducer(brokers []string, retries int) *Producer {
	if retries < 0 {
		retries = 0
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		retries: uint64(retries),
		wait:    200 * time.Millisecond,
	}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

func (p *Producer) Close() error {
	if c, ok := p.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Publish keys by order id so every message of one order lands in one partition.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.wait
	if b.InitialInterval <= 0 {
		b.InitialInterval = 50 * time.Millisecond
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.retries), ctx)

	err := backoff.Retry(func() error {
		return p.w.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   key,
			Value: value,
		})
	}, policy)
	if err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}
