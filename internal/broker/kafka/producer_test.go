package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	last  []kafka.Message
	fails int
	calls int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.calls <= w.fails {
		return errors.New("leader not available")
	}
	w.last = append([]kafka.Message{}, msgs...)
	return nil
}

func TestProducer_Publish(t *testing.T) {
	fw := &fakeWriter{}
	p := newProducerWithWriter(fw)

	require.NoError(t, p.Publish(context.Background(), "order.status_changed", []byte("7"), []byte("v")))
	require.Len(t, fw.last, 1)
	require.Equal(t, "order.status_changed", fw.last[0].Topic)
	require.Equal(t, []byte("7"), fw.last[0].Key)
	require.Equal(t, []byte("v"), fw.last[0].Value)
}

func TestProducer_PublishRetries(t *testing.T) {
	fw := &fakeWriter{fails: 2}
	p := newProducerWithWriter(fw)
	p.retries = 3
	p.wait = 1

	require.NoError(t, p.Publish(context.Background(), "t", []byte("k"), []byte("v")))
	require.Equal(t, 3, fw.calls)
}

func TestProducer_PublishGivesUp(t *testing.T) {
	fw := &fakeWriter{fails: 10}
	p := newProducerWithWriter(fw)
	p.retries = 1
	p.wait = 1

	err := p.Publish(context.Background(), "t", []byte("k"), []byte("v"))
	require.Error(t, err)
	require.Equal(t, 2, fw.calls)
}

func TestNewProducer(t *testing.T) {
	p := NewProducer([]string{"localhost:0"}, 2)
	require.NotNil(t, p)
	require.NoError(t, p.Close())
}
