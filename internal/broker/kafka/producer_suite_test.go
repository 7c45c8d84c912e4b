package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/FreightDesk/internal/broker/messages"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

type ProducerSuite struct {
	suite.Suite
	wm *writerMock
	p  *Producer
}

func (s *ProducerSuite) SetupTest() {
	s.wm = &writerMock{}
	s.p = &Producer{w: s.wm, retries: 2, wait: time.Millisecond}
}

func (s *ProducerSuite) TestPublish_StatusChangedKeyedByOrder() {
	msg := messages.OrderStatusChanged{
		EventID: "e-1", OrderID: 12, OrderNumber: "LD-0000000C",
		From: "ASSIGNED", To: "IN_TRANSIT", EventTime: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		VocabularyVersion: 3,
	}
	b, err := json.Marshal(msg)
	s.Require().NoError(err)

	s.wm.
		On("WriteMessages", mock.Anything, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || msgs[0].Topic != messages.TopicOrderStatusChanged || string(msgs[0].Key) != "12" {
				return false
			}
			var got messages.OrderStatusChanged
			return json.Unmarshal(msgs[0].Value, &got) == nil && got.To == "IN_TRANSIT" && got.VocabularyVersion == 3
		})).
		Return(nil).
		Once()

	s.Require().NoError(s.p.Publish(context.Background(), messages.TopicOrderStatusChanged, []byte("12"), b))
	s.wm.AssertExpectations(s.T())
}

func (s *ProducerSuite) TestPublish_RecoversWithinRetries() {
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("leader not available")).Once()
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	s.Require().NoError(s.p.Publish(context.Background(), messages.TopicRouteResolved, []byte("3"), []byte(`{}`)))
	s.wm.AssertNumberOfCalls(s.T(), "WriteMessages", 2)
}

func (s *ProducerSuite) TestPublish_GivesUpAfterRetries() {
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("boom"))

	err := s.p.Publish(context.Background(), messages.TopicRouteResolved, []byte("3"), []byte(`{}`))
	s.Require().Error(err)
	s.Require().Contains(err.Error(), "kafka publish")
	s.wm.AssertNumberOfCalls(s.T(), "WriteMessages", 3)
}

func (s *ProducerSuite) TestPublish_CanceledContextStopsRetrying() {
	ctx, cancel := context.WithCancel(context.Background())
	s.wm.On("WriteMessages", mock.Anything, mock.Anything).Run(func(mock.Arguments) { cancel() }).Return(errors.New("boom"))

	s.Require().Error(s.p.Publish(ctx, messages.TopicRouteResolved, []byte("3"), []byte(`{}`)))
	s.wm.AssertNumberOfCalls(s.T(), "WriteMessages", 1)
}

func TestProducerSuite(t *testing.T) {
	suite.Run(t, new(ProducerSuite))
}
