package messaging_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/messaging"
	"storybook-server/internal/mocks"
	"storybook-server/internal/models"
)

func newEvent() models.Event {
	return models.Event{
		ID:        "evt-1",
		SessionID: "sess-1",
		Type:      models.EventNarrationStarted,
		Phase:     models.PhaseViewing,
		Audio:     &models.AudioPayload{Target: "cover", Data: []byte{1, 2, 3, 4}, SampleRate: 24000, Channels: 1, BitDepth: 16},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "storybook.image.patched", messaging.RoutingKey(models.EventImagePatched))
}

func TestPublishEvent(t *testing.T) {
	ch := mocks.NewMockChannel(t)
	ch.On("ExchangeDeclare", "storybook.events", "topic", true, false, false, false, amqp.Table(nil)).Return(nil).Once()

	var published amqp.Publishing
	ch.On("PublishWithContext", mock.Anything, "storybook.events", "storybook.narration.started", false, false, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(5).(amqp.Publishing) }).
		Return(nil).Once()

	pub, err := messaging.NewRabbitMQEventPublisher(ch, "storybook.events", zap.NewNop())
	require.NoError(t, err)

	event := newEvent()
	require.NoError(t, pub.PublishEvent(context.Background(), event))

	assert.Equal(t, "application/json", published.ContentType)
	assert.Equal(t, "evt-1", published.MessageId)
	assert.Equal(t, "narration.started", published.Type)

	var decoded models.Event
	require.NoError(t, json.Unmarshal(published.Body, &decoded))
	assert.Equal(t, "sess-1", decoded.SessionID)
	require.NotNil(t, decoded.Audio)
	assert.Empty(t, decoded.Audio.Data, "audio samples are not forwarded")
	assert.Equal(t, 24000, decoded.Audio.SampleRate)
	assert.Len(t, event.Audio.Data, 4, "caller's event must not be modified")
}

func TestPublishEvent_RetriesThenFails(t *testing.T) {
	ch := mocks.NewMockChannel(t)
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	boom := errors.New("channel closed")
	ch.On("PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(boom).Times(3)

	pub, err := messaging.NewRabbitMQEventPublisher(ch, "storybook.events", zap.NewNop())
	require.NoError(t, err)

	err = pub.PublishEvent(context.Background(), newEvent())
	assert.ErrorIs(t, err, boom)
}

func TestNewRabbitMQEventPublisher_DeclareFails(t *testing.T) {
	ch := mocks.NewMockChannel(t)
	ch.On("ExchangeDeclare", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("access refused"))

	_, err := messaging.NewRabbitMQEventPublisher(ch, "storybook.events", zap.NewNop())
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	assert.NoError(t, messaging.NopPublisher().PublishEvent(context.Background(), newEvent()))
}
