package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storybook-server/internal/messaging"
	"storybook-server/internal/models"
)

const publishTimeout = 15 * time.Second

type publisherSink struct {
	publisher messaging.EventPublisher
	logger    *zap.Logger
}

// PublisherSink forwards events to a broker. Failures are logged and do not
// affect the session.
func PublisherSink(publisher messaging.EventPublisher, logger *zap.Logger) EventSink {
	return &publisherSink{publisher: publisher, logger: logger.Named("PublisherSink")}
}

func (p *publisherSink) HandleEvent(event models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.publisher.PublishEvent(ctx, event); err != nil {
		p.logger.Error("Failed to publish session event",
			zap.String("session_id", event.SessionID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
