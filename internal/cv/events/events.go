// Package events publishes CV lifecycle events. A Publisher built without a
// broker connection drops every event.
package events

import (
	"context"

	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
)

// EventPublisher is satisfied by *messaging.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// Publisher emits cv.* events. Publish failures are logged and swallowed.
type Publisher struct {
	pub    EventPublisher
	logger *logger.Logger
}

// New returns a publisher over pub. pub may be nil.
func New(pub EventPublisher, log *logger.Logger) *Publisher {
	return &Publisher{pub: pub, logger: log.WithComponent("cv-events")}
}

func (p *Publisher) CVUploaded(ctx context.Context, evt messaging.CVUploadedEvent) {
	p.publish(ctx, messaging.EventCVUploaded, evt)
}

func (p *Publisher) CVEnriched(ctx context.Context, evt messaging.CVEnrichedEvent) {
	p.publish(ctx, messaging.EventCVEnriched, evt)
}

func (p *Publisher) CVDeleted(ctx context.Context, evt messaging.CVDeletedEvent) {
	p.publish(ctx, messaging.EventCVDeleted, evt)
}

func (p *Publisher) publish(ctx context.Context, eventType string, data interface{}) {
	if p == nil || p.pub == nil {
		return
	}
	if err := p.pub.Publish(ctx, eventType, data); err != nil {
		p.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}
