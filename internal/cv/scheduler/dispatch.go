package scheduler

import (
	"context"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/events"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
)

// EnrichmentRequest is the payload of cv.enrichment.requested.
type EnrichmentRequest struct {
	Jobs []domain.EnrichmentJob `json:"jobs"`
}

// QueueDispatcher hands batches to RabbitMQ instead of the in-process queue.
// A consumer on the enrichment queue feeds them to Scheduler.RunBatch.
type QueueDispatcher struct {
	pub events.EventPublisher
}

func NewQueueDispatcher(pub events.EventPublisher) *QueueDispatcher {
	return &QueueDispatcher{pub: pub}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, jobs []domain.EnrichmentJob) error {
	if len(jobs) == 0 {
		return nil
	}
	return d.pub.Publish(ctx, messaging.EventCVEnrichmentRequested, EnrichmentRequest{Jobs: jobs})
}
