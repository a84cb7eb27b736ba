// Package scheduler runs CV enrichment in the background. Batches are queued
// in memory and drained by a fixed number of workers; every completion call
// pair is followed by a cooldown to stay under provider rate limits.
package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/enricher"
	"github.com/cvbank/cvbank-backend/internal/cv/events"
	"github.com/cvbank/cvbank-backend/internal/cv/extractor"
	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
)

// Scheduler errors
var (
	ErrQueueFull = stderrors.New("enrichment queue is full")
	ErrStopped   = stderrors.New("enrichment scheduler is stopped")
)

// Enrichment outcomes reported on cv.enriched
const (
	OutcomeEnriched         = "enriched"
	OutcomeInsufficientText = "insufficient_text"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomeEnrichmentFailed = "enrichment_failed"
)

const lockKey = "cvbank:enrichment"

// Extractor reads the text of a stored CV.
type Extractor interface {
	Extract(ctx context.Context, locator, mediaType string) (*extractor.Extraction, error)
}

// Enricher derives position and summary from text.
type Enricher interface {
	EnrichPositionAndSummary(ctx context.Context, text string) (enricher.Result, error)
	ExtractPosition(ctx context.Context, text string) string
}

// Store persists enrichment output.
type Store interface {
	UpdateEnrichment(ctx context.Context, id, position, summary string) error
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocker serializes the AI phase of jobs across processes.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithEvents publishes cv.enriched after each job.
func WithEvents(p *events.Publisher) Option {
	return func(s *Scheduler) { s.events = p }
}

// WithSleep replaces the cooldown wait. Tests use it to record delays.
func WithSleep(fn SleepFunc) Option {
	return func(s *Scheduler) { s.sleep = fn }
}

// Scheduler executes enrichment jobs.
type Scheduler struct {
	extractor Extractor
	enricher  Enricher
	store     Store
	locker    Locker
	events    *events.Publisher
	logger    *logger.Logger
	sleep     SleepFunc

	cooldown      time.Duration
	workers       int
	minTextLength int

	mu      sync.RWMutex
	queue   chan []domain.EnrichmentJob
	stopped bool

	startOnce sync.Once
	wg        sync.WaitGroup
	runCtx    context.Context
	cancel    context.CancelFunc
}

// New creates a scheduler. Call Start before Dispatch.
func New(cfg *config.EnrichmentConfig, ext Extractor, enr Enricher, store Store, log *logger.Logger, opts ...Option) *Scheduler {
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	runCtx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		extractor:     ext,
		enricher:      enr,
		store:         store,
		locker:        NoopLocker{},
		logger:        log.WithComponent("scheduler"),
		sleep:         sleepContext,
		cooldown:      cfg.Cooldown,
		workers:       max(cfg.Workers, 1),
		minTextLength: cfg.MinTextLength,
		queue:         make(chan []domain.EnrichmentJob, queueSize),
		runCtx:        runCtx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the workers. Jobs run on a context owned by the scheduler,
// independent of the request that dispatched them.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		for i := 0; i < s.workers; i++ {
			s.wg.Add(1)
			go s.work()
		}
		s.logger.Info().Int("workers", s.workers).Dur("cooldown", s.cooldown).Msg("enrichment scheduler started")
	})
}

func (s *Scheduler) work() {
	defer s.wg.Done()
	for batch := range s.queue {
		s.RunBatch(s.runCtx, batch)
	}
}

// Dispatch enqueues a batch without blocking. It returns ErrQueueFull when
// the queue has no room and ErrStopped after Stop.
func (s *Scheduler) Dispatch(ctx context.Context, jobs []domain.EnrichmentJob) error {
	if len(jobs) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}

	batch := make([]domain.EnrichmentJob, len(jobs))
	copy(batch, jobs)

	select {
	case s.queue <- batch:
		s.logger.Debug().Int("jobs", len(batch)).Msg("enrichment batch queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new batches and waits for queued ones to finish. If ctx ends
// first, in-flight work is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.queue)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// RunBatch processes jobs one after another. A failing job never stops the
// batch; cancellation of ctx does.
func (s *Scheduler) RunBatch(ctx context.Context, jobs []domain.EnrichmentJob) {
	for i, job := range jobs {
		if ctx.Err() != nil {
			s.logger.Warn().Int("remaining", len(jobs)-i).Msg("enrichment batch interrupted")
			return
		}
		s.process(ctx, job)
	}
}

// HandleEnrichmentRequested consumes batches dispatched through RabbitMQ.
func (s *Scheduler) HandleEnrichmentRequested(ctx context.Context, event *messaging.Event) error {
	var req EnrichmentRequest
	if err := event.UnmarshalData(&req); err != nil {
		return err
	}
	s.RunBatch(ctx, req.Jobs)
	return nil
}

func (s *Scheduler) process(ctx context.Context, job domain.EnrichmentJob) {
	log := s.logger.WithCVID(job.CVID)
	started := time.Now()

	out := s.enrich(ctx, job, log)

	if err := s.store.UpdateEnrichment(ctx, job.CVID, out.position, out.summary); err != nil {
		log.Error().Err(err).Msg("failed to persist enrichment")
		return
	}

	log.Info().
		Str("outcome", out.outcome).
		Str("position", out.position).
		Dur("duration", time.Since(started)).
		Msg("cv enriched")

	s.events.CVEnriched(ctx, messaging.CVEnrichedEvent{
		CVID:      job.CVID,
		OwnerID:   job.OwnerID,
		Position:  out.position,
		Outcome:   out.outcome,
		PageCount: out.pages,
	})
}

type outcome struct {
	position string
	summary  string
	outcome  string
	pages    int
}

func (s *Scheduler) enrich(ctx context.Context, job domain.EnrichmentJob, log *logger.Logger) outcome {
	extraction, err := s.extractor.Extract(ctx, job.StoragePath, job.MimeType)
	if err != nil {
		log.Warn().Err(err).Msg("text extraction failed")
		return outcome{
			position: domain.NotSpecified,
			summary:  "Failed to extract text from CV: " + reason(err),
			outcome:  OutcomeExtractionFailed,
		}
	}

	text := extraction.Text
	if len([]rune(text)) < s.minTextLength {
		return outcome{
			position: domain.NotSpecified,
			summary:  domain.InsufficientTextSummary,
			outcome:  OutcomeInsufficientText,
			pages:    extraction.PageCount,
		}
	}

	release, err := s.locker.Acquire(ctx, lockKey)
	if err != nil {
		log.Warn().Err(err).Msg("enrichment lock unavailable, continuing without it")
	} else {
		defer release()
	}

	result, err := s.enricher.EnrichPositionAndSummary(ctx, text)
	s.sleep(ctx, s.cooldown)
	if err == nil {
		return outcome{
			position: result.Position,
			summary:  result.Summary,
			outcome:  OutcomeEnriched,
			pages:    extraction.PageCount,
		}
	}

	log.Warn().Err(err).Str("code", errors.CodeOf(err)).Msg("enrichment failed")

	position := result.Position
	if domain.IsDefaultPosition(position) {
		position = s.enricher.ExtractPosition(ctx, text)
		s.sleep(ctx, s.cooldown)
	}

	return outcome{
		position: position,
		summary:  reason(err),
		outcome:  OutcomeEnrichmentFailed,
		pages:    extraction.PageCount,
	}
}

// reason renders err as the human readable text stored on the record.
func reason(err error) string {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	switch appErr.Code {
	case errors.CodeExtraction, errors.CodeStorage:
		// report the underlying cause rather than the generic message
		if multi, ok := appErr.Err.(interface{ Unwrap() []error }); ok {
			if errs := multi.Unwrap(); len(errs) > 0 {
				return errs[len(errs)-1].Error()
			}
		}
	}
	return appErr.Message
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
