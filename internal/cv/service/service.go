// Package service implements the CV bank use cases: upload intake, queries,
// retirement and download.
package service

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/events"
	"github.com/cvbank/cvbank-backend/internal/cv/repository"
	"github.com/cvbank/cvbank-backend/internal/cv/storage"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/cvbank/cvbank-backend/pkg/messaging"
)

// Dispatcher schedules enrichment for freshly created records.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []domain.EnrichmentJob) error
}

// FileUpload is one file of an upload request.
type FileUpload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// UploadedCV describes a record created by AcceptUpload.
type UploadedCV struct {
	ID            string    `json:"id"`
	OriginalName  string    `json:"original_name"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	MimeType      string    `json:"mime_type"`
	Position      string    `json:"position"`
	Summary       string    `json:"summary"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadResult summarizes an upload request.
type UploadResult struct {
	Uploaded          []UploadedCV `json:"uploaded"`
	TotalReceived     int          `json:"total_received"`
	DuplicatesSkipped int          `json:"duplicates_skipped"`
}

// BulkRetireResult reports the outcome of BulkRetire.
type BulkRetireResult struct {
	Deleted  int `json:"deleted"`
	NotFound int `json:"not_found"`
}

// Download is an opened CV file. The caller must close Body.
type Download struct {
	Record *domain.CVRecord
	Body   io.ReadCloser
}

// CVService handles CV business logic
type CVService struct {
	repo       repository.CVRepository
	files      storage.FileStore
	dispatcher Dispatcher
	events     *events.Publisher
	logger     *logger.Logger
}

// NewCVService creates a new CV service
func NewCVService(
	repo repository.CVRepository,
	files storage.FileStore,
	dispatcher Dispatcher,
	publisher *events.Publisher,
	log *logger.Logger,
) *CVService {
	return &CVService{
		repo:       repo,
		files:      files,
		dispatcher: dispatcher,
		events:     publisher,
		logger:     log.WithComponent("cv-service"),
	}
}

// AcceptUpload stores each new file and creates its placeholder record. Files
// already recorded for the owner, active or retired, are skipped. Any storage,
// database or scheduling failure removes every file and record created by this
// call, so a retry of the same files starts clean.
func (s *CVService) AcceptUpload(ctx context.Context, ownerID string, files []FileUpload) (*UploadResult, error) {
	if ownerID == "" {
		return nil, errors.Unauthenticated("authentication required")
	}
	if len(files) == 0 {
		return nil, errors.BadRequest("no files uploaded")
	}

	mediaTypes := make([]string, len(files))
	for i, f := range files {
		mt := domain.ResolveMediaType(f.Filename, f.ContentType)
		if !domain.IsSupportedMediaType(mt) {
			return nil, errors.BadRequest("Invalid file type. Only PDF, DOC, and DOCX files are allowed.").
				WithDetails(map[string]string{"file": f.Filename})
		}
		mediaTypes[i] = mt
	}

	result := &UploadResult{Uploaded: []UploadedCV{}, TotalReceived: len(files)}
	var (
		written []string
		created []string
		jobs    []domain.EnrichmentJob
	)

	fail := func(err error) (*UploadResult, error) {
		s.rollback(ctx, ownerID, written, created)
		return nil, err
	}

	for i, f := range files {
		locator, err := s.files.Locate(ownerID, f.Filename)
		if err != nil {
			return fail(errors.Storage("failed to resolve storage location", err))
		}

		_, err = s.repo.FindByOwnerAndPath(ctx, ownerID, locator)
		if err == nil {
			result.DuplicatesSkipped++
			continue
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return fail(err)
		}

		size, err := s.files.Write(ctx, locator, mediaTypes[i], f.Content)
		if err != nil {
			return fail(errors.Storage("failed to store CV file", err))
		}
		written = append(written, locator)

		rec, err := s.repo.Create(ctx, domain.NewCVRecord{
			OwnerID:       ownerID,
			StoragePath:   locator,
			OriginalName:  f.Filename,
			MimeType:      mediaTypes[i],
			FileSizeBytes: size,
		})
		if errors.Is(err, errors.ErrConflict) {
			// a concurrent request recorded the same file first; the file is theirs now
			written = written[:len(written)-1]
			result.DuplicatesSkipped++
			continue
		}
		if err != nil {
			return fail(err)
		}
		created = append(created, rec.ID)

		result.Uploaded = append(result.Uploaded, UploadedCV{
			ID:            rec.ID,
			OriginalName:  rec.OriginalName,
			FileSizeBytes: rec.FileSizeBytes,
			MimeType:      rec.MimeType,
			Position:      rec.Position,
			Summary:       rec.Summary,
			CreatedAt:     rec.CreatedAt,
		})
		jobs = append(jobs, domain.EnrichmentJob{
			CVID:         rec.ID,
			OwnerID:      ownerID,
			StoragePath:  locator,
			MimeType:     rec.MimeType,
			OriginalName: rec.OriginalName,
		})
	}

	if len(jobs) > 0 {
		detached := context.WithoutCancel(ctx)
		if err := s.dispatcher.Dispatch(detached, jobs); err != nil {
			s.logger.Warn().Err(err).Int("jobs", len(jobs)).Msg("failed to schedule enrichment")
			return fail(errors.ServiceUnavailable("CV processing is busy, please retry the upload shortly"))
		}
		s.events.CVUploaded(detached, messaging.CVUploadedEvent{
			OwnerID:       ownerID,
			CVIDs:         created,
			TotalReceived: result.TotalReceived,
			Duplicates:    result.DuplicatesSkipped,
		})
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Int("received", result.TotalReceived).
		Int("uploaded", len(result.Uploaded)).
		Int("duplicates", result.DuplicatesSkipped).
		Msg("cv upload accepted")

	return result, nil
}

func (s *CVService) rollback(ctx context.Context, ownerID string, locators, recordIDs []string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.repo.Purge(ctx, ownerID, recordIDs); err != nil {
		s.logger.Error().Err(err).Strs("cv_ids", recordIDs).Msg("failed to remove records during upload rollback")
	}
	for _, loc := range locators {
		if err := s.files.Delete(ctx, loc); err != nil {
			s.logger.Error().Err(err).Str("locator", loc).Msg("failed to remove file during upload rollback")
		}
	}
}

// List returns the owner's active records, newest first.
func (s *CVService) List(ctx context.Context, ownerID, position string) ([]*domain.CVRecord, error) {
	return s.repo.List(ctx, domain.ListFilter{OwnerID: ownerID, Position: position})
}

// Positions returns the owner's distinct inferred positions in alphabetical order.
func (s *CVService) Positions(ctx context.Context, ownerID string) ([]string, error) {
	positions, err := s.repo.DistinctPositions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(positions))
	for _, p := range positions {
		if !domain.IsDefaultPosition(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Get returns an active record of the owner.
func (s *CVService) Get(ctx context.Context, ownerID, id string) (*domain.CVRecord, error) {
	if !domain.IsValidID(id) {
		return nil, errors.NotFound("CV")
	}
	return s.repo.FindActiveByID(ctx, ownerID, id)
}

// Retire soft-deletes a record and removes its file. A file that cannot be
// removed is logged and left behind.
func (s *CVService) Retire(ctx context.Context, ownerID, id string) error {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, ownerID, rec.ID); err != nil {
		return err
	}

	if err := s.files.Delete(ctx, rec.StoragePath); err != nil {
		s.logger.WithCVID(rec.ID).Warn().Err(err).Msg("failed to delete CV file")
	}

	s.events.CVDeleted(ctx, messaging.CVDeletedEvent{CVID: rec.ID, OwnerID: ownerID})
	return nil
}

// BulkRetire retires every listed record. One malformed id rejects the whole
// request before anything is changed.
func (s *CVService) BulkRetire(ctx context.Context, ownerID string, ids []string) (*BulkRetireResult, error) {
	if len(ids) == 0 {
		return nil, errors.Validation(map[string]string{"ids": "at least one id is required"})
	}
	for _, id := range ids {
		if !domain.IsValidID(id) {
			return nil, errors.Validation(map[string]string{
				"ids": "invalid id " + id + ": must be a 24-character hexadecimal id",
			})
		}
	}

	result := &BulkRetireResult{}
	for _, id := range ids {
		err := s.Retire(ctx, ownerID, id)
		switch {
		case err == nil:
			result.Deleted++
		case errors.Is(err, errors.ErrNotFound):
			result.NotFound++
		default:
			return nil, err
		}
	}
	return result, nil
}

// Download opens the stored file of an active record.
func (s *CVService) Download(ctx context.Context, ownerID, id string) (*Download, error) {
	rec, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	body, err := s.files.Open(ctx, rec.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errors.NotFound("CV file")
	}
	if err != nil {
		return nil, errors.Storage("failed to open CV file", err)
	}
	return &Download{Record: rec, Body: body}, nil
}
