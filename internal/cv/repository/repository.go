// Package repository persists CV records in PostgreSQL or MongoDB.
package repository

import (
	"context"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
)

// CVRepository is the record store used by the upload pipeline, the
// enrichment scheduler and the query endpoints. Lookups that match nothing
// return an errors.NotFound AppError.
type CVRepository interface {
	// FindByOwnerAndPath matches active and inactive records alike.
	FindByOwnerAndPath(ctx context.Context, ownerID, storagePath string) (*domain.CVRecord, error)
	FindActiveByID(ctx context.Context, ownerID, id string) (*domain.CVRecord, error)
	// Create inserts a placeholder record. A duplicate (owner, path) yields errors.Conflict.
	Create(ctx context.Context, rec domain.NewCVRecord) (*domain.CVRecord, error)
	UpdateEnrichment(ctx context.Context, id, position, summary string) error
	// Deactivate flips is_active on an active record of ownerID.
	Deactivate(ctx context.Context, ownerID, id string) error
	// Purge hard-deletes records of ownerID. It only backs out records whose
	// upload failed, so a retry is not mistaken for a duplicate.
	Purge(ctx context.Context, ownerID string, ids []string) error
	List(ctx context.Context, filter domain.ListFilter) ([]*domain.CVRecord, error)
	DistinctPositions(ctx context.Context, ownerID string) ([]string, error)
}

func newPlaceholder(rec domain.NewCVRecord) *domain.CVRecord {
	return &domain.CVRecord{
		ID:            domain.NewID(),
		OwnerID:       rec.OwnerID,
		StoragePath:   rec.StoragePath,
		OriginalName:  rec.OriginalName,
		MimeType:      rec.MimeType,
		FileSizeBytes: rec.FileSizeBytes,
		Position:      domain.Placeholder,
		Summary:       domain.Placeholder,
		IsActive:      true,
	}
}
