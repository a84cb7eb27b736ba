package service

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/storage"
	"github.com/cvbank/cvbank-backend/pkg/errors"
)

// memoryRepo is an in-memory CVRepository.
type memoryRepo struct {
	mu          sync.Mutex
	records     []*domain.CVRecord
	createErr   map[string]error
	deactivated []string
	clock       time.Time
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		createErr: map[string]error{},
		clock:     time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memoryRepo) FindByOwnerAndPath(ctx context.Context, ownerID, storagePath string) (*domain.CVRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.OwnerID == ownerID && r.StoragePath == storagePath {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errors.NotFound("CV")
}

func (m *memoryRepo) FindActiveByID(ctx context.Context, ownerID, id string) (*domain.CVRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && r.OwnerID == ownerID && r.IsActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, errors.NotFound("CV")
}

func (m *memoryRepo) Create(ctx context.Context, in domain.NewCVRecord) (*domain.CVRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createErr[in.OriginalName]; err != nil {
		return nil, err
	}
	m.clock = m.clock.Add(time.Second)
	rec := &domain.CVRecord{
		ID:            domain.NewID(),
		OwnerID:       in.OwnerID,
		StoragePath:   in.StoragePath,
		OriginalName:  in.OriginalName,
		MimeType:      in.MimeType,
		FileSizeBytes: in.FileSizeBytes,
		Position:      domain.Placeholder,
		Summary:       domain.Placeholder,
		IsActive:      true,
		CreatedAt:     m.clock,
		UpdatedAt:     m.clock,
	}
	m.records = append(m.records, rec)
	cp := *rec
	return &cp, nil
}

func (m *memoryRepo) UpdateEnrichment(ctx context.Context, id, position, summary string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.Position, r.Summary = position, summary
			return nil
		}
	}
	return errors.NotFound("CV")
}

func (m *memoryRepo) Deactivate(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && r.OwnerID == ownerID && r.IsActive {
			r.IsActive = false
			m.deactivated = append(m.deactivated, id)
			return nil
		}
	}
	return errors.NotFound("CV")
}

func (m *memoryRepo) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CVRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.CVRecord{}
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.OwnerID != filter.OwnerID || !r.IsActive {
			continue
		}
		if filter.Position != "" && !strings.Contains(strings.ToLower(r.Position), strings.ToLower(filter.Position)) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memoryRepo) DistinctPositions(ctx context.Context, ownerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	out := []string{}
	for _, r := range m.records {
		if r.OwnerID == ownerID && r.IsActive && !seen[r.Position] {
			seen[r.Position] = true
			out = append(out, r.Position)
		}
	}
	return out, nil
}

func (m *memoryRepo) Purge(ctx context.Context, ownerID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if !(r.OwnerID == ownerID && drop[r.ID]) {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *memoryRepo) seed(ownerID, locator, name string) *domain.CVRecord {
	rec, _ := m.Create(context.Background(), domain.NewCVRecord{
		OwnerID:      ownerID,
		StoragePath:  locator,
		OriginalName: name,
		MimeType:     domain.MediaTypePDF,
	})
	return rec
}

// flakyStore wraps a FileStore and fails selected operations.
type flakyStore struct {
	storage.FileStore
	failWrite  map[string]bool
	failDelete bool
}

func (f *flakyStore) Write(ctx context.Context, locator, contentType string, r io.Reader) (int64, error) {
	if f.failWrite[locator] {
		return 0, io.ErrShortWrite
	}
	return f.FileStore.Write(ctx, locator, contentType, r)
}

func (f *flakyStore) Delete(ctx context.Context, locator string) error {
	if f.failDelete {
		return io.ErrClosedPipe
	}
	return f.FileStore.Delete(ctx, locator)
}

type recordingDispatcher struct {
	mu      sync.Mutex
	batches [][]domain.EnrichmentJob
	err     error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, jobs []domain.EnrichmentJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, jobs)
	return d.err
}
