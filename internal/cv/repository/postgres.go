package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/pkg/database"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/lib/pq"
)

const cvColumns = `id, owner_id, storage_path, original_name, mime_type, file_size_bytes,
	position, summary, is_active, created_at, updated_at`

// PostgresCVRepository stores records in the cv_records table.
type PostgresCVRepository struct {
	db *database.DB
}

// NewPostgresCVRepository creates a new CV repository
func NewPostgresCVRepository(db *database.DB) *PostgresCVRepository {
	return &PostgresCVRepository{db: db}
}

func (r *PostgresCVRepository) FindByOwnerAndPath(ctx context.Context, ownerID, storagePath string) (*domain.CVRecord, error) {
	var rec domain.CVRecord
	query := `SELECT ` + cvColumns + ` FROM cv_records WHERE owner_id = $1 AND storage_path = $2`

	err := r.db.GetContext(ctx, &rec, query, ownerID, storagePath)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("CV")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresCVRepository) FindActiveByID(ctx context.Context, ownerID, id string) (*domain.CVRecord, error) {
	var rec domain.CVRecord
	query := `SELECT ` + cvColumns + ` FROM cv_records WHERE id = $1 AND owner_id = $2 AND is_active = TRUE`

	err := r.db.GetContext(ctx, &rec, query, id, ownerID)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("CV")
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *PostgresCVRepository) Create(ctx context.Context, in domain.NewCVRecord) (*domain.CVRecord, error) {
	rec := newPlaceholder(in)

	query := `
		INSERT INTO cv_records (id, owner_id, storage_path, original_name, mime_type, file_size_bytes, position, summary, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.StoragePath,
		rec.OriginalName,
		rec.MimeType,
		rec.FileSizeBytes,
		rec.Position,
		rec.Summary,
		rec.IsActive,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if appErr := database.MapPQError(err); appErr != nil {
			return nil, appErr
		}
		return nil, err
	}
	return rec, nil
}

func (r *PostgresCVRepository) UpdateEnrichment(ctx context.Context, id, position, summary string) error {
	query := `UPDATE cv_records SET position = $2, summary = $3, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, position, summary)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *PostgresCVRepository) Deactivate(ctx context.Context, ownerID, id string) error {
	query := `
		UPDATE cv_records SET is_active = FALSE, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2 AND is_active = TRUE
	`

	result, err := r.db.ExecContext(ctx, query, id, ownerID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func (r *PostgresCVRepository) Purge(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM cv_records WHERE owner_id = $1 AND id = ANY($2)`, ownerID, pq.Array(ids))
	return err
}

func (r *PostgresCVRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CVRecord, error) {
	query := `SELECT ` + cvColumns + ` FROM cv_records WHERE owner_id = $1 AND is_active = TRUE`
	args := []interface{}{filter.OwnerID}

	if p := strings.TrimSpace(filter.Position); p != "" {
		query += ` AND position ILIKE $2 ESCAPE '\'`
		args = append(args, "%"+escapeLike(p)+"%")
	}
	query += ` ORDER BY created_at DESC`

	records := []*domain.CVRecord{}
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *PostgresCVRepository) DistinctPositions(ctx context.Context, ownerID string) ([]string, error) {
	query := `
		SELECT DISTINCT position FROM cv_records
		WHERE owner_id = $1 AND is_active = TRUE AND position NOT IN ('', $2, $3)
		ORDER BY position
	`

	positions := []string{}
	if err := r.db.SelectContext(ctx, &positions, query, ownerID, domain.NotSpecified, domain.Placeholder); err != nil {
		return nil, err
	}
	return positions, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.NotFound("CV")
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
