package repository

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/mongodb"
)

type cvDocument struct {
	ID            primitive.ObjectID `bson:"_id"`
	OwnerID       primitive.ObjectID `bson:"owner_id"`
	StoragePath   string             `bson:"storage_path"`
	OriginalName  string             `bson:"original_name"`
	MimeType      string             `bson:"mime_type"`
	FileSizeBytes int64              `bson:"file_size_bytes"`
	Position      string             `bson:"position"`
	Summary       string             `bson:"summary"`
	IsActive      bool               `bson:"is_active"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func (d *cvDocument) toDomain() *domain.CVRecord {
	return &domain.CVRecord{
		ID:            d.ID.Hex(),
		OwnerID:       d.OwnerID.Hex(),
		StoragePath:   d.StoragePath,
		OriginalName:  d.OriginalName,
		MimeType:      d.MimeType,
		FileSizeBytes: d.FileSizeBytes,
		Position:      d.Position,
		Summary:       d.Summary,
		IsActive:      d.IsActive,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// MongoCVRepository stores records in the cv_records collection.
type MongoCVRepository struct {
	coll *mongo.Collection
}

func NewMongoCVRepository(db *mongo.Database) *MongoCVRepository {
	return &MongoCVRepository{coll: db.Collection(mongodb.CVRecordsCollection)}
}

func (r *MongoCVRepository) FindByOwnerAndPath(ctx context.Context, ownerID, storagePath string) (*domain.CVRecord, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, errors.NotFound("CV")
	}
	return r.findOne(ctx, bson.M{"owner_id": owner, "storage_path": storagePath})
}

func (r *MongoCVRepository) FindActiveByID(ctx context.Context, ownerID, id string) (*domain.CVRecord, error) {
	filter, ok := activeRecordFilter(ownerID, id)
	if !ok {
		return nil, errors.NotFound("CV")
	}
	return r.findOne(ctx, filter)
}

func (r *MongoCVRepository) findOne(ctx context.Context, filter bson.M) (*domain.CVRecord, error) {
	var doc cvDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("CV")
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *MongoCVRepository) Create(ctx context.Context, in domain.NewCVRecord) (*domain.CVRecord, error) {
	owner, err := primitive.ObjectIDFromHex(in.OwnerID)
	if err != nil {
		return nil, errors.BadRequest("invalid owner id")
	}

	rec := newPlaceholder(in)
	id, err := primitive.ObjectIDFromHex(rec.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	rec.CreatedAt, rec.UpdatedAt = now, now

	doc := cvDocument{
		ID:            id,
		OwnerID:       owner,
		StoragePath:   rec.StoragePath,
		OriginalName:  rec.OriginalName,
		MimeType:      rec.MimeType,
		FileSizeBytes: rec.FileSizeBytes,
		Position:      rec.Position,
		Summary:       rec.Summary,
		IsActive:      rec.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.Conflict("this file has already been uploaded")
		}
		return nil, err
	}
	return rec, nil
}

func (r *MongoCVRepository) UpdateEnrichment(ctx context.Context, id, position, summary string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.NotFound("CV")
	}

	result, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"position":   position,
		"summary":    summary,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errors.NotFound("CV")
	}
	return nil
}

func (r *MongoCVRepository) Deactivate(ctx context.Context, ownerID, id string) error {
	filter, ok := activeRecordFilter(ownerID, id)
	if !ok {
		return errors.NotFound("CV")
	}

	result, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"is_active":  false,
		"updated_at": time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errors.NotFound("CV")
	}
	return nil
}

func (r *MongoCVRepository) Purge(ctx context.Context, ownerID string, ids []string) error {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil || len(ids) == 0 {
		return nil
	}
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}

	_, err = r.coll.DeleteMany(ctx, bson.M{"owner_id": owner, "_id": bson.M{"$in": oids}})
	return err
}

func (r *MongoCVRepository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.CVRecord, error) {
	owner, err := primitive.ObjectIDFromHex(filter.OwnerID)
	if err != nil {
		return []*domain.CVRecord{}, nil
	}

	query := bson.M{"owner_id": owner, "is_active": true}
	if p := strings.TrimSpace(filter.Position); p != "" {
		query["position"] = primitive.Regex{Pattern: regexp.QuoteMeta(p), Options: "i"}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []*domain.CVRecord{}
	for cursor.Next(ctx) {
		var doc cvDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, doc.toDomain())
	}
	return records, cursor.Err()
}

func (r *MongoCVRepository) DistinctPositions(ctx context.Context, ownerID string) ([]string, error) {
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return []string{}, nil
	}

	values, err := r.coll.Distinct(ctx, "position", bson.M{
		"owner_id":  owner,
		"is_active": true,
		"position":  bson.M{"$nin": bson.A{"", domain.NotSpecified, domain.Placeholder}},
	})
	if err != nil {
		return nil, err
	}

	positions := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			positions = append(positions, s)
		}
	}
	return positions, nil
}

func activeRecordFilter(ownerID, id string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	owner, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "owner_id": owner, "is_active": true}, true
}
