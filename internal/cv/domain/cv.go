package domain

import (
	"path/filepath"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sentinel field values
const (
	// Placeholder marks position/summary while enrichment is pending.
	Placeholder = "Processing…"
	// NotSpecified is the fallback position when none could be inferred.
	NotSpecified = "Not Specified"
	// InsufficientTextSummary is written when the document yields too little text.
	InsufficientTextSummary = "Unable to extract sufficient text from the CV. The file may be image-based, scanned, or empty."
)

// Supported document media types
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeDOC  = "application/msword"
)

var extensionMediaTypes = map[string]string{
	".pdf":  MediaTypePDF,
	".docx": MediaTypeDOCX,
	".doc":  MediaTypeDOC,
}

// CVRecord is an uploaded CV and the enrichment derived from it.
type CVRecord struct {
	ID            string    `db:"id" json:"id"`
	OwnerID       string    `db:"owner_id" json:"owner_id"`
	StoragePath   string    `db:"storage_path" json:"-"`
	OriginalName  string    `db:"original_name" json:"original_name"`
	MimeType      string    `db:"mime_type" json:"mime_type"`
	FileSizeBytes int64     `db:"file_size_bytes" json:"file_size_bytes"`
	Position      string    `db:"position" json:"position"`
	Summary       string    `db:"summary" json:"summary"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// IsPending reports whether enrichment has not written the record yet.
func (r *CVRecord) IsPending() bool {
	return r.Position == Placeholder && r.Summary == Placeholder
}

// NewCVRecord fields supplied at upload time
type NewCVRecord struct {
	OwnerID       string
	StoragePath   string
	OriginalName  string
	MimeType      string
	FileSizeBytes int64
}

// ListFilter narrows record listings. OwnerID is mandatory.
type ListFilter struct {
	OwnerID string
	// Position is a case-insensitive substring match; empty matches everything.
	Position string
}

// EnrichmentJob is one pending record handed to the scheduler.
type EnrichmentJob struct {
	CVID         string `json:"cv_id"`
	OwnerID      string `json:"owner_id"`
	StoragePath  string `json:"storage_path"`
	MimeType     string `json:"mime_type"`
	OriginalName string `json:"original_name"`
}

// NewID returns a fresh 24 hex character identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidID reports whether id is a well-formed 24 hex character identifier.
func IsValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// IsSupportedMediaType reports whether the extractor can read mediaType.
func IsSupportedMediaType(mediaType string) bool {
	switch mediaType {
	case MediaTypePDF, MediaTypeDOCX, MediaTypeDOC:
		return true
	}
	return false
}

// ResolveMediaType returns the declared media type when it is supported, and
// otherwise falls back to the file extension. Browsers commonly send
// application/octet-stream for .doc files.
func ResolveMediaType(filename, declared string) string {
	declared = strings.ToLower(strings.TrimSpace(strings.Split(declared, ";")[0]))
	if IsSupportedMediaType(declared) {
		return declared
	}
	if mt, ok := extensionMediaTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return declared
}

// IsDefaultPosition reports whether position carries no real job title.
func IsDefaultPosition(position string) bool {
	switch strings.TrimSpace(position) {
	case "", NotSpecified, Placeholder:
		return true
	}
	return false
}
