package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventUserRegistered = "user.registered"

	EventCVUploaded            = "cv.uploaded"
	EventCVEnriched            = "cv.enriched"
	EventCVDeleted             = "cv.deleted"
	EventCVEnrichmentRequested = "cv.enrichment.requested"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// UserRegisteredEvent is published after a successful signup
type UserRegisteredEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// CVUploadedEvent is published once per accepted upload request
type CVUploadedEvent struct {
	OwnerID       string   `json:"owner_id"`
	CVIDs         []string `json:"cv_ids"`
	TotalReceived int      `json:"total_received"`
	Duplicates    int      `json:"duplicates"`
}

// CVEnrichedEvent is published when a record leaves the placeholder state
type CVEnrichedEvent struct {
	CVID      string `json:"cv_id"`
	OwnerID   string `json:"owner_id"`
	Position  string `json:"position"`
	Outcome   string `json:"outcome"`
	PageCount int    `json:"page_count,omitempty"`
}

// CVDeletedEvent is published when a record is retired
type CVDeletedEvent struct {
	CVID    string `json:"cv_id"`
	OwnerID string `json:"owner_id"`
}
