package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventDocumentProcessed = "document.processed"
	EventDocumentRejected  = "document.rejected"
)

// Exchange names
const (
	ExchangeDocumentEvents = "document.events"
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
		ID:            uuid.New().String(),
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

// DocumentProcessedEvent is published after a document extraction completes.
// It carries processing metadata only, never extracted field values.
type DocumentProcessedEvent struct {
	RequestID         string   `json:"request_id"`
	DocumentType      string   `json:"document_type"`
	Engine            string   `json:"engine"`
	OverallConfidence float64  `json:"overall_confidence"`
	LowConfidence     []string `json:"low_confidence_fields,omitempty"`
	ProcessingTimeMs  int64    `json:"processing_time_ms"`
}

// DocumentRejectedEvent is published when the vision engine refuses an image
// as not being the requested document type.
type DocumentRejectedEvent struct {
	RequestID    string `json:"request_id"`
	DocumentType string `json:"document_type"`
	Engine       string `json:"engine"`
	Reason       string `json:"reason"`
}
