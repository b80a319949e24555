package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventRoundTrip(t *testing.T) {
	in := DocumentProcessedEvent{
		RequestID:         "req-123",
		DocumentType:      "cedula",
		Engine:            "paddleocr",
		OverallConfidence: 0.91,
		ProcessingTimeMs:  120,
	}

	evt, err := NewEvent(EventDocumentProcessed, "ocr-service", "req-123", in)
	require.NoError(t, err)
	assert.NotEmpty(t, evt.ID)
	assert.Equal(t, EventDocumentProcessed, evt.Type)
	assert.Equal(t, "ocr-service", evt.Source)
	assert.Equal(t, "req-123", evt.CorrelationID)
	assert.False(t, evt.Timestamp.IsZero())

	var out DocumentProcessedEvent
	require.NoError(t, evt.UnmarshalData(&out))
	assert.Equal(t, in, out)
}

func TestCorrelationIDContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", getCorrelationID(ctx))

	ctx = WithCorrelationID(ctx, "req-456")
	assert.Equal(t, "req-456", getCorrelationID(ctx))
}
