// Package events publishes document processing lifecycle events. Publishing
// is strictly best-effort: a broken broker never fails a request.
package events

import (
	"context"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/pkg/logger"
	"github.com/venedoc/ocr-backend/pkg/messaging"
)

// Publisher emits document events. A nil Publisher is valid and publishes
// nothing, so callers need no broker-enabled branch.
type Publisher struct {
	pub *messaging.Publisher
	log *logger.Logger
}

// NewPublisher creates an event publisher on the document events exchange
func NewPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*Publisher, error) {
	pub, err := messaging.NewPublisher(rmq, messaging.ExchangeDocumentEvents, "ocr-service", log)
	if err != nil {
		return nil, err
	}
	return &Publisher{pub: pub, log: log.WithComponent("events")}, nil
}

// DocumentProcessed reports a completed extraction. Only processing metadata
// leaves the service; extracted values never do.
func (p *Publisher) DocumentProcessed(ctx context.Context, requestID, engine string, doc *domain.ParsedDocument, elapsedMs int64) {
	if p == nil {
		return
	}
	// the request ID doubles as the AMQP correlation ID so consumers can
	// join events back to HTTP access logs
	ctx = messaging.WithCorrelationID(ctx, requestID)
	evt := messaging.DocumentProcessedEvent{
		RequestID:         requestID,
		DocumentType:      string(doc.DocumentType),
		Engine:            engine,
		OverallConfidence: doc.OverallConfidence,
		LowConfidence:     doc.LowConfidenceFields,
		ProcessingTimeMs:  elapsedMs,
	}
	if err := p.pub.Publish(ctx, messaging.EventDocumentProcessed, evt); err != nil {
		p.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to publish processed event")
	}
}

// DocumentRejected reports a vision validation refusal
func (p *Publisher) DocumentRejected(ctx context.Context, requestID, engine string, docType domain.DocumentType, reason string) {
	if p == nil {
		return
	}
	ctx = messaging.WithCorrelationID(ctx, requestID)
	evt := messaging.DocumentRejectedEvent{
		RequestID:    requestID,
		DocumentType: string(docType),
		Engine:       engine,
		Reason:       reason,
	}
	if err := p.pub.Publish(ctx, messaging.EventDocumentRejected, evt); err != nil {
		p.log.Warn().Err(err).Str("request_id", requestID).Msg("failed to publish rejected event")
	}
}
