// Package service orchestrates the OCR flow: image normalization, text
// recognition, and schema-driven field extraction.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"sort"
	"time"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/events"
	"github.com/venedoc/ocr-backend/internal/ocr/extract"
	"github.com/venedoc/ocr-backend/internal/ocr/imaging"
	"github.com/venedoc/ocr-backend/internal/ocr/parser"
	"github.com/venedoc/ocr-backend/internal/ocr/recognizer"
	"github.com/venedoc/ocr-backend/pkg/config"
	apperrors "github.com/venedoc/ocr-backend/pkg/errors"
	"github.com/venedoc/ocr-backend/pkg/httputil"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

// ProcessRequest is one document extraction job
type ProcessRequest struct {
	Image        []byte
	DocumentType domain.DocumentType
	// Steps overrides the default normalization pipeline when non-empty
	Steps []string
	// MinConfidence overrides the configured low-confidence floor when set
	MinConfidence *float64
}

// RawResult is the schema-less recognition output
type RawResult struct {
	Fragments            []domain.Fragment  `json:"fragments"`
	RawText              []string           `json:"raw_text"`
	Engine               string             `json:"engine"`
	PreprocessingSteps   []string           `json:"preprocessing_applied"`
	PreprocessingTimings map[string]float64 `json:"preprocessing_timings,omitempty"`
	ProcessingTimeMs     int64              `json:"processing_time_ms"`
}

// Service runs document extraction
type Service struct {
	cfg        *config.Config
	normalizer *imaging.Normalizer
	engine     recognizer.Engine
	vision     *recognizer.VisionClient
	registry   *parser.Registry
	events     *events.Publisher
	log        *logger.Logger
}

// New creates the OCR service. The events publisher may be nil when the
// broker is disabled.
func New(cfg *config.Config, engine recognizer.Engine, vision *recognizer.VisionClient, pub *events.Publisher, log *logger.Logger) *Service {
	return &Service{
		cfg:        cfg,
		normalizer: imaging.NewNormalizer(&cfg.Imaging, log),
		engine:     engine,
		vision:     vision,
		registry:   parser.NewRegistry(),
		events:     pub,
		log:        log.WithComponent("service"),
	}
}

// ProcessDocument runs the classical pipeline: normalize, recognize with the
// OCR engine, extract fields with the document type's schema.
func (s *Service) ProcessDocument(ctx context.Context, req ProcessRequest) (*domain.ExtractionResult, error) {
	p, err := s.registry.Get(req.DocumentType)
	if err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	start := time.Now()
	norm, err := s.normalize(req.Image, req.Steps)
	if err != nil {
		return nil, err
	}

	fragments, err := s.recognize(ctx, norm.encoded)
	if err != nil {
		return nil, err
	}

	opts := s.options(req.MinConfidence)
	doc := parser.Parse(p, fragments, opts)

	elapsed := time.Since(start).Milliseconds()
	result := &domain.ExtractionResult{
		Document:             doc,
		Engine:               s.engine.Name(),
		PreprocessingSteps:   norm.result.AppliedSteps,
		PreprocessingTimings: norm.result.Timings,
		ProcessingTimeMs:     elapsed,
	}

	s.events.DocumentProcessed(ctx, httputil.GetRequestID(ctx), s.engine.Name(), doc, elapsed)
	s.log.Info().
		Str("document_type", string(req.DocumentType)).
		Float64("overall_confidence", doc.OverallConfidence).
		Int("low_confidence_fields", len(doc.LowConfidenceFields)).
		Int64("duration_ms", elapsed).
		Msg("document processed")

	return result, nil
}

// ProcessWithVision validates and extracts the document with the vision
// model. Only geometric normalization runs first; contrast surgery helps the
// classical engine but hurts a vision model that reads the photo as-is.
func (s *Service) ProcessWithVision(ctx context.Context, req ProcessRequest) (*domain.ExtractionResult, error) {
	if s.vision == nil || !s.vision.Enabled() {
		return nil, apperrors.RecognitionUnavailable(fmt.Errorf("vision service not configured"))
	}
	if _, err := s.registry.Get(req.DocumentType); err != nil {
		return nil, apperrors.Configuration(err.Error())
	}

	start := time.Now()
	steps := req.Steps
	if len(steps) == 0 {
		steps = []string{imaging.StepResize, imaging.StepExifFix}
	}
	norm, err := s.normalize(req.Image, steps)
	if err != nil {
		return nil, err
	}

	doc, err := s.vision.ExtractDocument(ctx, norm.encoded, req.DocumentType)
	if err != nil {
		if errors.Is(err, recognizer.ErrDocumentRejected) {
			s.events.DocumentRejected(ctx, httputil.GetRequestID(ctx), s.vision.Name(), req.DocumentType, err.Error())
			return nil, apperrors.Wrap(err, "DOCUMENT_REJECTED",
				fmt.Sprintf("image is not a recognizable %s", req.DocumentType), 422)
		}
		return nil, s.mapEngineError(err)
	}

	if req.MinConfidence != nil {
		refreshLowConfidence(doc, *req.MinConfidence)
	}

	elapsed := time.Since(start).Milliseconds()
	result := &domain.ExtractionResult{
		Document:             doc,
		Engine:               s.vision.Name(),
		PreprocessingSteps:   norm.result.AppliedSteps,
		PreprocessingTimings: norm.result.Timings,
		ProcessingTimeMs:     elapsed,
	}

	s.events.DocumentProcessed(ctx, httputil.GetRequestID(ctx), s.vision.Name(), doc, elapsed)
	return result, nil
}

// ProcessRaw normalizes and recognizes without any document schema
func (s *Service) ProcessRaw(ctx context.Context, req ProcessRequest) (*RawResult, error) {
	start := time.Now()
	norm, err := s.normalize(req.Image, req.Steps)
	if err != nil {
		return nil, err
	}

	fragments, err := s.recognize(ctx, norm.encoded)
	if err != nil {
		return nil, err
	}

	rawText := make([]string, 0, len(fragments))
	for _, f := range fragments {
		rawText = append(rawText, f.Text)
	}

	return &RawResult{
		Fragments:            fragments,
		RawText:              rawText,
		Engine:               s.engine.Name(),
		PreprocessingSteps:   norm.result.AppliedSteps,
		PreprocessingTimings: norm.result.Timings,
		ProcessingTimeMs:     time.Since(start).Milliseconds(),
	}, nil
}

// DocumentTypes lists the registered document schemas
func (s *Service) DocumentTypes() []domain.DocumentType {
	return s.registry.Types()
}

type normalized struct {
	result  *imaging.Result
	encoded []byte
}

// normalize validates and runs the pipeline, then re-encodes the result as
// PNG for the recognition engines.
func (s *Service) normalize(data []byte, steps []string) (*normalized, error) {
	maxBytes := s.cfg.Imaging.MaxImageSizeMB * 1024 * 1024
	if maxBytes > 0 && len(data) > maxBytes {
		return nil, apperrors.BadRequest(
			fmt.Sprintf("image exceeds the %dMB limit", s.cfg.Imaging.MaxImageSizeMB))
	}
	if !imaging.IsImageData(data) {
		return nil, apperrors.ImageProcessing("payload is not a JPEG or PNG image", nil)
	}

	res, err := s.normalizer.Normalize(data, steps)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		return nil, apperrors.ImageProcessing("failed to encode normalized image", err)
	}
	return &normalized{result: res, encoded: buf.Bytes()}, nil
}

func (s *Service) recognize(ctx context.Context, image []byte) ([]domain.Fragment, error) {
	fragments, err := s.engine.Recognize(ctx, image)
	if err != nil {
		return nil, s.mapEngineError(err)
	}
	return fragments, nil
}

func (s *Service) mapEngineError(err error) error {
	switch {
	case errors.Is(err, recognizer.ErrTimeout):
		return apperrors.RecognitionTimeout(err)
	case errors.Is(err, recognizer.ErrUnavailable):
		return apperrors.RecognitionUnavailable(err)
	default:
		return apperrors.Internal(err.Error())
	}
}

func (s *Service) options(minConfidence *float64) extract.Options {
	opts := extract.OptionsFromConfig(&s.cfg.Extraction)
	if minConfidence != nil {
		opts.MinConfidence = *minConfidence
	}
	return opts
}

// refreshLowConfidence recomputes the low-confidence list for a caller
// supplied floor.
func refreshLowConfidence(doc *domain.ParsedDocument, floor float64) {
	doc.LowConfidenceFields = []string{}
	for name, f := range doc.Fields {
		if f.Confidence < floor {
			doc.LowConfidenceFields = append(doc.LowConfidenceFields, name)
		}
	}
	sort.Strings(doc.LowConfidenceFields)
}
