// Package handler exposes the OCR service over HTTP
package handler

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/service"
	apperrors "github.com/venedoc/ocr-backend/pkg/errors"
	"github.com/venedoc/ocr-backend/pkg/httputil"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

// processImageRequest is the shared request body for all extraction endpoints
type processImageRequest struct {
	// Image is the base64-encoded JPEG or PNG, with or without a data URI
	// prefix.
	Image string `json:"image" validate:"required"`
	// Preprocessing is a comma-separated step list overriding the default
	// pipeline.
	Preprocessing string `json:"preprocessing,omitempty"`
	// MinConfidence overrides the low-confidence floor for this request
	MinConfidence *float64 `json:"min_confidence,omitempty" validate:"omitempty,min=0,max=1"`
}

// Handler serves the OCR endpoints
type Handler struct {
	svc *service.Service
	log *logger.Logger
}

// New creates an OCR handler
func New(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{svc: svc, log: log.WithComponent("handler")}
}

// Routes mounts the OCR API
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/ocr", func(r chi.Router) {
		r.Post("/cedula", h.processDocument(domain.DocumentTypeCedula))
		r.Post("/vehicle", h.processDocument(domain.DocumentTypeVehicle))
		r.Post("/cedula-vision", h.processVision(domain.DocumentTypeCedula))
		r.Post("/carnet-vision", h.processVision(domain.DocumentTypeVehicle))
		r.Post("/generic", h.processGeneric)
		r.Get("/document-types", h.documentTypes)
	})
}

// processDocument handles classical extraction for one document type
func (h *Handler) processDocument(docType domain.DocumentType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeRequest(r)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		req.DocumentType = docType

		result, err := h.svc.ProcessDocument(r.Context(), *req)
		if err != nil {
			h.logError(r, err)
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, result)
	}
}

// processVision handles vision-model extraction for one document type
func (h *Handler) processVision(docType domain.DocumentType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := h.decodeRequest(r)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		req.DocumentType = docType

		result, err := h.svc.ProcessWithVision(r.Context(), *req)
		if err != nil {
			h.logError(r, err)
			httputil.Error(w, err)
			return
		}
		httputil.JSON(w, http.StatusOK, result)
	}
}

// processGeneric handles schema-less recognition
func (h *Handler) processGeneric(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.svc.ProcessRaw(r.Context(), *req)
	if err != nil {
		h.logError(r, err)
		httputil.Error(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, result)
}

// documentTypes lists the supported document schemas
func (h *Handler) documentTypes(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]any{
		"document_types": h.svc.DocumentTypes(),
	})
}

// decodeRequest parses and validates the shared request body and decodes the
// image payload.
func (h *Handler) decodeRequest(r *http.Request) (*service.ProcessRequest, error) {
	var body processImageRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		return nil, err
	}
	if err := httputil.Validate(body); err != nil {
		return nil, err
	}

	image, err := decodeImagePayload(body.Image)
	if err != nil {
		return nil, err
	}

	req := &service.ProcessRequest{
		Image:         image,
		MinConfidence: body.MinConfidence,
	}
	if body.Preprocessing != "" {
		for _, s := range strings.Split(body.Preprocessing, ",") {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				req.Steps = append(req.Steps, trimmed)
			}
		}
	}
	return req, nil
}

// decodeImagePayload decodes base64 image data, tolerating a data URI prefix
// (data:image/jpeg;base64,...) as browsers produce.
func decodeImagePayload(payload string) ([]byte, error) {
	if i := strings.Index(payload, ";base64,"); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+len(";base64,"):]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, apperrors.BadRequest("image is not valid base64 data")
	}
	if len(data) == 0 {
		return nil, apperrors.BadRequest("image payload is empty")
	}
	return data, nil
}

func (h *Handler) logError(r *http.Request, err error) {
	h.log.Warn().
		Err(err).
		Str("request_id", httputil.GetRequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
}
