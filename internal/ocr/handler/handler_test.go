package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/recognizer"
	"github.com/venedoc/ocr-backend/internal/ocr/service"
	"github.com/venedoc/ocr-backend/pkg/config"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

type stubEngine struct {
	fragments []domain.Fragment
	err       error
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(context.Context, []byte) ([]domain.Fragment, error) {
	return s.fragments, s.err
}

func newTestRouter(engine recognizer.Engine) *chi.Mux {
	cfg := &config.Config{
		Imaging: config.ImagingConfig{
			Pipeline:          "exif_fix,grayscale",
			MaxImageSizeMB:    10,
			MaxDimension:      4096,
			OptimalWidth:      1500,
			CLAHEClipLimit:    2.0,
			CLAHETileGridSize: 8,
			AdaptiveBlockSize: 11,
			AdaptiveC:         2,
		},
		Extraction: config.ExtractionConfig{
			MinConfidence:     0.7,
			FallbackPenalty:   0.8,
			ValidatorPenalty:  0.7,
			SameLineTolerance: 0.6,
		},
	}
	log := logger.New("test", "test")
	svc := service.New(cfg, engine, nil, nil, log)

	r := chi.NewRouter()
	New(svc, log).Routes(r)
	return r
}

func imageBase64(t *testing.T) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 256)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func post(t *testing.T, r http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestProcessCedulaEndpoint(t *testing.T) {
	engine := &stubEngine{fragments: []domain.Fragment{
		{Text: "CEDULA DE IDENTIDAD", Confidence: 0.97, Index: 0},
		{Text: "V-12.345.678", Confidence: 0.95, Index: 1},
		{Text: "NOMBRES", Confidence: 0.96, Index: 2},
		{Text: "ANA LUISA", Confidence: 0.94, Index: 3},
	}}
	router := newTestRouter(engine)

	rec := post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image": imageBase64(t),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Document struct {
				Fields map[string]struct {
					Value      *string `json:"value"`
					Confidence float64 `json:"confidence"`
				} `json:"fields"`
				OverallConfidence float64 `json:"overall_confidence"`
			} `json:"data"`
			Engine             string   `json:"engine"`
			PreprocessingSteps []string `json:"preprocessing_applied"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "stub", resp.Data.Engine)
	assert.Equal(t, []string{"exif_fix", "grayscale"}, resp.Data.PreprocessingSteps)

	numero := resp.Data.Document.Fields["numero_cedula"]
	require.NotNil(t, numero.Value)
	assert.Equal(t, "12345678", *numero.Value)

	nombres := resp.Data.Document.Fields["nombres"]
	require.NotNil(t, nombres.Value)
	assert.Equal(t, "ANA LUISA", *nombres.Value)

	// unmatched fields serialize with a null value
	fecha := resp.Data.Document.Fields["fecha_nacimiento"]
	assert.Nil(t, fecha.Value)
	assert.Equal(t, 0.0, fecha.Confidence)
}

func TestProcessDataURIPayload(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	rec := post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image": "data:image/png;base64," + imageBase64(t),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessCustomPreprocessing(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	rec := post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image":         imageBase64(t),
		"preprocessing": "grayscale, sharpen",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"preprocessing_applied":["grayscale","sharpen"]`)
}

func TestProcessUnknownPreprocessingStep(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	rec := post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image":         imageBase64(t),
		"preprocessing": "grayscale,deblur",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFIGURATION_ERROR")
}

func TestProcessValidation(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	// missing image
	rec := post(t, router, "/api/v1/ocr/cedula", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")

	// min_confidence out of range
	rec = post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image":          imageBase64(t),
		"min_confidence": 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// broken base64
	rec = post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image": "!!not-base64!!",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// malformed JSON body
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ocr/cedula", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessNonImagePayload(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	rec := post(t, router, "/api/v1/ocr/cedula", map[string]any{
		"image": base64.StdEncoding.EncodeToString([]byte("plain text file")),
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "IMAGE_PROCESSING_ERROR")
}

func TestProcessEngineUnavailable(t *testing.T) {
	router := newTestRouter(&stubEngine{err: recognizer.ErrUnavailable})

	rec := post(t, router, "/api/v1/ocr/vehicle", map[string]any{
		"image": imageBase64(t),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "RECOGNITION_UNAVAILABLE")
}

func TestGenericEndpoint(t *testing.T) {
	router := newTestRouter(&stubEngine{fragments: []domain.Fragment{
		{Text: "HELLO", Confidence: 0.9, Index: 0},
	}})

	rec := post(t, router, "/api/v1/ocr/generic", map[string]any{
		"image": imageBase64(t),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"raw_text":["HELLO"]`)
}

func TestVisionEndpointUnconfigured(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	rec := post(t, router, "/api/v1/ocr/cedula-vision", map[string]any{
		"image": imageBase64(t),
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDocumentTypesEndpoint(t *testing.T) {
	router := newTestRouter(&stubEngine{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ocr/document-types", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cedula")
	assert.Contains(t, rec.Body.String(), "vehicle")
}
