package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/pkg/config"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New("test", "test")
}

func TestParseVerdict(t *testing.T) {
	accepted := []string{
		"SI",
		"si",
		"Sí",
		"SI, es una cédula venezolana",
		"Sí. El documento es válido.",
		"  SI  ",
		"\"SI\"",
	}
	for _, a := range accepted {
		assert.True(t, ParseVerdict(a), "should accept %q", a)
	}

	rejected := []string{
		"NO",
		"No, es un pasaporte",
		"SIN DUDA parece falso",
		"Parece que sí",
		"El documento es una cédula", // does not lead with the verdict
		"",
	}
	for _, r := range rejected {
		assert.False(t, ParseVerdict(r), "should reject %q", r)
	}
}

func TestPaddleClientRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict/ocr_system", r.URL.Path)

		var req paddleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Images, 1)

		json.NewEncoder(w).Encode(paddleResponse{
			Results: [][]paddleLine{{
				{Text: "CEDULA DE IDENTIDAD", Confidence: 0.97,
					TextRegion: [][2]float64{{10, 10}, {300, 10}, {300, 40}, {10, 40}}},
				{Text: "V-12.345.678", Confidence: 0.95},
			}},
		})
	}))
	defer srv.Close()

	c := NewPaddleClient(&config.EngineConfig{URL: srv.URL, Timeout: 5 * time.Second}, testLogger())
	fragments, err := c.Recognize(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	assert.Equal(t, "CEDULA DE IDENTIDAD", fragments[0].Text)
	assert.Equal(t, 0, fragments[0].Index)
	assert.False(t, fragments[0].Quad.IsZero())
	assert.Equal(t, 10.0, fragments[0].Quad.Top())

	// missing text_region maps to the zero quad
	assert.True(t, fragments[1].Quad.IsZero())
	assert.Equal(t, 1, fragments[1].Index)
}

func TestPaddleClientUnavailable(t *testing.T) {
	c := NewPaddleClient(&config.EngineConfig{
		URL: "http://127.0.0.1:1", Timeout: time.Second,
	}, testLogger())

	_, err := c.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestPaddleClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewPaddleClient(&config.EngineConfig{URL: srv.URL, Timeout: time.Second}, testLogger())
	_, err := c.Recognize(context.Background(), []byte("img"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestVisionExtractDocument(t *testing.T) {
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		call++
		if call == 1 {
			json.NewEncoder(w).Encode(visionResponse{Text: "SI, es una cédula venezolana."})
			return
		}
		// extraction answer wrapped in a markdown fence
		json.NewEncoder(w).Encode(visionResponse{Text: "```json\n" +
			`{"tipo_documento": "V", "numero_cedula": "12345678",` +
			`"nombres": "MARIA JOSE", "apellidos": "RODRIGUEZ",` +
			`"nacionalidad": "VENEZOLANA", "fecha_nacimiento": "22/07/1985",` +
			`"fecha_expedicion": "10/01/2020", "fecha_vencimiento": "10/01/2030",` +
			`"estado_civil": null, "director": null}` +
			"\n```"})
	}))
	defer srv.Close()

	c := NewVisionClient(&config.VisionConfig{
		URL: srv.URL, Model: "gemini-2.5-flash", Timeout: 5 * time.Second,
	}, testLogger())

	doc, err := c.ExtractDocument(context.Background(), []byte("img"), domain.DocumentTypeCedula)
	require.NoError(t, err)
	assert.Equal(t, 2, call)

	assert.Equal(t, "MARIA JOSE", doc.Field("nombres").Value)
	assert.Equal(t, "VENEZOLANA", doc.Field("nacionalidad").Value)
	assert.Equal(t, "1985-07-22", doc.Field("fecha_nacimiento").Value)
	assert.Equal(t, "2020-01-10", doc.Field("fecha_expedicion").Value)
	// expiry dates lie in the future and must still normalize
	assert.Equal(t, "2030-01-10", doc.Field("fecha_vencimiento").Value)
	assert.Equal(t, "V-12.345.678", doc.Field("cedula_formateada").Value)
	assert.False(t, doc.Field("estado_civil").Matched)

	// 8 of 10 schema fields filled
	assert.InDelta(t, 8.0/10.0, doc.OverallConfidence, 1e-9)
	assert.Equal(t, []string{"estado_civil", "director"}, doc.LowConfidenceFields)
}

func TestVisionExtractRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(visionResponse{Text: "NO, es un pasaporte."})
	}))
	defer srv.Close()

	c := NewVisionClient(&config.VisionConfig{
		URL: srv.URL, Model: "gemini-2.5-flash", Timeout: 5 * time.Second,
	}, testLogger())

	_, err := c.ExtractDocument(context.Background(), []byte("img"), domain.DocumentTypeCedula)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDocumentRejected))
}

func TestParseJSONAnswer(t *testing.T) {
	// bare object
	v := parseJSONAnswer(`{"placa": "AB123CD", "año": 2018}`)
	assert.Equal(t, "AB123CD", v["placa"])
	assert.Equal(t, "2018", v["año"])

	// fenced, with surrounding prose stripped by the fence match
	v = parseJSONAnswer("Claro, aquí está:\n```json\n{\"marca\": \"TOYOTA\"}\n```")
	assert.Equal(t, "TOYOTA", v["marca"])

	// garbage yields an empty map, never a panic
	assert.Empty(t, parseJSONAnswer("no json here"))
}
