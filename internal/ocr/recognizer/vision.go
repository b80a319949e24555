package recognizer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/internal/ocr/validators"
	"github.com/venedoc/ocr-backend/pkg/config"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

// ErrDocumentRejected means the vision model judged the image not to be the
// requested document type.
var ErrDocumentRejected = errors.New("document rejected by vision validation")

// visionFieldConfidence is assigned to each field the vision model filled in;
// vision responses carry no per-field scores, so the document's overall
// confidence comes from field coverage instead.
const visionFieldConfidence = 0.9

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// visionFields lists the JSON keys the extraction prompt asks for, per
// document type. Order is the output order.
var visionFields = map[domain.DocumentType][]string{
	domain.DocumentTypeCedula: {
		"tipo_documento", "numero_cedula", "nombres", "apellidos",
		"nacionalidad", "fecha_nacimiento", "fecha_expedicion",
		"fecha_vencimiento", "estado_civil", "director",
	},
	domain.DocumentTypeVehicle: {
		"placa", "marca", "modelo", "año", "serial_carroceria",
		"serial_motor", "color", "clase", "tipo", "uso",
		"propietario", "cedula_propietario", "peso", "numero_ejes",
		"cantidad_puestos",
	},
}

var validationPrompts = map[domain.DocumentType]string{
	domain.DocumentTypeCedula: "¿Es esta imagen una cédula de identidad venezolana? " +
		"Responde únicamente SI o NO.",
	domain.DocumentTypeVehicle: "¿Es esta imagen un certificado de registro de vehículo " +
		"o carnet de circulación venezolano? Responde únicamente SI o NO.",
}

// VisionClient talks to the vision-model service, which proxies a multimodal
// LLM for document validation and extraction.
type VisionClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewVisionClient builds a client from vision configuration
func NewVisionClient(cfg *config.VisionConfig, log *logger.Logger) *VisionClient {
	return &VisionClient{
		baseURL: cfg.URL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.WithComponent("vision"),
	}
}

// Name identifies the engine in responses
func (c *VisionClient) Name() string {
	return "vision"
}

// Enabled reports whether a vision service URL is configured
func (c *VisionClient) Enabled() bool {
	return c.baseURL != ""
}

type visionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image"`
}

type visionResponse struct {
	Text string `json:"text"`
}

// ExtractDocument validates the image against the document type and, on a SI
// verdict, asks the model for the fields as JSON. Field confidence is fixed;
// the document's overall confidence is the fraction of schema fields the
// model managed to fill.
func (c *VisionClient) ExtractDocument(ctx context.Context, image []byte, docType domain.DocumentType) (*domain.ParsedDocument, error) {
	fields, ok := visionFields[docType]
	if !ok {
		return nil, fmt.Errorf("no vision schema for document type %q", docType)
	}

	answer, err := c.generate(ctx, image, validationPrompts[docType])
	if err != nil {
		return nil, err
	}
	if !ParseVerdict(answer) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentRejected, strings.TrimSpace(answer))
	}

	raw, err := c.generate(ctx, image, extractionPrompt(fields))
	if err != nil {
		return nil, err
	}

	values := parseJSONAnswer(raw)
	return buildVisionDocument(docType, fields, values, raw), nil
}

// generate performs one prompt round-trip
func (c *VisionClient) generate(ctx context.Context, image []byte, prompt string) (string, error) {
	body, err := json.Marshal(visionRequest{
		Model:  c.model,
		Prompt: prompt,
		Image:  base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := c.baseURL + "/v1/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", errors.Join(ErrTimeout, err)
		}
		return "", errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", errors.Join(ErrUnavailable,
			fmt.Errorf("vision service returned %d: %s", resp.StatusCode, string(b)))
	}

	var parsed visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errors.Join(ErrUnavailable, fmt.Errorf("decoding response: %w", err))
	}
	return parsed.Text, nil
}

func extractionPrompt(fields []string) string {
	return fmt.Sprintf(
		"Extrae los siguientes campos del documento y responde solo con un "+
			"objeto JSON con estas claves: %s. Usa null para los campos que no "+
			"puedas leer.", strings.Join(fields, ", "))
}

// parseJSONAnswer pulls the JSON object out of the model's answer, tolerating
// markdown code fences around it. Unparseable answers yield an empty map.
func parseJSONAnswer(raw string) map[string]string {
	payload := strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(payload); m != nil {
		payload = strings.TrimSpace(m[1])
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return map[string]string{}
	}

	values := make(map[string]string, len(generic))
	for k, v := range generic {
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" && !strings.EqualFold(s, "null") {
				values[k] = s
			}
		case float64:
			values[k] = strings.TrimSuffix(fmt.Sprintf("%v", t), ".0")
		}
	}
	return values
}

// buildVisionDocument shapes the model's answers into a parsed document,
// normalizing dates and plates the same way the classical path does.
func buildVisionDocument(docType domain.DocumentType, fields []string, values map[string]string, raw string) *domain.ParsedDocument {
	doc := &domain.ParsedDocument{
		DocumentType:        docType,
		Fields:              make(map[string]domain.ParsedField, len(fields)),
		LowConfidenceFields: []string{},
		RawText:             []string{strings.TrimSpace(raw)},
	}

	filled := 0
	for _, name := range fields {
		v, ok := values[name]
		if !ok {
			doc.Fields[name] = domain.ParsedField{}
			continue
		}

		switch name {
		case "fecha_nacimiento":
			if iso, err := validators.ValidateFecha(v); err == nil {
				v = iso
			}
		case "fecha_expedicion", "fecha_vencimiento":
			// expiry dates are legitimately in the future, so only the
			// calendar normalization applies
			if iso, err := validators.NormalizeFecha(v); err == nil {
				v = iso
			}
		case "placa":
			if m, matched := validators.ExtractPlaca(v); matched {
				v = m
			}
		}

		doc.Fields[name] = domain.ParsedField{
			Value:      v,
			Matched:    true,
			Confidence: visionFieldConfidence,
		}
		filled++
	}

	// keep the derived cedula field consistent with the classical path
	if docType == domain.DocumentTypeCedula {
		derived := domain.ParsedField{}
		tipo := doc.Fields["tipo_documento"]
		numero := doc.Fields["numero_cedula"]
		if tipo.Matched && numero.Matched && validators.ValidateCedula(tipo.Value, numero.Value) == nil {
			derived = domain.ParsedField{
				Value:      validators.FormatCedula(tipo.Value, numero.Value),
				Matched:    true,
				Confidence: visionFieldConfidence,
			}
		}
		doc.Fields["cedula_formateada"] = derived
	}

	doc.OverallConfidence = float64(filled) / float64(len(fields))
	for _, name := range fields {
		if doc.Fields[name].Confidence < visionFieldConfidence {
			doc.LowConfidenceFields = append(doc.LowConfidenceFields, name)
		}
	}
	return doc
}
