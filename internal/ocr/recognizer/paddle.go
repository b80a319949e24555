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
	"time"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
	"github.com/venedoc/ocr-backend/pkg/config"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

// PaddleClient talks to the PaddleOCR serving sidecar
type PaddleClient struct {
	baseURL    string
	language   string
	httpClient *http.Client
	log        *logger.Logger
}

// NewPaddleClient builds a client from engine configuration
func NewPaddleClient(cfg *config.EngineConfig, log *logger.Logger) *PaddleClient {
	return &PaddleClient{
		baseURL:  cfg.URL,
		language: cfg.Language,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log.WithComponent("paddle"),
	}
}

// Name identifies the engine in responses
func (c *PaddleClient) Name() string {
	return "paddleocr"
}

type paddleRequest struct {
	Images []string `json:"images"`
}

type paddleLine struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	TextRegion [][2]float64 `json:"text_region"`
}

type paddleResponse struct {
	Results [][]paddleLine `json:"results"`
	Msg     string         `json:"msg"`
	Status  string         `json:"status"`
}

// Recognize sends the encoded image to the sidecar and maps the detected
// lines to fragments, keeping the engine's ordering.
func (c *PaddleClient) Recognize(ctx context.Context, image []byte) ([]domain.Fragment, error) {
	body, err := json.Marshal(paddleRequest{
		Images: []string{base64.StdEncoding.EncodeToString(image)},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	url := c.baseURL + "/predict/ocr_system"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Join(ErrTimeout, err)
		}
		return nil, errors.Join(ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Join(ErrUnavailable,
			fmt.Errorf("engine returned %d: %s", resp.StatusCode, string(b)))
	}

	var parsed paddleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Join(ErrUnavailable, fmt.Errorf("decoding response: %w", err))
	}

	var fragments []domain.Fragment
	if len(parsed.Results) > 0 {
		fragments = make([]domain.Fragment, 0, len(parsed.Results[0]))
		for i, line := range parsed.Results[0] {
			fragments = append(fragments, domain.Fragment{
				Text:       line.Text,
				Confidence: line.Confidence,
				Quad:       quadFromRegion(line.TextRegion),
				Index:      i,
			})
		}
	}

	c.log.Debug().
		Int("fragments", len(fragments)).
		Dur("duration", time.Since(start)).
		Msg("recognition complete")

	return fragments, nil
}

// Ping checks whether the sidecar answers at all; used by the health endpoint
func (c *PaddleClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Join(ErrUnavailable, err)
	}
	resp.Body.Close()
	return nil
}

// quadFromRegion maps the engine's four-point text region to a quad. Short or
// missing regions yield the zero quad, which downstream heuristics treat as
// "no geometry".
func quadFromRegion(region [][2]float64) domain.Quad {
	var q domain.Quad
	if len(region) < 4 {
		return q
	}
	for i := 0; i < 4; i++ {
		q[i] = domain.Point{X: region[i][0], Y: region[i][1]}
	}
	return q
}
