// Package recognizer holds the text recognition engine clients. The service
// layer depends only on the Engine interface; concrete clients talk to the
// PaddleOCR sidecar and the vision-model service over HTTP.
package recognizer

import (
	"context"
	"errors"

	"github.com/venedoc/ocr-backend/internal/ocr/domain"
)

// Engine errors, wrapped by clients so the service layer can map them to
// transport-level responses without knowing which engine failed.
var (
	ErrUnavailable = errors.New("recognition engine unavailable")
	ErrTimeout     = errors.New("recognition engine timed out")
)

// Engine recognizes text fragments in an image
type Engine interface {
	// Name identifies the engine in responses and logs
	Name() string
	// Recognize returns the text fragments found in the encoded image, in
	// engine order. An empty slice is a valid result for a blank image.
	Recognize(ctx context.Context, image []byte) ([]domain.Fragment, error)
}
