// Package imaging implements the image normalization pipeline that conditions
// noisy mobile-camera photos for OCR. Steps are named, individually
// toggleable, and run strictly in the order the caller requests.
package imaging

import (
	"fmt"
	"image"
	"time"

	"github.com/venedoc/ocr-backend/pkg/config"
	apperrors "github.com/venedoc/ocr-backend/pkg/errors"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

// Canonical step names
const (
	StepResize                = "resize"
	StepExifFix               = "exif_fix"
	StepGrayscale             = "grayscale"
	StepDenoise               = "denoise"
	StepPerspectiveCorrection = "perspective_correction"
	StepCLAHE                 = "clahe"
	StepAdaptiveThreshold     = "adaptive_threshold"
	StepSharpen               = "sharpen"
	StepMorphology            = "morphology"
)

// Result carries the normalized image plus the observability data the
// pipeline contract promises: the steps actually applied, in order, and
// per-step wall-clock durations in milliseconds.
type Result struct {
	Image        image.Image
	AppliedSteps []string
	Timings      map[string]float64
}

// state is the mutable carrier threaded through pipeline steps. The EXIF
// orientation is recorded at decode and consumed (then cleared) by exif_fix.
type state struct {
	img         image.Image
	orientation int
	cfg         *config.ImagingConfig
}

// stepFunc runs one transform. applied=false means the step decided it had
// nothing to do (e.g. resize with an already-small image).
type stepFunc func(s *state) (applied bool, err error)

// Normalizer runs the configurable normalization pipeline
type Normalizer struct {
	cfg   *config.ImagingConfig
	log   *logger.Logger
	steps map[string]stepFunc
}

// NewNormalizer creates a normalizer with the canonical step set
func NewNormalizer(cfg *config.ImagingConfig, log *logger.Logger) *Normalizer {
	n := &Normalizer{
		cfg: cfg,
		log: log.WithComponent("normalizer"),
	}
	n.steps = map[string]stepFunc{
		StepResize:                stepResize,
		StepExifFix:               stepExifFix,
		StepGrayscale:             stepGrayscale,
		StepDenoise:               stepDenoise,
		StepPerspectiveCorrection: stepPerspective,
		StepCLAHE:                 stepCLAHE,
		StepAdaptiveThreshold:     stepAdaptiveThreshold,
		StepSharpen:               stepSharpen,
		StepMorphology:            stepMorphology,
	}
	return n
}

// DefaultSteps returns the configured default pipeline
func (n *Normalizer) DefaultSteps() []string {
	return n.cfg.PipelineSteps()
}

// Normalize decodes the image and runs the requested steps in the given
// order. Unknown step names fail before any step runs: the pipeline is never
// partially applied against a bad configuration. A nil/empty step list uses
// the configured default pipeline.
func (n *Normalizer) Normalize(data []byte, stepNames []string) (*Result, error) {
	if len(stepNames) == 0 {
		stepNames = n.cfg.PipelineSteps()
	}

	for _, name := range stepNames {
		if _, ok := n.steps[name]; !ok {
			return nil, apperrors.Configuration(fmt.Sprintf("unknown preprocessing step: %q", name))
		}
	}

	img, orientation, err := Decode(data)
	if err != nil {
		return nil, err
	}

	s := &state{img: img, orientation: orientation, cfg: n.cfg}
	result := &Result{
		Timings: make(map[string]float64, len(stepNames)),
	}

	total := time.Now()
	for _, name := range stepNames {
		start := time.Now()

		applied, err := n.steps[name](s)
		if err != nil {
			return nil, apperrors.ImageProcessing(fmt.Sprintf("preprocessing step %q failed", name), err)
		}

		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		result.Timings[name] = elapsed

		if applied {
			result.AppliedSteps = append(result.AppliedSteps, name)
		}

		n.log.Debug().
			Str("step", name).
			Bool("applied", applied).
			Float64("duration_ms", elapsed).
			Msg("pipeline step")
	}
	result.Timings["total"] = float64(time.Since(total).Microseconds()) / 1000.0
	result.Image = s.img

	return result, nil
}
