package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venedoc/ocr-backend/pkg/config"
	apperrors "github.com/venedoc/ocr-backend/pkg/errors"
	"github.com/venedoc/ocr-backend/pkg/logger"
)

func testConfig() *config.ImagingConfig {
	return &config.ImagingConfig{
		Pipeline:            "resize,exif_fix,grayscale",
		MaxImageSizeMB:      10,
		MaxDimension:        4096,
		OptimalWidth:        1500,
		CLAHEClipLimit:      2.0,
		CLAHETileGridSize:   4,
		DenoiseStrength:     10,
		DenoiseTemplateSize: 3,
		DenoiseSearchSize:   7,
		AdaptiveBlockSize:   11,
		AdaptiveC:           2,
		PerspectiveMinArea:  0.2,
		PerspectiveMaxAngle: 40,
	}
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return NewNormalizer(testConfig(), logger.New("test", "test"))
}

// gradientPNG builds a small synthetic capture with enough tonal variation
// for the contrast and threshold steps to chew on.
func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*255/w + y*255/h) / 2)
			img.Set(x, y, color.NRGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// flatPNG builds a featureless frame with no edges at all
func flatPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func grayJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestNormalizeUnknownStep(t *testing.T) {
	n := newTestNormalizer(t)

	_, err := n.Normalize(gradientPNG(t, 64, 64), []string{"resize", "deblur", "grayscale"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "deblur")
}

func TestNormalizeUndecodableInput(t *testing.T) {
	n := newTestNormalizer(t)

	_, err := n.Normalize([]byte("definitely not an image"), []string{"grayscale"})
	require.Error(t, err)
	assert.True(t, apperrors.IsImageProcessing(err))

	// valid magic bytes but truncated body
	_, err = n.Normalize([]byte{0xFF, 0xD8, 0xFF, 0x00, 0x01}, []string{"grayscale"})
	require.Error(t, err)
	assert.True(t, apperrors.IsImageProcessing(err))
}

func TestNormalizeUnknownStepFailsBeforeDecode(t *testing.T) {
	n := newTestNormalizer(t)

	// step validation must win over the undecodable payload
	_, err := n.Normalize([]byte("garbage"), []string{"nope"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestNormalizeDefaultPipeline(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(gradientPNG(t, 64, 64), nil)
	require.NoError(t, err)
	// 64px wide is already below the optimal width, so resize is skipped
	assert.Equal(t, []string{"exif_fix", "grayscale"}, res.AppliedSteps)
}

func TestNormalizeRecordsTimings(t *testing.T) {
	n := newTestNormalizer(t)

	steps := []string{"grayscale", "sharpen"}
	res, err := n.Normalize(gradientPNG(t, 32, 32), steps)
	require.NoError(t, err)

	for _, s := range steps {
		v, ok := res.Timings[s]
		assert.True(t, ok, "missing timing for %s", s)
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.Contains(t, res.Timings, "total")
}

func TestGrayscaleIdempotent(t *testing.T) {
	n := newTestNormalizer(t)

	res1, err := n.Normalize(gradientPNG(t, 48, 48), []string{"grayscale"})
	require.NoError(t, err)
	g1, ok := res1.Image.(*image.Gray)
	require.True(t, ok)

	res2, err := n.Normalize(gradientPNG(t, 48, 48), []string{"grayscale", "grayscale"})
	require.NoError(t, err)
	g2, ok := res2.Image.(*image.Gray)
	require.True(t, ok)

	assert.Equal(t, g1.Pix, g2.Pix)
}

func TestStepOrderMatters(t *testing.T) {
	n := newTestNormalizer(t)
	data := gradientPNG(t, 2000, 1000)

	resizeFirst, err := n.Normalize(data, []string{"resize", "grayscale"})
	require.NoError(t, err)
	grayFirst, err := n.Normalize(data, []string{"grayscale", "resize"})
	require.NoError(t, err)

	assert.Equal(t, []string{"resize", "grayscale"}, resizeFirst.AppliedSteps)
	assert.Equal(t, []string{"grayscale", "resize"}, grayFirst.AppliedSteps)

	// both orders must land on the optimal width
	assert.Equal(t, 1500, resizeFirst.Image.Bounds().Dx())
	assert.Equal(t, 1500, grayFirst.Image.Bounds().Dx())
}

func TestResizeSkipsSmallImages(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(gradientPNG(t, 640, 480), []string{"resize"})
	require.NoError(t, err)
	assert.Empty(t, res.AppliedSteps)
	assert.Equal(t, 640, res.Image.Bounds().Dx())
	assert.Equal(t, 480, res.Image.Bounds().Dy())
}

func TestResizePreservesAspectRatio(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(gradientPNG(t, 3000, 1500), []string{"resize"})
	require.NoError(t, err)
	assert.Equal(t, []string{"resize"}, res.AppliedSteps)
	assert.Equal(t, 1500, res.Image.Bounds().Dx())
	assert.Equal(t, 750, res.Image.Bounds().Dy())
}

func TestPerspectiveNoDetectionStillListed(t *testing.T) {
	n := newTestNormalizer(t)

	// a featureless frame has no card outline to find; the step must still
	// be reported so callers see their requested pipeline reflected back
	res, err := n.Normalize(flatPNG(t, 64, 64), []string{"perspective_correction"})
	require.NoError(t, err)
	assert.Equal(t, []string{"perspective_correction"}, res.AppliedSteps)
	assert.Equal(t, 64, res.Image.Bounds().Dx())
}

func TestAdaptiveThresholdBinarizes(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(grayJPEG(t, 64, 64), []string{"adaptive_threshold"})
	require.NoError(t, err)
	g, ok := res.Image.(*image.Gray)
	require.True(t, ok)

	for _, v := range g.Pix {
		assert.True(t, v == 0 || v == 255, "non-binary pixel value %d", v)
	}
}

func TestCLAHEOutputsGrayscale(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(gradientPNG(t, 64, 64), []string{"clahe"})
	require.NoError(t, err)
	_, ok := res.Image.(*image.Gray)
	assert.True(t, ok)
}

func TestDenoisePreservesDimensions(t *testing.T) {
	n := newTestNormalizer(t)

	res, err := n.Normalize(gradientPNG(t, 40, 30), []string{"denoise"})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Image.Bounds().Dx())
	assert.Equal(t, 30, res.Image.Bounds().Dy())
}

func TestIsImageData(t *testing.T) {
	assert.True(t, IsImageData(gradientPNG(t, 4, 4)))
	assert.True(t, IsImageData(grayJPEG(t, 4, 4)))
	assert.False(t, IsImageData([]byte("plain text")))
	assert.False(t, IsImageData(nil))
}
