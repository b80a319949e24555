package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/rwcarlsen/goexif/exif"

	apperrors "github.com/venedoc/ocr-backend/pkg/errors"
)

// JPEG and PNG magic bytes for format detection
var (
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// IsImageData checks for JPEG or PNG magic bytes at the start of the data.
func IsImageData(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return bytes.HasPrefix(data, jpegMagic) || bytes.HasPrefix(data, pngMagic)
}

// Decode decodes JPEG or PNG bytes into an image and reads the EXIF
// orientation tag (1-8, 0 when absent). The orientation is applied later by
// the exif_fix pipeline step; decoding itself never rotates pixels.
func Decode(data []byte) (image.Image, int, error) {
	var img image.Image
	var err error

	switch {
	case bytes.HasPrefix(data, jpegMagic):
		img, err = jpeg.Decode(bytes.NewReader(data))
	case bytes.HasPrefix(data, pngMagic):
		img, err = png.Decode(bytes.NewReader(data))
	default:
		return nil, 0, apperrors.ImageProcessing("unsupported image format: expected JPEG or PNG", nil)
	}
	if err != nil {
		return nil, 0, apperrors.ImageProcessing("failed to decode image", err)
	}

	return img, readOrientation(data), nil
}

// readOrientation extracts the EXIF orientation tag. Missing or malformed
// EXIF yields 0, which the exif_fix step treats as "no rotation needed".
func readOrientation(data []byte) int {
	if !bytes.HasPrefix(data, jpegMagic) {
		return 0
	}
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation < 1 || orientation > 8 {
		return 0
	}
	return orientation
}
