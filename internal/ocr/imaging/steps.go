package imaging

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// stepResize scales the image down so its width matches the configured
// optimal width for the recognition engine, preserving aspect ratio. Images
// already at or below the target pass through untouched. Oversized images
// (either dimension beyond MaxDimension) are always scaled down.
func stepResize(s *state) (bool, error) {
	b := s.img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return false, fmt.Errorf("degenerate image bounds %dx%d", w, h)
	}

	maxDim := s.cfg.MaxDimension
	optimal := s.cfg.OptimalWidth

	scale := 1.0
	if w > h {
		if w > maxDim {
			scale = float64(maxDim) / float64(w)
		}
	} else if h > maxDim {
		scale = float64(maxDim) / float64(h)
	}
	if float64(w)*scale > float64(optimal) {
		scale = float64(optimal) / float64(w)
	}
	if scale >= 1.0 {
		return false, nil
	}

	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), s.img, b, draw.Src, nil)
	s.img = dst
	return true, nil
}

// stepExifFix applies the EXIF orientation recorded at decode so that pixels
// match the capture orientation. Values 2-8 cover the mirror and rotation
// combinations; 0 and 1 need no change. The orientation is cleared afterwards
// so repeated runs are no-ops.
func stepExifFix(s *state) (bool, error) {
	o := s.orientation
	s.orientation = 0
	if o <= 1 {
		return true, nil
	}

	b := s.img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.NRGBA
	if o >= 5 {
		dst = image.NewNRGBA(image.Rect(0, 0, h, w))
	} else {
		dst = image.NewNRGBA(image.Rect(0, 0, w, h))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := s.img.At(b.Min.X+x, b.Min.Y+y)
			var dx, dy int
			switch o {
			case 2: // mirror horizontal
				dx, dy = w-1-x, y
			case 3: // rotate 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirror vertical
				dx, dy = x, h-1-y
			case 5: // transpose
				dx, dy = y, x
			case 6: // rotate 90 CW
				dx, dy = h-1-y, x
			case 7: // transverse
				dx, dy = h-1-y, w-1-x
			case 8: // rotate 90 CCW
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, c)
		}
	}
	s.img = dst
	return true, nil
}

// stepGrayscale converts to 8-bit grayscale. Already-gray images pass through,
// so the step is idempotent.
func stepGrayscale(s *state) (bool, error) {
	if _, ok := s.img.(*image.Gray); ok {
		return true, nil
	}
	s.img = toGray(s.img)
	return true, nil
}

// stepSharpen applies a fixed 3x3 sharpening kernel (unsharp without the
// blur pass: center 9, neighbors -1).
func stepSharpen(s *state) (bool, error) {
	kernel := []float64{
		-1, -1, -1,
		-1, 9, -1,
		-1, -1, -1,
	}
	s.img = mapPlanes(s.img, func(p *plane) *plane {
		return convolve3x3(p, kernel)
	})
	return true, nil
}

// stepMorphology cleans up binarized text with a 2x2 opening (erode then
// dilate, removing speckles) followed by a 2x2 closing (dilate then erode,
// filling pinholes in strokes).
func stepMorphology(s *state) (bool, error) {
	s.img = mapPlanes(s.img, func(p *plane) *plane {
		opened := dilate2x2(erode2x2(p))
		return erode2x2(dilate2x2(opened))
	})
	return true, nil
}

// stepAdaptiveThreshold binarizes against a Gaussian-weighted local mean,
// which holds up under the uneven lighting typical of handheld captures.
// Output is grayscale with values 0 or 255.
func stepAdaptiveThreshold(s *state) (bool, error) {
	g := toGray(s.img)
	block := s.cfg.AdaptiveBlockSize
	c := float64(s.cfg.AdaptiveC)

	p := grayPlane(g)
	blurred := gaussianBlur(p, block)

	out := newPlane(p.w, p.h)
	for i := range p.pix {
		if float64(p.pix[i]) > float64(blurred.pix[i])-c {
			out.pix[i] = 255
		}
	}
	s.img = out.gray()
	return true, nil
}

// plane is an 8-bit single-channel raster with a contiguous buffer. All the
// kernel code below operates on planes so grayscale and color images share
// one implementation.
type plane struct {
	w, h int
	pix  []uint8
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]uint8, w*h)}
}

func (p *plane) at(x, y int) uint8 {
	// clamp-to-edge border handling
	if x < 0 {
		x = 0
	} else if x >= p.w {
		x = p.w - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.h {
		y = p.h - 1
	}
	return p.pix[y*p.w+x]
}

func (p *plane) gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, p.w, p.h))
	copy(g.Pix, p.pix)
	return g
}

// toGray converts any image to 8-bit grayscale using the standard library's
// luminance weights.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

func grayPlane(g *image.Gray) *plane {
	b := g.Bounds()
	p := newPlane(b.Dx(), b.Dy())
	if g.Stride == p.w {
		copy(p.pix, g.Pix)
		return p
	}
	for y := 0; y < p.h; y++ {
		copy(p.pix[y*p.w:(y+1)*p.w], g.Pix[y*g.Stride:y*g.Stride+p.w])
	}
	return p
}

// mapPlanes applies a per-channel transform. Grayscale images keep their
// single channel; everything else is processed as NRGBA with alpha untouched.
func mapPlanes(img image.Image, fn func(*plane) *plane) image.Image {
	if g, ok := img.(*image.Gray); ok {
		return fn(grayPlane(g)).gray()
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	channels := make([]*plane, 3)
	for c := 0; c < 3; c++ {
		channels[c] = newPlane(w, h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*src.Stride + x*4
			for c := 0; c < 3; c++ {
				channels[c].pix[y*w+x] = src.Pix[off+c]
			}
		}
	}

	for c := 0; c < 3; c++ {
		channels[c] = fn(channels[c])
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := y*dst.Stride + x*4
			for c := 0; c < 3; c++ {
				dst.Pix[off+c] = channels[c].pix[y*w+x]
			}
			dst.Pix[off+3] = src.Pix[y*src.Stride+x*4+3]
		}
	}
	return dst
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

func convolve3x3(p *plane, kernel []float64) *plane {
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var sum float64
			k := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					sum += kernel[k] * float64(p.at(x+dx, y+dy))
					k++
				}
			}
			out.pix[y*p.w+x] = clampU8(sum)
		}
	}
	return out
}

func erode2x2(p *plane) *plane {
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			min := p.at(x, y)
			for dy := 0; dy <= 1; dy++ {
				for dx := 0; dx <= 1; dx++ {
					if v := p.at(x+dx, y+dy); v < min {
						min = v
					}
				}
			}
			out.pix[y*p.w+x] = min
		}
	}
	return out
}

func dilate2x2(p *plane) *plane {
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			max := p.at(x, y)
			for dy := 0; dy <= 1; dy++ {
				for dx := 0; dx <= 1; dx++ {
					if v := p.at(x+dx, y+dy); v > max {
						max = v
					}
				}
			}
			out.pix[y*p.w+x] = max
		}
	}
	return out
}

// gaussianBlur applies a separable Gaussian with the given odd kernel size.
// Sigma follows the usual size-derived convention.
func gaussianBlur(p *plane, size int) *plane {
	if size < 3 {
		return p
	}
	if size%2 == 0 {
		size++
	}
	radius := size / 2
	sigma := 0.3*(float64(radius)-1) + 0.8

	kernel := make([]float64, size)
	var sum float64
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = gaussian(d, sigma)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	// horizontal then vertical pass
	tmp := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var acc float64
			for i := -radius; i <= radius; i++ {
				acc += kernel[i+radius] * float64(p.at(x+i, y))
			}
			tmp.pix[y*p.w+x] = clampU8(acc)
		}
	}
	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var acc float64
			for i := -radius; i <= radius; i++ {
				acc += kernel[i+radius] * float64(tmp.at(x, y+i))
			}
			out.pix[y*p.w+x] = clampU8(acc)
		}
	}
	return out
}

func gaussian(d, sigma float64) float64 {
	return math.Exp(-(d * d) / (2 * sigma * sigma))
}
