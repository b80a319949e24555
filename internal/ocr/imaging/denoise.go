package imaging

import "math"

// stepDenoise runs non-local means denoising. Strength, template (patch)
// size, and search window size come from configuration; the defaults suit
// sensor noise in phone captures without smearing small print.
func stepDenoise(s *state) (bool, error) {
	strength := s.cfg.DenoiseStrength
	template := oddAtLeast(s.cfg.DenoiseTemplateSize, 3)
	search := oddAtLeast(s.cfg.DenoiseSearchSize, template)

	s.img = mapPlanes(s.img, func(p *plane) *plane {
		return nlmPlane(p, strength, template, search)
	})
	return true, nil
}

func oddAtLeast(v, min int) int {
	if v < min {
		v = min
	}
	if v%2 == 0 {
		v++
	}
	return v
}

// nlmPlane denoises one channel with non-local means: each pixel becomes a
// weighted average of pixels in its search window, weighted by the similarity
// of their surrounding patches. Weights fall off as exp(-d2/h2) where d2 is
// the mean squared patch difference.
func nlmPlane(p *plane, strength float64, template, search int) *plane {
	tr := template / 2
	sr := search / 2
	h2 := strength * strength
	if h2 <= 0 {
		h2 = 1
	}
	patchArea := float64(template * template)

	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			var weightSum, valueSum float64

			for sy := -sr; sy <= sr; sy++ {
				for sx := -sr; sx <= sr; sx++ {
					cx, cy := x+sx, y+sy
					if cx < 0 || cx >= p.w || cy < 0 || cy >= p.h {
						continue
					}

					var d2 float64
					for py := -tr; py <= tr; py++ {
						for px := -tr; px <= tr; px++ {
							d := float64(p.at(x+px, y+py)) - float64(p.at(cx+px, cy+py))
							d2 += d * d
						}
					}
					d2 /= patchArea

					w := math.Exp(-d2 / h2)
					weightSum += w
					valueSum += w * float64(p.pix[cy*p.w+cx])
				}
			}

			if weightSum > 0 {
				out.pix[y*p.w+x] = clampU8(valueSum / weightSum)
			} else {
				out.pix[y*p.w+x] = p.pix[y*p.w+x]
			}
		}
	}
	return out
}
