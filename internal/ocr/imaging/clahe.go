package imaging

// stepCLAHE runs contrast-limited adaptive histogram equalization, the
// standard fix for ID cards photographed under uneven light. The image is
// converted to grayscale first; contrast equalization on separate color
// channels shifts hues.
func stepCLAHE(s *state) (bool, error) {
	g := toGray(s.img)
	p := grayPlane(g)
	out := clahe(p, s.cfg.CLAHEClipLimit, s.cfg.CLAHETileGridSize)
	s.img = out.gray()
	return true, nil
}

// clahe divides the plane into a grid x grid tile layout, builds a
// clip-limited equalization LUT per tile, and maps each pixel through a
// bilinear blend of the four surrounding tile LUTs to avoid visible tile
// seams.
func clahe(p *plane, clipLimit float64, grid int) *plane {
	if grid < 1 {
		grid = 1
	}
	tileW := (p.w + grid - 1) / grid
	tileH := (p.h + grid - 1) / grid
	if tileW < 1 {
		tileW = 1
	}
	if tileH < 1 {
		tileH = 1
	}

	luts := make([][]uint8, grid*grid)
	for ty := 0; ty < grid; ty++ {
		for tx := 0; tx < grid; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := x0+tileW, y0+tileH
			if x1 > p.w {
				x1 = p.w
			}
			if y1 > p.h {
				y1 = p.h
			}
			luts[ty*grid+tx] = tileLUT(p, x0, y0, x1, y1, clipLimit)
		}
	}

	out := newPlane(p.w, p.h)
	for y := 0; y < p.h; y++ {
		// fractional tile coordinates of the pixel center
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := int(fy)
		if fy < 0 {
			ty0 = -1
		}
		wy := fy - float64(ty0)
		ty1 := clampTile(ty0+1, grid)
		ty0 = clampTile(ty0, grid)

		for x := 0; x < p.w; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := int(fx)
			if fx < 0 {
				tx0 = -1
			}
			wx := fx - float64(tx0)
			tx1 := clampTile(tx0+1, grid)
			tx0c := clampTile(tx0, grid)

			v := p.pix[y*p.w+x]
			tl := float64(luts[ty0*grid+tx0c][v])
			tr := float64(luts[ty0*grid+tx1][v])
			bl := float64(luts[ty1*grid+tx0c][v])
			br := float64(luts[ty1*grid+tx1][v])

			top := tl + (tr-tl)*wx
			bottom := bl + (br-bl)*wx
			out.pix[y*p.w+x] = clampU8(top + (bottom-top)*wy)
		}
	}
	return out
}

func clampTile(t, grid int) int {
	if t < 0 {
		return 0
	}
	if t >= grid {
		return grid - 1
	}
	return t
}

// tileLUT builds the equalization lookup table for one tile. The histogram is
// clipped at clipLimit times the mean bin height and the excess redistributed
// uniformly, which caps noise amplification in flat regions.
func tileLUT(p *plane, x0, y0, x1, y1 int, clipLimit float64) []uint8 {
	lut := make([]uint8, 256)
	area := (x1 - x0) * (y1 - y0)
	if area <= 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}

	var hist [256]int
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[p.pix[y*p.w+x]]++
		}
	}

	if clipLimit > 0 {
		limit := int(clipLimit * float64(area) / 256)
		if limit < 1 {
			limit = 1
		}
		excess := 0
		for i := range hist {
			if hist[i] > limit {
				excess += hist[i] - limit
				hist[i] = limit
			}
		}
		// redistribute clipped mass uniformly
		share := excess / 256
		rem := excess % 256
		for i := range hist {
			hist[i] += share
			if i < rem {
				hist[i]++
			}
		}
	}

	scale := 255.0 / float64(area)
	cum := 0
	for i := range hist {
		cum += hist[i]
		lut[i] = clampU8(float64(cum) * scale)
	}
	return lut
}
