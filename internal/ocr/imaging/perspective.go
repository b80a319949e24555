package imaging

import (
	"image"
	"math"
	"sort"
)

// stepPerspective looks for the document card inside the frame and, when a
// plausible four-corner outline is found, warps it to a fronto-parallel
// rectangle. Detection failure is not an error: handheld captures often
// already fill the frame, so the step reports applied=true and leaves the
// pixels alone. Callers can tell the two cases apart from the debug log.
func stepPerspective(s *state) (bool, error) {
	g := toGray(s.img)
	p := grayPlane(g)

	quad, ok := detectDocumentQuad(p, s.cfg.PerspectiveMinArea, s.cfg.PerspectiveMaxAngle)
	if !ok {
		return true, nil
	}

	warped := warpQuad(s.img, quad)
	if warped != nil {
		s.img = warped
	}
	return true, nil
}

type fpoint struct {
	x, y float64
}

// detectDocumentQuad finds the dominant four-cornered shape in the plane:
// edge map, largest connected edge component, convex hull, then polygon
// simplification down to four corners. The result must cover at least
// minAreaFrac of the frame and have corner angles within maxAngleDev degrees
// of a right angle, otherwise detection is rejected.
func detectDocumentQuad(p *plane, minAreaFrac, maxAngleDev float64) ([4]fpoint, bool) {
	var quad [4]fpoint

	edges := edgeMap(p)
	component := largestComponent(edges)
	if len(component) < 32 {
		return quad, false
	}

	hull := convexHull(component)
	if len(hull) < 4 {
		return quad, false
	}

	corners, ok := simplifyToQuad(hull)
	if !ok {
		return quad, false
	}

	area := polygonArea(corners[:])
	if area < minAreaFrac*float64(p.w)*float64(p.h) {
		return quad, false
	}
	for i := 0; i < 4; i++ {
		a := corners[(i+3)%4]
		b := corners[i]
		c := corners[(i+1)%4]
		if math.Abs(cornerAngle(a, b, c)-90) > maxAngleDev {
			return quad, false
		}
	}

	return orderCorners(corners), true
}

// edgeMap computes a binary Sobel edge map after a light blur
func edgeMap(p *plane) *plane {
	blurred := gaussianBlur(p, 5)

	mag := make([]float64, p.w*p.h)
	var maxMag float64
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			gx := -float64(blurred.at(x-1, y-1)) + float64(blurred.at(x+1, y-1)) +
				-2*float64(blurred.at(x-1, y)) + 2*float64(blurred.at(x+1, y)) +
				-float64(blurred.at(x-1, y+1)) + float64(blurred.at(x+1, y+1))
			gy := -float64(blurred.at(x-1, y-1)) - 2*float64(blurred.at(x, y-1)) - float64(blurred.at(x+1, y-1)) +
				float64(blurred.at(x-1, y+1)) + 2*float64(blurred.at(x, y+1)) + float64(blurred.at(x+1, y+1))
			m := math.Hypot(gx, gy)
			mag[y*p.w+x] = m
			if m > maxMag {
				maxMag = m
			}
		}
	}

	out := newPlane(p.w, p.h)
	if maxMag == 0 {
		return out
	}
	threshold := 0.25 * maxMag
	for i, m := range mag {
		if m >= threshold {
			out.pix[i] = 255
		}
	}
	return out
}

// largestComponent returns the pixel coordinates of the biggest 8-connected
// set of edge pixels.
func largestComponent(edges *plane) []fpoint {
	visited := make([]bool, len(edges.pix))
	var best []fpoint
	queue := make([]int, 0, 1024)

	for start, v := range edges.pix {
		if v == 0 || visited[start] {
			continue
		}

		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true
		component := []fpoint{}

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%edges.w, idx/edges.w
			component = append(component, fpoint{float64(x), float64(y)})

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= edges.w || ny < 0 || ny >= edges.h {
						continue
					}
					nidx := ny*edges.w + nx
					if edges.pix[nidx] != 0 && !visited[nidx] {
						visited[nidx] = true
						queue = append(queue, nidx)
					}
				}
			}
		}

		if len(component) > len(best) {
			best = component
		}
	}
	return best
}

// convexHull computes the convex hull with the monotone chain algorithm
func convexHull(points []fpoint) []fpoint {
	if len(points) < 3 {
		return points
	}
	pts := make([]fpoint, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].x != pts[j].x {
			return pts[i].x < pts[j].x
		}
		return pts[i].y < pts[j].y
	})

	cross := func(o, a, b fpoint) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}

	var lower, upper []fpoint
	for _, pt := range pts {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], pt) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, pt)
	}
	for i := len(pts) - 1; i >= 0; i-- {
		pt := pts[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], pt) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, pt)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

// simplifyToQuad reduces a closed hull polygon to exactly four corners using
// Douglas-Peucker with an epsilon that grows until at most four vertices
// remain.
func simplifyToQuad(hull []fpoint) ([4]fpoint, bool) {
	var quad [4]fpoint
	perimeter := 0.0
	for i := range hull {
		perimeter += dist(hull[i], hull[(i+1)%len(hull)])
	}

	for eps := 0.02 * perimeter; eps < 0.25*perimeter; eps *= 1.5 {
		simplified := douglasPeucker(hull, eps)
		if len(simplified) == 4 {
			copy(quad[:], simplified)
			return quad, true
		}
		if len(simplified) < 4 {
			return quad, false
		}
	}
	return quad, false
}

// douglasPeucker simplifies a closed polygon. The polygon is split at its two
// most distant vertices and each open chain simplified independently.
func douglasPeucker(poly []fpoint, eps float64) []fpoint {
	if len(poly) < 3 {
		return poly
	}

	// anchor at the two farthest-apart vertices
	ai, bi := 0, 0
	maxD := -1.0
	for i := range poly {
		for j := i + 1; j < len(poly); j++ {
			if d := dist(poly[i], poly[j]); d > maxD {
				maxD = d
				ai, bi = i, j
			}
		}
	}

	chainA := append([]fpoint{}, poly[ai:bi+1]...)
	chainB := append(append([]fpoint{}, poly[bi:]...), poly[:ai+1]...)

	simpA := dpChain(chainA, eps)
	simpB := dpChain(chainB, eps)

	// chains share endpoints; drop the duplicates when joining
	out := append([]fpoint{}, simpA...)
	if len(simpB) > 2 {
		out = append(out, simpB[1:len(simpB)-1]...)
	}
	return out
}

func dpChain(chain []fpoint, eps float64) []fpoint {
	if len(chain) < 3 {
		return chain
	}
	maxD := -1.0
	maxI := 0
	for i := 1; i < len(chain)-1; i++ {
		if d := pointLineDist(chain[i], chain[0], chain[len(chain)-1]); d > maxD {
			maxD = d
			maxI = i
		}
	}
	if maxD <= eps {
		return []fpoint{chain[0], chain[len(chain)-1]}
	}
	left := dpChain(chain[:maxI+1], eps)
	right := dpChain(chain[maxI:], eps)
	return append(left[:len(left)-1], right...)
}

func dist(a, b fpoint) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

func pointLineDist(p, a, b fpoint) float64 {
	l := dist(a, b)
	if l == 0 {
		return dist(p, a)
	}
	return math.Abs((b.x-a.x)*(a.y-p.y)-(a.x-p.x)*(b.y-a.y)) / l
}

func polygonArea(poly []fpoint) float64 {
	var area float64
	for i := range poly {
		j := (i + 1) % len(poly)
		area += poly[i].x*poly[j].y - poly[j].x*poly[i].y
	}
	return math.Abs(area) / 2
}

// cornerAngle returns the interior angle at b in degrees
func cornerAngle(a, b, c fpoint) float64 {
	v1 := fpoint{a.x - b.x, a.y - b.y}
	v2 := fpoint{c.x - b.x, c.y - b.y}
	n1 := math.Hypot(v1.x, v1.y)
	n2 := math.Hypot(v2.x, v2.y)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	cos := (v1.x*v2.x + v1.y*v2.y) / (n1 * n2)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// orderCorners arranges corners as top-left, top-right, bottom-right,
// bottom-left using the sum/difference trick.
func orderCorners(corners [4]fpoint) [4]fpoint {
	var ordered [4]fpoint
	minSum, maxSum := math.Inf(1), math.Inf(-1)
	minDiff, maxDiff := math.Inf(1), math.Inf(-1)
	for _, c := range corners {
		sum := c.x + c.y
		diff := c.y - c.x
		if sum < minSum {
			minSum = sum
			ordered[0] = c // top-left
		}
		if sum > maxSum {
			maxSum = sum
			ordered[2] = c // bottom-right
		}
		if diff < minDiff {
			minDiff = diff
			ordered[1] = c // top-right
		}
		if diff > maxDiff {
			maxDiff = diff
			ordered[3] = c // bottom-left
		}
	}
	return ordered
}

// warpQuad maps the source quadrilateral onto an axis-aligned rectangle sized
// from the quad's longer side pairs. Sampling is bilinear over the inverse
// homography. A nil return means the homography was degenerate.
func warpQuad(img image.Image, quad [4]fpoint) image.Image {
	tl, tr, br, bl := quad[0], quad[1], quad[2], quad[3]

	dstW := int(math.Max(dist(tl, tr), dist(bl, br)))
	dstH := int(math.Max(dist(tl, bl), dist(tr, br)))
	if dstW < 8 || dstH < 8 {
		return nil
	}

	dstCorners := [4]fpoint{
		{0, 0},
		{float64(dstW - 1), 0},
		{float64(dstW - 1), float64(dstH - 1)},
		{0, float64(dstH - 1)},
	}

	// homography from destination to source, so each output pixel pulls
	// from a bilinear sample of the input
	h, ok := homography(dstCorners, quad)
	if !ok {
		return nil
	}

	if g, isGray := img.(*image.Gray); isGray {
		p := grayPlane(g)
		return warpPlane(p, h, dstW, dstH).gray()
	}

	b := img.Bounds()
	src := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			src.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}

	channels := make([]*plane, 3)
	for c := 0; c < 3; c++ {
		channels[c] = newPlane(b.Dx(), b.Dy())
		for y := 0; y < b.Dy(); y++ {
			for x := 0; x < b.Dx(); x++ {
				channels[c].pix[y*channels[c].w+x] = src.Pix[y*src.Stride+x*4+c]
			}
		}
		channels[c] = warpPlane(channels[c], h, dstW, dstH)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			off := y*dst.Stride + x*4
			for c := 0; c < 3; c++ {
				dst.Pix[off+c] = channels[c].pix[y*dstW+x]
			}
			dst.Pix[off+3] = 255
		}
	}
	return dst
}

func warpPlane(p *plane, h [9]float64, dstW, dstH int) *plane {
	out := newPlane(dstW, dstH)
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			fx := float64(x)
			fy := float64(y)
			denom := h[6]*fx + h[7]*fy + h[8]
			if denom == 0 {
				continue
			}
			sx := (h[0]*fx + h[1]*fy + h[2]) / denom
			sy := (h[3]*fx + h[4]*fy + h[5]) / denom
			out.pix[y*dstW+x] = bilinearSample(p, sx, sy)
		}
	}
	return out
}

func bilinearSample(p *plane, x, y float64) uint8 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := x - float64(x0)
	fy := y - float64(y0)

	tl := float64(p.at(x0, y0))
	tr := float64(p.at(x0+1, y0))
	bl := float64(p.at(x0, y0+1))
	br := float64(p.at(x0+1, y0+1))

	top := tl + (tr-tl)*fx
	bottom := bl + (br-bl)*fx
	return clampU8(top + (bottom-top)*fy)
}

// homography solves for the 3x3 projective transform taking the four src
// points to the four dst points, via Gaussian elimination on the standard
// 8x8 system (h22 fixed at 1).
func homography(src, dst [4]fpoint) ([9]float64, bool) {
	var h [9]float64
	var m [8][9]float64

	for i := 0; i < 4; i++ {
		sx, sy := src[i].x, src[i].y
		dx, dy := dst[i].x, dst[i].y
		m[2*i] = [9]float64{sx, sy, 1, 0, 0, 0, -dx * sx, -dx * sy, dx}
		m[2*i+1] = [9]float64{0, 0, 0, sx, sy, 1, -dy * sx, -dy * sy, dy}
	}

	// forward elimination with partial pivoting
	for col := 0; col < 8; col++ {
		pivot := col
		for r := col + 1; r < 8; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < 1e-10 {
			return h, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for r := 0; r < 8; r++ {
			if r == col {
				continue
			}
			factor := m[r][col] / m[col][col]
			for c := col; c < 9; c++ {
				m[r][c] -= factor * m[col][c]
			}
		}
	}

	for i := 0; i < 8; i++ {
		h[i] = m[i][8] / m[i][i]
	}
	h[8] = 1
	return h, true
}
