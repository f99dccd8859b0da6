// Package grid produces the candidate vantage points considered for launch
// positions: a regular lattice over the search polygon, optionally densified
// along access features.
package grid

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/ridgeline-data/segment.report/internal/raster"
)

// Candidate is a prospective launch point. Access is filled by the access
// classifier; the visible-cell set lives with the viewshed results.
type Candidate struct {
	X, Y     float64
	Row, Col int
	Ground   float64
	Access   string
}

// Generate lays an axis-aligned lattice with the given spacing over the
// polygon's bounding rectangle, origin at the rectangle's lower-left, and
// keeps points whose enclosing cell centroid is inside the polygon. Order is
// northing descending then easting ascending, so runs are reproducible.
func Generate(s *raster.Surface, polyMetric orb.Polygon, spacingM float64) []Candidate {
	bound := polyMetric.Bound()
	minX, minY := bound.Min[0], bound.Min[1]
	maxX, maxY := bound.Max[0], bound.Max[1]

	nx := int(math.Floor((maxX-minX)/spacingM)) + 1
	ny := int(math.Floor((maxY-minY)/spacingM)) + 1

	out := make([]Candidate, 0, nx*ny/2)
	for j := ny - 1; j >= 0; j-- {
		y := minY + float64(j)*spacingM
		for i := 0; i < nx; i++ {
			x := minX + float64(i)*spacingM
			if c, ok := candidateAt(s, x, y); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// Densify appends extra candidates sampled along line features at half the
// lattice spacing, skipping cells that already host a candidate. Lines are
// walked in input order so the result stays deterministic.
func Densify(s *raster.Surface, cands []Candidate, lines []orb.LineString, spacingM float64) []Candidate {
	seen := make(map[int]struct{}, len(cands))
	for _, c := range cands {
		seen[s.Index(c.Row, c.Col)] = struct{}{}
	}
	step := spacingM / 2
	for _, line := range lines {
		for i := 0; i+1 < len(line); i++ {
			a, b := line[i], line[i+1]
			segLen := math.Hypot(b[0]-a[0], b[1]-a[1])
			if segLen == 0 {
				continue
			}
			n := int(math.Ceil(segLen / step))
			for k := 0; k <= n; k++ {
				t := float64(k) / float64(n)
				x := a[0] + t*(b[0]-a[0])
				y := a[1] + t*(b[1]-a[1])
				c, ok := candidateAt(s, x, y)
				if !ok {
					continue
				}
				idx := s.Index(c.Row, c.Col)
				if _, dup := seen[idx]; dup {
					continue
				}
				seen[idx] = struct{}{}
				cands = append(cands, c)
			}
		}
	}
	return cands
}

// candidateAt builds a candidate for a metric point when its enclosing cell
// is a target cell. The point keeps its own coordinates; row/col and ground
// elevation come from the cell.
func candidateAt(s *raster.Surface, x, y float64) (Candidate, bool) {
	row, col, ok := s.CellAt(x, y)
	if !ok || !s.IsTarget(row, col) {
		return Candidate{}, false
	}
	return Candidate{
		X:      x,
		Y:      y,
		Row:    row,
		Col:    col,
		Ground: s.GroundAt(row, col),
	}, true
}
