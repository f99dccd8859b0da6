package raster

import (
	"sort"

	"github.com/paulmach/orb"
)

// rasterizeMask marks every cell whose centroid falls inside the polygon.
// Scanline with even-odd crossings per row; rings beyond the first act as
// holes. Centroid containment keeps the mask consistent with the grid
// generator's inside test.
func rasterizeMask(s *Surface, poly orb.Polygon) {
	xs := make([]float64, 0, 16)
	for row := 0; row < s.Rows; row++ {
		_, y := s.CellCenter(row, 0)
		xs = xs[:0]
		for _, ring := range poly {
			xs = appendCrossings(xs, ring, y)
		}
		if len(xs) == 0 {
			continue
		}
		sort.Float64s(xs)
		for k := 0; k+1 < len(xs); k += 2 {
			colStart := int((xs[k] - s.OriginX) / s.Cell)
			colEnd := int((xs[k+1] - s.OriginX) / s.Cell)
			for col := colStart; col <= colEnd; col++ {
				if col < 0 || col >= s.Cols {
					continue
				}
				cx, _ := s.CellCenter(row, col)
				if cx > xs[k] && cx < xs[k+1] {
					s.Target[s.Index(row, col)] = true
				}
			}
		}
	}
}

// appendCrossings collects the x coordinates where the ring crosses the
// horizontal line at y. The half-open vertex rule keeps shared vertices from
// counting twice.
func appendCrossings(xs []float64, ring orb.Ring, y float64) []float64 {
	n := len(ring)
	for i := 0; i+1 < n; i++ {
		y1, y2 := ring[i][1], ring[i+1][1]
		if (y1 <= y && y2 > y) || (y2 <= y && y1 > y) {
			t := (y - y1) / (y2 - y1)
			xs = append(xs, ring[i][0]+t*(ring[i+1][0]-ring[i][0]))
		}
	}
	return xs
}

// PointInPolygon reports whether a metric point is inside the polygon,
// holes excluded. Even-odd rule.
func PointInPolygon(poly orb.Polygon, x, y float64) bool {
	inside := false
	for _, ring := range poly {
		n := len(ring)
		for i := 0; i+1 < n; i++ {
			y1, y2 := ring[i][1], ring[i+1][1]
			if (y1 <= y && y2 > y) || (y2 <= y && y1 > y) {
				t := (y - y1) / (y2 - y1)
				if x < ring[i][0]+t*(ring[i+1][0]-ring[i][0]) {
					inside = !inside
				}
			}
		}
	}
	return inside
}
