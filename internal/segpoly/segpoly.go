// Package segpoly reconstructs segment polygons from assigned cell sets:
// 4-connected components are traced along cell edges into rings with holes,
// simplified, and validated for pairwise disjointness.
package segpoly

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
	"github.com/ridgeline-data/segment.report/internal/raster"
	"github.com/ridgeline-data/segment.report/internal/viewshed"
)

// Build converts one segment's assigned cell set into a metric multipolygon.
// Each 4-connected component becomes one polygon, boundary traced on the
// cell grid with interior holes preserved, then simplified with a tolerance
// of half a cell. Components whose area falls under a quarter cell are
// dropped as numerical noise.
func Build(s *raster.Surface, assigned *viewshed.BitSet) orb.MultiPolygon {
	var out orb.MultiPolygon
	minArea := 0.25 * s.CellAreaM2()
	for _, comp := range components(s, assigned) {
		poly := tracePolygon(s, comp)
		poly = simplify.DouglasPeucker(s.Cell / 2).Polygon(poly)
		if math.Abs(planar.Area(poly)) < minArea {
			monitoring.Debugf("segpoly: dropping sub-cell component (%d cells)", len(comp))
			continue
		}
		out = append(out, poly)
	}
	return out
}

// components splits the set into 4-connected groups of cell indices.
func components(s *raster.Surface, set *viewshed.BitSet) [][]int {
	visited := make(map[int]bool)
	var comps [][]int
	set.ForEach(func(start int) {
		if visited[start] {
			return
		}
		var comp []int
		queue := []int{start}
		visited[start] = true
		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			comp = append(comp, idx)
			row, col := idx/s.Cols, idx%s.Cols
			for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				nr, nc := row+d[0], col+d[1]
				if !s.InBounds(nr, nc) {
					continue
				}
				nidx := s.Index(nr, nc)
				if visited[nidx] || !set.Contains(nidx) {
					continue
				}
				visited[nidx] = true
				queue = append(queue, nidx)
			}
		}
		comps = append(comps, comp)
	})
	return comps
}

// edge is a directed boundary segment between two cell corners, oriented so
// the component interior lies on its left.
type edge struct{ from, to int }

// tracePolygon walks the boundary edges of a component into closed rings.
// The orientation convention makes the outer ring counterclockwise and any
// hole rings clockwise in metric coordinates.
func tracePolygon(s *raster.Surface, comp []int) orb.Polygon {
	in := make(map[int]bool, len(comp))
	for _, idx := range comp {
		in[idx] = true
	}
	cw := s.Cols + 1 // corner-grid width
	corner := func(r, c int) int { return r*cw + c }

	// Outgoing edges keyed by start corner. Saddle corners can carry two.
	edges := make(map[int][]edge)
	addEdge := func(from, to int) {
		edges[from] = append(edges[from], edge{from, to})
	}
	for _, idx := range comp {
		row, col := idx/s.Cols, idx%s.Cols
		if !neighborIn(s, in, row-1, col) {
			addEdge(corner(row, col+1), corner(row, col)) // top, east to west
		}
		if !neighborIn(s, in, row+1, col) {
			addEdge(corner(row+1, col), corner(row+1, col+1)) // bottom, west to east
		}
		if !neighborIn(s, in, row, col-1) {
			addEdge(corner(row, col), corner(row+1, col)) // west side, southbound
		}
		if !neighborIn(s, in, row, col+1) {
			addEdge(corner(row+1, col+1), corner(row, col+1)) // east side, northbound
		}
	}

	var rings []orb.Ring
	for len(edges) > 0 {
		start := anyKey(edges)
		ring := walkRing(edges, start, cw)
		rings = append(rings, ringToMetric(s, ring, cw))
	}

	// The outer ring encloses the largest area; the rest are holes.
	outer := 0
	maxA := 0.0
	for i, r := range rings {
		if a := math.Abs(planar.Area(r)); a > maxA {
			maxA, outer = a, i
		}
	}
	poly := orb.Polygon{rings[outer]}
	for i, r := range rings {
		if i != outer {
			poly = append(poly, r)
		}
	}
	return poly
}

func neighborIn(s *raster.Surface, in map[int]bool, row, col int) bool {
	return s.InBounds(row, col) && in[s.Index(row, col)]
}

func anyKey(m map[int][]edge) int {
	best := -1
	for k := range m {
		if best < 0 || k < best {
			best = k
		}
	}
	return best
}

// walkRing follows edges from start until the loop closes, consuming the
// edges it uses. At saddle corners with two outgoing edges it takes the one
// turning hardest left, keeping distinct loops separate.
func walkRing(edges map[int][]edge, start, cw int) []int {
	ring := []int{start}
	cur := start
	prev := -1
	for {
		outs := edges[cur]
		var chosen edge
		if len(outs) == 1 {
			chosen = outs[0]
			delete(edges, cur)
		} else {
			pick := pickLeftmost(outs, prev, cur, cw)
			chosen = outs[pick]
			rest := append(outs[:pick:pick], outs[pick+1:]...)
			if len(rest) == 0 {
				delete(edges, cur)
			} else {
				edges[cur] = rest
			}
		}
		prev = cur
		cur = chosen.to
		if cur == start {
			ring = append(ring, start)
			return ring
		}
		ring = append(ring, cur)
	}
}

func pickLeftmost(outs []edge, prev, cur, cw int) int {
	if prev < 0 {
		return 0
	}
	inDR := cur/cw - prev/cw
	inDC := cur%cw - prev%cw
	best, bestTurn := 0, math.Inf(-1)
	for i, e := range outs {
		outDR := e.to/cw - cur/cw
		outDC := e.to%cw - cur%cw
		// Cross product in metric axes (col east, row south).
		turn := float64(inDC*(-outDR) - (-inDR)*outDC)
		if turn > bestTurn {
			bestTurn, best = turn, i
		}
	}
	return best
}

func ringToMetric(s *raster.Surface, corners []int, cw int) orb.Ring {
	ring := make(orb.Ring, len(corners))
	for i, k := range corners {
		r, c := k/cw, k%cw
		ring[i] = orb.Point{
			s.OriginX + float64(c)*s.Cell,
			s.OriginY - float64(r)*s.Cell,
		}
	}
	return ring
}

// Validate rechecks the finished segments on the grid: every segment's cells
// must lie inside the target mask and no cell may belong to two segments.
// A violation is an algorithm bug and fails fatally.
func Validate(s *raster.Surface, segs []orb.MultiPolygon) error {
	owner := make(map[int]int)
	for si, mp := range segs {
		for _, poly := range mp {
			bound := poly.Bound()
			r0, c0, _ := s.CellAt(bound.Min[0]+s.Cell/2, bound.Max[1]-s.Cell/2)
			r1, c1, _ := s.CellAt(bound.Max[0]-s.Cell/2, bound.Min[1]+s.Cell/2)
			for row := maxInt(r0, 0); row <= minInt(r1, s.Rows-1); row++ {
				for col := maxInt(c0, 0); col <= minInt(c1, s.Cols-1); col++ {
					cx, cy := s.CellCenter(row, col)
					if !raster.PointInPolygon(poly, cx, cy) {
						continue
					}
					idx := s.Index(row, col)
					if !s.IsTarget(row, col) {
						return fault.New(fault.Internal,
							"segment %d covers non-target cell (%d,%d)", si+1, row, col)
					}
					if other, taken := owner[idx]; taken && other != si {
						return fault.New(fault.Internal,
							"segments %d and %d overlap at cell (%d,%d)", other+1, si+1, row, col)
					}
					owner[idx] = si
				}
			}
		}
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
