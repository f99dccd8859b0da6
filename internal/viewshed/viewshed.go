// Package viewshed computes, for each candidate launch point, the set of
// target cells visible from an observer hovering at the drone's AGL altitude
// above the candidate, against the combined surface raster. Candidates are
// independent, so the engine shards them across a worker pool.
package viewshed

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/grid"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
	"github.com/ridgeline-data/segment.report/internal/raster"
)

// Result pairs a candidate with its visible target-cell set. Candidates with
// empty sets are dropped before Compute returns.
type Result struct {
	Candidate grid.Candidate
	Visible   *BitSet
}

// Params tunes one viewshed run.
type Params struct {
	ObserverAGLM float64 // observer height above the launch cell's ground
	MaxRangeM    float64 // VLOS limit, Euclidean from the observer
	Workers      int     // 0 means GOMAXPROCS
	BatchSize    int     // candidates per progress tick, 0 means 64
	Progress     func(done, total int)
}

// Compute runs the viewshed for every candidate. Workers read the surface
// immutably and each writes only its own pre-sized result slot, so the hot
// path takes no locks. Cancellation is observed between batches.
func Compute(ctx context.Context, s *raster.Surface, cands []grid.Candidate, p Params) ([]Result, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = 64
	}

	slots := make([]*BitSet, len(cands))
	jobs := make(chan [2]int) // [start, end) batch bounds
	var done atomic.Int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				for i := b[0]; i < b[1]; i++ {
					slots[i] = observe(s, cands[i], p.ObserverAGLM, p.MaxRangeM)
				}
				n := done.Add(int64(b[1] - b[0]))
				if p.Progress != nil {
					p.Progress(int(n), len(cands))
				}
				monitoring.Debugf("viewshed: %d/%d candidates", n, len(cands))
			}
		}()
	}

	cancelled := false
feed:
	for start := 0; start < len(cands); start += batch {
		end := start + batch
		if end > len(cands) {
			end = len(cands)
		}
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		case jobs <- [2]int{start, end}:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled {
		return nil, fault.Wrap(fault.Cancelled, ctx.Err())
	}

	out := make([]Result, 0, len(cands))
	for i, vis := range slots {
		if vis != nil && vis.Count() > 0 {
			out = append(out, Result{Candidate: cands[i], Visible: vis})
		}
	}
	return out, nil
}

// observe raytraces the full disc around one candidate. Rays are cast from
// the observer cell to every cell on the perimeter of the bounding square of
// the VLOS disc; along a ray the horizon angle is tracked and a sample is
// visible when its sight-line slope is at or above the horizon. Equal
// elevation counts as visible.
func observe(s *raster.Surface, c grid.Candidate, aglM, rangeM float64) *BitSet {
	vis := NewBitSet(s.Rows * s.Cols)
	obsX, obsY := s.CellCenter(c.Row, c.Col)
	obsZ := s.GroundAt(c.Row, c.Col) + aglM

	if s.IsTarget(c.Row, c.Col) {
		vis.Add(s.Index(c.Row, c.Col))
	}

	r := int(math.Ceil(rangeM / s.Cell))
	if r < 1 {
		return vis
	}
	for _, end := range perimeter(c.Row, c.Col, r) {
		castRay(s, vis, c.Row, c.Col, end[0], end[1], obsX, obsY, obsZ, rangeM)
	}
	return vis
}

// perimeter lists the cells on the boundary of the square of half-width r
// centered on (row, col), clockwise from the northwest corner. Cells outside
// the grid are kept so ray directions stay complete; castRay stops at the
// grid edge.
func perimeter(row, col, r int) [][2]int {
	out := make([][2]int, 0, 8*r)
	for c := col - r; c <= col+r; c++ {
		out = append(out, [2]int{row - r, c})
	}
	for rr := row - r + 1; rr <= row+r; rr++ {
		out = append(out, [2]int{rr, col + r})
	}
	for c := col + r - 1; c >= col-r; c-- {
		out = append(out, [2]int{row + r, c})
	}
	for rr := row + r - 1; rr > row-r; rr-- {
		out = append(out, [2]int{rr, col - r})
	}
	return out
}

// castRay walks from the observer cell toward (endRow, endCol), one cell
// along the dominant axis per step, marking visible target cells.
func castRay(s *raster.Surface, vis *BitSet, row0, col0, endRow, endCol int, obsX, obsY, obsZ, rangeM float64) {
	dr := endRow - row0
	dc := endCol - col0
	steps := absInt(dr)
	if absInt(dc) > steps {
		steps = absInt(dc)
	}
	if steps == 0 {
		return
	}

	maxSlope := math.Inf(-1)
	for k := 1; k <= steps; k++ {
		fr := float64(row0) + float64(dr)*float64(k)/float64(steps)
		fc := float64(col0) + float64(dc)*float64(k)/float64(steps)
		row := int(math.Round(fr))
		col := int(math.Round(fc))
		if !s.InBounds(row, col) {
			return
		}

		x := s.OriginX + (fc+0.5)*s.Cell
		y := s.OriginY - (fr+0.5)*s.Cell
		dist := math.Hypot(x-obsX, y-obsY)
		if dist > rangeM {
			return
		}

		z := s.InterpSurface(x, y)
		if math.IsNaN(z) {
			// No data outside the DEM footprint; treat as transparent.
			continue
		}
		slope := (z - obsZ) / dist
		if slope >= maxSlope {
			if s.IsTarget(row, col) {
				vis.Add(s.Index(row, col))
			}
			maxSlope = slope
		}
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
