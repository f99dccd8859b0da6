// Package raster prepares and holds the surface-elevation model the planner
// works on: a rectangular metric grid carrying ground elevation, combined
// surface elevation (ground plus vegetation height) and a mask of target
// cells inside the search polygon.
package raster

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Surface is the prepared elevation model. The grid is north-up: row 0 is the
// northernmost row and rows increase southward. All fields are immutable after
// Prepare returns; workers may read concurrently.
type Surface struct {
	Rows, Cols int
	Cell       float64 // cell edge length in meters
	OriginX    float64 // west edge of column 0
	OriginY    float64 // north edge of row 0

	Ground []float64 // ground elevation per cell, row-major
	Elev   []float64 // surface elevation = ground + vegetation
	Target []bool    // true for cells inside the search polygon
}

// Index returns the row-major slice index for (row, col).
func (s *Surface) Index(row, col int) int {
	return row*s.Cols + col
}

// InBounds reports whether (row, col) addresses a cell of the grid.
func (s *Surface) InBounds(row, col int) bool {
	return row >= 0 && row < s.Rows && col >= 0 && col < s.Cols
}

// CellCenter returns the metric coordinates of the cell's centroid.
func (s *Surface) CellCenter(row, col int) (x, y float64) {
	x = s.OriginX + (float64(col)+0.5)*s.Cell
	y = s.OriginY - (float64(row)+0.5)*s.Cell
	return x, y
}

// CellAt locates the cell enclosing a metric point. ok is false when the
// point falls outside the grid.
func (s *Surface) CellAt(x, y float64) (row, col int, ok bool) {
	col = int(math.Floor((x - s.OriginX) / s.Cell))
	row = int(math.Floor((s.OriginY - y) / s.Cell))
	return row, col, s.InBounds(row, col)
}

// GroundAt returns the ground elevation of a cell.
func (s *Surface) GroundAt(row, col int) float64 {
	return s.Ground[s.Index(row, col)]
}

// SurfaceAt returns the combined surface elevation of a cell.
func (s *Surface) SurfaceAt(row, col int) float64 {
	return s.Elev[s.Index(row, col)]
}

// IsTarget reports whether the cell lies inside the search polygon.
func (s *Surface) IsTarget(row, col int) bool {
	return s.Target[s.Index(row, col)]
}

// TargetCount returns the number of cells inside the search polygon.
func (s *Surface) TargetCount() int {
	n := 0
	for _, t := range s.Target {
		if t {
			n++
		}
	}
	return n
}

// CellAreaM2 returns the area of one cell in square meters.
func (s *Surface) CellAreaM2() float64 {
	return s.Cell * s.Cell
}

// InterpSurface bilinearly interpolates the surface elevation at a metric
// point from the four nearest cell centroids. Points off the centroid
// lattice clamp to the edge rows and columns, so sight lines that graze the
// margin still sample a defined value.
func (s *Surface) InterpSurface(x, y float64) float64 {
	fc := (x-s.OriginX)/s.Cell - 0.5
	fr := (s.OriginY-y)/s.Cell - 0.5

	c0 := int(math.Floor(fc))
	r0 := int(math.Floor(fr))
	tc := fc - float64(c0)
	tr := fr - float64(r0)

	c1 := clampInt(c0+1, 0, s.Cols-1)
	r1 := clampInt(r0+1, 0, s.Rows-1)
	c0 = clampInt(c0, 0, s.Cols-1)
	r0 = clampInt(r0, 0, s.Rows-1)

	v00 := s.Elev[s.Index(r0, c0)]
	v01 := s.Elev[s.Index(r0, c1)]
	v10 := s.Elev[s.Index(r1, c0)]
	v11 := s.Elev[s.Index(r1, c1)]

	top := v00 + (v01-v00)*tc
	bot := v10 + (v11-v10)*tc
	return top + (bot-top)*tr
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Stats summarizes ground elevation over target cells.
type Stats struct {
	Min, Max, Mean float64
	TargetCells    int
}

// TargetStats computes ground-elevation statistics across target cells.
func (s *Surface) TargetStats() Stats {
	vals := make([]float64, 0, 1024)
	for i, t := range s.Target {
		if t {
			vals = append(vals, s.Ground[i])
		}
	}
	if len(vals) == 0 {
		return Stats{}
	}
	return Stats{
		Min:         floats.Min(vals),
		Max:         floats.Max(vals),
		Mean:        stat.Mean(vals, nil),
		TargetCells: len(vals),
	}
}
