package viewshed

import (
	"context"
	"math"
	"testing"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/grid"
	"github.com/ridgeline-data/segment.report/internal/raster"
)

func flatSurface(rows, cols int, cell, elev float64) *raster.Surface {
	s := &raster.Surface{
		Rows:    rows,
		Cols:    cols,
		Cell:    cell,
		OriginX: 0,
		OriginY: float64(rows) * cell,
		Ground:  make([]float64, rows*cols),
		Elev:    make([]float64, rows*cols),
		Target:  make([]bool, rows*cols),
	}
	for i := range s.Ground {
		s.Ground[i] = elev
		s.Elev[i] = elev
		s.Target[i] = true
	}
	return s
}

func centerCandidate(s *raster.Surface) grid.Candidate {
	row, col := s.Rows/2, s.Cols/2
	x, y := s.CellCenter(row, col)
	return grid.Candidate{X: x, Y: y, Row: row, Col: col, Ground: s.GroundAt(row, col)}
}

func TestObserveFlatTerrain(t *testing.T) {
	s := flatSurface(21, 21, 10, 100)
	c := centerCandidate(s)
	vis := observe(s, c, 50, 60)

	if !vis.Contains(s.Index(c.Row, c.Col)) {
		t.Error("observer cell not visible")
	}
	// Cells within range, on and off the cardinals, are unobstructed.
	for _, d := range [][2]int{{0, 5}, {0, -5}, {5, 0}, {-5, 0}, {3, 3}, {-4, 2}} {
		idx := s.Index(c.Row+d[0], c.Col+d[1])
		if !vis.Contains(idx) {
			t.Errorf("cell offset (%d,%d) should be visible on flat terrain", d[0], d[1])
		}
	}
	// Nothing beyond the VLOS disc.
	obsX, obsY := s.CellCenter(c.Row, c.Col)
	vis.ForEach(func(i int) {
		row, col := i/s.Cols, i%s.Cols
		x, y := s.CellCenter(row, col)
		if math.Hypot(x-obsX, y-obsY) > 60+s.Cell {
			t.Errorf("cell (%d,%d) beyond VLOS range marked visible", row, col)
		}
	})
}

func TestObserveWallOcclusion(t *testing.T) {
	s := flatSurface(5, 21, 10, 100)
	// A 100 m wall across column 12.
	for row := 0; row < s.Rows; row++ {
		s.Elev[s.Index(row, 12)] = 200
	}
	c := grid.Candidate{Row: 2, Col: 2, Ground: 100}
	c.X, c.Y = s.CellCenter(2, 2)

	vis := observe(s, c, 10, 500)

	if !vis.Contains(s.Index(2, 12)) {
		t.Error("wall crest should be visible")
	}
	for col := 14; col < 21; col++ {
		if vis.Contains(s.Index(2, col)) {
			t.Errorf("cell (2,%d) behind wall should be hidden", col)
		}
	}
	for col := 3; col < 12; col++ {
		if !vis.Contains(s.Index(2, col)) {
			t.Errorf("cell (2,%d) before wall should be visible", col)
		}
	}
}

func TestObserveEqualElevationCountsVisible(t *testing.T) {
	// A level plateau at observer surface height stays visible all along.
	s := flatSurface(3, 15, 10, 100)
	c := grid.Candidate{Row: 1, Col: 0, Ground: 100}
	c.X, c.Y = s.CellCenter(1, 0)

	vis := observe(s, c, 0, 200)
	for col := 1; col < 15; col++ {
		if !vis.Contains(s.Index(1, col)) {
			t.Errorf("level cell (1,%d) should be visible at zero AGL", col)
		}
	}
}

func TestObserveRangeShorterThanCell(t *testing.T) {
	s := flatSurface(5, 5, 10, 100)
	c := centerCandidate(s)
	vis := observe(s, c, 10, 1)
	if vis.Count() != 1 {
		t.Errorf("sub-cell range visible count = %d, want 1 (observer cell)", vis.Count())
	}
}

func TestComputeParallelMatchesSerial(t *testing.T) {
	s := flatSurface(15, 15, 10, 100)
	var cands []grid.Candidate
	for row := 2; row < 13; row += 4 {
		for col := 2; col < 13; col += 4 {
			x, y := s.CellCenter(row, col)
			cands = append(cands, grid.Candidate{X: x, Y: y, Row: row, Col: col, Ground: 100})
		}
	}
	p := Params{ObserverAGLM: 40, MaxRangeM: 50}

	p.Workers = 1
	serial, err := Compute(context.Background(), s, cands, p)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	p.Workers = 4
	parallel, err := Compute(context.Background(), s, cands, p)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if len(serial) != len(parallel) {
		t.Fatalf("result counts differ: %d vs %d", len(serial), len(parallel))
	}
	for i := range serial {
		if serial[i].Candidate != parallel[i].Candidate {
			t.Fatalf("candidate order differs at %d", i)
		}
		if serial[i].Visible.Count() != parallel[i].Visible.Count() {
			t.Errorf("visible count differs at %d", i)
		}
	}
}

func TestComputeDropsEmptyCandidates(t *testing.T) {
	s := flatSurface(9, 9, 10, 100)
	for i := range s.Target {
		s.Target[i] = false
	}
	c := centerCandidate(s)
	out, err := Compute(context.Background(), s, []grid.Candidate{c}, Params{ObserverAGLM: 40, MaxRangeM: 50})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("candidate with empty visible set retained")
	}
}

func TestComputeCancellation(t *testing.T) {
	s := flatSurface(9, 9, 10, 100)
	var cands []grid.Candidate
	for i := 0; i < 100; i++ {
		cands = append(cands, centerCandidate(s))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Compute(ctx, s, cands, Params{ObserverAGLM: 40, MaxRangeM: 50, BatchSize: 1})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if fault.KindOf(err) != fault.Cancelled {
		t.Errorf("kind = %q, want cancelled", fault.KindOf(err))
	}
}

func TestComputeProgress(t *testing.T) {
	s := flatSurface(9, 9, 10, 100)
	var cands []grid.Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, centerCandidate(s))
	}
	final := 0
	_, err := Compute(context.Background(), s, cands, Params{
		ObserverAGLM: 40,
		MaxRangeM:    50,
		Workers:      1,
		BatchSize:    3,
		Progress: func(done, total int) {
			if total != 10 {
				t.Errorf("total = %d, want 10", total)
			}
			final = done
		},
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if final != 10 {
		t.Errorf("final progress = %d, want 10", final)
	}
}
