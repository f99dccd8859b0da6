package grid

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/ridgeline-data/segment.report/internal/raster"
)

// testSurface builds a 100x100 m grid of 10 m cells with the given polygon
// rasterized as the target mask.
func testSurface(t *testing.T, poly orb.Polygon) *raster.Surface {
	t.Helper()
	s := &raster.Surface{
		Rows:    10,
		Cols:    10,
		Cell:    10,
		OriginX: 0,
		OriginY: 100,
		Ground:  make([]float64, 100),
		Elev:    make([]float64, 100),
		Target:  make([]bool, 100),
	}
	for i := range s.Target {
		row, col := i/10, i%10
		cx, cy := s.CellCenter(row, col)
		s.Target[i] = raster.PointInPolygon(poly, cx, cy)
		s.Ground[i] = float64(row)
		s.Elev[i] = float64(row)
	}
	return s
}

func fullSquare() orb.Polygon {
	return orb.Polygon{orb.Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}, {0, 0}}}
}

func TestGenerateCountAndOrder(t *testing.T) {
	poly := fullSquare()
	s := testSurface(t, poly)

	cands := Generate(s, poly, 20)
	// Lattice at 0,20,40,60,80,100 in both axes: 6x6 points, but points on
	// the east boundary (x=100) and the south boundary (y=0) fall in
	// out-of-range cells, while points on the west (x=0) and north (y=100)
	// edges sit on cell borders that still resolve to in-range cells.
	if len(cands) == 0 {
		t.Fatal("no candidates generated")
	}
	for i := 1; i < len(cands); i++ {
		prev, cur := cands[i-1], cands[i]
		if cur.Y > prev.Y {
			t.Fatalf("northing not descending at %d: %f after %f", i, cur.Y, prev.Y)
		}
		if cur.Y == prev.Y && cur.X <= prev.X {
			t.Fatalf("easting not ascending within row at %d", i)
		}
	}
}

func TestGenerateInsideOnly(t *testing.T) {
	// Small polygon in the southwest quadrant.
	poly := orb.Polygon{orb.Ring{{5, 5}, {45, 5}, {45, 45}, {5, 45}, {5, 5}}}
	s := testSurface(t, poly)

	cands := Generate(s, poly, 10)
	for _, c := range cands {
		if !s.IsTarget(c.Row, c.Col) {
			t.Errorf("candidate (%f, %f) in non-target cell (%d, %d)", c.X, c.Y, c.Row, c.Col)
		}
		if c.X > 45 || c.Y > 45 {
			t.Errorf("candidate (%f, %f) outside polygon bound", c.X, c.Y)
		}
	}
	if len(cands) == 0 {
		t.Fatal("expected candidates inside polygon")
	}
}

func TestGenerateGroundFromCell(t *testing.T) {
	poly := fullSquare()
	s := testSurface(t, poly)
	for _, c := range Generate(s, poly, 25) {
		if c.Ground != float64(c.Row) {
			t.Errorf("candidate ground = %f, want %f", c.Ground, float64(c.Row))
		}
	}
}

func TestDensifyAlongLine(t *testing.T) {
	poly := fullSquare()
	s := testSurface(t, poly)
	base := Generate(s, poly, 50)
	n := len(base)

	line := orb.LineString{{5, 55}, {95, 55}}
	out := Densify(s, base, []orb.LineString{line}, 20)
	if len(out) <= n {
		t.Fatalf("Densify added no candidates: %d -> %d", n, len(out))
	}

	// No two candidates share a cell.
	seen := map[[2]int]bool{}
	for _, c := range out {
		key := [2]int{c.Row, c.Col}
		if seen[key] {
			t.Fatalf("duplicate candidate cell (%d, %d)", c.Row, c.Col)
		}
		seen[key] = true
	}
}

func TestDensifyOutsidePolygonIgnored(t *testing.T) {
	poly := orb.Polygon{orb.Ring{{5, 5}, {45, 5}, {45, 45}, {5, 45}, {5, 5}}}
	s := testSurface(t, poly)
	base := Generate(s, poly, 10)
	n := len(base)

	// Line entirely northeast of the polygon.
	line := orb.LineString{{60, 60}, {95, 95}}
	out := Densify(s, base, []orb.LineString{line}, 10)
	if len(out) != n {
		t.Errorf("Densify added candidates outside polygon: %d -> %d", n, len(out))
	}
}
