package cover

import (
	"math"
	"testing"

	"github.com/ridgeline-data/segment.report/internal/access"
	"github.com/ridgeline-data/segment.report/internal/grid"
	"github.com/ridgeline-data/segment.report/internal/viewshed"
)

func setOf(n int, idxs ...int) *viewshed.BitSet {
	b := viewshed.NewBitSet(n)
	for _, i := range idxs {
		b.Add(i)
	}
	return b
}

func rangeSet(n, lo, hi int) *viewshed.BitSet {
	b := viewshed.NewBitSet(n)
	for i := lo; i < hi; i++ {
		b.Add(i)
	}
	return b
}

func result(mode string, vis *viewshed.BitSet) viewshed.Result {
	return viewshed.Result{
		Candidate: grid.Candidate{Access: mode},
		Visible:   vis,
	}
}

func TestSelectGreedyOrder(t *testing.T) {
	const n = 100
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 0, 10)),  // 10 cells
		result(access.OffRoad, rangeSet(n, 0, 40)),  // 40 cells, superset
		result(access.OffRoad, rangeSet(n, 40, 60)), // 20 fresh cells
	}
	out := Select(results, n, 50)

	if len(out.Selections) != 2 {
		t.Fatalf("selected %d, want 2", len(out.Selections))
	}
	if out.Selections[0].Gain != 40 || out.Selections[1].Gain != 20 {
		t.Errorf("gains = %d, %d; want 40, 20", out.Selections[0].Gain, out.Selections[1].Gain)
	}
	if math.Abs(out.Fraction-0.6) > 1e-9 {
		t.Errorf("fraction = %f, want 0.6", out.Fraction)
	}
}

func TestSelectAssignedDisjoint(t *testing.T) {
	const n = 100
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 0, 30)),
		result(access.OffRoad, rangeSet(n, 20, 50)),
		result(access.OffRoad, rangeSet(n, 45, 80)),
	}
	out := Select(results, n, 30)
	for i := range out.Selections {
		for j := i + 1; j < len(out.Selections); j++ {
			if out.Selections[i].Assigned.IntersectCount(out.Selections[j].Assigned) != 0 {
				t.Errorf("selections %d and %d overlap", i, j)
			}
		}
	}
	// Assigned cells sum to covered count.
	sum := 0
	for _, s := range out.Selections {
		sum += s.Assigned.Count()
	}
	if sum != out.Covered.Count() {
		t.Errorf("assigned sum %d != covered %d", sum, out.Covered.Count())
	}
}

func TestSelectStopThreshold(t *testing.T) {
	const n = 1000
	// Preferred 500 cells: cutoff is 10 cells.
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 0, 500)),
		result(access.OffRoad, rangeSet(n, 500, 509)), // 9 < 10, below cutoff
	}
	out := Select(results, n, 500)
	if len(out.Selections) != 1 {
		t.Fatalf("selected %d, want 1 (second below min useful gain)", len(out.Selections))
	}
}

func TestSelectFloorOfOneCell(t *testing.T) {
	const n = 10
	// Preferred 10 cells: 2% is 0.2, floored to 1 cell.
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 0, 5)),
		result(access.OffRoad, rangeSet(n, 5, 6)),
	}
	out := Select(results, n, 10)
	if len(out.Selections) != 2 {
		t.Fatalf("selected %d, want 2 (single-cell gain still useful)", len(out.Selections))
	}
}

func TestSelectAccessTieBreak(t *testing.T) {
	const n = 100
	// Identical disjoint gains; road must beat trail, trail beat off_road.
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 0, 10)),
		result(access.Road, rangeSet(n, 10, 20)),
		result(access.Trail, rangeSet(n, 20, 30)),
	}
	out := Select(results, n, 10)
	if len(out.Selections) != 3 {
		t.Fatalf("selected %d, want 3", len(out.Selections))
	}
	want := []string{access.Road, access.Trail, access.OffRoad}
	for i, s := range out.Selections {
		if s.Result.Candidate.Access != want[i] {
			t.Errorf("selection %d access = %q, want %q", i, s.Result.Candidate.Access, want[i])
		}
	}
}

func TestSelectIndexTieBreak(t *testing.T) {
	const n = 100
	results := []viewshed.Result{
		result(access.Road, rangeSet(n, 0, 10)),
		result(access.Road, rangeSet(n, 10, 20)),
	}
	out := Select(results, n, 10)
	if out.Selections[0].Assigned.Contains(10) {
		t.Error("index tie-break should pick the earlier candidate first")
	}
}

func TestSelectOversizePenalty(t *testing.T) {
	const n = 1000
	// P = 10. A covers 12 cells (score capped at 10), B covers exactly 10
	// (score 10): tie goes to larger gain, so A first.
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 100, 110)),
		result(access.OffRoad, rangeSet(n, 0, 12)),
	}
	out := Select(results, n, 10)
	if out.Selections[0].Gain != 12 {
		t.Errorf("first gain = %d, want 12", out.Selections[0].Gain)
	}
}

func TestSelectEmptyInputs(t *testing.T) {
	out := Select(nil, 100, 10)
	if len(out.Selections) != 0 || out.Fraction != 0 {
		t.Errorf("empty input gave %d selections, fraction %f", len(out.Selections), out.Fraction)
	}
	out = Select([]viewshed.Result{result(access.Road, setOf(10, 1))}, 0, 10)
	if len(out.Selections) != 0 {
		t.Error("zero target cells should select nothing")
	}
}

func TestSelectMonotoneCoverage(t *testing.T) {
	const n = 200
	results := []viewshed.Result{
		result(access.OffRoad, rangeSet(n, 0, 60)),
		result(access.OffRoad, rangeSet(n, 40, 120)),
		result(access.OffRoad, rangeSet(n, 100, 180)),
	}
	out := Select(results, n, 50)
	prev := 0
	total := 0
	for _, s := range out.Selections {
		total += s.Assigned.Count()
		if total <= prev {
			t.Error("coverage not strictly increasing")
		}
		prev = total
	}
}
