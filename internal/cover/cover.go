// Package cover runs greedy maximum coverage over the candidates' visible
// cell sets, producing the ordered segment sequence.
package cover

import (
	"math"

	"github.com/ridgeline-data/segment.report/internal/access"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
	"github.com/ridgeline-data/segment.report/internal/viewshed"
)

// Selection is one chosen launch candidate with the cells newly assigned to
// it. Assigned sets are pairwise disjoint across the sequence.
type Selection struct {
	Result   viewshed.Result
	Assigned *viewshed.BitSet
	Gain     int
}

// Outcome is the full selector result.
type Outcome struct {
	Selections []Selection
	Covered    *viewshed.BitSet
	Fraction   float64 // |covered| / total target cells
}

// Select repeatedly picks the candidate maximizing gain times a size penalty
// that flattens the score of segments beyond the preferred cell count.
// Ties fall to larger gain, then access priority, then smaller index. The
// loop stops when the best gain drops under 2% of the preferred size
// (at least one cell).
func Select(results []viewshed.Result, totalTarget, preferredCells int) Outcome {
	if len(results) == 0 || totalTarget == 0 {
		return Outcome{Covered: viewshed.NewBitSet(0)}
	}
	covered := viewshed.NewBitSet(results[0].Visible.Len())
	minUseful := math.Max(1, 0.02*float64(preferredCells))

	var sels []Selection
	for {
		best := -1
		bestScore := math.Inf(-1)
		bestGain := 0
		for i, r := range results {
			gain := r.Visible.AndNotCount(covered)
			if gain == 0 {
				continue
			}
			score := float64(gain) * penalty(gain, preferredCells)
			if better(score, gain, r, bestScore, bestGain, best, results) {
				best, bestScore, bestGain = i, score, gain
			}
		}
		if best < 0 || float64(bestGain) < minUseful {
			break
		}
		assigned := results[best].Visible.AndNot(covered)
		covered.UnionInPlace(results[best].Visible)
		sels = append(sels, Selection{
			Result:   results[best],
			Assigned: assigned,
			Gain:     bestGain,
		})
		monitoring.Debugf("cover: selected candidate %d gain %d covered %d/%d",
			best, bestGain, covered.Count(), totalTarget)
	}

	return Outcome{
		Selections: sels,
		Covered:    covered,
		Fraction:   float64(covered.Count()) / float64(totalTarget),
	}
}

// penalty keeps segments at or under the preferred size at full score and
// scales oversized ones down to a flat preferred-size score.
func penalty(gain, preferred int) float64 {
	if gain <= preferred {
		return 1
	}
	return float64(preferred) / float64(gain)
}

func better(score float64, gain int, r viewshed.Result, bestScore float64, bestGain, bestIdx int, results []viewshed.Result) bool {
	if bestIdx < 0 {
		return true
	}
	if score != bestScore {
		return score > bestScore
	}
	if gain != bestGain {
		return gain > bestGain
	}
	pr := access.Priority(r.Candidate.Access)
	pb := access.Priority(results[bestIdx].Candidate.Access)
	if pr != pb {
		return pr > pb
	}
	// Smaller index wins; the loop visits in ascending order.
	return false
}
