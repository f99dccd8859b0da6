// Package access classifies candidate launch points by how a ground crew can
// reach them: near a road, near a trail, on foot inside the search area, or
// anywhere. Road and trail layers are optional line vectors; proximity is a
// flat buffer distance around the features.
package access

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/ridgeline-data/segment.report/internal/grid"
)

// Access mode constants, from most to least constrained reachability.
const (
	Road     = "road"
	Trail    = "trail"
	OffRoad  = "off_road"
	Anywhere = "anywhere"
)

// ValidModes lists every accepted access mode value.
var ValidModes = []string{Road, Trail, OffRoad, Anywhere}

// IsValidMode checks if the given mode is a known access mode.
func IsValidMode(mode string) bool {
	for _, m := range ValidModes {
		if mode == m {
			return true
		}
	}
	return false
}

// Priority ranks modes for tie-breaking: road beats trail beats off_road.
// Anywhere is synthetic and ranks lowest.
func Priority(mode string) int {
	switch mode {
	case Road:
		return 3
	case Trail:
		return 2
	case OffRoad:
		return 1
	default:
		return 0
	}
}

// Layers holds the optional road and trail geometries in metric coordinates.
type Layers struct {
	Roads  []orb.LineString
	Trails []orb.LineString
}

// Classify labels each candidate with its most permissive access mode and
// retains those whose mode is in the allowed set. An allowed set containing
// "anywhere" accepts every candidate; the computed mode is preserved either
// way. Candidate order is unchanged.
func Classify(cands []grid.Candidate, layers Layers, bufferM float64, allowed map[string]bool) []grid.Candidate {
	wildcard := allowed[Anywhere]
	out := make([]grid.Candidate, 0, len(cands))
	for _, c := range cands {
		c.Access = classifyPoint(orb.Point{c.X, c.Y}, layers, bufferM)
		if wildcard || allowed[c.Access] {
			out = append(out, c)
		}
	}
	return out
}

func classifyPoint(pt orb.Point, layers Layers, bufferM float64) string {
	if withinBuffer(pt, layers.Roads, bufferM) {
		return Road
	}
	if withinBuffer(pt, layers.Trails, bufferM) {
		return Trail
	}
	// Candidates are generated inside the polygon, so on-foot access is
	// always available.
	return OffRoad
}

func withinBuffer(pt orb.Point, lines []orb.LineString, bufferM float64) bool {
	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		if planar.DistanceFrom(line, pt) <= bufferM {
			return true
		}
	}
	return false
}
