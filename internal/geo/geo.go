// Package geo resolves the metric working frame for a search polygon and
// provides the paired transforms between WGS84 geographic coordinates and
// that frame. UTM zones cover latitudes up to 84N and down to 80S; beyond
// those the universal polar stereographic grids take over.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/wroge/wgs84"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/units"
)

// Frame is a resolved metric projection. Forward maps lon/lat degrees to
// easting/northing meters, Inverse maps back. Frames are immutable and safe
// for concurrent use.
type Frame struct {
	EPSG    int
	forward func(lon, lat float64) (x, y float64)
	inverse func(x, y float64) (lon, lat float64)
}

// Forward projects geographic degrees into the frame's metric coordinates.
func (f *Frame) Forward(lon, lat float64) (x, y float64) {
	return f.forward(lon, lat)
}

// Inverse unprojects metric coordinates back to geographic degrees.
func (f *Frame) Inverse(x, y float64) (lon, lat float64) {
	return f.inverse(x, y)
}

// ToMetric projects a geographic polygon into the frame.
func (f *Frame) ToMetric(poly orb.Polygon) orb.Polygon {
	return f.mapPolygon(poly, f.forward)
}

// ToGeographic unprojects a metric polygon back to WGS84.
func (f *Frame) ToGeographic(poly orb.Polygon) orb.Polygon {
	return f.mapPolygon(poly, f.inverse)
}

func (f *Frame) mapPolygon(poly orb.Polygon, fn func(a, b float64) (float64, float64)) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for ri, ring := range poly {
		r := make(orb.Ring, len(ring))
		for pi, pt := range ring {
			a, b := fn(pt[0], pt[1])
			r[pi] = orb.Point{a, b}
		}
		out[ri] = r
	}
	return out
}

// ToGeographicMulti unprojects every polygon of a metric multipolygon.
func (f *Frame) ToGeographicMulti(mp orb.MultiPolygon) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		out[i] = f.ToGeographic(poly)
	}
	return out
}

// Resolve picks the metric projection for a geographic search polygon. The
// UTM zone containing the polygon centroid is used for the whole polygon
// even when it spans zone boundaries. Centroids above 84N or below 80S fall
// through to the polar stereographic grids (EPSG 5041/5042).
func Resolve(poly orb.Polygon) (*Frame, error) {
	if err := ValidatePolygon(poly); err != nil {
		return nil, err
	}
	centroid, _ := planar.CentroidArea(poly)
	lon, lat := centroid[0], centroid[1]
	if lat < -89.9 || lat > 89.9 {
		return nil, fault.New(fault.Config, "centroid latitude %.4f outside [-89.9, 89.9]", lat)
	}

	if lat > 84 {
		return upsFrame(true), nil
	}
	if lat < -80 {
		return upsFrame(false), nil
	}

	zone := int((lon+180)/6) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	northern := lat >= 0

	epsg := 32600 + zone
	if !northern {
		epsg = 32700 + zone
	}
	fwd := wgs84.LonLat().To(wgs84.UTM(float64(zone), northern))
	inv := wgs84.UTM(float64(zone), northern).To(wgs84.LonLat())
	return &Frame{
		EPSG: epsg,
		forward: func(lon, lat float64) (float64, float64) {
			x, y, _ := fwd(lon, lat, 0)
			return x, y
		},
		inverse: func(x, y float64) (float64, float64) {
			lon, lat, _ := inv(x, y, 0)
			return lon, lat
		},
	}, nil
}

// AreaM2 returns the planar area of a metric polygon in square meters.
func AreaM2(polyMetric orb.Polygon) float64 {
	return math.Abs(planar.Area(polyMetric))
}

// AreaAcres returns the planar area of a metric polygon in acres.
func AreaAcres(polyMetric orb.Polygon) float64 {
	return units.AcresFromSquareMeters(AreaM2(polyMetric))
}

// ValidatePolygon checks the exterior ring of a geographic search polygon:
// at least four vertices, closed, and free of self-intersections.
func ValidatePolygon(poly orb.Polygon) error {
	if len(poly) == 0 {
		return fault.New(fault.Config, "search polygon has no exterior ring")
	}
	ring := poly[0]
	if len(ring) < 4 {
		return fault.New(fault.Config, "search polygon exterior ring has %d vertices, need at least 4", len(ring))
	}
	if !ring.Closed() {
		return fault.New(fault.Config, "search polygon exterior ring is not closed")
	}
	if selfIntersects(ring) {
		return fault.New(fault.Config, "search polygon exterior ring self-intersects")
	}
	return nil
}

// selfIntersects tests every non-adjacent segment pair of the ring. The ring
// sizes here are tiny so the quadratic scan is fine.
func selfIntersects(ring orb.Ring) bool {
	n := len(ring) - 1 // closed: last point repeats the first
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// Skip adjacent segments, including the wrap between last and first.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}
