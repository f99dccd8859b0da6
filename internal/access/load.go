package access

import (
	"os"
	"path/filepath"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/geo"
)

// LoadLines reads a line vector layer in geographic coordinates and projects
// it into the metric frame. Shapefiles and GeoJSON are supported, dispatched
// on file extension. Coordinates are always taken as WGS84 lon/lat; CRS
// metadata in the file (a .prj or a GeoJSON crs member) is not read.
func LoadLines(path string, frame *geo.Frame) ([]orb.LineString, error) {
	var lines []orb.LineString
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		lines, err = loadShapefile(path)
	case ".json", ".geojson":
		lines, err = loadGeoJSON(path)
	default:
		return nil, fault.New(fault.Config, "unsupported vector format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		for i, pt := range line {
			x, y := frame.Forward(pt[0], pt[1])
			line[i] = orb.Point{x, y}
		}
	}
	return lines, nil
}

func loadShapefile(path string) ([]orb.LineString, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fault.New(fault.Data, "open shapefile %s: %v", path, err)
	}
	defer r.Close()

	var lines []orb.LineString
	for r.Next() {
		_, shape := r.Shape()
		pl, ok := shape.(*shp.PolyLine)
		if !ok {
			continue
		}
		for p := 0; p < int(pl.NumParts); p++ {
			start := pl.Parts[p]
			end := int32(len(pl.Points))
			if p+1 < int(pl.NumParts) {
				end = pl.Parts[p+1]
			}
			line := make(orb.LineString, 0, end-start)
			for _, sp := range pl.Points[start:end] {
				line = append(line, orb.Point{sp.X, sp.Y})
			}
			if len(line) >= 2 {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

func loadGeoJSON(path string) ([]orb.LineString, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.Data, "read geojson %s: %v", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fault.New(fault.Data, "parse geojson %s: %v", path, err)
	}
	var lines []orb.LineString
	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			lines = append(lines, append(orb.LineString(nil), g...))
		case orb.MultiLineString:
			for _, ls := range g {
				lines = append(lines, append(orb.LineString(nil), ls...))
			}
		}
	}
	return lines, nil
}
