// Package kml renders planned search segments as a KML document for field
// GPS units and Google Earth. Coordinates are geographic WGS84.
package kml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/ridgeline-data/segment.report/internal/access"
	"github.com/ridgeline-data/segment.report/internal/fault"
)

// Feature is one segment to render: its polygon footprint plus the launch
// point placemark.
type Feature struct {
	Name        string
	AccessMode  string
	LaunchLon   float64
	LaunchLat   float64
	GroundElevM float64
	AreaAcres   float64
	Geometry    orb.MultiPolygon
}

// Polygon fill colours per access mode, KML aabbggrr order.
var modeColors = map[string]string{
	access.Road:    "7f00ff00",
	access.Trail:   "7f00ffff",
	access.OffRoad: "7f0000ff",
}

const defaultColor = "7fcccccc"

type kmlDoc struct {
	XMLName  xml.Name `xml:"kml"`
	Xmlns    string   `xml:"xmlns,attr"`
	Document document `xml:"Document"`
}

type document struct {
	Name       string      `xml:"name"`
	Styles     []style     `xml:"Style"`
	Placemarks []placemark `xml:"Placemark"`
}

type style struct {
	ID        string     `xml:"id,attr"`
	PolyStyle *polyStyle `xml:"PolyStyle,omitempty"`
	LineStyle *lineStyle `xml:"LineStyle,omitempty"`
}

type polyStyle struct {
	Color string `xml:"color"`
}

type lineStyle struct {
	Color string `xml:"color"`
	Width int    `xml:"width"`
}

type placemark struct {
	Name          string         `xml:"name"`
	Description   string         `xml:"description,omitempty"`
	StyleURL      string         `xml:"styleUrl,omitempty"`
	MultiGeometry *multiGeometry `xml:"MultiGeometry,omitempty"`
	Point         *point         `xml:"Point,omitempty"`
}

type multiGeometry struct {
	Polygons []polygon `xml:"Polygon"`
}

type polygon struct {
	OuterBoundary boundary   `xml:"outerBoundaryIs"`
	InnerBoundary []boundary `xml:"innerBoundaryIs,omitempty"`
}

type boundary struct {
	LinearRing linearRing `xml:"LinearRing"`
}

type linearRing struct {
	Coordinates string `xml:"coordinates"`
}

type point struct {
	Coordinates string `xml:"coordinates"`
}

// Render serialises the features into a complete KML document.
func Render(docName string, feats []Feature) ([]byte, error) {
	doc := kmlDoc{
		Xmlns: "http://www.opengis.net/kml/2.2",
		Document: document{
			Name: docName,
			Styles: []style{
				{ID: "road", PolyStyle: &polyStyle{modeColors[access.Road]}, LineStyle: &lineStyle{"ff00ff00", 2}},
				{ID: "trail", PolyStyle: &polyStyle{modeColors[access.Trail]}, LineStyle: &lineStyle{"ff00ffff", 2}},
				{ID: "off_road", PolyStyle: &polyStyle{modeColors[access.OffRoad]}, LineStyle: &lineStyle{"ff0000ff", 2}},
			},
		},
	}

	for _, f := range feats {
		if len(f.Geometry) == 0 {
			return nil, fault.New(fault.Internal, "feature %s has no geometry", f.Name)
		}
		mg := &multiGeometry{}
		for _, poly := range f.Geometry {
			if len(poly) == 0 {
				continue
			}
			kp := polygon{OuterBoundary: boundary{linearRing{ringCoords(poly[0])}}}
			for _, hole := range poly[1:] {
				kp.InnerBoundary = append(kp.InnerBoundary, boundary{linearRing{ringCoords(hole)}})
			}
			mg.Polygons = append(mg.Polygons, kp)
		}
		desc := fmt.Sprintf("access: %s, area: %.1f acres, launch elevation: %.0f m",
			f.AccessMode, f.AreaAcres, f.GroundElevM)
		doc.Document.Placemarks = append(doc.Document.Placemarks,
			placemark{
				Name:          f.Name,
				Description:   desc,
				StyleURL:      "#" + styleID(f.AccessMode),
				MultiGeometry: mg,
			},
			placemark{
				Name:  f.Name + " launch",
				Point: &point{fmt.Sprintf("%.6f,%.6f,0", f.LaunchLon, f.LaunchLat)},
			},
		)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fault.New(fault.Internal, "encode kml: %v", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func styleID(mode string) string {
	if _, ok := modeColors[mode]; ok {
		return mode
	}
	return "off_road"
}

func ringCoords(ring orb.Ring) string {
	var sb strings.Builder
	for i, pt := range ring {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%.6f,%.6f,0", pt[0], pt[1])
	}
	return sb.String()
}
