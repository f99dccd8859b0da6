// segment-plot renders an exported segments GeoJSON file as a PNG overview
// map: one coloured outline per segment with its launch point marked.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	input  = flag.String("in", "", "Segments GeoJSON file (FeatureCollection)")
	output = flag.String("out", "segments.png", "Output PNG file")
	width  = flag.Float64("width", 10, "Plot width in inches")
)

func main() {
	flag.Parse()
	if *input == "" {
		flag.Usage()
		os.Exit(2)
	}

	raw, err := os.ReadFile(*input)
	if err != nil {
		log.Fatalf("read %s: %v", *input, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		log.Fatalf("parse %s: %v", *input, err)
	}
	if len(fc.Features) == 0 {
		log.Fatalf("%s contains no features", *input)
	}

	p := plot.New()
	p.Title.Text = "Search segments"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	colors := segmentColors(len(fc.Features))
	for i, f := range fc.Features {
		mp, ok := f.Geometry.(orb.MultiPolygon)
		if !ok {
			log.Fatalf("feature %d geometry is %T, want MultiPolygon", i, f.Geometry)
		}
		label := fmt.Sprintf("Segment %v", f.Properties["sequence"])
		var labelled bool
		for _, poly := range mp {
			for _, ring := range poly {
				line, err := plotter.NewLine(ringXYs(ring))
				if err != nil {
					log.Fatalf("segment %d outline: %v", i, err)
				}
				line.Color = colors[i]
				line.Width = vg.Points(1.5)
				p.Add(line)
				if !labelled {
					p.Legend.Add(label, line)
					labelled = true
				}
			}
		}

		lon, lat, ok := launchPoint(f.Properties["launch_point"])
		if ok {
			scatter, err := plotter.NewScatter(plotter.XYs{{X: lon, Y: lat}})
			if err != nil {
				log.Fatalf("segment %d launch point: %v", i, err)
			}
			scatter.GlyphStyle.Shape = draw.PyramidGlyph{}
			scatter.GlyphStyle.Radius = vg.Points(4)
			scatter.GlyphStyle.Color = colors[i]
			p.Add(scatter)
		}
	}

	p.Legend.Top = true
	p.Legend.Left = true

	if err := p.Save(vg.Length(*width)*vg.Inch, vg.Length(*width)*vg.Inch, *output); err != nil {
		log.Fatalf("save %s: %v", *output, err)
	}
	log.Printf("wrote %s (%d segments)", *output, len(fc.Features))
}

func ringXYs(ring orb.Ring) plotter.XYs {
	xys := make(plotter.XYs, len(ring))
	for i, pt := range ring {
		xys[i] = plotter.XY{X: pt[0], Y: pt[1]}
	}
	return xys
}

// launchPoint unwraps the nested launch_point property {lon, lat}.
func launchPoint(v interface{}) (lon, lat float64, ok bool) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return 0, 0, false
	}
	lon, lonOK := asFloat(m["lon"])
	lat, latOK := asFloat(m["lat"])
	return lon, lat, lonOK && latOK
}

// asFloat unwraps a GeoJSON property number, which decodes as float64.
func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// segmentColors spreads hues evenly so adjacent segments stay distinct.
func segmentColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	out := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.4)
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
