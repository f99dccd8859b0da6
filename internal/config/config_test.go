package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ridgeline-data/segment.report/internal/fault"
)

func validJSON() string {
	return `{
		"name": "rattlesnake ridge",
		"search_polygon": {"type": "Polygon", "coordinates":
			[[[-122.1, 46.9], [-121.9, 46.9], [-121.9, 47.1], [-122.1, 47.1], [-122.1, 46.9]]]},
		"drone_agl_altitude_m": 120,
		"preferred_segment_acres": 40,
		"max_vlos_m": 600,
		"access_set": ["road", "trail"],
		"access_buffer_m": 50,
		"grid_spacing_m": 100,
		"dem_path": "/data/dem.tif"
	}`
}

func TestParseValid(t *testing.T) {
	p, err := Parse([]byte(validJSON()))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "rattlesnake ridge" {
		t.Errorf("Name = %q", p.Name)
	}
	poly, err := p.Polygon()
	if err != nil {
		t.Fatalf("Polygon: %v", err)
	}
	if len(poly[0]) != 5 {
		t.Errorf("ring has %d points, want 5", len(poly[0]))
	}
	if !p.AllowedAccess()["road"] || p.AllowedAccess()["off_road"] {
		t.Error("AllowedAccess wrong")
	}
	if p.RasterBudget() != DefaultMaxRasterCells {
		t.Errorf("RasterBudget = %d, want default", p.RasterBudget())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.json")
	if err := os.WriteFile(path, []byte(validJSON()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); fault.KindOf(err) != fault.Config {
		t.Errorf("missing file kind = %q, want config", fault.KindOf(err))
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s string) string
		wantMsg string
	}{
		{"zero altitude", replace(`"drone_agl_altitude_m": 120`, `"drone_agl_altitude_m": 0`), "drone_agl_altitude_m"},
		{"altitude over 500", replace(`"drone_agl_altitude_m": 120`, `"drone_agl_altitude_m": 501`), "drone_agl_altitude_m"},
		{"negative segment size", replace(`"preferred_segment_acres": 40`, `"preferred_segment_acres": -1`), "preferred_segment_acres"},
		{"zero vlos", replace(`"max_vlos_m": 600`, `"max_vlos_m": 0`), "max_vlos_m"},
		{"empty access set", replace(`"access_set": ["road", "trail"]`, `"access_set": []`), "access_set"},
		{"bad access mode", replace(`"access_set": ["road", "trail"]`, `"access_set": ["helicopter"]`), "helicopter"},
		{"negative buffer", replace(`"access_buffer_m": 50`, `"access_buffer_m": -5`), "access_buffer_m"},
		{"zero spacing", replace(`"grid_spacing_m": 100`, `"grid_spacing_m": 0`), "grid_spacing_m"},
		{"missing dem", replace(`"dem_path": "/data/dem.tif"`, `"dem_path": ""`), "dem_path"},
		{"missing name", replace(`"name": "rattlesnake ridge"`, `"name": ""`), "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(validJSON())))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if fault.KindOf(err) != fault.Config {
				t.Errorf("kind = %q, want config", fault.KindOf(err))
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func replace(old, new string) func(string) string {
	return func(s string) string { return strings.Replace(s, old, new, 1) }
}

func TestValidatePolygonRules(t *testing.T) {
	openRing := strings.Replace(validJSON(),
		`[[[-122.1, 46.9], [-121.9, 46.9], [-121.9, 47.1], [-122.1, 47.1], [-122.1, 46.9]]]`,
		`[[[-122.1, 46.9], [-121.9, 46.9], [-121.9, 47.1], [-122.1, 47.1]]]`, 1)
	if _, err := Parse([]byte(openRing)); err == nil {
		t.Error("open ring accepted")
	}

	notPolygon := strings.Replace(validJSON(),
		`{"type": "Polygon", "coordinates":
			[[[-122.1, 46.9], [-121.9, 46.9], [-121.9, 47.1], [-122.1, 47.1], [-122.1, 46.9]]]}`,
		`{"type": "Point", "coordinates": [-122.0, 47.0]}`, 1)
	if _, err := Parse([]byte(notPolygon)); err == nil {
		t.Error("point geometry accepted as search polygon")
	}
}

func TestParseGarbage(t *testing.T) {
	if _, err := Parse([]byte("{not json")); fault.KindOf(err) != fault.Config {
		t.Error("garbage input should be a config error")
	}
}
