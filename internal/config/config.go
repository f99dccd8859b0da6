// Package config defines the immutable project configuration accepted at
// project creation and the knobs tuning a planning run.
package config

import (
	"encoding/json"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ridgeline-data/segment.report/internal/access"
	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/geo"
)

// Project is one search-planning job: the search polygon, the drone and
// access constraints, and the input data paths. Once accepted it never
// changes; recalculation replaces the project's segments, not its config.
type Project struct {
	Name string `json:"name"`

	// SearchPolygon is WGS84 lon/lat, exterior ring closed.
	SearchPolygon *geojson.Geometry `json:"search_polygon"`

	DroneAGLAltitudeM     float64  `json:"drone_agl_altitude_m"`
	PreferredSegmentAcres float64  `json:"preferred_segment_acres"`
	MaxVLOSM              float64  `json:"max_vlos_m"`
	AccessSet             []string `json:"access_set"`
	AccessBufferM         float64  `json:"access_buffer_m"`
	GridSpacingM          float64  `json:"grid_spacing_m"`

	DEMPath        string `json:"dem_path"`
	VegetationPath string `json:"vegetation_path,omitempty"`
	RoadsPath      string `json:"roads_path,omitempty"`
	TrailsPath     string `json:"trails_path,omitempty"`

	// DensifyAccess adds extra candidates along road and trail features at
	// half the grid spacing.
	DensifyAccess bool `json:"densify_access,omitempty"`

	// Workers caps the viewshed pool; 0 uses all cores.
	Workers int `json:"workers,omitempty"`

	// MaxRasterCells bounds rows*cols of the prepared surface; the raster
	// is coarsened when the clipped DEM exceeds it. 0 applies the default.
	MaxRasterCells int `json:"max_raster_cells,omitempty"`
}

// DefaultMaxRasterCells keeps the surface raster near 200 MB of float64s.
const DefaultMaxRasterCells = 25_000_000

// Load reads and validates a project configuration file.
func Load(path string) (*Project, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.New(fault.Config, "read config %s: %v", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a project configuration document.
func Parse(raw []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fault.New(fault.Config, "parse config: %v", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every constraint the planner assumes downstream.
func (p *Project) Validate() error {
	if p.Name == "" {
		return fault.New(fault.Config, "project name is required")
	}
	poly, err := p.Polygon()
	if err != nil {
		return err
	}
	if err := geo.ValidatePolygon(poly); err != nil {
		return err
	}
	if p.DroneAGLAltitudeM <= 0 || p.DroneAGLAltitudeM > 500 {
		return fault.New(fault.Config, "drone_agl_altitude_m %.1f outside (0, 500]", p.DroneAGLAltitudeM)
	}
	if p.PreferredSegmentAcres <= 0 {
		return fault.New(fault.Config, "preferred_segment_acres must be positive")
	}
	if p.MaxVLOSM <= 0 {
		return fault.New(fault.Config, "max_vlos_m must be positive")
	}
	if len(p.AccessSet) == 0 {
		return fault.New(fault.Config, "access_set must not be empty")
	}
	for _, mode := range p.AccessSet {
		if !access.IsValidMode(mode) {
			return fault.New(fault.Config, "unknown access mode %q", mode)
		}
	}
	if p.AccessBufferM < 0 {
		return fault.New(fault.Config, "access_buffer_m must not be negative")
	}
	if p.GridSpacingM <= 0 {
		return fault.New(fault.Config, "grid_spacing_m must be positive")
	}
	if p.DEMPath == "" {
		return fault.New(fault.Config, "dem_path is required")
	}
	if p.Workers < 0 {
		return fault.New(fault.Config, "workers must not be negative")
	}
	if p.MaxRasterCells < 0 {
		return fault.New(fault.Config, "max_raster_cells must not be negative")
	}
	return nil
}

// Polygon returns the search polygon as geometry.
func (p *Project) Polygon() (orb.Polygon, error) {
	if p.SearchPolygon == nil {
		return nil, fault.New(fault.Config, "search_polygon is required")
	}
	poly, ok := p.SearchPolygon.Geometry().(orb.Polygon)
	if !ok {
		return nil, fault.New(fault.Config, "search_polygon must be a Polygon, got %s", p.SearchPolygon.Type)
	}
	return poly, nil
}

// AllowedAccess returns the access set as a lookup map.
func (p *Project) AllowedAccess() map[string]bool {
	m := make(map[string]bool, len(p.AccessSet))
	for _, mode := range p.AccessSet {
		m[mode] = true
	}
	return m
}

// RasterBudget returns the configured cell bound or the default.
func (p *Project) RasterBudget() int {
	if p.MaxRasterCells > 0 {
		return p.MaxRasterCells
	}
	return DefaultMaxRasterCells
}
