package db

import (
	"encoding/json"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/pipeline"
)

// Segment is one stored search segment row. Geometry is GeoJSON in WGS84.
type Segment struct {
	ID          int64
	ProjectID   string
	Sequence    int
	AccessMode  string
	LaunchLon   float64
	LaunchLat   float64
	GroundElevM float64
	AreaM2      float64
	AreaAcres   float64
	Geometry    string
	CreatedAt   time.Time
}

// SaveResult replaces the project's segments with a completed run's output
// and records the run summary on the project row. Everything happens in one
// transaction so readers never see a half-written sequence.
func (db *DB) SaveResult(projectID string, res *pipeline.Result) error {
	counters, err := json.Marshal(res.Counters)
	if err != nil {
		return fault.New(fault.Internal, "marshal counters: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fault.New(fault.Internal, "begin save: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM segments WHERE project_id = ?`, projectID); err != nil {
		return fault.New(fault.Internal, "clear segments: %v", err)
	}
	for _, seg := range res.Segments {
		geom, err := json.Marshal(geojson.NewGeometry(seg.Geographic))
		if err != nil {
			return fault.New(fault.Internal, "marshal segment %d geometry: %v", seg.Sequence, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO segments
			   (project_id, sequence, access_mode, launch_lon, launch_lat,
			    ground_elev_m, area_m2, area_acres, geometry)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, seg.Sequence, seg.AccessMode, seg.LaunchLon, seg.LaunchLat,
			seg.GroundElevM, seg.AreaM2, seg.AreaAcres, string(geom),
		); err != nil {
			return fault.New(fault.Internal, "insert segment %d: %v", seg.Sequence, err)
		}
	}

	if _, err := tx.Exec(
		`UPDATE projects
		 SET epsg = ?, cell_size_m = ?, coverage_fraction = ?, counters = ?,
		     error_message = '', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		res.EPSG, res.CellSizeM, res.CoverageFraction, string(counters), projectID,
	); err != nil {
		return fault.New(fault.Internal, "update project summary: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return fault.New(fault.Internal, "commit save: %v", err)
	}
	return nil
}

// ListSegments returns a project's segments in sequence order.
func (db *DB) ListSegments(projectID string) ([]Segment, error) {
	rows, err := db.Query(
		`SELECT segment_id, project_id, sequence, access_mode, launch_lon, launch_lat,
		        ground_elev_m, area_m2, area_acres, geometry, created_at
		 FROM segments WHERE project_id = ? ORDER BY sequence`, projectID)
	if err != nil {
		return nil, fault.New(fault.Internal, "list segments: %v", err)
	}
	defer rows.Close()

	var out []Segment
	for rows.Next() {
		var s Segment
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Sequence, &s.AccessMode,
			&s.LaunchLon, &s.LaunchLat, &s.GroundElevM, &s.AreaM2, &s.AreaAcres,
			&s.Geometry, &s.CreatedAt); err != nil {
			return nil, fault.New(fault.Internal, "scan segment: %v", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
