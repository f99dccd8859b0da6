package db

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/pipeline"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return db
}

func TestMigrateUpAndVersion(t *testing.T) {
	db := openTestDB(t)
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if dirty {
		t.Error("migration left dirty state")
	}
	if version == 0 {
		t.Error("version = 0 after MigrateUp")
	}
	// Idempotent.
	if err := db.MigrateUp(); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestProjectCRUD(t *testing.T) {
	db := openTestDB(t)
	p, err := db.CreateProject("night ridge", []byte(`{"name":"night ridge"}`))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == "" || p.Status != StatusCreated {
		t.Fatalf("created project %+v", p)
	}

	got, err := db.GetProject(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "night ridge" || got.Config != `{"name":"night ridge"}` {
		t.Errorf("got %+v", got)
	}

	list, err := db.ListProjects()
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v, %d entries", err, len(list))
	}

	if err := db.DeleteProject(p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetProject(p.ID); fault.KindOf(err) != fault.Data {
		t.Errorf("get after delete kind = %q, want data", fault.KindOf(err))
	}
	if err := db.DeleteProject(p.ID); fault.KindOf(err) != fault.Data {
		t.Errorf("double delete kind = %q, want data", fault.KindOf(err))
	}
}

func TestStatusTransitions(t *testing.T) {
	db := openTestDB(t)
	p, err := db.CreateProject("p", []byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}

	if err := db.TransitionStatus(p.ID, StatusCreated, StatusProcessing); err != nil {
		t.Fatalf("created -> processing: %v", err)
	}

	// A second run attempt must conflict.
	err = db.TransitionStatus(p.ID, StatusCreated, StatusProcessing)
	if fault.KindOf(err) != fault.Conflict {
		t.Errorf("second start kind = %q, want conflict", fault.KindOf(err))
	}

	if err := db.RequestCancel(p.ID); err != nil {
		t.Fatalf("cancel request: %v", err)
	}
	got, _ := db.GetProject(p.ID)
	if got.Status != StatusCancelling {
		t.Errorf("status = %q, want cancelling", got.Status)
	}
	if err := db.TransitionStatus(p.ID, StatusCancelling, StatusCancelled); err != nil {
		t.Fatalf("cancelling -> cancelled: %v", err)
	}

	if err := db.TransitionStatus("no-such-id", StatusCreated, StatusProcessing); fault.KindOf(err) != fault.Data {
		t.Errorf("unknown project kind = %q, want data", fault.KindOf(err))
	}
}

func TestSetFailure(t *testing.T) {
	db := openTestDB(t)
	p, _ := db.CreateProject("p", []byte(`{}`))
	if err := db.SetFailure(p.ID, "data: dem missing"); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetProject(p.ID)
	if got.Status != StatusFailed || got.ErrorMessage != "data: dem missing" {
		t.Errorf("got %+v", got)
	}
}

func sampleResult() *pipeline.Result {
	mp := orb.MultiPolygon{orb.Polygon{orb.Ring{
		{-122.01, 47.00}, {-122.00, 47.00}, {-122.00, 47.01}, {-122.01, 47.01}, {-122.01, 47.00},
	}}}
	return &pipeline.Result{
		Segments: []pipeline.Segment{
			{
				Sequence: 1, AccessMode: "road",
				LaunchLon: -122.005, LaunchLat: 47.005, GroundElevM: 512,
				AreaM2: 80000, AreaAcres: 19.77, Geographic: mp,
			},
			{
				Sequence: 2, AccessMode: "off_road",
				LaunchLon: -122.015, LaunchLat: 47.005, GroundElevM: 530,
				AreaM2: 42000, AreaAcres: 10.38, Geographic: mp,
			},
		},
		CoverageFraction: 0.91,
		EPSG:             32610,
		CellSizeM:        10,
		Counters: pipeline.Counters{
			CandidatesGenerated: 120, CandidatesRetained: 80, CandidatesSelected: 2,
			CellsTotal: 10000, CellsVisible: 9500, CellsCovered: 9100,
		},
	}
}

func TestSaveResultAndListSegments(t *testing.T) {
	db := openTestDB(t)
	p, _ := db.CreateProject("p", []byte(`{}`))

	if err := db.SaveResult(p.ID, sampleResult()); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := db.GetProject(p.ID)
	if got.EPSG != 32610 || got.CoverageFraction != 0.91 || got.CellSizeM != 10 {
		t.Errorf("summary not recorded: %+v", got)
	}
	var counters pipeline.Counters
	if err := json.Unmarshal([]byte(got.Counters), &counters); err != nil {
		t.Fatalf("counters JSON: %v", err)
	}
	if counters.CandidatesSelected != 2 {
		t.Errorf("counters = %+v", counters)
	}

	segs, err := db.ListSegments(p.ID)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2", len(segs))
	}
	if segs[0].Sequence != 1 || segs[1].Sequence != 2 {
		t.Error("segments out of sequence order")
	}
	var geom geojson.Geometry
	if err := json.Unmarshal([]byte(segs[0].Geometry), &geom); err != nil {
		t.Fatalf("geometry JSON: %v", err)
	}
	if _, ok := geom.Geometry().(orb.MultiPolygon); !ok {
		t.Errorf("geometry type = %s, want MultiPolygon", geom.Type)
	}
}

func TestSaveResultReplacesPrevious(t *testing.T) {
	db := openTestDB(t)
	p, _ := db.CreateProject("p", []byte(`{}`))
	if err := db.SaveResult(p.ID, sampleResult()); err != nil {
		t.Fatal(err)
	}

	res := sampleResult()
	res.Segments = res.Segments[:1]
	if err := db.SaveResult(p.ID, res); err != nil {
		t.Fatal(err)
	}
	segs, _ := db.ListSegments(p.ID)
	if len(segs) != 1 {
		t.Errorf("got %d segments after replace, want 1", len(segs))
	}
}

func TestDeleteCascadesSegments(t *testing.T) {
	db := openTestDB(t)
	p, _ := db.CreateProject("p", []byte(`{}`))
	if err := db.SaveResult(p.ID, sampleResult()); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteProject(p.ID); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM segments`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d orphan segments after project delete", n)
	}
}
