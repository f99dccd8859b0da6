package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ridgeline-data/segment.report/internal/config"
	"github.com/ridgeline-data/segment.report/internal/db"
	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/kml"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
	"github.com/ridgeline-data/segment.report/internal/pipeline"
	"github.com/ridgeline-data/segment.report/internal/security"
)

const maxConfigBytes = 1 << 20

// projectAPI controls the JSON shape of a project record. Counters pass
// through as raw JSON so clients see the diagnostics exactly as recorded.
type projectAPI struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Status           string          `json:"status"`
	EPSG             int             `json:"epsg,omitempty"`
	CellSizeM        float64         `json:"cell_size_m,omitempty"`
	CoverageFraction float64         `json:"coverage_fraction,omitempty"`
	Counters         json.RawMessage `json:"counters,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Progress         *progressAPI    `json:"progress,omitempty"`
}

type progressAPI struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
}

type segmentAPI struct {
	Sequence    int             `json:"sequence"`
	AccessMode  string          `json:"access_mode"`
	LaunchLon   float64         `json:"launch_lon"`
	LaunchLat   float64         `json:"launch_lat"`
	GroundElevM float64         `json:"ground_elev_m"`
	AreaM2      float64         `json:"area_m2"`
	AreaAcres   float64         `json:"area_acres"`
	Geometry    json.RawMessage `json:"geometry"`
}

func (s *Server) projectToAPI(p *db.Project) projectAPI {
	out := projectAPI{
		ID:               p.ID,
		Name:             p.Name,
		Status:           p.Status,
		EPSG:             p.EPSG,
		CellSizeM:        p.CellSizeM,
		CoverageFraction: p.CoverageFraction,
		ErrorMessage:     p.ErrorMessage,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
	if p.Counters != "" {
		out.Counters = json.RawMessage(p.Counters)
	}
	if r, ok := s.runs.get(p.ID); ok {
		stage, pct := r.snapshot()
		if stage != "" {
			out.Progress = &progressAPI{Stage: stage, Percent: pct}
		}
	}
	return out
}

func segmentToAPI(seg db.Segment) segmentAPI {
	return segmentAPI{
		Sequence:    seg.Sequence,
		AccessMode:  seg.AccessMode,
		LaunchLon:   seg.LaunchLon,
		LaunchLat:   seg.LaunchLat,
		GroundElevM: seg.GroundElevM,
		AreaM2:      seg.AreaM2,
		AreaAcres:   seg.AreaAcres,
		Geometry:    json.RawMessage(seg.Geometry),
	}
}

// handleProjects serves the collection: list and create.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listProjects(w)
	case http.MethodPost:
		s.createProject(w, r)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleProject dispatches /api/projects/{id}[/{action}].
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/projects/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	id := parts[0]
	if id == "" {
		s.writeJSONError(w, http.StatusNotFound, "missing project id")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.getProject(w, id)
		case http.MethodDelete:
			s.deleteProject(w, id)
		default:
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "calculate":
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.calculate(w, id)
	case "cancel":
		if r.Method != http.MethodPost {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.cancelRun(w, id)
	case "segments":
		if r.Method != http.MethodGet {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.listSegments(w, id)
	case "export":
		if r.Method != http.MethodGet {
			s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.exportSegments(w, r, id)
	default:
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
	}
}

func (s *Server) listProjects(w http.ResponseWriter) {
	projects, err := s.db.ListProjects()
	if err != nil {
		s.writeFault(w, err)
		return
	}
	out := make([]projectAPI, len(projects))
	for i := range projects {
		out[i] = s.projectToAPI(&projects[i])
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBytes))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "read request body")
		return
	}
	cfg, err := config.Parse(raw)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	if err := s.checkDataPaths(cfg); err != nil {
		s.writeFault(w, err)
		return
	}
	p, err := s.db.CreateProject(cfg.Name, raw)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, s.projectToAPI(p))
}

// checkDataPaths enforces the data directory restriction on the raster and
// vector paths a client submits. A server started without -data accepts any
// path.
func (s *Server) checkDataPaths(cfg *config.Project) error {
	if s.dataDir == "" {
		return nil
	}
	for _, p := range []string{cfg.DEMPath, cfg.VegetationPath, cfg.RoadsPath, cfg.TrailsPath} {
		if p == "" {
			continue
		}
		if err := security.ValidatePathWithinDirectory(p, s.dataDir); err != nil {
			return fault.New(fault.Config, "data path %s: %v", p, err)
		}
	}
	return nil
}

func (s *Server) getProject(w http.ResponseWriter, id string) {
	p, err := s.db.GetProject(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.projectToAPI(p))
}

func (s *Server) deleteProject(w http.ResponseWriter, id string) {
	p, err := s.db.GetProject(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	if p.Status == db.StatusProcessing || p.Status == db.StatusCancelling {
		s.writeFault(w, fault.New(fault.Conflict, "project %s has a run in flight", id))
		return
	}
	if err := s.db.DeleteProject(id); err != nil {
		s.writeFault(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// calculate starts a planning run. The status transition doubles as the
// lock: only one run may hold processing at a time.
func (s *Server) calculate(w http.ResponseWriter, id string) {
	p, err := s.db.GetProject(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	if p.Status == db.StatusProcessing || p.Status == db.StatusCancelling {
		s.writeFault(w, fault.New(fault.Conflict, "project %s is %s", id, p.Status))
		return
	}
	cfg, err := config.Parse([]byte(p.Config))
	if err != nil {
		s.writeFault(w, err)
		return
	}
	if err := s.db.TransitionStatus(id, p.Status, db.StatusProcessing); err != nil {
		s.writeFault(w, err)
		return
	}
	rn, ctx, err := s.runs.start(id)
	if err != nil {
		if terr := s.db.TransitionStatus(id, db.StatusProcessing, p.Status); terr != nil {
			monitoring.Logf("api: restore status for %s: %v", id, terr)
		}
		s.writeFault(w, err)
		return
	}
	go s.execute(ctx, id, cfg, rn)

	p, err = s.db.GetProject(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.projectToAPI(p))
}

// execute drives one run to a terminal status. It owns the processing to
// completed/failed/cancelled transitions; the cancel handler only flips
// processing to cancelling.
func (s *Server) execute(ctx context.Context, id string, cfg *config.Project, rn *run) {
	defer s.runs.finish(id)

	res, err := pipeline.Compute(ctx, cfg, rn.observe)
	switch {
	case err == nil:
		if err := s.db.SaveResult(id, res); err != nil {
			monitoring.Logf("api: save result for %s: %v", id, err)
			if serr := s.db.SetFailure(id, err.Error()); serr != nil {
				monitoring.Logf("api: record failure for %s: %v", id, serr)
			}
			return
		}
		if err := s.db.TransitionStatus(id, db.StatusProcessing, db.StatusCompleted); err != nil {
			// Cancellation arrived after the last checkpoint; the run
			// still finished, so the result stands.
			if err2 := s.db.TransitionStatus(id, db.StatusCancelling, db.StatusCompleted); err2 != nil {
				monitoring.Logf("api: complete %s: %v", id, err2)
			}
		}
	case fault.KindOf(err) == fault.Cancelled:
		if terr := s.db.TransitionStatus(id, db.StatusCancelling, db.StatusCancelled); terr != nil {
			if terr2 := s.db.TransitionStatus(id, db.StatusProcessing, db.StatusCancelled); terr2 != nil {
				monitoring.Logf("api: mark %s cancelled: %v", id, terr2)
			}
		}
	default:
		monitoring.Logf("api: run for %s failed: %v", id, err)
		if serr := s.db.SetFailure(id, err.Error()); serr != nil {
			monitoring.Logf("api: record failure for %s: %v", id, serr)
		}
	}
}

func (s *Server) cancelRun(w http.ResponseWriter, id string) {
	if err := s.db.RequestCancel(id); err != nil {
		s.writeFault(w, err)
		return
	}
	s.runs.signalCancel(id)
	p, err := s.db.GetProject(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.projectToAPI(p))
}

func (s *Server) listSegments(w http.ResponseWriter, id string) {
	if _, err := s.db.GetProject(id); err != nil {
		s.writeFault(w, err)
		return
	}
	segs, err := s.db.ListSegments(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	out := make([]segmentAPI, len(segs))
	for i, seg := range segs {
		out[i] = segmentToAPI(seg)
	}
	s.writeJSON(w, http.StatusOK, out)
}

// exportSegments writes the stored segments as GeoJSON (default) or KML.
func (s *Server) exportSegments(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.db.GetProject(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	segs, err := s.db.ListSegments(id)
	if err != nil {
		s.writeFault(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "geojson":
		s.exportGeoJSON(w, p, segs)
	case "kml":
		s.exportKML(w, p, segs)
	default:
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown export format %q", format))
	}
}

func (s *Server) exportGeoJSON(w http.ResponseWriter, p *db.Project, segs []db.Segment) {
	fc := geojson.NewFeatureCollection()
	for _, seg := range segs {
		var g geojson.Geometry
		if err := json.Unmarshal([]byte(seg.Geometry), &g); err != nil {
			s.writeFault(w, fault.New(fault.Internal, "decode segment %d geometry: %v", seg.Sequence, err))
			return
		}
		f := geojson.NewFeature(g.Geometry())
		f.Properties = geojson.Properties{
			"sequence":      seg.Sequence,
			"access_type":   seg.AccessMode,
			"launch_point":  map[string]interface{}{"lon": seg.LaunchLon, "lat": seg.LaunchLat},
			"ground_elev_m": seg.GroundElevM,
			"area_m2":       seg.AreaM2,
			"area_acres":    seg.AreaAcres,
		}
		fc.Append(f)
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", security.SanitizeFilename(p.Name)+".geojson"))
	out, err := fc.MarshalJSON()
	if err != nil {
		s.writeFault(w, fault.New(fault.Internal, "marshal feature collection: %v", err))
		return
	}
	w.Write(out)
}

func (s *Server) exportKML(w http.ResponseWriter, p *db.Project, segs []db.Segment) {
	feats := make([]kml.Feature, 0, len(segs))
	for _, seg := range segs {
		var g geojson.Geometry
		if err := json.Unmarshal([]byte(seg.Geometry), &g); err != nil {
			s.writeFault(w, fault.New(fault.Internal, "decode segment %d geometry: %v", seg.Sequence, err))
			return
		}
		mp, ok := g.Geometry().(orb.MultiPolygon)
		if !ok {
			s.writeFault(w, fault.New(fault.Internal, "segment %d geometry is %s, not MultiPolygon", seg.Sequence, g.Type))
			return
		}
		feats = append(feats, kml.Feature{
			Name:        fmt.Sprintf("Segment %d", seg.Sequence),
			AccessMode:  seg.AccessMode,
			LaunchLon:   seg.LaunchLon,
			LaunchLat:   seg.LaunchLat,
			GroundElevM: seg.GroundElevM,
			AreaAcres:   seg.AreaAcres,
			Geometry:    mp,
		})
	}
	out, err := kml.Render(p.Name, feats)
	if err != nil {
		s.writeFault(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.google-earth.kml+xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", security.SanitizeFilename(p.Name)+".kml"))
	w.Write(out)
}
