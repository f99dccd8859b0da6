// Package pipeline drives one planning run end to end: resolve the metric
// frame, prepare the surface raster, generate and classify candidates, run
// the viewshed engine, select coverage, build segment polygons and assemble
// the geographic result.
package pipeline

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/ridgeline-data/segment.report/internal/access"
	"github.com/ridgeline-data/segment.report/internal/config"
	"github.com/ridgeline-data/segment.report/internal/cover"
	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/geo"
	"github.com/ridgeline-data/segment.report/internal/grid"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
	"github.com/ridgeline-data/segment.report/internal/raster"
	"github.com/ridgeline-data/segment.report/internal/segpoly"
	"github.com/ridgeline-data/segment.report/internal/units"
	"github.com/ridgeline-data/segment.report/internal/viewshed"
)

// Segment is one assigned search area in the final sequence.
type Segment struct {
	Sequence    int
	AccessMode  string
	LaunchX     float64
	LaunchY     float64
	LaunchLon   float64
	LaunchLat   float64
	GroundElevM float64
	AreaM2      float64
	AreaAcres   float64
	Metric      orb.MultiPolygon
	Geographic  orb.MultiPolygon
}

// Counters are the run diagnostics published with the result.
type Counters struct {
	CandidatesGenerated int
	CandidatesRetained  int
	CandidatesSelected  int
	CellsTotal          int
	CellsVisible        int
	CellsCovered        int
}

// Result is the complete outcome of one planning run.
type Result struct {
	Segments         []Segment
	CoverageFraction float64
	EPSG             int
	CellSizeM        float64
	Counters         Counters
}

// Compute runs the full pipeline for a validated project configuration.
// Cancellation is observed at stage boundaries and between viewshed batches.
func Compute(ctx context.Context, cfg *config.Project, sink ProgressFunc) (*Result, error) {
	em := newEmitter(sink)
	defer em.close()

	poly, err := cfg.Polygon()
	if err != nil {
		return nil, err
	}
	frame, err := geo.Resolve(poly)
	if err != nil {
		return nil, err
	}
	em.emit("resolve_crs", 5)
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	polyMetric := frame.ToMetric(poly)
	surface, err := raster.Prepare(ctx, raster.Inputs{
		DEMPath:        cfg.DEMPath,
		VegetationPath: cfg.VegetationPath,
	}, frame.EPSG, polyMetric, cfg.MaxVLOSM, cfg.RasterBudget())
	if err != nil {
		return nil, err
	}
	em.emit("prepare_raster", 17)

	layers, err := loadLayers(cfg, frame)
	if err != nil {
		return nil, err
	}
	return computeOnSurface(ctx, cfg, frame, surface, polyMetric, layers, em)
}

// computeOnSurface continues the pipeline once the surface model exists.
func computeOnSurface(ctx context.Context, cfg *config.Project, frame *geo.Frame, surface *raster.Surface, polyMetric orb.Polygon, layers access.Layers, em *emitter) (*Result, error) {
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	cands := grid.Generate(surface, polyMetric, cfg.GridSpacingM)
	if cfg.DensifyAccess {
		lines := append(append([]orb.LineString(nil), layers.Roads...), layers.Trails...)
		cands = grid.Densify(surface, cands, lines, cfg.GridSpacingM)
	}
	em.emit("generate_grid", 23)
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	counters := Counters{
		CandidatesGenerated: len(cands),
		CellsTotal:          surface.TargetCount(),
	}
	retained := access.Classify(cands, layers, cfg.AccessBufferM, cfg.AllowedAccess())
	counters.CandidatesRetained = len(retained)
	monitoring.Logf("pipeline: %d candidates generated, %d retained after access",
		counters.CandidatesGenerated, counters.CandidatesRetained)
	em.emit("classify_access", 31)
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	results, err := viewshed.Compute(ctx, surface, retained, viewshed.Params{
		ObserverAGLM: cfg.DroneAGLAltitudeM,
		MaxRangeM:    cfg.MaxVLOSM,
		Workers:      cfg.Workers,
		Progress: func(done, total int) {
			em.emit("viewshed", 31+25*float64(done)/float64(total))
		},
	})
	if err != nil {
		return nil, err
	}
	em.emit("viewshed", 56)
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	union := viewshed.NewBitSet(surface.Rows * surface.Cols)
	for _, r := range results {
		union.UnionInPlace(r.Visible)
	}
	counters.CellsVisible = union.Count()

	outcome := cover.Select(results, counters.CellsTotal, preferredCells(cfg, surface))
	counters.CandidatesSelected = len(outcome.Selections)
	counters.CellsCovered = outcome.Covered.Count()
	em.emit("select_coverage", 76)
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	segments, metrics, err := buildSegments(surface, outcome.Selections)
	if err != nil {
		return nil, err
	}
	if err := segpoly.Validate(surface, metrics); err != nil {
		return nil, err
	}
	em.emit("build_polygons", 90)
	if err := stageCheck(ctx); err != nil {
		return nil, err
	}

	for i := range segments {
		segments[i].Geographic = frame.ToGeographicMulti(segments[i].Metric)
		segments[i].LaunchLon, segments[i].LaunchLat = frame.Inverse(segments[i].LaunchX, segments[i].LaunchY)
	}
	em.emit("assemble", 100)

	monitoring.Logf("pipeline: %d segments, %.1f%% coverage",
		len(segments), outcome.Fraction*100)
	return &Result{
		Segments:         segments,
		CoverageFraction: outcome.Fraction,
		EPSG:             frame.EPSG,
		CellSizeM:        surface.Cell,
		Counters:         counters,
	}, nil
}

// buildSegments converts selections to polygons, dropping selections whose
// geometry vanished entirely to numerical noise. Sequence numbers stay
// contiguous over the kept segments.
func buildSegments(surface *raster.Surface, sels []cover.Selection) ([]Segment, []orb.MultiPolygon, error) {
	var segments []Segment
	var metrics []orb.MultiPolygon
	for _, sel := range sels {
		mp := segpoly.Build(surface, sel.Assigned)
		if len(mp) == 0 {
			monitoring.Logf("pipeline: selection at (%.0f, %.0f) produced no polygon, skipping",
				sel.Result.Candidate.X, sel.Result.Candidate.Y)
			continue
		}
		areaM2 := math.Abs(planar.Area(mp))
		c := sel.Result.Candidate
		segments = append(segments, Segment{
			Sequence:    len(segments) + 1,
			AccessMode:  c.Access,
			LaunchX:     c.X,
			LaunchY:     c.Y,
			GroundElevM: c.Ground,
			AreaM2:      areaM2,
			AreaAcres:   units.AcresFromSquareMeters(areaM2),
			Metric:      mp,
		})
		metrics = append(metrics, mp)
	}
	return segments, metrics, nil
}

// preferredCells converts the preferred segment size from acres to cells.
func preferredCells(cfg *config.Project, surface *raster.Surface) int {
	cells := units.SquareMetersFromAcres(cfg.PreferredSegmentAcres) / surface.CellAreaM2()
	if cells < 1 {
		return 1
	}
	return int(math.Round(cells))
}

func stageCheck(ctx context.Context) error {
	return fault.Wrap(fault.Cancelled, ctx.Err())
}
