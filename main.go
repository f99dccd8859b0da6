// segment plans drone search segments for ground SAR teams. It runs either
// as a one-shot planner against a configuration file or as an HTTP service
// managing projects in SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/ridgeline-data/segment.report/internal/api"
	"github.com/ridgeline-data/segment.report/internal/config"
	"github.com/ridgeline-data/segment.report/internal/db"
	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/kml"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
	"github.com/ridgeline-data/segment.report/internal/pipeline"
	"github.com/ridgeline-data/segment.report/internal/report"
	"github.com/ridgeline-data/segment.report/internal/security"
	"github.com/ridgeline-data/segment.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Project configuration file for a one-shot planning run")
	serve       = flag.Bool("serve", false, "Run the HTTP project service")
	listen      = flag.String("listen", ":8080", "Listen address for -serve")
	dbFile      = flag.String("db", "segment.report.db", "SQLite database file for -serve")
	dataDir     = flag.String("data", "", "Restrict client-supplied raster and vector paths to this directory for -serve")
	outDir      = flag.String("out", ".", "Output directory for one-shot run artifacts")
	workers     = flag.Int("workers", 0, "Viewshed worker cap, 0 uses all cores")
	verbose     = flag.Bool("v", false, "Verbose logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	monitoring.Verbose = *verbose

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	var err error
	switch {
	case *serve:
		err = runServer()
	case *configPath != "":
		err = runOnce()
	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -config for a planning run or -serve for the HTTP service")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		monitoring.Logf("segment: %v", err)
		os.Exit(fault.ExitCode(err))
	}
}

// runOnce plans one configuration and writes the artifacts into the -out
// directory.
func runOnce() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := pipeline.Compute(ctx, cfg, func(stage string, percent float64) {
		monitoring.Logf("[%3.0f%%] %s", percent, stage)
	})
	if err != nil {
		return err
	}

	monitoring.Logf("planned %d segments covering %.1f%% of the search area",
		len(res.Segments), res.CoverageFraction*100)
	return writeOutputs(*outDir, cfg.Name, res)
}

// writeOutputs renders the GeoJSON, KML and HTML report artifacts.
func writeOutputs(dir, name string, res *pipeline.Result) error {
	base := filepath.Join(dir, security.SanitizeFilename(name))

	fc := featureCollection(res)
	raw, err := fc.MarshalJSON()
	if err != nil {
		return fault.New(fault.Internal, "marshal feature collection: %v", err)
	}
	if err := os.WriteFile(base+".geojson", raw, 0644); err != nil {
		return fault.New(fault.Resource, "write %s.geojson: %v", base, err)
	}

	feats := make([]kml.Feature, len(res.Segments))
	for i, seg := range res.Segments {
		feats[i] = kml.Feature{
			Name:        fmt.Sprintf("Segment %d", seg.Sequence),
			AccessMode:  seg.AccessMode,
			LaunchLon:   seg.LaunchLon,
			LaunchLat:   seg.LaunchLat,
			GroundElevM: seg.GroundElevM,
			AreaAcres:   seg.AreaAcres,
			Geometry:    seg.Geographic,
		}
	}
	doc, err := kml.Render(name, feats)
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".kml", doc, 0644); err != nil {
		return fault.New(fault.Resource, "write %s.kml: %v", base, err)
	}

	if err := report.WriteFile(base+"_report.html", name, res); err != nil {
		return err
	}
	monitoring.Logf("wrote %s.geojson, %s.kml, %s_report.html", base, base, base)
	return nil
}

// featureCollection assembles the geographic segments with their attributes.
func featureCollection(res *pipeline.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, seg := range res.Segments {
		f := geojson.NewFeature(seg.Geographic)
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
	return fc
}

// runServer runs the HTTP project service until interrupted.
func runServer() error {
	database, err := db.Open(*dbFile)
	if err != nil {
		return err
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		return fault.Wrap(fault.Resource, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := api.NewServer(database, *dataDir).ServeMux()
	server := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(mux),
	}

	errc := make(chan error, 1)
	go func() {
		monitoring.Logf("segment %s listening on %s (db %s)", version.Info(), *listen, *dbFile)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fault.Wrap(fault.Resource, err)
	case <-ctx.Done():
	}

	monitoring.Logf("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
	}
	return nil
}
