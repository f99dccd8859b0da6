package raster

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/ridgeline-data/segment.report/internal/fault"
	"github.com/ridgeline-data/segment.report/internal/monitoring"
)

// Inputs names the raster files feeding a prepare run.
type Inputs struct {
	DEMPath        string
	VegetationPath string // empty means no vegetation layer
}

var registerOnce sync.Once

// Prepare builds the surface model for one project: the DEM is reprojected
// to the metric frame with bilinear resampling and clipped to the search
// polygon's bounding rectangle inflated by maxVLOSM on every side, the
// vegetation raster (when present) is resampled nearest-neighbor onto the
// same grid, and the search polygon is rasterized into the target mask.
//
// maxCells bounds rows*cols; when the clipped DEM exceeds it the grid is
// re-warped at a coarser uniform cell size. Zero disables the bound.
func Prepare(ctx context.Context, in Inputs, epsg int, polyMetric orb.Polygon, maxVLOSM float64, maxCells int) (*Surface, error) {
	registerOnce.Do(godal.RegisterAll)

	if err := ctx.Err(); err != nil {
		return nil, fault.Wrap(fault.Cancelled, err)
	}

	bound := polyMetric.Bound()
	minX := bound.Min[0] - maxVLOSM
	minY := bound.Min[1] - maxVLOSM
	maxX := bound.Max[0] + maxVLOSM
	maxY := bound.Max[1] + maxVLOSM

	dem, err := godal.Open(in.DEMPath)
	if err != nil {
		return nil, fault.New(fault.Data, "open DEM %s: %v", in.DEMPath, err)
	}
	defer dem.Close()

	switches := warpSwitches(epsg, minX, minY, maxX, maxY, "bilinear", 0)
	warped, err := dem.Warp("", switches)
	if err != nil {
		return nil, fault.New(fault.Data, "reproject DEM to EPSG:%d: %v", epsg, err)
	}
	defer warped.Close()

	cell, err := cellSize(warped)
	if err != nil {
		return nil, err
	}
	st := warped.Structure()
	if maxCells > 0 && st.SizeX*st.SizeY > maxCells {
		factor := math.Sqrt(float64(st.SizeX*st.SizeY) / float64(maxCells))
		coarse := cell * factor
		monitoring.Logf("raster: DEM %dx%d exceeds cell budget %d, resampling to %.2f m",
			st.SizeX, st.SizeY, maxCells, coarse)
		re, err := dem.Warp("", warpSwitches(epsg, minX, minY, maxX, maxY, "bilinear", coarse))
		if err != nil {
			return nil, fault.New(fault.Data, "resample DEM to %.2f m: %v", coarse, err)
		}
		warped.Close()
		warped = re
		cell = coarse
		st = warped.Structure()
	}
	if st.SizeX == 0 || st.SizeY == 0 {
		return nil, fault.New(fault.Data, "DEM does not intersect search polygon")
	}

	gt, err := warped.GeoTransform()
	if err != nil {
		return nil, fault.New(fault.Data, "DEM geotransform: %v", err)
	}

	s := &Surface{
		Rows:    st.SizeY,
		Cols:    st.SizeX,
		Cell:    cell,
		OriginX: gt[0],
		OriginY: gt[3],
	}
	s.Ground, err = readBand(warped, s.Rows, s.Cols)
	if err != nil {
		return nil, err
	}

	s.Elev = make([]float64, len(s.Ground))
	copy(s.Elev, s.Ground)

	if in.VegetationPath != "" {
		if err := ctx.Err(); err != nil {
			return nil, fault.Wrap(fault.Cancelled, err)
		}
		if err := addVegetation(s, in.VegetationPath, epsg, gt); err != nil {
			return nil, err
		}
	}

	s.Target = make([]bool, len(s.Ground))
	rasterizeMask(s, polyMetric)

	targets := s.TargetCount()
	if targets == 0 {
		return nil, fault.New(fault.Data, "DEM does not intersect search polygon")
	}
	for i, t := range s.Target {
		if t && math.IsNaN(s.Ground[i]) {
			row, col := i/s.Cols, i%s.Cols
			return nil, fault.New(fault.Data, "no elevation data at cell (%d,%d) inside search polygon", row, col)
		}
	}

	monitoring.Debugf("raster: prepared %dx%d grid, cell %.2f m, %d target cells",
		s.Rows, s.Cols, s.Cell, targets)
	return s, nil
}

// addVegetation warps the vegetation raster onto the exact DEM grid and adds
// its heights into the surface band. Missing and nodata values count as 0.
func addVegetation(s *Surface, path string, epsg int, demGT [6]float64) error {
	veg, err := godal.Open(path)
	if err != nil {
		return fault.New(fault.Data, "open vegetation %s: %v", path, err)
	}
	defer veg.Close()

	maxX := demGT[0] + float64(s.Cols)*s.Cell
	minY := demGT[3] - float64(s.Rows)*s.Cell
	warped, err := veg.Warp("", warpSwitches(epsg, demGT[0], minY, maxX, demGT[3], "near", s.Cell))
	if err != nil {
		return fault.New(fault.Data, "reproject vegetation to EPSG:%d: %v", epsg, err)
	}
	defer warped.Close()

	st := warped.Structure()
	if st.SizeX != s.Cols || st.SizeY != s.Rows {
		return fault.New(fault.Internal, "vegetation grid %dx%d does not match DEM grid %dx%d",
			st.SizeX, st.SizeY, s.Cols, s.Rows)
	}
	heights, err := readBand(warped, s.Rows, s.Cols)
	if err != nil {
		return err
	}
	for i, h := range heights {
		if math.IsNaN(h) || h < 0 {
			continue
		}
		s.Elev[i] += h
	}
	return nil
}

func warpSwitches(epsg int, minX, minY, maxX, maxY float64, resampling string, cell float64) []string {
	sw := []string{
		"-of", "MEM",
		"-t_srs", fmt.Sprintf("EPSG:%d", epsg),
		"-te", ftoa(minX), ftoa(minY), ftoa(maxX), ftoa(maxY),
		"-r", resampling,
		"-dstnodata", "nan",
	}
	if cell > 0 {
		sw = append(sw, "-tr", ftoa(cell), ftoa(cell))
	}
	return sw
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// cellSize returns the square cell edge of a warped dataset. Warping to a
// projected CRS yields square pixels up to rounding.
func cellSize(ds *godal.Dataset) (float64, error) {
	gt, err := ds.GeoTransform()
	if err != nil {
		return 0, fault.New(fault.Data, "geotransform: %v", err)
	}
	w, h := gt[1], -gt[5]
	if w <= 0 || h <= 0 {
		return 0, fault.New(fault.Data, "unsupported raster orientation (pixel %f x %f)", w, h)
	}
	if math.Abs(w-h) > 1e-6*w {
		return 0, fault.New(fault.Data, "non-square pixels %f x %f after reprojection", w, h)
	}
	return w, nil
}

func readBand(ds *godal.Dataset, rows, cols int) ([]float64, error) {
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, fault.New(fault.Data, "raster has no bands")
	}
	buf := make([]float64, rows*cols)
	if err := bands[0].Read(0, 0, buf, cols, rows); err != nil {
		return nil, fault.New(fault.Resource, "read raster band: %v", err)
	}
	if nodata, ok := bands[0].NoData(); ok && !math.IsNaN(nodata) {
		for i, v := range buf {
			if v == nodata {
				buf[i] = math.NaN()
			}
		}
	}
	return buf, nil
}
