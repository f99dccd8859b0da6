package pipeline

import (
	"github.com/ridgeline-data/segment.report/internal/access"
	"github.com/ridgeline-data/segment.report/internal/config"
	"github.com/ridgeline-data/segment.report/internal/geo"
)

func loadLayers(cfg *config.Project, frame *geo.Frame) (access.Layers, error) {
	var layers access.Layers
	var err error
	if cfg.RoadsPath != "" {
		layers.Roads, err = access.LoadLines(cfg.RoadsPath, frame)
		if err != nil {
			return layers, err
		}
	}
	if cfg.TrailsPath != "" {
		layers.Trails, err = access.LoadLines(cfg.TrailsPath, frame)
		if err != nil {
			return layers, err
		}
	}
	return layers, nil
}
