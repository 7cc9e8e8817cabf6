package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spatialpipe/spatialpipe/internal/models"
)

// DefaultPipelineConfig returns a PipelineConfig with default values.
func DefaultPipelineConfig() models.PipelineConfig {
	return models.PipelineConfig{
		LogLevel:       "info",
		ResultsDir:     "results",
		DataDir:        "data",
		ScriptsDir:     "bin",
		ContainerCache: "containers/cache",
		ContainersFile: "containers.toml",
		Threads: models.ThreadConfig{
			OMP:             64,
			OpenBLAS:        64,
			MKL:             64,
			NumExpr:         64,
			NJobsEmbedding:  32,
			NJobsMultiscale: 3,
		},
		Stereo: models.LaneDataset{
			BinSize: 3,
		},
		VisiumHD: models.LaneDataset{
			BinSize: 2,
		},
	}
}

// LoadPipelineConfig loads and parses a pipeline.yaml file.
func LoadPipelineConfig(path string) (models.PipelineConfig, error) {
	cfg := DefaultPipelineConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading pipeline config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing pipeline config: %w", err)
	}

	// Backfill values an explicit empty field would have cleared.
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "bin"
	}
	if cfg.ContainerCache == "" {
		cfg.ContainerCache = "containers/cache"
	}
	if cfg.ContainersFile == "" {
		cfg.ContainersFile = "containers.toml"
	}
	if cfg.Stereo.BinSize == 0 {
		cfg.Stereo.BinSize = 3
	}
	if cfg.VisiumHD.BinSize == 0 {
		cfg.VisiumHD.BinSize = 2
	}

	if cfg.RunStereo && len(cfg.Stereo.URLs) == 0 {
		return cfg, fmt.Errorf("stereo lane enabled but no stereo.urls configured")
	}
	if cfg.RunVisiumHD {
		if len(cfg.VisiumHD.URLs) == 0 {
			return cfg, fmt.Errorf("visiumhd lane enabled but no visiumhd.urls configured")
		}
		if cfg.VisiumHD.PrebinnedH5ad == "" {
			return cfg, fmt.Errorf("visiumhd lane enabled but no visiumhd.prebinned_h5ad configured")
		}
	}

	return cfg, nil
}
