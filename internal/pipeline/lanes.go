package pipeline

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strconv"

	"github.com/spatialpipe/spatialpipe/internal/models"
)

// Container names the three analysis environments are published under in
// the manifest.
const (
	stereopyContainer    = "stereopy"
	spatialdataContainer = "spatialdata"
	spixContainer        = "spix"
)

// stereoLane: download GEM -> Stereopy bin conversion -> SPIX multiscale.
//
// All paths are absolute so that arguments resolve identically on the host
// and inside the container binds.
func (c *Composer) stereoLane() lane {
	dataDir := absPath(c.cfg.DataDir)
	rawDir := filepath.Join(dataDir, "stereo", "raw")
	prefix := c.cfg.Stereo.RenamePrefix

	gemPath := filepath.Join(rawDir, prefix+urlBase(c.cfg.Stereo.URLs[0]))
	h5adPath := filepath.Join(dataDir, "stereo", fmt.Sprintf("%sbin%d.h5ad", prefix, c.cfg.Stereo.BinSize))
	outDir := filepath.Join(dataDir, "stereo", "multiscale")

	scripts := absPath(c.cfg.ScriptsDir)
	binds := c.binds()

	return lane{
		name: "stereo",
		dataset: models.DatasetDescriptor{
			Name:         "stereo-download",
			URLs:         c.cfg.Stereo.URLs,
			RenamePrefix: prefix,
			DestDir:      rawDir,
		},
		stages: []models.StageDescriptor{
			{
				Name:      "stereo-make-h5ad",
				Container: stereopyContainer,
				Inputs:    []models.PathSpec{{Path: gemPath, Kind: models.PathFile}},
				Outputs:   []models.PathSpec{{Path: h5adPath, Kind: models.PathFile}},
				Command: []string{
					"python", filepath.Join(scripts, "Stereopy_make_bin3_h5ad.py"),
					"--data_path", gemPath,
					"--bin_size", strconv.Itoa(c.cfg.Stereo.BinSize),
					"--output", h5adPath,
				},
				Binds: binds,
			},
			{
				Name:      "stereo-multiscale",
				Container: spixContainer,
				Inputs:    []models.PathSpec{{Path: h5adPath, Kind: models.PathFile}},
				Outputs:   []models.PathSpec{{Path: outDir, Kind: models.PathDirNonEmpty}},
				Command: append([]string{
					"python", filepath.Join(scripts, "Stereo_seq_MOSTA_bin3_multiscale.py"),
					"--input_h5ad", h5adPath,
				}, append(c.threadFlags(), "--out_dir", outDir)...),
				Binds: binds,
			},
		},
	}
}

// visiumHDLane: download (multi-URL fan-out) -> zarr conversion -> SPIX
// multiscale consuming the zarr plus the companion pre-binned h5ad.
func (c *Composer) visiumHDLane() lane {
	dataDir := absPath(c.cfg.DataDir)
	rawDir := filepath.Join(dataDir, "visiumhd", "raw")
	prefix := c.cfg.VisiumHD.RenamePrefix

	zarrPath := filepath.Join(dataDir, "visiumhd", fmt.Sprintf("%sbin%dum.zarr", prefix, c.cfg.VisiumHD.BinSize))
	outDir := filepath.Join(dataDir, "visiumhd", "multiscale")

	scripts := absPath(c.cfg.ScriptsDir)
	prebinned := absPath(c.cfg.VisiumHD.PrebinnedH5ad)
	binds := c.binds()

	return lane{
		name: "visiumhd",
		dataset: models.DatasetDescriptor{
			Name:         "visiumhd-download",
			URLs:         c.cfg.VisiumHD.URLs,
			RenamePrefix: prefix,
			DestDir:      rawDir,
		},
		stages: []models.StageDescriptor{
			{
				Name:      "visiumhd-make-zarr",
				Container: spatialdataContainer,
				Inputs:    []models.PathSpec{{Path: rawDir, Kind: models.PathDirNonEmpty}},
				Outputs:   []models.PathSpec{{Path: zarrPath, Kind: models.PathDirNonEmpty}},
				Command: []string{
					"python", filepath.Join(scripts, "VisiumHD_2um_make_zarr.py"),
					"--input_dir", rawDir,
					"--bin_size", strconv.Itoa(c.cfg.VisiumHD.BinSize),
					"--output", zarrPath,
				},
				Binds: binds,
			},
			{
				Name:      "visiumhd-multiscale",
				Container: spixContainer,
				Inputs: []models.PathSpec{
					{Path: zarrPath, Kind: models.PathDirNonEmpty},
					{Path: prebinned, Kind: models.PathFile},
				},
				Outputs: []models.PathSpec{{Path: outDir, Kind: models.PathDirNonEmpty}},
				Command: append([]string{
					"python", filepath.Join(scripts, "VisiumHD_2um_CRC_multiscale_workflow.py"),
					"--input_zarr", zarrPath,
					"--input_8um_h5ad", prebinned,
				}, append(c.threadFlags(), "--out_dir", outDir)...),
				Binds: binds,
			},
		},
	}
}

// threadFlags forwards the configured thread counts to the numerical
// libraries inside the analysis scripts.
func (c *Composer) threadFlags() []string {
	t := c.cfg.Threads
	return []string{
		"--omp_threads", strconv.Itoa(t.OMP),
		"--openblas_threads", strconv.Itoa(t.OpenBLAS),
		"--mkl_threads", strconv.Itoa(t.MKL),
		"--numexpr_threads", strconv.Itoa(t.NumExpr),
		"--n_jobs_embedding", strconv.Itoa(t.NJobsEmbedding),
		"--n_jobs_multiscale", strconv.Itoa(t.NJobsMultiscale),
	}
}

// binds mounts the data and script roots into the container at the same
// paths they occupy on the host, so command arguments resolve unchanged.
func (c *Composer) binds() []models.Bind {
	var out []models.Bind
	for _, dir := range []string{c.cfg.DataDir, c.cfg.ScriptsDir} {
		abs := absPath(dir)
		out = append(out, models.Bind{Host: abs, Container: abs})
	}
	return out
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func urlBase(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	return path.Base(u.Path)
}
