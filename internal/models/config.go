package models

// ThreadConfig holds the thread-count parameters forwarded to the numerical
// libraries inside the analysis scripts.
type ThreadConfig struct {
	OMP             int `yaml:"omp" json:"omp"`
	OpenBLAS        int `yaml:"openblas" json:"openblas"`
	MKL             int `yaml:"mkl" json:"mkl"`
	NumExpr         int `yaml:"numexpr" json:"numexpr"`
	NJobsEmbedding  int `yaml:"n_jobs_embedding" json:"n_jobs_embedding"`
	NJobsMultiscale int `yaml:"n_jobs_multiscale" json:"n_jobs_multiscale"`
}

// LaneDataset configures one lane's data source and conversion parameters.
type LaneDataset struct {
	URLs         []string `yaml:"urls" json:"urls"`
	RenamePrefix string   `yaml:"rename_prefix" json:"rename_prefix"`
	BinSize      int      `yaml:"bin_size" json:"bin_size"`
	// PrebinnedH5ad is the companion pre-binned 8um file the VisiumHD
	// multiscale script consumes alongside the zarr. Unused by Stereo-seq.
	PrebinnedH5ad string `yaml:"prebinned_h5ad,omitempty" json:"prebinned_h5ad,omitempty"`
}

// PipelineConfig is the full run configuration: lane switches, resource
// parameters, and path parameters. Loaded once at pipeline start and
// immutable afterwards.
type PipelineConfig struct {
	Name           *string      `yaml:"name,omitempty" json:"name,omitempty"`
	LogLevel       string       `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	ResultsDir     string       `yaml:"results_dir" json:"results_dir"`
	DataDir        string       `yaml:"data_dir" json:"data_dir"`
	ScriptsDir     string       `yaml:"scripts_dir" json:"scripts_dir"`
	ContainerCache string       `yaml:"container_cache" json:"container_cache"`
	ContainersFile string       `yaml:"containers_file" json:"containers_file"`
	RunStereo      bool         `yaml:"run_stereo" json:"run_stereo"`
	RunVisiumHD    bool         `yaml:"run_visiumhd" json:"run_visiumhd"`
	Threads        ThreadConfig `yaml:"threads" json:"threads"`
	Stereo         LaneDataset  `yaml:"stereo" json:"stereo"`
	VisiumHD       LaneDataset  `yaml:"visiumhd" json:"visiumhd"`
}
