package pipeline_test

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spatialpipe/spatialpipe/internal/container"
	"github.com/spatialpipe/spatialpipe/internal/models"
	"github.com/spatialpipe/spatialpipe/internal/pipeline"
	"github.com/spatialpipe/spatialpipe/internal/platform"
	"github.com/spatialpipe/spatialpipe/internal/stage"
)

// pipelineSpy simulates every external tool the pipeline shells out to:
// wget writes the requested file, apptainer build produces its artifact, and
// apptainer exec materializes the analysis script's declared outputs.
type pipelineSpy struct {
	mu     sync.Mutex
	calls  []string
	failOn string // substring of an invocation that should exit non-zero
}

func (s *pipelineSpy) Run(ctx context.Context, argv []string, opts platform.RunOptions) (int, error) {
	joined := strings.Join(argv, " ")
	s.mu.Lock()
	s.calls = append(s.calls, joined)
	s.mu.Unlock()

	if s.failOn != "" && strings.Contains(joined, s.failOn) {
		return 1, nil
	}

	switch {
	case argv[0] == "wget":
		url := argv[len(argv)-1]
		return 0, os.WriteFile(filepath.Join(opts.Dir, path.Base(url)), []byte("raw"), 0644)

	case argv[0] == "apptainer" && argv[1] == "build":
		return 0, os.WriteFile(argv[2], []byte("image"), 0644)

	case argv[0] == "apptainer" && argv[1] == "exec":
		return 0, s.materializeOutputs(argv)
	}
	return 0, nil
}

func (s *pipelineSpy) materializeOutputs(argv []string) error {
	for i, a := range argv {
		if i+1 >= len(argv) {
			break
		}
		val := argv[i+1]
		switch a {
		case "--output":
			if strings.HasSuffix(val, ".zarr") {
				if err := os.MkdirAll(val, 0755); err != nil {
					return err
				}
				if err := os.WriteFile(filepath.Join(val, ".zgroup"), []byte("{}"), 0644); err != nil {
					return err
				}
			} else if err := os.WriteFile(val, []byte("table"), 0644); err != nil {
				return err
			}
		case "--out_dir":
			if err := os.MkdirAll(val, 0755); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(val, "summary.csv"), []byte("ok"), 0644); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *pipelineSpy) sawCall(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func testConfig(t *testing.T) models.PipelineConfig {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")

	return models.PipelineConfig{
		LogLevel:       "error",
		ResultsDir:     filepath.Join(root, "results"),
		DataDir:        dataDir,
		ScriptsDir:     filepath.Join(root, "bin"),
		ContainerCache: filepath.Join(root, "cache"),
		Threads: models.ThreadConfig{
			OMP: 4, OpenBLAS: 4, MKL: 4, NumExpr: 4,
			NJobsEmbedding: 2, NJobsMultiscale: 1,
		},
		Stereo: models.LaneDataset{
			URLs:         []string{"https://example.com/Mouse_brain.bin1.gem.gz"},
			RenamePrefix: "MOSTA_",
			BinSize:      3,
		},
		VisiumHD: models.LaneDataset{
			URLs: []string{
				"https://example.com/binned_outputs.tar.gz",
				"https://example.com/crc_8um.h5ad",
			},
			RenamePrefix:  "CRC_",
			BinSize:       2,
			PrebinnedH5ad: filepath.Join(dataDir, "visiumhd", "raw", "CRC_crc_8um.h5ad"),
		},
	}
}

func newComposer(t *testing.T, cfg models.PipelineConfig, spy *pipelineSpy) *pipeline.Composer {
	t.Helper()
	containers := map[string]models.ContainerDescriptor{
		"stereopy":    {Name: "stereopy", RecipeDir: "containers/stereopy"},
		"spatialdata": {Name: "spatialdata", RecipeDir: "containers/spatialdata"},
		"spix":        {Name: "spix", RecipeDir: "containers/spix"},
	}
	strat := platform.ForFamily(platform.FamilyLinux)
	mgr := container.NewManager(cfg.ContainerCache, containers, strat, spy)
	exec := stage.NewExecutor(strat, spy, mgr, cfg.ResultsDir)
	return pipeline.New(cfg, mgr, exec)
}

func TestLaneGating(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunStereo = false
	cfg.RunVisiumHD = true

	spy := &pipelineSpy{}
	result, err := newComposer(t, cfg, spy).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if spy.sawCall("Stereopy_make_bin3_h5ad.py") || spy.sawCall("Stereo_seq_MOSTA_bin3_multiscale.py") {
		t.Error("disabled stereo lane invoked its stages")
	}
	if spy.sawCall("Mouse_brain.bin1.gem.gz") {
		t.Error("disabled stereo lane downloaded its dataset")
	}

	if result.Lanes["stereo"].Status != models.LaneSkipped {
		t.Errorf("stereo lane status = %s, want skipped", result.Lanes["stereo"].Status)
	}
	if result.Lanes["visiumhd"].Status != models.LaneCompleted {
		t.Errorf("visiumhd lane status = %s: %s", result.Lanes["visiumhd"].Status, result.Lanes["visiumhd"].Error)
	}

	// Downstream artifacts of the enabled lane exist.
	zarr := filepath.Join(cfg.DataDir, "visiumhd", "CRC_bin2um.zarr")
	if _, statErr := os.Stat(zarr); statErr != nil {
		t.Errorf("zarr conversion output missing: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.ResultsDir, "visiumhd-multiscale")); statErr != nil {
		t.Errorf("multiscale results not published: %v", statErr)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.ResultsDir, "result.json")); statErr != nil {
		t.Errorf("result.json not written: %v", statErr)
	}
}

func TestConversionBarrierConvertsCachedArchives(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunStereo = false
	cfg.RunVisiumHD = false

	os.MkdirAll(cfg.ContainerCache, 0755)
	os.WriteFile(filepath.Join(cfg.ContainerCache, "spix.tar"), []byte("archive"), 0644)

	spy := &pipelineSpy{}
	if _, err := newComposer(t, cfg, spy).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := os.Stat(filepath.Join(cfg.ContainerCache, "spix.sif")); err != nil {
		t.Errorf("archive not converted by the barrier lane: %v", err)
	}
	if !spy.sawCall("docker-archive://") {
		t.Error("expected a conversion invocation")
	}
}

func TestFailedLaneDoesNotAbortSibling(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunStereo = true
	cfg.RunVisiumHD = true

	spy := &pipelineSpy{failOn: "Stereo_seq_MOSTA_bin3_multiscale.py"}
	result, err := newComposer(t, cfg, spy).Run(context.Background())
	if err == nil {
		t.Fatal("expected the stereo lane failure to surface")
	}

	if result.Lanes["stereo"].Status != models.LaneFailed {
		t.Errorf("stereo lane status = %s, want failed", result.Lanes["stereo"].Status)
	}
	if !strings.Contains(result.Lanes["stereo"].Error, "stereo-multiscale") {
		t.Errorf("lane error must name the failing stage: %s", result.Lanes["stereo"].Error)
	}
	if result.Lanes["visiumhd"].Status != models.LaneCompleted {
		t.Errorf("sibling lane aborted: %s (%s)", result.Lanes["visiumhd"].Status, result.Lanes["visiumhd"].Error)
	}
}

func TestSecondRunSkipsCompletedStages(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunStereo = false
	cfg.RunVisiumHD = true

	composer := newComposer(t, cfg, &pipelineSpy{})
	if _, err := composer.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	spy := &pipelineSpy{}
	if _, err := newComposer(t, cfg, spy).Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if spy.sawCall("wget") {
		t.Error("second run re-downloaded a present dataset")
	}
	if spy.sawCall("VisiumHD_2um_make_zarr.py") || spy.sawCall("VisiumHD_2um_CRC_multiscale_workflow.py") {
		t.Error("second run re-executed stages whose outputs exist")
	}
	if spy.sawCall("apptainer build") {
		t.Error("second run rebuilt cached container images")
	}
}
