package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spatialpipe/spatialpipe/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadPipelineConfig(t *testing.T) {
	yaml := `name: mosta-crc
run_stereo: true
run_visiumhd: true
threads:
  omp: 32
  openblas: 32
stereo:
  urls:
    - https://example.com/Mouse_brain.bin1.gem.gz
  rename_prefix: MOSTA_
visiumhd:
  urls:
    - https://example.com/crc_binned_outputs.tar.gz
    - https://example.com/crc_8um.h5ad
  rename_prefix: CRC_
  prebinned_h5ad: data/visiumhd/raw/CRC_crc_8um.h5ad
`
	path := writeFile(t, t.TempDir(), "pipeline.yaml", yaml)

	cfg, err := config.LoadPipelineConfig(path)
	if err != nil {
		t.Fatalf("LoadPipelineConfig failed: %v", err)
	}

	if cfg.Name == nil || *cfg.Name != "mosta-crc" {
		t.Errorf("name not parsed: %v", cfg.Name)
	}
	if cfg.Threads.OMP != 32 {
		t.Errorf("expected omp 32, got %d", cfg.Threads.OMP)
	}
	if cfg.Threads.MKL != 64 {
		t.Errorf("expected default mkl 64, got %d", cfg.Threads.MKL)
	}
	if cfg.ResultsDir != "results" {
		t.Errorf("expected default results dir, got %s", cfg.ResultsDir)
	}
	if cfg.Stereo.BinSize != 3 {
		t.Errorf("expected default stereo bin size 3, got %d", cfg.Stereo.BinSize)
	}
	if cfg.VisiumHD.BinSize != 2 {
		t.Errorf("expected default visiumhd bin size 2, got %d", cfg.VisiumHD.BinSize)
	}
	if len(cfg.VisiumHD.URLs) != 2 {
		t.Errorf("expected 2 visiumhd urls, got %d", len(cfg.VisiumHD.URLs))
	}
}

func TestLoadPipelineConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"stereo lane without urls",
			"run_stereo: true\n",
			"no stereo.urls",
		},
		{
			"visiumhd lane without urls",
			"run_visiumhd: true\n",
			"no visiumhd.urls",
		},
		{
			"visiumhd lane without prebinned file",
			"run_visiumhd: true\nvisiumhd:\n  urls: [https://example.com/a.tar.gz]\n",
			"prebinned_h5ad",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "pipeline.yaml", tc.yaml)
			_, err := config.LoadPipelineConfig(path)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoadPipelineConfigDisabledLanesSkipValidation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pipeline.yaml", "run_stereo: false\nrun_visiumhd: false\n")
	if _, err := config.LoadPipelineConfig(path); err != nil {
		t.Fatalf("disabled lanes should not require dataset config: %v", err)
	}
}

func TestLoadContainerManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := `[containers.spix]
recipe_dir = "containers/spix"

[containers.stereopy]
recipe_dir = "containers/stereopy"

[containers.spatialdata]
recipe_dir = "/opt/recipes/spatialdata"
`
	path := writeFile(t, dir, "containers.toml", manifest)

	containers, err := config.LoadContainerManifest(path)
	if err != nil {
		t.Fatalf("LoadContainerManifest failed: %v", err)
	}

	if len(containers) != 3 {
		t.Fatalf("expected 3 containers, got %d", len(containers))
	}

	spix := containers["spix"]
	if spix.Name != "spix" {
		t.Errorf("name not filled from key: %q", spix.Name)
	}
	if want := filepath.Join(dir, "containers/spix"); spix.RecipeDir != want {
		t.Errorf("relative recipe dir not resolved: got %s, want %s", spix.RecipeDir, want)
	}
	if containers["spatialdata"].RecipeDir != "/opt/recipes/spatialdata" {
		t.Errorf("absolute recipe dir rewritten: %s", containers["spatialdata"].RecipeDir)
	}
}

func TestLoadContainerManifestErrors(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "empty.toml", "")
	if _, err := config.LoadContainerManifest(path); err == nil {
		t.Error("expected error for manifest with no containers")
	}

	path = writeFile(t, dir, "bad.toml", "[containers.spix]\n")
	if _, err := config.LoadContainerManifest(path); err == nil || !strings.Contains(err.Error(), "recipe_dir") {
		t.Errorf("expected missing recipe_dir error, got %v", err)
	}
}
