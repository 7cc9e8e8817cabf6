package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/spatialpipe/spatialpipe/internal/models"
)

type containerEntry struct {
	RecipeDir string `toml:"recipe_dir"`
}

type containerManifest struct {
	Containers map[string]containerEntry `toml:"containers"`
}

// LoadContainerManifest loads the containers.toml manifest mapping container
// names to build recipe locations. Relative recipe directories are resolved
// against the manifest's own directory.
func LoadContainerManifest(path string) (map[string]models.ContainerDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading container manifest: %w", err)
	}

	var m containerManifest
	if _, err := toml.Decode(string(data), &m); err != nil {
		return nil, fmt.Errorf("parsing container manifest: %w", err)
	}

	if len(m.Containers) == 0 {
		return nil, fmt.Errorf("container manifest %s defines no containers", path)
	}

	base := filepath.Dir(path)
	out := make(map[string]models.ContainerDescriptor, len(m.Containers))
	for name, entry := range m.Containers {
		if entry.RecipeDir == "" {
			return nil, fmt.Errorf("container %q: missing recipe_dir", name)
		}
		recipeDir := entry.RecipeDir
		if !filepath.IsAbs(recipeDir) {
			recipeDir = filepath.Join(base, recipeDir)
		}
		out[name] = models.ContainerDescriptor{
			Name:      name,
			RecipeDir: recipeDir,
		}
	}

	return out, nil
}
