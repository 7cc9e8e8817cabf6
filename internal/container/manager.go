// Package container manages the shared image cache: building, converting,
// and handing out per-platform container images. Artifacts are keyed
// <name>.<format-extension> in the cache directory; at most one
// authoritative artifact exists per (name, format).
package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/spatialpipe/spatialpipe/internal/fsgate"
	"github.com/spatialpipe/spatialpipe/internal/models"
	"github.com/spatialpipe/spatialpipe/internal/platform"
)

// Manager implements the per-(name, format) lifecycle:
// UNBUILT -> BUILDING -> CACHED, with the side transition
// CACHED(alt-format) -> CONVERTING -> CACHED(native-format).
//
// Check-then-act sequences are serialized by a per-artifact lock, and
// artifacts are produced in a temporary path and renamed into place, so a
// partially written artifact is never observed as cached.
type Manager struct {
	cacheDir   string
	containers map[string]models.ContainerDescriptor
	strat      platform.Strategy
	runner     platform.Runner

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	loaded map[string]bool // artifacts made runnable this process (docker load)
}

// NewManager creates a manager over the given cache directory.
func NewManager(cacheDir string, containers map[string]models.ContainerDescriptor, strat platform.Strategy, runner platform.Runner) *Manager {
	return &Manager{
		cacheDir:   cacheDir,
		containers: containers,
		strat:      strat,
		runner:     runner,
		locks:      make(map[string]*sync.Mutex),
		loaded:     make(map[string]bool),
	}
}

func (m *Manager) artifactPath(name, ext string) string {
	return filepath.Join(m.cacheDir, name+ext)
}

func (m *Manager) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// EnsureImage returns the reference stages use to run inside the named
// container. A cached native-format artifact is returned immediately; a
// cached alternate-format artifact is converted; otherwise the container is
// built with the platform builder. Repeated calls with a cached artifact
// perform zero build or convert work.
func (m *Manager) EnsureImage(ctx context.Context, name string) (string, error) {
	desc, ok := m.containers[name]
	if !ok {
		return "", &models.StageError{
			Type:  models.ErrInternalError,
			Stage: name,
			Path:  m.cacheDir,
			Err:   fmt.Errorf("container %q not in manifest", name),
		}
	}

	native := m.artifactPath(name, m.strat.NativeExt())

	lock := m.lockFor(name + m.strat.NativeExt())
	lock.Lock()
	defer lock.Unlock()

	if fsgate.Exists(native) {
		return m.ref(ctx, desc, native)
	}

	alt := m.artifactPath(name, m.strat.AltExt())
	if fsgate.Exists(alt) && m.strat.ConvertArgs(alt, native) != nil {
		if err := m.convert(ctx, name, alt, native); err != nil {
			return "", err
		}
		return m.ref(ctx, desc, native)
	}

	if err := m.build(ctx, desc, native); err != nil {
		return "", err
	}
	return m.ref(ctx, desc, native)
}

// convert produces the native artifact from a cached alternate-format one.
// A native artifact that appeared since the caller's check wins over
// re-converting.
func (m *Manager) convert(ctx context.Context, name, alt, native string) error {
	if fsgate.Exists(native) {
		return nil
	}

	slog.Info("converting container artifact", "container", name, "from", alt, "to", native)

	tmp := native + ".partial"
	code, err := m.runner.Run(ctx, m.strat.ConvertArgs(alt, tmp), platform.RunOptions{})
	if err == nil && code != 0 {
		err = fmt.Errorf("converter exited with code %d", code)
	}
	if err != nil {
		os.Remove(tmp)
		return &models.StageError{Type: models.ErrConvertFailed, Stage: name, Path: native, Err: err}
	}

	if err := os.Rename(tmp, native); err != nil {
		return &models.StageError{Type: models.ErrConvertFailed, Stage: name, Path: native, Err: err}
	}
	return nil
}

// build invokes the platform builder and caches the result under the native
// format name.
func (m *Manager) build(ctx context.Context, desc models.ContainerDescriptor, native string) error {
	if err := os.MkdirAll(m.cacheDir, 0755); err != nil {
		return &models.StageError{Type: models.ErrBuildFailed, Stage: desc.Name, Path: native, Err: err}
	}

	slog.Info("building container", "container", desc.Name, "recipe", desc.RecipeDir, "artifact", native)

	tmp := native + ".partial"
	for _, argv := range m.strat.BuildSteps(desc, tmp) {
		code, err := m.runner.Run(ctx, argv, platform.RunOptions{})
		if err == nil && code != 0 {
			err = fmt.Errorf("%s exited with code %d", argv[0], code)
		}
		if err != nil {
			os.Remove(tmp)
			return &models.StageError{Type: models.ErrBuildFailed, Stage: desc.Name, Path: native, Err: err}
		}
	}

	if err := os.Rename(tmp, native); err != nil {
		return &models.StageError{Type: models.ErrBuildFailed, Stage: desc.Name, Path: native, Err: err}
	}
	return nil
}

// ref makes a cached native artifact runnable (docker load on mac-like
// hosts, once per process) and returns its image reference.
func (m *Manager) ref(ctx context.Context, desc models.ContainerDescriptor, native string) (string, error) {
	m.mu.Lock()
	needsLoad := !m.loaded[desc.Name]
	m.mu.Unlock()

	if needsLoad {
		for _, argv := range m.strat.LoadSteps(desc.Name, native) {
			code, err := m.runner.Run(ctx, argv, platform.RunOptions{})
			if err == nil && code != 0 {
				err = fmt.Errorf("%s exited with code %d", argv[0], code)
			}
			if err != nil {
				return "", &models.StageError{Type: models.ErrBuildFailed, Stage: desc.Name, Path: native, Err: err}
			}
		}
		m.mu.Lock()
		m.loaded[desc.Name] = true
		m.mu.Unlock()
	}

	return m.strat.ImageRef(desc.Name, native), nil
}

// ConvertCachedArchives scans the cache for archive-format artifacts and
// converts each one whose runtime-format artifact is absent. On mac-like
// hosts the archive already is the native format and nothing happens.
// Conversions run in parallel; the call returns after all finish.
func (m *Manager) ConvertCachedArchives(ctx context.Context) error {
	const archiveExt = ".tar"
	if m.strat.NativeExt() == archiveExt {
		return nil
	}

	matches, err := filepath.Glob(filepath.Join(m.cacheDir, "*"+archiveExt))
	if err != nil {
		return fmt.Errorf("scanning container cache: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, archive := range matches {
		name := strings.TrimSuffix(filepath.Base(archive), archiveExt)
		native := m.artifactPath(name, m.strat.NativeExt())
		g.Go(func() error {
			lock := m.lockFor(name + m.strat.NativeExt())
			lock.Lock()
			defer lock.Unlock()
			return m.convert(ctx, name, archive, native)
		})
	}
	return g.Wait()
}
