// Package pipeline wires stages into the fixed topology: an unconditional
// container-conversion barrier, then the Stereo-seq and VisiumHD lanes, each
// gated by its configuration flag and internally strictly sequential.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/spatialpipe/spatialpipe/internal/container"
	"github.com/spatialpipe/spatialpipe/internal/models"
	"github.com/spatialpipe/spatialpipe/internal/stage"
)

// Composer owns the execution order. It holds no mutable run state of its
// own; stage completion is derived from output files on disk each run.
type Composer struct {
	cfg  models.PipelineConfig
	mgr  *container.Manager
	exec *stage.Executor
}

// New creates a composer for the given configuration.
func New(cfg models.PipelineConfig, mgr *container.Manager, exec *stage.Executor) *Composer {
	return &Composer{cfg: cfg, mgr: mgr, exec: exec}
}

// lane is one independent, internally-sequential sub-pipeline: a download
// fan-out followed by its conversion and analysis stages.
type lane struct {
	name    string
	dataset models.DatasetDescriptor
	stages  []models.StageDescriptor
}

// Run executes the pipeline. The archive-conversion barrier completes before
// any analysis lane starts. Lanes run concurrently; a failed lane does not
// cancel its sibling, which runs to completion, and the first lane error is
// returned after all lanes finish.
func (c *Composer) Run(ctx context.Context) (*models.PipelineResult, error) {
	started := time.Now()

	result := &models.PipelineResult{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Lanes:     make(map[string]models.LaneResult),
	}
	if c.cfg.Name != nil {
		result.Name = *c.cfg.Name
	}

	if err := os.MkdirAll(c.cfg.ResultsDir, 0755); err != nil {
		return nil, fmt.Errorf("creating results root: %w", err)
	}
	c.writeManifest(result)

	slog.Info("converting cached container archives", "cache", c.cfg.ContainerCache)
	if err := c.mgr.ConvertCachedArchives(ctx); err != nil {
		return nil, err
	}

	var lanes []lane
	if c.cfg.RunStereo {
		lanes = append(lanes, c.stereoLane())
	} else {
		result.Lanes["stereo"] = models.LaneResult{Lane: "stereo", Status: models.LaneSkipped}
	}
	if c.cfg.RunVisiumHD {
		lanes = append(lanes, c.visiumHDLane())
	} else {
		result.Lanes["visiumhd"] = models.LaneResult{Lane: "visiumhd", Status: models.LaneSkipped}
	}

	var mu sync.Mutex
	// Plain errgroup.Group, no derived context: a failed lane must not
	// abort its sibling.
	var g errgroup.Group
	for _, ln := range lanes {
		g.Go(func() error {
			lr := c.runLane(ctx, ln)
			mu.Lock()
			result.Lanes[ln.name] = lr
			mu.Unlock()
			if lr.Status == models.LaneFailed {
				return fmt.Errorf("lane %s: %s", ln.name, lr.Error)
			}
			return nil
		})
	}
	err := g.Wait()

	result.EndedAt = time.Now()
	result.TotalDurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	os.WriteFile(filepath.Join(c.cfg.ResultsDir, "result.json"), resultJSON, 0644)

	return result, err
}

func (c *Composer) runLane(ctx context.Context, ln lane) models.LaneResult {
	start := time.Now()
	slog.Info("lane started", "lane", ln.name)

	err := func() error {
		if len(ln.dataset.URLs) > 0 {
			if err := c.exec.Download(ctx, ln.dataset); err != nil {
				return err
			}
		}
		for _, st := range ln.stages {
			if err := c.exec.Run(ctx, st); err != nil {
				return err
			}
		}
		return nil
	}()

	lr := models.LaneResult{
		Lane:        ln.name,
		Status:      models.LaneCompleted,
		DurationSec: time.Since(start).Seconds(),
	}
	if err != nil {
		lr.Status = models.LaneFailed
		lr.Error = err.Error()
		slog.Error("lane failed", "lane", ln.name, "error", err)
	} else {
		slog.Info("lane completed", "lane", ln.name, "duration_sec", lr.DurationSec)
	}
	return lr
}

// writeManifest records the run ID and configuration snapshot at start, so a
// partially completed run is attributable.
func (c *Composer) writeManifest(result *models.PipelineResult) {
	manifest := struct {
		RunID     string                `json:"run_id"`
		StartedAt time.Time             `json:"started_at"`
		Config    models.PipelineConfig `json:"config"`
	}{
		RunID:     result.RunID,
		StartedAt: result.StartedAt,
		Config:    c.cfg,
	}
	data, _ := json.MarshalIndent(manifest, "", "  ")
	os.WriteFile(filepath.Join(c.cfg.ResultsDir, "run.json"), data, 0644)
}
