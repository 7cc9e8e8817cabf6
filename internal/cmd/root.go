// Package cmd defines the spatialpipe command tree.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spatialpipe/spatialpipe/internal/config"
	"github.com/spatialpipe/spatialpipe/internal/container"
	"github.com/spatialpipe/spatialpipe/internal/models"
	"github.com/spatialpipe/spatialpipe/internal/pipeline"
	"github.com/spatialpipe/spatialpipe/internal/platform"
	"github.com/spatialpipe/spatialpipe/internal/stage"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	configPath string
	logLevel   string
}

func newOptions() *options {
	return &options{}
}

func (o *options) addFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "pipeline.yaml", "path to the pipeline configuration file")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "log level (debug|info|warn|error), overrides the config file")
}

// NewCmdRoot creates the root `spatialpipe` command.
func NewCmdRoot() *cobra.Command {
	o := newOptions()

	cmds := &cobra.Command{
		Use:           "spatialpipe",
		Short:         "Orchestrate the spatial-transcriptomics processing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.addFlags(cmds)

	cmds.AddCommand(newCmdRun(o))
	cmds.AddCommand(newCmdImages(o))

	return cmds
}

// load reads the configuration, initializes logging, and assembles the
// composer and its collaborators. The platform strategy is resolved exactly
// once here.
func (o *options) load() (*pipeline.Composer, *container.Manager, models.PipelineConfig, error) {
	cfg, err := config.LoadPipelineConfig(o.configPath)
	if err != nil {
		return nil, nil, cfg, err
	}

	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	initLogging(level)

	containers, err := config.LoadContainerManifest(cfg.ContainersFile)
	if err != nil {
		return nil, nil, cfg, err
	}

	family := platform.Detect()
	slog.Debug("platform detected", "family", family)

	strat := platform.ForFamily(family)
	runner := platform.ExecRunner{}
	mgr := container.NewManager(cfg.ContainerCache, containers, strat, runner)
	exec := stage.NewExecutor(strat, runner, mgr, cfg.ResultsDir)

	return pipeline.New(cfg, mgr, exec), mgr, cfg, nil
}

func initLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := NewCmdRoot().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}
