package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stepweave/internal/config"
	"stepweave/internal/logging"
	"stepweave/internal/manifest"
	"stepweave/internal/model"
	"stepweave/internal/pipeline"
	"stepweave/internal/store"
)

type commandContext struct {
	configPath string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// newDeps builds the pipeline collaborators; tests replace it.
	newDeps func(*config.Config, *slog.Logger) (pipeline.Deps, error)
}

func newCommandContext() *commandContext {
	return &commandContext{newDeps: pipeline.NewDeps}
}

// loadDotEnv reads .env from the working directory without overriding
// variables already set.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Default().Debug("ignoring unreadable .env", logging.Error(err))
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds the configured logger and prunes expired daily log files.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, logging.DailyLogPath(cfg.Paths.LogDir, now), now)
	return logger, nil
}

func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// manifestTask resolves a task id through the configured manifest.
func (c *commandContext) manifestTask(id string) (model.Task, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return model.Task{}, err
	}
	m, err := manifest.Load(cfg.Paths.Manifest)
	if err != nil {
		return model.Task{}, err
	}
	return m.Task(id)
}

// pipeline wires a pipeline over st with production or injected deps.
func (c *commandContext) pipeline(cfg *config.Config, st *store.Store, logger *slog.Logger) (*pipeline.Pipeline, error) {
	deps, err := c.newDeps(cfg, logger)
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, st, deps, pipeline.WithLogger(logger))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func requireTask(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("--task is required")
	}
	return nil
}
