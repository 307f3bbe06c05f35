// Package tracking is the experiment-tracking client used by pipeline steps:
// it opens runs, downloads input artifacts into a local cache and publishes
// new artifact versions. Payloads live in object storage, the version
// registry and run records in Postgres.
package tracking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animus-labs/animus-cleaning/internal/domain"
	"github.com/animus-labs/animus-cleaning/internal/repo"
	store "github.com/animus-labs/animus-cleaning/internal/storage/objectstore"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type Client struct {
	cfg       Config
	store     store.Store
	artifacts repo.ArtifactRepository
	runs      repo.RunRepository
	lineage   LineageRecorder
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

func NewClient(cfg Config, objectStore store.Store, artifacts repo.ArtifactRepository, runs repo.RunRepository, lineage LineageRecorder, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if objectStore == nil {
		return nil, errors.New("object store is required")
	}
	if artifacts == nil {
		return nil, errors.New("artifact repository is required")
	}
	if runs == nil {
		return nil, errors.New("run repository is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Client{
		cfg:       cfg,
		store:     objectStore,
		artifacts: artifacts,
		runs:      runs,
		lineage:   lineage,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// InitRun registers a running run for jobType and stores its initial config.
func (c *Client) InitRun(ctx context.Context, jobType string, config domain.Metadata) (*Run, error) {
	if c == nil {
		return nil, errors.New("tracking client not initialized")
	}
	jobType = strings.TrimSpace(jobType)
	if jobType == "" {
		return nil, errors.New("job type is required")
	}

	record := domain.Run{
		ID:        c.newID(),
		ProjectID: c.cfg.ProjectID,
		JobType:   jobType,
		Status:    domain.RunStatusRunning,
		Config:    config.Clone(),
		StartedAt: c.now().UTC(),
		CreatedBy: c.cfg.Actor,
	}
	integrity, err := integritySHA256(runIntegrityInput{
		RunID:     record.ID,
		ProjectID: record.ProjectID,
		JobType:   record.JobType,
		StartedAt: record.StartedAt,
		CreatedBy: record.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("integrity: %w", err)
	}
	record.IntegritySHA256 = integrity

	if err := c.runs.CreateRun(ctx, record); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	run := &Run{client: c, record: record}
	if err := run.writeConfig(ctx); err != nil {
		if failErr := run.Fail(ctx, err); failErr != nil {
			c.logger.Warn("run not marked failed", "run_id", record.ID, "error", failErr)
		}
		return nil, err
	}
	c.logger.Info("run started", "run_id", record.ID, "project", record.ProjectID, "job_type", jobType)
	return run, nil
}

type runConfigDocument struct {
	RunID   string         `yaml:"run_id"`
	Project string         `yaml:"project"`
	JobType string         `yaml:"job_type"`
	Config  map[string]any `yaml:"config"`
}

func runConfigKey(projectID, runID string) string {
	return fmt.Sprintf("%s/runs/%s/config.yaml", projectID, runID)
}

func (r *Run) writeConfig(ctx context.Context) error {
	doc, err := yaml.Marshal(runConfigDocument{
		RunID:   r.record.ID,
		Project: r.record.ProjectID,
		JobType: r.record.JobType,
		Config:  r.record.Config,
	})
	if err != nil {
		return fmt.Errorf("encode run config: %w", err)
	}
	key := runConfigKey(r.record.ProjectID, r.record.ID)
	if err := r.client.store.Put(ctx, r.client.cfg.Bucket, key, bytes.NewReader(doc), int64(len(doc)), "application/yaml"); err != nil {
		return fmt.Errorf("upload run config: %w", err)
	}
	return nil
}
