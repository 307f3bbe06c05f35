package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/animus-labs/animus-cleaning/internal/domain"
	"github.com/animus-labs/animus-cleaning/internal/repo"
)

type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	configJSON, err := encodeMetadata(run.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tracking_runs (
			run_id,
			project_id,
			job_type,
			status,
			config,
			started_at,
			created_by,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.ProjectID),
		strings.TrimSpace(run.JobType),
		string(run.Status),
		configJSON,
		normalizeTime(run.StartedAt),
		strings.TrimSpace(run.CreatedBy),
		strings.TrimSpace(run.IntegritySHA256),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert run %s: %w", run.ID, repo.ErrConflict)
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) UpdateRunConfig(ctx context.Context, projectID, id string, config domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	configJSON, err := encodeMetadata(config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tracking_runs SET config = $3 WHERE project_id = $1 AND run_id = $2`,
		strings.TrimSpace(projectID),
		strings.TrimSpace(id),
		configJSON,
	)
	if err != nil {
		return fmt.Errorf("update run config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run config: %w", err)
	}
	if n == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// FinishRun moves a running run to status. A run that is missing or already
// terminal yields repo.ErrInvalidTransition.
func (s *RunStore) FinishRun(ctx context.Context, projectID, id string, status domain.RunStatus, endedAt time.Time, errMsg string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if !status.Terminal() {
		return fmt.Errorf("finish run: status %q is not terminal", status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE tracking_runs
		 SET status = $3, ended_at = $4, error = $5
		 WHERE project_id = $1 AND run_id = $2 AND status = $6`,
		strings.TrimSpace(projectID),
		strings.TrimSpace(id),
		string(status),
		normalizeTime(endedAt),
		nullIfEmpty(errMsg),
		string(domain.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return repo.ErrInvalidTransition
	}
	return nil
}
