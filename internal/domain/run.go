package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
)

func (s RunStatus) Terminal() bool {
	return s == RunStatusFinished || s == RunStatusFailed
}

// Run is one execution of a pipeline step. Artifact downloads and uploads are
// scoped to it.
type Run struct {
	ID              string
	ProjectID       string
	JobType         string
	Status          RunStatus
	Config          Metadata
	StartedAt       time.Time
	EndedAt         *time.Time
	Error           string
	CreatedBy       string
	IntegritySHA256 string
}

func (r Run) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(r.JobType) == "" {
		return errors.New("job type is required")
	}
	switch r.Status {
	case RunStatusRunning, RunStatusFinished, RunStatusFailed:
	default:
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if strings.TrimSpace(r.IntegritySHA256) == "" {
		return errors.New("integrity sha256 is required")
	}
	return nil
}
