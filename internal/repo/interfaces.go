package repo

import (
	"context"
	"time"

	"github.com/animus-labs/animus-cleaning/internal/domain"
)

// ArtifactRepository is the artifact version registry.
type ArtifactRepository interface {
	// CreateArtifact registers a new version of artifact.Name and returns the
	// stored record with its allocated Version.
	CreateArtifact(ctx context.Context, artifact domain.Artifact) (domain.Artifact, error)
	// ResolveArtifact returns the pinned version, or the latest one when
	// version is zero.
	ResolveArtifact(ctx context.Context, projectID, name string, version int64) (domain.Artifact, error)
}

// RunRepository manages run records; identity is immutable, status moves
// forward once from running to a terminal state.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.Run) error
	UpdateRunConfig(ctx context.Context, projectID, id string, config domain.Metadata) error
	FinishRun(ctx context.Context, projectID, id string, status domain.RunStatus, endedAt time.Time, errMsg string) error
}
