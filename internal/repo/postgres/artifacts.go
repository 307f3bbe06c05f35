package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/animus-labs/animus-cleaning/internal/domain"
	"github.com/animus-labs/animus-cleaning/internal/repo"
)

const artifactColumns = `artifact_id, project_id, name, type, description, version, filename, content_type, object_key, sha256, size_bytes, metadata, run_id, created_at, created_by, integrity_sha256`

type ArtifactStore struct {
	db DB
}

func NewArtifactStore(db DB) *ArtifactStore {
	if db == nil {
		return nil
	}
	return &ArtifactStore{db: db}
}

// CreateArtifact allocates the next version for (project, name) inside the
// INSERT itself. Two writers racing for the same version hit the unique
// constraint and one of them gets repo.ErrConflict.
func (s *ArtifactStore) CreateArtifact(ctx context.Context, artifact domain.Artifact) (domain.Artifact, error) {
	if s == nil || s.db == nil {
		return domain.Artifact{}, fmt.Errorf("artifact store not initialized")
	}
	if err := artifact.Validate(); err != nil {
		return domain.Artifact{}, err
	}
	if err := requireIntegrity(artifact.IntegritySHA256); err != nil {
		return domain.Artifact{}, err
	}
	metadataJSON, err := encodeMetadata(artifact.Metadata)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("encode metadata: %w", err)
	}
	artifact.CreatedAt = normalizeTime(artifact.CreatedAt)

	var version int64
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO artifact_versions (`+artifactColumns+`)
		SELECT $1::text, $2::text, $3::text, $4::text, $5::text, COALESCE(MAX(version), 0) + 1,
			$6::text, $7::text, $8::text, $9::text, $10::bigint, $11::jsonb, $12::text, $13::timestamptz, $14::text, $15::text
		FROM artifact_versions
		WHERE project_id = $2::text AND name = $3::text
		RETURNING version`,
		strings.TrimSpace(artifact.ID),
		strings.TrimSpace(artifact.ProjectID),
		strings.TrimSpace(artifact.Name),
		strings.TrimSpace(artifact.Type),
		strings.TrimSpace(artifact.Description),
		strings.TrimSpace(artifact.Filename),
		strings.TrimSpace(artifact.ContentType),
		strings.TrimSpace(artifact.ObjectKey),
		strings.TrimSpace(artifact.SHA256),
		artifact.SizeBytes,
		metadataJSON,
		strings.TrimSpace(artifact.RunID),
		artifact.CreatedAt,
		strings.TrimSpace(artifact.CreatedBy),
		strings.TrimSpace(artifact.IntegritySHA256),
	).Scan(&version)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Artifact{}, fmt.Errorf("insert artifact %s: %w", artifact.Name, repo.ErrConflict)
		}
		return domain.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	artifact.Version = version
	return artifact, nil
}

func (s *ArtifactStore) ResolveArtifact(ctx context.Context, projectID, name string, version int64) (domain.Artifact, error) {
	if s == nil || s.db == nil {
		return domain.Artifact{}, fmt.Errorf("artifact store not initialized")
	}
	query, args, err := buildResolveQuery(projectID, name, version)
	if err != nil {
		return domain.Artifact{}, err
	}

	var artifact domain.Artifact
	var metadataJSON []byte
	var description, contentType sql.NullString
	row := s.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(
		&artifact.ID,
		&artifact.ProjectID,
		&artifact.Name,
		&artifact.Type,
		&description,
		&artifact.Version,
		&artifact.Filename,
		&contentType,
		&artifact.ObjectKey,
		&artifact.SHA256,
		&artifact.SizeBytes,
		&metadataJSON,
		&artifact.RunID,
		&artifact.CreatedAt,
		&artifact.CreatedBy,
		&artifact.IntegritySHA256,
	); err != nil {
		return domain.Artifact{}, handleNotFound(err)
	}
	artifact.Description = description.String
	artifact.ContentType = contentType.String
	meta, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("decode metadata: %w", err)
	}
	artifact.Metadata = meta
	return artifact, nil
}

func buildResolveQuery(projectID, name string, version int64) (string, []any, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", nil, fmt.Errorf("project id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, fmt.Errorf("artifact name is required")
	}
	if version < 0 {
		return "", nil, fmt.Errorf("version must be >= 0")
	}

	args := []any{projectID, name}
	query := `SELECT ` + artifactColumns + ` FROM artifact_versions WHERE project_id = $1 AND name = $2`
	if version > 0 {
		args = append(args, version)
		query += fmt.Sprintf(" AND version = $%d", len(args))
	} else {
		query += " ORDER BY version DESC LIMIT 1"
	}
	return query, args, nil
}
