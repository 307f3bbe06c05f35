package tracking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-cleaning/internal/domain"
	"github.com/animus-labs/animus-cleaning/internal/platform/lineageevent"
)

var ErrRunFinished = errors.New("run already finished")

// Run scopes artifact downloads and uploads to one execution of a step.
// It is not safe for concurrent use.
type Run struct {
	client *Client
	record domain.Run
}

func (r *Run) ID() string {
	return r.record.ID
}

// Record returns a copy of the run as last written.
func (r *Run) Record() domain.Run {
	out := r.record
	out.Config = r.record.Config.Clone()
	return out
}

// UpdateConfig merges cfg into the run config and persists it.
func (r *Run) UpdateConfig(ctx context.Context, cfg domain.Metadata) error {
	if r.record.Status.Terminal() {
		return ErrRunFinished
	}
	merged := r.record.Config.Merge(cfg)
	if err := r.client.runs.UpdateRunConfig(ctx, r.record.ProjectID, r.record.ID, merged); err != nil {
		return fmt.Errorf("update run config: %w", err)
	}
	r.record.Config = merged
	return r.writeConfig(ctx)
}

// UseArtifact resolves ref, downloads the payload into the local cache when it
// is not already there and returns the local file path.
func (r *Run) UseArtifact(ctx context.Context, rawRef string) (string, error) {
	if r.record.Status.Terminal() {
		return "", ErrRunFinished
	}
	ref, err := domain.ParseArtifactRef(rawRef)
	if err != nil {
		return "", err
	}
	projectID := ref.Project
	if projectID == "" {
		projectID = r.record.ProjectID
	}

	artifact, err := r.client.artifacts.ResolveArtifact(ctx, projectID, ref.Name, ref.Version)
	if err != nil {
		return "", fmt.Errorf("resolve artifact %s: %w", ref, err)
	}

	localPath := filepath.Join(r.client.cfg.CacheDir, artifact.ID, filepath.Base(artifact.Filename))
	cached, err := fileSHA256(localPath)
	switch {
	case err == nil && cached == artifact.SHA256:
		r.client.logger.Info("artifact cache hit", "ref", ref.String(), "version", artifact.VersionLabel(), "path", localPath)
	case err == nil || errors.Is(err, os.ErrNotExist):
		if err := r.download(ctx, artifact, localPath); err != nil {
			return "", fmt.Errorf("download artifact %s: %w", ref, err)
		}
		r.client.logger.Info("artifact downloaded", "ref", ref.String(), "version", artifact.VersionLabel(), "size_bytes", artifact.SizeBytes, "path", localPath)
	default:
		return "", fmt.Errorf("read cached artifact %s: %w", ref, err)
	}

	r.recordLineage(ctx, lineageevent.PredicateUsed, artifact.ID, map[string]any{
		"ref":     ref.String(),
		"name":    artifact.Name,
		"version": artifact.Version,
	})
	return localPath, nil
}

func (r *Run) download(ctx context.Context, artifact domain.Artifact, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	body, _, err := r.client.store.Get(ctx, r.client.cfg.Bucket, artifact.ObjectKey)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".download-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	hasher := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(tmp, hasher), body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	if sum := hex.EncodeToString(hasher.Sum(nil)); sum != artifact.SHA256 {
		return fmt.Errorf("%w: sha256 %s, registered %s", ErrIntegrity, sum, artifact.SHA256)
	}
	return os.Rename(tmpPath, localPath)
}

// LogArtifact uploads the staged file and registers it as the next version of
// a.Name. The payload is removed again when the stored size does not match or
// registration fails, so a failed call leaves no visible version behind.
func (r *Run) LogArtifact(ctx context.Context, a *Artifact) (domain.Artifact, error) {
	if r.record.Status.Terminal() {
		return domain.Artifact{}, ErrRunFinished
	}
	if a == nil || a.File() == "" {
		return domain.Artifact{}, errors.New("artifact has no file")
	}

	f, err := os.Open(a.File())
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("open artifact file: %w", err)
	}
	defer f.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("hash artifact file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return domain.Artifact{}, fmt.Errorf("rewind artifact file: %w", err)
	}

	filename := filepath.Base(a.File())
	artifact := domain.Artifact{
		ID:          r.client.newID(),
		ProjectID:   r.record.ProjectID,
		Name:        a.Name,
		Type:        a.Type,
		Description: a.Description,
		Filename:    filename,
		ContentType: contentTypeFor(filename),
		SHA256:      hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes:   size,
		Metadata:    a.Metadata.Clone(),
		RunID:       r.record.ID,
		CreatedAt:   r.client.now().UTC(),
		CreatedBy:   r.client.cfg.Actor,
	}
	artifact.ObjectKey = artifactObjectKey(artifact.ProjectID, artifact.ID, filename)
	if err := artifact.Validate(); err != nil {
		return domain.Artifact{}, err
	}
	integrity, err := integritySHA256(artifactIntegrityInput{
		ArtifactID:  artifact.ID,
		ProjectID:   artifact.ProjectID,
		Name:        artifact.Name,
		Type:        artifact.Type,
		Description: artifact.Description,
		Filename:    artifact.Filename,
		ContentType: artifact.ContentType,
		ObjectKey:   artifact.ObjectKey,
		SHA256:      artifact.SHA256,
		SizeBytes:   artifact.SizeBytes,
		Metadata:    artifact.Metadata,
		RunID:       artifact.RunID,
		CreatedAt:   artifact.CreatedAt,
		CreatedBy:   artifact.CreatedBy,
	})
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("integrity: %w", err)
	}
	artifact.IntegritySHA256 = integrity

	if err := r.client.store.Put(ctx, r.client.cfg.Bucket, artifact.ObjectKey, f, size, artifact.ContentType); err != nil {
		return domain.Artifact{}, fmt.Errorf("upload artifact %s: %w", artifact.Name, err)
	}
	info, err := r.client.store.Stat(ctx, r.client.cfg.Bucket, artifact.ObjectKey)
	if err == nil && info.Size != size {
		err = fmt.Errorf("%w: stored %d bytes, uploaded %d", ErrIntegrity, info.Size, size)
	}
	if err != nil {
		r.removePayload(ctx, artifact.ObjectKey)
		return domain.Artifact{}, fmt.Errorf("verify artifact %s: %w", artifact.Name, err)
	}
	created, err := r.client.artifacts.CreateArtifact(ctx, artifact)
	if err != nil {
		r.removePayload(ctx, artifact.ObjectKey)
		return domain.Artifact{}, fmt.Errorf("register artifact %s: %w", artifact.Name, err)
	}

	r.recordLineage(ctx, lineageevent.PredicateProduced, created.ID, map[string]any{
		"name":    created.Name,
		"type":    created.Type,
		"version": created.Version,
	})
	r.client.logger.Info("artifact logged", "name", created.Name, "type", created.Type, "version", created.VersionLabel(), "size_bytes", created.SizeBytes, "sha256", created.SHA256)
	return created, nil
}

// Finish marks the run finished.
func (r *Run) Finish(ctx context.Context) error {
	return r.end(ctx, domain.RunStatusFinished, "")
}

// Fail marks the run failed and records cause.
func (r *Run) Fail(ctx context.Context, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.end(ctx, domain.RunStatusFailed, msg)
}

func (r *Run) end(ctx context.Context, status domain.RunStatus, errMsg string) error {
	if r.record.Status.Terminal() {
		return ErrRunFinished
	}
	endedAt := r.client.now().UTC()
	if err := r.client.runs.FinishRun(ctx, r.record.ProjectID, r.record.ID, status, endedAt, errMsg); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	r.record.Status = status
	r.record.EndedAt = &endedAt
	r.record.Error = strings.TrimSpace(errMsg)
	r.client.logger.Info("run ended", "run_id", r.record.ID, "status", string(status), "duration", endedAt.Sub(r.record.StartedAt).String())
	return nil
}

func (r *Run) removePayload(ctx context.Context, key string) {
	if err := r.client.store.Delete(ctx, r.client.cfg.Bucket, key); err != nil {
		r.client.logger.Warn("orphaned artifact payload", "object_key", key, "error", err)
	}
}

func (r *Run) recordLineage(ctx context.Context, predicate, artifactID string, metadata map[string]any) {
	if r.client.lineage == nil {
		return
	}
	event := lineageevent.RunArtifact(r.client.cfg.Actor, r.record.ID, predicate, artifactID, metadata)
	event.OccurredAt = r.client.now().UTC()
	if err := r.client.lineage.RecordLineage(ctx, event); err != nil {
		r.client.logger.Warn("lineage event not recorded", "run_id", r.record.ID, "artifact_id", artifactID, "predicate", predicate, "error", err)
	}
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
