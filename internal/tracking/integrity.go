package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

func integritySHA256(v any) (string, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal integrity input: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}

type runIntegrityInput struct {
	RunID     string    `json:"run_id"`
	ProjectID string    `json:"project_id"`
	JobType   string    `json:"job_type"`
	StartedAt time.Time `json:"started_at"`
	CreatedBy string    `json:"created_by"`
}

// The version ordinal is assigned by the registry on insert and is not part
// of the artifact integrity input.
type artifactIntegrityInput struct {
	ArtifactID  string         `json:"artifact_id"`
	ProjectID   string         `json:"project_id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type,omitempty"`
	ObjectKey   string         `json:"object_key"`
	SHA256      string         `json:"sha256"`
	SizeBytes   int64          `json:"size_bytes"`
	Metadata    map[string]any `json:"metadata"`
	RunID       string         `json:"run_id"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by"`
}
