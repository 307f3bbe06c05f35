package tracking

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-cleaning/internal/domain"
)

var ErrIntegrity = errors.New("artifact integrity check failed")

// Artifact is a pending artifact version. It becomes immutable once logged.
type Artifact struct {
	Name        string
	Type        string
	Description string
	Metadata    domain.Metadata

	path string
}

func NewArtifact(name, artifactType, description string) *Artifact {
	return &Artifact{
		Name:        strings.TrimSpace(name),
		Type:        strings.TrimSpace(artifactType),
		Description: strings.TrimSpace(description),
	}
}

// AddFile stages the payload. An artifact carries exactly one file.
func (a *Artifact) AddFile(path string) error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	if a.path != "" {
		return fmt.Errorf("artifact %s already has file %s", a.Name, a.path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("add file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("add file: %s is not a regular file", path)
	}
	a.path = path
	return nil
}

// File returns the staged path, or "" before AddFile.
func (a *Artifact) File() string {
	if a == nil {
		return ""
	}
	return a.path
}

func artifactObjectKey(projectID, artifactID, filename string) string {
	return fmt.Sprintf("%s/artifacts/%s/%s", projectID, artifactID, filename)
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".parquet":
		return "application/vnd.apache.parquet"
	}
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
