package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AliasLatest resolves to the highest version of an artifact name.
const AliasLatest = "latest"

// Artifact is one immutable, versioned payload registered by a run.
type Artifact struct {
	ID              string
	ProjectID       string
	Name            string
	Type            string
	Description     string
	Version         int64
	Filename        string
	ContentType     string
	ObjectKey       string
	SHA256          string
	SizeBytes       int64
	Metadata        Metadata
	RunID           string
	CreatedAt       time.Time
	CreatedBy       string
	IntegritySHA256 string
}

func (a Artifact) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("artifact id is required")
	}
	if strings.TrimSpace(a.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if err := validateArtifactName(a.Name); err != nil {
		return err
	}
	if strings.TrimSpace(a.Type) == "" {
		return errors.New("artifact type is required")
	}
	if strings.TrimSpace(a.Filename) == "" {
		return errors.New("filename is required")
	}
	if strings.TrimSpace(a.ObjectKey) == "" {
		return errors.New("object key is required")
	}
	if strings.TrimSpace(a.SHA256) == "" {
		return errors.New("sha256 is required")
	}
	if strings.TrimSpace(a.RunID) == "" {
		return errors.New("run id is required")
	}
	return nil
}

// VersionLabel renders the version alias, e.g. "v3".
func (a Artifact) VersionLabel() string {
	return "v" + strconv.FormatInt(a.Version, 10)
}

// ArtifactRef addresses an artifact version as "[project/]name[:alias]" where
// alias is "latest" or "v<N>".
type ArtifactRef struct {
	Project string
	Name    string
	Alias   string
	// Version is the pinned ordinal; zero means latest.
	Version int64
}

func ParseArtifactRef(raw string) (ArtifactRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ArtifactRef{}, errors.New("artifact reference is required")
	}

	var ref ArtifactRef
	if idx := strings.LastIndex(raw, "/"); idx >= 0 {
		ref.Project = strings.TrimSpace(raw[:idx])
		if ref.Project == "" {
			return ArtifactRef{}, fmt.Errorf("artifact reference %q: empty project", raw)
		}
		raw = raw[idx+1:]
	}

	name, alias, hasAlias := strings.Cut(raw, ":")
	ref.Name = strings.TrimSpace(name)
	if err := validateArtifactName(ref.Name); err != nil {
		return ArtifactRef{}, err
	}
	alias = strings.TrimSpace(alias)
	if !hasAlias {
		alias = AliasLatest
	}

	switch {
	case alias == AliasLatest:
		ref.Alias = AliasLatest
	case len(alias) > 1 && alias[0] == 'v':
		n, err := strconv.ParseInt(alias[1:], 10, 64)
		if err != nil || n < 1 {
			return ArtifactRef{}, fmt.Errorf("artifact reference %q: invalid version alias %q", raw, alias)
		}
		ref.Alias = alias
		ref.Version = n
	default:
		return ArtifactRef{}, fmt.Errorf("artifact reference %q: unsupported alias %q", raw, alias)
	}
	return ref, nil
}

func (r ArtifactRef) String() string {
	alias := r.Alias
	if alias == "" {
		alias = AliasLatest
	}
	if r.Project != "" {
		return r.Project + "/" + r.Name + ":" + alias
	}
	return r.Name + ":" + alias
}

func validateArtifactName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("artifact name is required")
	}
	if strings.ContainsAny(name, "/:") {
		return fmt.Errorf("artifact name %q must not contain '/' or ':'", name)
	}
	return nil
}
