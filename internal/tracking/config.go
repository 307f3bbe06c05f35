package tracking

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-cleaning/internal/platform/env"
)

// Config scopes a tracking client to one project, actor and bucket.
type Config struct {
	ProjectID string
	Actor     string
	Bucket    string
	CacheDir  string
}

// ConfigFromEnv reads the project, actor and cache directory. The bucket comes
// from the object store configuration and is passed in by the caller.
func ConfigFromEnv(bucket string) (Config, error) {
	cfg := Config{
		ProjectID: env.String("ANIMUS_PROJECT", "default"),
		Actor:     env.FirstString("basic-cleaning", "ANIMUS_ACTOR", "USER"),
		Bucket:    bucket,
		CacheDir:  env.String("ANIMUS_ARTIFACT_CACHE_DIR", filepath.Join(os.TempDir(), "animus-artifacts")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.ContainsAny(c.ProjectID, ":") {
		return errors.New("project id must not contain ':'")
	}
	if strings.TrimSpace(c.Actor) == "" {
		return errors.New("actor is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.TrimSpace(c.CacheDir) == "" {
		return errors.New("cache dir is required")
	}
	return nil
}
