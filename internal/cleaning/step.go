// Package cleaning implements the basic-cleaning pipeline step: fetch a raw
// CSV artifact, keep the rows whose price lies in an inclusive range, parse
// the last_review column as dates and publish the result as a new artifact.
package cleaning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/animus-labs/animus-cleaning/internal/dataset"
)

// OutputFilename is the fixed name of the cleaned file written in the working
// directory and uploaded as the artifact payload.
const OutputFilename = "clean_sample.csv"

const (
	PriceColumn      = "price"
	LastReviewColumn = "last_review"
)

// Params is the immutable parameter set of one invocation.
type Params struct {
	InputArtifact     string
	OutputArtifact    string
	OutputType        string
	OutputDescription string
	MinPrice          float64
	MaxPrice          float64
}

// Validate checks the parameters the artifact registry needs. The description
// may be empty, and a MinPrice above MaxPrice is accepted and yields an empty
// output.
func (p Params) Validate() error {
	if strings.TrimSpace(p.InputArtifact) == "" {
		return errors.New("input artifact is required")
	}
	if strings.TrimSpace(p.OutputArtifact) == "" {
		return errors.New("output artifact is required")
	}
	if strings.TrimSpace(p.OutputType) == "" {
		return errors.New("output type is required")
	}
	return nil
}

// OutputArtifact describes the file to publish.
type OutputArtifact struct {
	Name        string
	Type        string
	Description string
	Path        string
}

// ArtifactStore is the artifact tracking service as seen by the step.
type ArtifactStore interface {
	// Fetch resolves ref and returns the local path of its payload.
	Fetch(ctx context.Context, ref string) (string, error)
	// Publish registers the file at out.Path as a new version of out.Name.
	Publish(ctx context.Context, out OutputArtifact) error
}

type Step struct {
	store  ArtifactStore
	logger *slog.Logger
	dir    string
}

// NewStep returns a step that writes OutputFilename into dir.
func NewStep(store ArtifactStore, logger *slog.Logger, dir string) (*Step, error) {
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &Step{store: store, logger: logger, dir: dir}, nil
}

// OutputPath is where Run writes the cleaned file.
func (s *Step) OutputPath() string {
	return filepath.Join(s.dir, OutputFilename)
}

// Run executes the step once. Errors carry the name of the failing stage and
// nothing is published unless every earlier stage succeeded.
func (s *Step) Run(ctx context.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("params: %w", err)
	}

	s.logger.Info("downloading artifact", "artifact", p.InputArtifact)
	localPath, err := s.store.Fetch(ctx, p.InputArtifact)
	if err != nil {
		return fmt.Errorf("fetch input artifact: %w", err)
	}

	s.logger.Info("reading dataset", "path", localPath)
	table, err := dataset.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	if err := table.HasColumns(PriceColumn, LastReviewColumn); err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	rows, cols := table.Shape()
	s.logger.Info("dataset loaded", "rows", rows, "columns", cols)

	s.logger.Info("dropping outliers", "column", PriceColumn, "min_price", p.MinPrice, "max_price", p.MaxPrice)
	cleaned, err := table.FilterRange(PriceColumn, p.MinPrice, p.MaxPrice)
	if err != nil {
		return fmt.Errorf("filter price: %w", err)
	}
	s.logger.Info("outliers dropped", "kept", cleaned.Len(), "dropped", rows-cleaned.Len())

	s.logger.Info("converting last_review to datetime")
	if err := cleaned.ParseDates(LastReviewColumn); err != nil {
		return fmt.Errorf("parse dates: %w", err)
	}

	outPath := s.OutputPath()
	s.logger.Info("saving cleaned dataset", "path", outPath)
	if err := cleaned.WriteFile(outPath); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	s.logger.Info("logging artifact", "name", p.OutputArtifact, "type", p.OutputType)
	if err := s.store.Publish(ctx, OutputArtifact{
		Name:        p.OutputArtifact,
		Type:        p.OutputType,
		Description: p.OutputDescription,
		Path:        outPath,
	}); err != nil {
		return fmt.Errorf("publish output artifact: %w", err)
	}
	return nil
}

// Config returns the parameters as run configuration values.
func (p Params) Config() map[string]any {
	return map[string]any{
		"input_artifact":     p.InputArtifact,
		"output_artifact":    p.OutputArtifact,
		"output_type":        p.OutputType,
		"output_description": p.OutputDescription,
		"min_price":          p.MinPrice,
		"max_price":          p.MaxPrice,
	}
}
