package main

import (
	"context"

	"github.com/animus-labs/animus-cleaning/internal/cleaning"
	"github.com/animus-labs/animus-cleaning/internal/tracking"
)

// runArtifacts exposes a tracking run as the step's artifact store.
type runArtifacts struct {
	run *tracking.Run
}

func (s runArtifacts) Fetch(ctx context.Context, ref string) (string, error) {
	return s.run.UseArtifact(ctx, ref)
}

func (s runArtifacts) Publish(ctx context.Context, out cleaning.OutputArtifact) error {
	artifact := tracking.NewArtifact(out.Name, out.Type, out.Description)
	if err := artifact.AddFile(out.Path); err != nil {
		return err
	}
	_, err := s.run.LogArtifact(ctx, artifact)
	return err
}
