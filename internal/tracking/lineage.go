package tracking

import (
	"context"

	"github.com/animus-labs/animus-cleaning/internal/platform/lineageevent"
)

// LineageRecorder stores run/artifact edges.
type LineageRecorder interface {
	RecordLineage(ctx context.Context, event lineageevent.Event) error
}

// DBLineage writes edges to the lineage_events table.
type DBLineage struct {
	DB lineageevent.QueryRower
}

func (l DBLineage) RecordLineage(ctx context.Context, event lineageevent.Event) error {
	_, err := lineageevent.Insert(ctx, l.DB, event)
	return err
}
