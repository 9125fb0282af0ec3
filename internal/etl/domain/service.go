package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service runs the aggregation pipeline.
type Service interface {
	// ProcessFile recomputes the file's aggregates and metrics. Idempotent.
	ProcessFile(ctx context.Context, fileID snowflake.ID) error
	// Trigger schedules processing for the given file ids. Concurrent calls
	// coalesce into at most one in-flight run; ids arriving mid-run queue
	// into a follow-up run.
	Trigger(fileIDs ...snowflake.ID)
	// Backfill reprocesses up to limit stale files and reports how many ran.
	Backfill(ctx context.Context, limit int) (int, error)
}
