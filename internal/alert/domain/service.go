package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
)

var (
	ErrNotFound        = errors.New("alert: not found")
	ErrInvalidSeverity = errors.New("alert: invalid severity")
)

type Service interface {
	// Upsert applies one detection event and returns the lifecycle
	// transition it caused. Re-detection of an open alert refreshes it
	// silently; re-detection of a resolved alert reopens it.
	Upsert(ctx context.Context, event Event) (UpsertResult, error)

	Resolve(ctx context.Context, id snowflake.ID, resolvedBy string) (*Alert, error)
	Reopen(ctx context.Context, id snowflake.ID) (*Alert, error)
	Get(ctx context.Context, id snowflake.ID) (*Alert, error)
	List(ctx context.Context, filter ListFilter, page pagination.Pagination) ([]Alert, pagination.PageInfo, error)
}
