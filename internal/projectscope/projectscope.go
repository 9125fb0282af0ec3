package projectscope

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var ErrProjectForbidden = errors.New("projectscope: project not accessible")

// Scope restricts which projects a caller may query. The engine consults it
// on every read path; enforcement policy lives with the implementation.
type Scope interface {
	Authorize(ctx context.Context, projectID snowflake.ID) error
}

// permissive allows every project. It is the default until an upstream
// access-control integration provides a stricter implementation.
type permissive struct{}

func NewPermissive() Scope {
	return permissive{}
}

func (permissive) Authorize(context.Context, snowflake.ID) error { return nil }

var Module = fx.Module("projectscope",
	fx.Provide(NewPermissive),
)
