package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Alert, error)
	GetByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*Alert, error)
	Insert(ctx context.Context, db *gorm.DB, alert *Alert) error
	Update(ctx context.Context, db *gorm.DB, alert *Alert) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]Alert, int64, error)
}
