package rowstore

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/resolver"
	"gorm.io/datatypes"
)

// File is an uploaded tabular document. Rows are produced once at upload time
// by the ingestion collaborator and are immutable afterwards.
type File struct {
	ID         snowflake.ID   `json:"id" gorm:"column:id;primaryKey"`
	ProjectID  snowflake.ID   `json:"project_id" gorm:"column:project_id"`
	Name       string         `json:"name" gorm:"column:name"`
	Columns    datatypes.JSON `json:"columns" gorm:"column:columns"`
	UploadedAt time.Time      `json:"uploaded_at" gorm:"column:uploaded_at"`
}

func (File) TableName() string { return "files" }

// Store yields, per file, the ordered column list and the decoded rows.
// Decryption and decoding of stored payloads is the collaborator's concern.
type Store interface {
	GetFile(ctx context.Context, fileID snowflake.ID) (*File, error)
	ColumnNames(ctx context.Context, fileID snowflake.ID) ([]string, error)
	// ScanRows streams the file's rows in order, in bounded batches.
	ScanRows(ctx context.Context, fileID snowflake.ID, fn func(batch []resolver.Row) error) error
	// SampleRows returns up to limit rows for resolver scoring.
	SampleRows(ctx context.Context, fileID snowflake.ID, limit int) ([]resolver.Row, error)
	// FilesInWindow lists files for a project uploaded inside [from, to].
	FilesInWindow(ctx context.Context, projectID snowflake.ID, from, to time.Time) ([]File, error)
}
