package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/resolver"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const scanBatchSize = 500

var ErrFileNotFound = errors.New("file_not_found")

type store struct {
	db *gorm.DB
}

// New returns a Store backed by the files and file_rows tables.
func New(db *gorm.DB) Store {
	return &store{db: db}
}

var Module = fx.Module("rowstore",
	fx.Provide(New),
)

func (s *store) GetFile(ctx context.Context, fileID snowflake.ID) (*File, error) {
	var file File
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, project_id, name, columns, uploaded_at
		 FROM files WHERE id = ?`,
		fileID,
	).Scan(&file).Error
	if err != nil {
		return nil, err
	}
	if file.ID == 0 {
		return nil, ErrFileNotFound
	}
	return &file, nil
}

func (s *store) ColumnNames(ctx context.Context, fileID snowflake.ID) ([]string, error) {
	file, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	var columns []string
	if len(file.Columns) > 0 {
		if err := json.Unmarshal(file.Columns, &columns); err != nil {
			return nil, err
		}
	}
	return columns, nil
}

type rowRecord struct {
	RowIndex int64             `gorm:"column:row_index"`
	Payload  datatypes.JSONMap `gorm:"column:payload"`
}

func (s *store) ScanRows(ctx context.Context, fileID snowflake.ID, fn func(batch []resolver.Row) error) error {
	lastIndex := int64(-1)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var records []rowRecord
		if err := s.db.WithContext(ctx).Raw(
			`SELECT row_index, payload
			 FROM file_rows
			 WHERE file_id = ? AND row_index > ?
			 ORDER BY row_index ASC
			 LIMIT ?`,
			fileID,
			lastIndex,
			scanBatchSize,
		).Scan(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		batch := make([]resolver.Row, 0, len(records))
		for _, rec := range records {
			batch = append(batch, resolver.Row(rec.Payload))
			lastIndex = rec.RowIndex
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
}

func (s *store) SampleRows(ctx context.Context, fileID snowflake.ID, limit int) ([]resolver.Row, error) {
	if limit <= 0 {
		limit = resolver.SampleLimit
	}

	var records []rowRecord
	if err := s.db.WithContext(ctx).Raw(
		`SELECT row_index, payload
		 FROM file_rows
		 WHERE file_id = ?
		 ORDER BY row_index ASC
		 LIMIT ?`,
		fileID,
		limit,
	).Scan(&records).Error; err != nil {
		return nil, err
	}

	rows := make([]resolver.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, resolver.Row(rec.Payload))
	}
	return rows, nil
}

func (s *store) FilesInWindow(ctx context.Context, projectID snowflake.ID, from, to time.Time) ([]File, error) {
	query := `SELECT id, project_id, name, columns, uploaded_at
		 FROM files
		 WHERE uploaded_at >= ? AND uploaded_at <= ?`
	args := []any{from, to}
	if projectID != 0 {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY uploaded_at ASC"

	var files []File
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}
