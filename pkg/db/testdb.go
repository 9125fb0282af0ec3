package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var testSchema = []string{
	`CREATE TABLE files (
		id INTEGER PRIMARY KEY,
		project_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		columns TEXT NOT NULL DEFAULT '[]',
		uploaded_at DATETIME NOT NULL
	)`,
	`CREATE TABLE file_rows (
		id INTEGER PRIMARY KEY,
		file_id INTEGER NOT NULL,
		row_index INTEGER NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX ix_file_rows_file ON file_rows (file_id, row_index)`,
	`CREATE TABLE file_metrics (
		file_id INTEGER PRIMARY KEY,
		project_id INTEGER NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		revenue_total REAL NOT NULL DEFAULT 0,
		usage_total REAL NOT NULL DEFAULT 0,
		traffic_total REAL NOT NULL DEFAULT 0,
		cost_total REAL NOT NULL DEFAULT 0,
		expected_total REAL NOT NULL DEFAULT 0,
		actual_total REAL NOT NULL DEFAULT 0,
		resolved_columns TEXT NOT NULL DEFAULT '{}',
		computed_at DATETIME NOT NULL
	)`,
	`CREATE TABLE daily_partner_aggregates (
		id INTEGER PRIMARY KEY,
		file_id INTEGER NOT NULL,
		project_id INTEGER NOT NULL,
		day DATE NOT NULL,
		partner TEXT NOT NULL,
		country TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		traffic_total REAL NOT NULL DEFAULT 0,
		revenue_total REAL NOT NULL DEFAULT 0,
		cost_total REAL NOT NULL DEFAULT 0,
		expected_total REAL NOT NULL DEFAULT 0,
		actual_total REAL NOT NULL DEFAULT 0,
		usage_total REAL NOT NULL DEFAULT 0,
		CONSTRAINT ux_daily_aggregates UNIQUE (file_id, day, partner, country)
	)`,
	`CREATE INDEX ix_daily_aggregates_partner_day ON daily_partner_aggregates (project_id, partner, day)`,
	`CREATE TABLE alerts (
		id INTEGER PRIMARY KEY,
		fingerprint TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		project_id INTEGER,
		partner TEXT,
		payload TEXT NOT NULL DEFAULT '{}',
		first_detected_at DATETIME NOT NULL,
		last_detected_at DATETIME NOT NULL,
		resolved_at DATETIME,
		resolved_by TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE file_quality_scores (
		file_id INTEGER PRIMARY KEY,
		score REAL
	)`,
}

// NewTest opens an isolated in-memory sqlite database with the engine schema.
func NewTest() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	for _, stmt := range testSchema {
		if err := conn.Exec(stmt).Error; err != nil {
			return nil, fmt.Errorf("apply test schema: %w", err)
		}
	}
	return conn, nil
}
