package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() alertdomain.Repository {
	return &repo{}
}

func (r *repo) GetByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*alertdomain.Alert, error) {
	var alert alertdomain.Alert
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM alerts WHERE id = ?`, id,
	).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, alertdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *repo) GetByFingerprint(ctx context.Context, db *gorm.DB, fingerprint string) (*alertdomain.Alert, error) {
	var alert alertdomain.Alert
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM alerts WHERE fingerprint = ?`, fingerprint,
	).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, alertdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, alert *alertdomain.Alert) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alerts (
			id, fingerprint, type, severity, status, title, message, source,
			project_id, partner, payload,
			first_detected_at, last_detected_at, resolved_at, resolved_by,
			created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.Fingerprint,
		alert.Type,
		alert.Severity,
		alert.Status,
		alert.Title,
		alert.Message,
		alert.Source,
		alert.ProjectID,
		alert.Partner,
		alert.Payload,
		alert.FirstDetectedAt,
		alert.LastDetectedAt,
		alert.ResolvedAt,
		alert.ResolvedBy,
		alert.CreatedAt,
		alert.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, alert *alertdomain.Alert) error {
	return db.WithContext(ctx).Exec(
		`UPDATE alerts
		 SET severity = ?,
		     status = ?,
		     title = ?,
		     message = ?,
		     source = ?,
		     payload = ?,
		     last_detected_at = ?,
		     resolved_at = ?,
		     resolved_by = ?,
		     updated_at = ?
		 WHERE id = ?`,
		alert.Severity,
		alert.Status,
		alert.Title,
		alert.Message,
		alert.Source,
		alert.Payload,
		alert.LastDetectedAt,
		alert.ResolvedAt,
		alert.ResolvedBy,
		alert.UpdatedAt,
		alert.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter alertdomain.ListFilter, page pagination.Pagination) ([]alertdomain.Alert, int64, error) {
	where, args := buildFilter(filter)

	var total int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM alerts`+where, args...,
	).Scan(&total).Error; err != nil {
		return nil, 0, err
	}

	query := `SELECT * FROM alerts` + where + `
		 ORDER BY CASE severity
		     WHEN 'high' THEN 3
		     WHEN 'medium' THEN 2
		     WHEN 'low' THEN 1
		     ELSE 0 END DESC,
		     last_detected_at DESC,
		     id DESC
		 LIMIT ? OFFSET ?`
	args = append(args, page.PageSize, page.Offset())

	var alerts []alertdomain.Alert
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func buildFilter(filter alertdomain.ListFilter) (string, []any) {
	var clauses []string
	var args []any

	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = ?")
		args = append(args, filter.Severity)
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, filter.Type)
	}
	if filter.ProjectID != 0 {
		clauses = append(clauses, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.Partner != "" {
		clauses = append(clauses, "partner = ?")
		args = append(args, filter.Partner)
	}
	if filter.Search != "" {
		needle := "%" + strings.ToLower(filter.Search) + "%"
		clauses = append(clauses, "(LOWER(title) LIKE ? OR LOWER(message) LIKE ? OR LOWER(fingerprint) LIKE ?)")
		args = append(args, needle, needle, needle)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return fmt.Sprintf(" WHERE %s", strings.Join(clauses, " AND ")), args
}
