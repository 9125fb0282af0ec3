package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank orders severities for listing, high first.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

type Status string

const (
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
)

const (
	TypeRevenueDrop         = "revenue_drop"
	TypeTrafficSpike        = "traffic_spike"
	TypeMetricOutlier       = "metric_outlier"
	TypeQualityWarning      = "quality_warning"
	TypeNotificationFailure = "notification_failure"
)

type Alert struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Fingerprint     string         `gorm:"uniqueIndex;not null" json:"fingerprint"`
	Type            string         `gorm:"not null;index" json:"type"`
	Severity        Severity       `gorm:"not null" json:"severity"`
	Status          Status         `gorm:"not null;index" json:"status"`
	Title           string         `gorm:"not null" json:"title"`
	Message         string         `gorm:"not null" json:"message"`
	Source          string         `json:"source"`
	ProjectID       *snowflake.ID  `gorm:"index" json:"project_id,omitempty"`
	Partner         *string        `json:"partner,omitempty"`
	Payload         datatypes.JSON `json:"payload,omitempty"`
	FirstDetectedAt time.Time      `gorm:"not null" json:"first_detected_at"`
	LastDetectedAt  time.Time      `gorm:"not null" json:"last_detected_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy      *string        `json:"resolved_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (Alert) TableName() string { return "alerts" }

// fingerprintOrder fixes the dimension sequence so two detections of the
// same condition always produce the same key.
var fingerprintOrder = []string{"project", "partner", "day", "metric", "channel", "type"}

// Fingerprint builds the stable dedup key for a detection event, e.g.
// "revenue_drop|project:7|partner:Acme|day:2024-05-01".
func Fingerprint(alertType string, dimensions map[string]string) string {
	var b strings.Builder
	b.WriteString(alertType)

	seen := make(map[string]bool, len(dimensions))
	for _, k := range fingerprintOrder {
		if v, ok := dimensions[k]; ok {
			fmt.Fprintf(&b, "|%s:%s", k, v)
			seen[k] = true
		}
	}

	rest := make([]string, 0, len(dimensions))
	for k := range dimensions {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		fmt.Fprintf(&b, "|%s:%s", k, dimensions[k])
	}
	return b.String()
}

// Event is one detection occurrence handed to the lifecycle manager.
type Event struct {
	Fingerprint string
	Type        string
	Severity    Severity
	Title       string
	Message     string
	Source      string
	ProjectID   *snowflake.ID
	Partner     *string
	Payload     map[string]any
}

// UpsertResult reports which lifecycle transition an event caused.
type UpsertResult struct {
	Alert    Alert
	Created  bool
	Reopened bool
}

type ListFilter struct {
	Status    Status
	Severity  Severity
	Type      string
	ProjectID snowflake.ID
	Partner   string
	Search    string
}
