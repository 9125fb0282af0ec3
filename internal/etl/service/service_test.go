package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/clock"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/corridorlabs/roamsight/internal/etl/repository"
	"github.com/corridorlabs/roamsight/internal/resolver"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	"github.com/corridorlabs/roamsight/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.New(),
		Repo:  repository.Provide(),
		Rows:  rowstore.New(conn),
	}).(*Service)

	return svc, conn, node
}

func seedFile(t *testing.T, conn *gorm.DB, node *snowflake.Node, columns []string, rows []resolver.Row, uploadedAt time.Time) snowflake.ID {
	t.Helper()

	fileID := node.Generate()
	cols, err := json.Marshal(columns)
	require.NoError(t, err)

	require.NoError(t, conn.Exec(
		`INSERT INTO files (id, project_id, name, columns, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
		fileID, 7, "roaming-may.csv", string(cols), uploadedAt,
	).Error)

	for i, row := range rows {
		payload, err := json.Marshal(row)
		require.NoError(t, err)
		require.NoError(t, conn.Exec(
			`INSERT INTO file_rows (id, file_id, row_index, payload) VALUES (?, ?, ?, ?)`,
			node.Generate(), fileID, i, string(payload),
		).Error)
	}
	return fileID
}

func loadAggregates(t *testing.T, conn *gorm.DB, fileID snowflake.ID) []etldomain.DailyPartnerAggregate {
	t.Helper()

	aggs, err := repository.Provide().AggregatesForFile(context.Background(), conn, fileID)
	require.NoError(t, err)
	for i := range aggs {
		aggs[i].ID = 0
	}
	return aggs
}

func TestProcessFileAggregatesByDayPartnerCountry(t *testing.T) {
	svc, conn, node := newTestService(t)
	uploaded := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	columns := []string{"Partner", "Country", "CallDate", "Revenue_USD", "Traffic_MB"}
	rows := []resolver.Row{
		{"Partner": "Acme", "Country": "DE", "CallDate": "2024-05-01", "Revenue_USD": 10.0, "Traffic_MB": 100.0},
		{"Partner": "Acme", "Country": "DE", "CallDate": "2024-05-01", "Revenue_USD": 5.5, "Traffic_MB": 50.0},
		{"Partner": "Acme", "Country": "FR", "CallDate": "2024-05-01", "Revenue_USD": 2.0, "Traffic_MB": 20.0},
		{"Partner": "Beta", "Country": "DE", "CallDate": "2024-05-02", "Revenue_USD": 3.0, "Traffic_MB": nil},
	}
	fileID := seedFile(t, conn, node, columns, rows, uploaded)

	require.NoError(t, svc.ProcessFile(context.Background(), fileID))

	aggs := loadAggregates(t, conn, fileID)
	require.Len(t, aggs, 3)

	first := aggs[0]
	assert.Equal(t, "Acme", first.Partner)
	assert.Equal(t, "DE", first.Country)
	assert.Equal(t, int64(2), first.RowCount)
	assert.InDelta(t, 15.5, first.RevenueTotal, 1e-9)
	assert.InDelta(t, 150.0, first.TrafficTotal, 1e-9)

	// Null traffic is skipped, not zeroed.
	last := aggs[2]
	assert.Equal(t, "Beta", last.Partner)
	assert.InDelta(t, 3.0, last.RevenueTotal, 1e-9)
	assert.Zero(t, last.TrafficTotal)

	var metrics etldomain.FileMetrics
	require.NoError(t, conn.Raw(`SELECT * FROM file_metrics WHERE file_id = ?`, fileID).Scan(&metrics).Error)
	assert.Equal(t, int64(4), metrics.RowCount)
	assert.InDelta(t, 20.5, metrics.RevenueTotal, 1e-9)
}

func TestProcessFileIsIdempotent(t *testing.T) {
	svc, conn, node := newTestService(t)
	uploaded := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	columns := []string{"Partner", "CallDate", "Revenue"}
	rows := []resolver.Row{
		{"Partner": "Acme", "CallDate": "2024-05-01", "Revenue": 10.0},
		{"Partner": "Acme", "CallDate": "2024-05-02", "Revenue": 20.0},
	}
	fileID := seedFile(t, conn, node, columns, rows, uploaded)

	require.NoError(t, svc.ProcessFile(context.Background(), fileID))
	before := loadAggregates(t, conn, fileID)

	require.NoError(t, svc.ProcessFile(context.Background(), fileID))
	after := loadAggregates(t, conn, fileID)

	assert.Equal(t, before, after)

	var count int64
	require.NoError(t, conn.Raw(
		`SELECT COUNT(1) FROM daily_partner_aggregates WHERE file_id = ?`, fileID,
	).Scan(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestProcessFileFallsBackToUploadDayAndUnknownLabels(t *testing.T) {
	svc, conn, node := newTestService(t)
	uploaded := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)

	columns := []string{"Revenue", "note"}
	rows := []resolver.Row{
		{"Revenue": 12.0, "note": "x"},
		{"Revenue": 8.0, "note": "y"},
	}
	fileID := seedFile(t, conn, node, columns, rows, uploaded)

	require.NoError(t, svc.ProcessFile(context.Background(), fileID))

	aggs := loadAggregates(t, conn, fileID)
	require.Len(t, aggs, 1)
	assert.Equal(t, etldomain.UnknownPartner, aggs[0].Partner)
	assert.Equal(t, etldomain.UnknownCountry, aggs[0].Country)
	assert.Equal(t, "2024-05-10", aggs[0].Day.UTC().Format(time.DateOnly))
	assert.InDelta(t, 20.0, aggs[0].RevenueTotal, 1e-9)
}

func TestBackfillPicksUpStaleFiles(t *testing.T) {
	svc, conn, node := newTestService(t)
	uploaded := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

	columns := []string{"Partner", "Revenue"}
	rows := []resolver.Row{{"Partner": "Acme", "Revenue": 10.0}}
	fileID := seedFile(t, conn, node, columns, rows, uploaded)

	processed, err := svc.Backfill(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	// Fresh metrics exclude the file from the next scan.
	processed, err = svc.Backfill(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, processed)

	aggs := loadAggregates(t, conn, fileID)
	require.Len(t, aggs, 1)
}
