package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/clock"
	etlrepository "github.com/corridorlabs/roamsight/internal/etl/repository"
	"github.com/corridorlabs/roamsight/internal/quality"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	scorecarddomain "github.com/corridorlabs/roamsight/internal/scorecard/domain"
	"github.com/corridorlabs/roamsight/internal/scorecard/repository"
	"github.com/corridorlabs/roamsight/pkg/db"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Clock:   fake,
		EtlRepo: etlrepository.Provide(),
		Repo:    repository.Provide(),
		Quality: quality.New(conn),
		Rows:    rowstore.New(conn),
	})
	return svc, conn, fake, node
}

func seedAggregate(t *testing.T, conn *gorm.DB, node *snowflake.Node, partner string, day time.Time, revenue, usage float64, rows int64) {
	t.Helper()
	require.NoError(t, conn.Exec(
		`INSERT INTO daily_partner_aggregates
		 (id, file_id, project_id, day, partner, country, row_count,
		  traffic_total, revenue_total, cost_total, expected_total, actual_total, usage_total)
		 VALUES (?, ?, 1, ?, ?, 'DE', ?, 0, ?, 0, 0, 0, ?)`,
		node.Generate(), node.Generate(), day, partner, rows, revenue, usage,
	).Error)
}

func seedOpenAlert(t *testing.T, conn *gorm.DB, node *snowflake.Node, partner string, at time.Time) {
	t.Helper()
	require.NoError(t, conn.Exec(
		`INSERT INTO alerts
		 (id, fingerprint, type, severity, status, title, message, source,
		  project_id, partner, payload, first_detected_at, last_detected_at,
		  created_at, updated_at)
		 VALUES (?, ?, 'revenue_drop', 'medium', 'open', 't', 'm', 'anomaly',
		  1, ?, '{}', ?, ?, ?, ?)`,
		node.Generate(), "revenue_drop|partner:"+partner+"|"+at.Format(time.RFC3339Nano),
		partner, at, at, at, at,
	).Error)
}

func TestComposeRanksAndScores(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()

	// Acme leads on both axes; Beta carries open disputes.
	for i := 0; i < 5; i++ {
		day := now.AddDate(0, 0, -i-1)
		seedAggregate(t, conn, node, "Acme", day, 1000, 500, 100)
		seedAggregate(t, conn, node, "Beta", day, 200, 100, 40)
	}
	seedOpenAlert(t, conn, node, "Beta", now.AddDate(0, 0, -2))
	seedOpenAlert(t, conn, node, "Beta", now.AddDate(0, 0, -3))

	result, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	acme, beta := result.Rows[0], result.Rows[1]
	assert.Equal(t, "Acme", acme.Partner)
	assert.InDelta(t, 90, acme.Score, 1e-9)
	assert.Equal(t, scorecarddomain.RiskLow, acme.Risk)
	assert.InDelta(t, 5000, acme.Revenue, 1e-9)
	require.NotEmpty(t, acme.Trend)

	assert.Equal(t, "Beta", beta.Partner)
	assert.Equal(t, int64(2), beta.Disputes)
	// 25 + 6 + 4 + 15 - 5 = 45.
	assert.InDelta(t, 45, beta.Score, 1e-9)
	assert.Equal(t, scorecarddomain.RiskHigh, beta.Risk)
}

func TestComposeFiltersAndSorts(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()

	for i, partner := range []string{"Acme", "Beta", "Gamma"} {
		for d := 0; d < 3; d++ {
			day := now.AddDate(0, 0, -d-1)
			seedAggregate(t, conn, node, partner, day, float64(100*(i+1)), 50, 20)
		}
	}

	byRevenue, err := svc.Compose(context.Background(), scorecarddomain.Query{
		ProjectID: 1,
		SortBy:    "revenue",
		SortDesc:  true,
	})
	require.NoError(t, err)
	require.Len(t, byRevenue.Rows, 3)
	assert.Equal(t, "Gamma", byRevenue.Rows[0].Partner)
	assert.Equal(t, "Acme", byRevenue.Rows[2].Partner)

	named, err := svc.Compose(context.Background(), scorecarddomain.Query{
		ProjectID: 1,
		Name:      "bet",
	})
	require.NoError(t, err)
	require.Len(t, named.Rows, 1)
	assert.Equal(t, "Beta", named.Rows[0].Partner)

	strict, err := svc.Compose(context.Background(), scorecarddomain.Query{
		ProjectID: 1,
		MinScore:  89,
	})
	require.NoError(t, err)
	require.Len(t, strict.Rows, 1)
	assert.Equal(t, "Gamma", strict.Rows[0].Partner)
}

func TestComposeResolvesDelayPenalty(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()

	require.NoError(t, conn.Exec(
		`INSERT INTO files (id, project_id, name, columns, uploaded_at)
		 VALUES (100, 1, 'settlements.csv', '["Partner Name","Payment Delay Days"]', ?)`,
		now.AddDate(0, 0, -10),
	).Error)
	for i := 0; i < 4; i++ {
		require.NoError(t, conn.Exec(
			`INSERT INTO file_rows (id, file_id, row_index, payload)
			 VALUES (?, 100, ?, '{"Partner Name":"Acme","Payment Delay Days":20}')`,
			node.Generate(), i,
		).Error)
	}
	seedAggregate(t, conn, node, "Acme", now.AddDate(0, 0, -5), 1000, 500, 100)

	result, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	acme := result.Rows[0]
	assert.InDelta(t, 20, acme.DelayDays, 1e-9)
	// 25 + 30 + 20 + 15 - min(15, 0.5*20) = 80.
	assert.InDelta(t, 80, acme.Score, 1e-9)
	assert.Equal(t, scorecarddomain.RiskMedium, acme.Risk)
}

func TestComposeDelayAbsentWithoutResolvableColumn(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()

	require.NoError(t, conn.Exec(
		`INSERT INTO files (id, project_id, name, columns, uploaded_at)
		 VALUES (101, 1, 'traffic.csv', '["Partner Name","Charge Amount"]', ?)`,
		now.AddDate(0, 0, -10),
	).Error)
	require.NoError(t, conn.Exec(
		`INSERT INTO file_rows (id, file_id, row_index, payload)
		 VALUES (?, 101, 0, '{"Partner Name":"Acme","Charge Amount":12.5}')`,
		node.Generate(),
	).Error)
	seedAggregate(t, conn, node, "Acme", now.AddDate(0, 0, -5), 1000, 500, 100)

	result, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Zero(t, result.Rows[0].DelayDays)
}

func TestComposeQualityWindowIncludesBoundaryDay(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()

	// The aggregate lands exactly on the window's upper bound.
	require.NoError(t, conn.Exec(
		`INSERT INTO daily_partner_aggregates
		 (id, file_id, project_id, day, partner, country, row_count,
		  traffic_total, revenue_total, cost_total, expected_total, actual_total, usage_total)
		 VALUES (?, 500, 1, ?, 'Acme', 'DE', 20, 0, 100, 0, 0, 0, 50)`,
		node.Generate(), now,
	).Error)
	require.NoError(t, conn.Exec(
		`INSERT INTO file_quality_scores (file_id, score) VALUES (500, 90)`,
	).Error)

	result, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.NotNil(t, result.Rows[0].QualityScore)
	assert.InDelta(t, 90, *result.Rows[0].QualityScore, 1e-9)
}

func TestComposeEmptyWindow(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	result, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
	assert.Zero(t, result.PageInfo.Total)
}

func TestComposeCachesByFilterSet(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()
	seedAggregate(t, conn, node, "Acme", now.AddDate(0, 0, -1), 100, 50, 20)

	first, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	require.Len(t, first.Rows, 1)

	// New data inside the TTL window is not visible yet.
	seedAggregate(t, conn, node, "Beta", now.AddDate(0, 0, -1), 100, 50, 20)
	second, err := svc.Compose(context.Background(), scorecarddomain.Query{ProjectID: 1})
	require.NoError(t, err)
	assert.Len(t, second.Rows, 1)

	// A different filter set misses the cache and sees both partners.
	sorted, err := svc.Compose(context.Background(), scorecarddomain.Query{
		ProjectID: 1,
		SortBy:    "partner",
	})
	require.NoError(t, err)
	assert.Len(t, sorted.Rows, 2)
}

func TestComposePaginates(t *testing.T) {
	svc, conn, fake, node := newTestService(t)
	now := fake.Now()

	for _, partner := range []string{"A", "B", "C", "D", "E"} {
		seedAggregate(t, conn, node, partner, now.AddDate(0, 0, -1), 100, 50, 20)
	}

	page, err := svc.Compose(context.Background(), scorecarddomain.Query{
		ProjectID: 1,
		Page:      pagination.Pagination{Page: 2, PageSize: 2},
	})
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, int64(5), page.PageInfo.Total)
	assert.True(t, page.PageInfo.HasMore)
}
