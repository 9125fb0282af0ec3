package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	alertrepo "github.com/corridorlabs/roamsight/internal/alert/repository"
	alertservice "github.com/corridorlabs/roamsight/internal/alert/service"
	"github.com/corridorlabs/roamsight/internal/anomaly"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/config"
	etlrepo "github.com/corridorlabs/roamsight/internal/etl/repository"
	"github.com/corridorlabs/roamsight/internal/notify"
	"github.com/corridorlabs/roamsight/internal/quality"
	"github.com/corridorlabs/roamsight/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeEtl struct {
	mu      sync.Mutex
	limits  []int
	returns []int
	err     error
}

func (f *fakeEtl) ProcessFile(context.Context, snowflake.ID) error { return nil }

func (f *fakeEtl) Trigger(...snowflake.ID) {}

func (f *fakeEtl) Backfill(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.limits = append(f.limits, limit)
	if len(f.returns) == 0 {
		return 0, nil
	}
	n := f.returns[0]
	f.returns = f.returns[1:]
	return n, nil
}

func (f *fakeEtl) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.limits...)
}

type fixture struct {
	sched *Scheduler
	conn  *gorm.DB
	etl   *fakeEtl
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	fixedClock := clock.NewFakeClock(time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC))

	alerts := alertservice.New(alertservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixedClock,
		Repo:  alertrepo.Provide(),
		Sink:  notify.NewLogSink(zap.NewNop()),
	})

	repo := etlrepo.Provide()
	detector := anomaly.New(anomaly.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		Clock:     fixedClock,
		Detection: config.NewStaticDetectionConfigHolder(config.DefaultDetectionConfig()),
		EtlRepo:   repo,
		Alerts:    alerts,
		Quality:   quality.New(conn),
	})

	etl := &fakeEtl{}
	sched, err := New(Params{
		DB:        conn,
		Log:       zap.NewNop(),
		Clock:     fixedClock,
		Detection: config.NewStaticDetectionConfigHolder(config.DefaultDetectionConfig()),
		EtlSvc:    etl,
		EtlRepo:   repo,
		Anomaly:   detector,
		Config:    cfg,
	})
	require.NoError(t, err)

	return &fixture{sched: sched, conn: conn, etl: etl}
}

func seedDay(t *testing.T, conn *gorm.DB, id int64, partner, day string, revenue float64) {
	t.Helper()
	err := conn.Exec(
		`INSERT INTO daily_partner_aggregates
		 (id, file_id, project_id, day, partner, country, row_count,
		  traffic_total, revenue_total, cost_total, expected_total, actual_total, usage_total)
		 VALUES (?, 1, 7, ?, ?, 'DE', 20, 500, ?, 0, 0, 0, 100)`,
		id, day, partner, revenue,
	).Error
	require.NoError(t, err)
}

func TestBackfillDrainsStaleFilesInBatches(t *testing.T) {
	fx := newFixture(t, Config{
		BackfillBatchSize: 4,
		EnabledJobs:       []string{"etl_backfill"},
	})
	fx.etl.returns = []int{4, 4, 1}

	require.NoError(t, fx.sched.RunOnce(context.Background()))

	assert.Equal(t, []int{4, 4, 4, 4}, fx.etl.calls())
}

func TestBackfillPropagatesErrors(t *testing.T) {
	fx := newFixture(t, Config{EnabledJobs: []string{"etl_backfill"}})
	fx.etl.err = gorm.ErrInvalidDB

	err := fx.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etl_backfill")
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	fx := newFixture(t, Config{EnabledJobs: []string{"detection"}})
	fx.etl.returns = []int{3}

	require.NoError(t, fx.sched.RunOnce(context.Background()))

	assert.Empty(t, fx.etl.calls())
}

func TestDetectionRaisesAlertsForActiveProjects(t *testing.T) {
	fx := newFixture(t, Config{EnabledJobs: []string{"detection"}})

	seedDay(t, fx.conn, 1, "Acme", "2024-05-01", 100)
	seedDay(t, fx.conn, 2, "Acme", "2024-05-02", 100)
	seedDay(t, fx.conn, 3, "Acme", "2024-05-03", 100)
	seedDay(t, fx.conn, 4, "Acme", "2024-05-04", 100)
	seedDay(t, fx.conn, 5, "Acme", "2024-05-05", 10)

	require.NoError(t, fx.sched.RunOnce(context.Background()))

	var count int64
	require.NoError(t, fx.conn.Raw(
		`SELECT COUNT(*) FROM alerts WHERE type = 'revenue_drop' AND project_id = 7 AND partner = 'Acme'`,
	).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDetectionFlagsLowQualityFiles(t *testing.T) {
	fx := newFixture(t, Config{EnabledJobs: []string{"detection"}})

	require.NoError(t, fx.conn.Exec(
		`INSERT INTO files (id, project_id, name, columns, uploaded_at)
		 VALUES (42, 7, 'april.csv', '[]', '2024-05-01 00:00:00')`,
	).Error)
	require.NoError(t, fx.conn.Exec(
		`INSERT INTO file_quality_scores (file_id, score) VALUES (42, 20)`,
	).Error)

	require.NoError(t, fx.sched.RunOnce(context.Background()))

	var alert struct {
		Severity string
		Status   string
	}
	require.NoError(t, fx.conn.Raw(
		`SELECT severity, status FROM alerts WHERE type = 'quality_warning' AND project_id = 7`,
	).Scan(&alert).Error)
	assert.Equal(t, "high", alert.Severity)
	assert.Equal(t, "open", alert.Status)

	// A second tick re-detects the same file without duplicating the alert.
	require.NoError(t, fx.sched.RunOnce(context.Background()))
	var count int64
	require.NoError(t, fx.conn.Raw(
		`SELECT COUNT(*) FROM alerts WHERE type = 'quality_warning'`,
	).Scan(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDetectionWithoutDataIsNoop(t *testing.T) {
	fx := newFixture(t, Config{EnabledJobs: []string{"detection"}})

	require.NoError(t, fx.sched.RunOnce(context.Background()))

	var count int64
	require.NoError(t, fx.conn.Raw(`SELECT COUNT(*) FROM alerts`).Scan(&count).Error)
	assert.Zero(t, count)
}
