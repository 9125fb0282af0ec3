package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	alertrepo "github.com/corridorlabs/roamsight/internal/alert/repository"
	alertservice "github.com/corridorlabs/roamsight/internal/alert/service"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/config"
	etlrepo "github.com/corridorlabs/roamsight/internal/etl/repository"
	etlservice "github.com/corridorlabs/roamsight/internal/etl/service"
	"github.com/corridorlabs/roamsight/internal/insights"
	"github.com/corridorlabs/roamsight/internal/notify"
	"github.com/corridorlabs/roamsight/internal/projectscope"
	"github.com/corridorlabs/roamsight/internal/quality"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	scorecardrepo "github.com/corridorlabs/roamsight/internal/scorecard/repository"
	scorecardservice "github.com/corridorlabs/roamsight/internal/scorecard/service"
	"github.com/corridorlabs/roamsight/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type serverFixture struct {
	srv  *Server
	conn *gorm.DB
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	fixedClock := clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC))
	repo := etlrepo.Provide()
	rows := rowstore.New(conn)
	detection := config.NewStaticDetectionConfigHolder(config.DefaultDetectionConfig())

	etlSvc := etlservice.New(etlservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixedClock,
		Repo:  repo,
		Rows:  rows,
	})
	alertSvc := alertservice.New(alertservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fixedClock,
		Repo:  alertrepo.Provide(),
		Sink:  notify.NewLogSink(zap.NewNop()),
	})
	insightsSvc := insights.New(insights.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		Detection: detection,
		EtlRepo:   repo,
		Rows:      rows,
	})
	scorecardSvc := scorecardservice.New(scorecardservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Clock:   fixedClock,
		EtlRepo: repo,
		Repo:    scorecardrepo.Provide(),
		Quality: quality.New(conn),
		Rows:    rows,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	srv := NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{},
		EtlSvc:       etlSvc,
		AlertSvc:     alertSvc,
		InsightsSvc:  insightsSvc,
		ScorecardSvc: scorecardSvc,
		Rows:         rows,
		Scope:        projectscope.NewPermissive(),
	})
	srv.RegisterAPIRoutes()

	return &serverFixture{srv: srv, conn: conn}
}

func (f *serverFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.Engine().ServeHTTP(rec, req)
	return rec
}

func seedAggregateRow(t *testing.T, conn *gorm.DB, id int64, day, partner string, revenue float64) {
	t.Helper()
	err := conn.Exec(
		`INSERT INTO daily_partner_aggregates
		 (id, file_id, project_id, day, partner, country, row_count,
		  traffic_total, revenue_total, cost_total, expected_total, actual_total, usage_total)
		 VALUES (?, 1, 7, ?, ?, 'DE', 10, 100, ?, 40, ?, ?, 50)`,
		id, day, partner, revenue, revenue, revenue,
	).Error
	require.NoError(t, err)
}

func TestGetInsightsDaily(t *testing.T) {
	f := newTestServer(t)
	seedAggregateRow(t, f.conn, 1, "2024-05-01", "Acme", 120)
	seedAggregateRow(t, f.conn, 2, "2024-05-02", "Acme", 130)

	rec := f.do(t, http.MethodGet, "/v1/insights/daily?project_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Points []insights.DailyPoint `json:"points"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Points, 2)
	assert.Equal(t, "2024-05-01", body.Points[0].Day)
	assert.InDelta(t, 120, body.Points[0].Revenue, 0.001)
}

func TestGetInsightsForecastRejectsUnknownMetric(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/v1/insights/forecast?metric=margin", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestGetInsightsDailyRejectsBadDate(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/v1/insights/daily?from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	f := newTestServer(t)

	projectID := snowflake.ID(7)
	partner := "Acme"
	result, err := f.srv.alertSvc.Upsert(context.Background(), alertdomain.Event{
		Fingerprint: alertdomain.Fingerprint(alertdomain.TypeRevenueDrop, map[string]string{
			"project": "7", "partner": partner, "day": "2024-05-01",
		}),
		Type:      alertdomain.TypeRevenueDrop,
		Severity:  alertdomain.SeverityHigh,
		Title:     "Revenue drop for Acme",
		Message:   "Daily revenue fell below the dynamic threshold",
		Source:    "anomaly",
		ProjectID: &projectID,
		Partner:   &partner,
	})
	require.NoError(t, err)
	require.True(t, result.Created)
	id := result.Alert.ID.String()

	rec := f.do(t, http.MethodGet, "/v1/alerts?project_id=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Revenue drop for Acme")

	rec = f.do(t, http.MethodPost, "/v1/alerts/"+id+"/resolve", `{"resolved_by":"ops@corridor"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resolved"`)

	rec = f.do(t, http.MethodPost, "/v1/alerts/"+id+"/reopen", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open"`)

	rec = f.do(t, http.MethodGet, "/v1/alerts/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAlertNotFound(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/v1/alerts/123456789", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestListAlertsRejectsInvalidSeverity(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodGet, "/v1/alerts?severity=critical", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetScorecard(t *testing.T) {
	f := newTestServer(t)
	seedAggregateRow(t, f.conn, 1, "2024-05-01", "Acme", 120)
	seedAggregateRow(t, f.conn, 2, "2024-05-02", "Beta", 80)

	rec := f.do(t, http.MethodGet, "/v1/scorecard?project_id=7&months=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme")
	assert.Contains(t, rec.Body.String(), "Beta")
}

func TestReprocessFileQueuesETL(t *testing.T) {
	f := newTestServer(t)
	require.NoError(t, f.conn.Exec(
		`INSERT INTO files (id, project_id, name, columns, uploaded_at)
		 VALUES (42, 7, 'may.csv', '["Partner Name","Charge Amount"]', ?)`,
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	).Error)

	rec := f.do(t, http.MethodPost, "/v1/files/42/reprocess", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued"`)
}

func TestReprocessMissingFileIs404(t *testing.T) {
	f := newTestServer(t)

	rec := f.do(t, http.MethodPost, "/v1/files/99/reprocess", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
