package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/corridorlabs/roamsight/internal/insights"
)

func (s *Server) insightsQuery(c *gin.Context) (insights.Query, error) {
	projectID, err := parseSnowflakeID(c.Query("project_id"))
	if err != nil {
		return insights.Query{}, newValidationError("project_id", "invalid_snowflake_id", "invalid project id")
	}
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		return insights.Query{}, newValidationError("from", "invalid_time", "invalid from date")
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		return insights.Query{}, newValidationError("to", "invalid_time", "invalid to date")
	}

	q := insights.Query{
		ProjectID: projectID,
		Partner:   c.Query("partner"),
		Country:   c.Query("country"),
		From:      from,
		To:        to,
	}
	if q.ProjectID != 0 {
		if err := s.scope.Authorize(c.Request.Context(), q.ProjectID); err != nil {
			return insights.Query{}, err
		}
	}
	return q, nil
}

func (s *Server) GetInsightsDaily(c *gin.Context) {
	q, err := s.insightsQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	points, err := s.insightsSvc.Daily(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"points": points})
}

func (s *Server) GetInsightsForecast(c *gin.Context) {
	q, err := s.insightsQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	horizon, err := parseOptionalInt(c.Query("horizon"))
	if err != nil {
		AbortWithError(c, newValidationError("horizon", "invalid_int", "invalid horizon"))
		return
	}

	forecast, err := s.insightsSvc.Forecast(c.Request.Context(), q, c.Query("metric"), horizon)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, forecast)
}

func (s *Server) GetInsightsAnomalies(c *gin.Context) {
	q, err := s.insightsQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	points, err := s.insightsSvc.Anomalies(c.Request.Context(), q, c.Query("metric"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"anomalies": points})
}

func (s *Server) GetInsightsLeakage(c *gin.Context) {
	q, err := s.insightsQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.insightsSvc.Leakage(c.Request.Context(), q)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
