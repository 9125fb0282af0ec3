package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
)

func (s *Server) ListAlerts(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page", "invalid_request", "invalid pagination"))
		return
	}

	projectID, err := parseSnowflakeID(c.Query("project_id"))
	if err != nil {
		AbortWithError(c, newValidationError("project_id", "invalid_snowflake_id", "invalid project id"))
		return
	}
	if projectID != 0 {
		if err := s.scope.Authorize(c.Request.Context(), projectID); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	severity := alertdomain.Severity(strings.TrimSpace(c.Query("severity")))
	if severity != "" && !severity.Valid() {
		AbortWithError(c, newValidationError("severity", "invalid_severity", "invalid severity"))
		return
	}

	filter := alertdomain.ListFilter{
		Status:    alertdomain.Status(strings.TrimSpace(c.Query("status"))),
		Severity:  severity,
		Type:      strings.TrimSpace(c.Query("type")),
		ProjectID: projectID,
		Partner:   strings.TrimSpace(c.Query("partner")),
		Search:    strings.TrimSpace(c.Query("q")),
	}

	alerts, pageInfo, err := s.alertSvc.List(c.Request.Context(), filter, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":    alerts,
		"page_info": pageInfo,
	})
}

func (s *Server) GetAlertByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_snowflake_id", "invalid alert id"))
		return
	}

	alert, err := s.alertSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

type resolveAlertRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) ResolveAlert(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_snowflake_id", "invalid alert id"))
		return
	}

	var req resolveAlertRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
			return
		}
	}

	alert, err := s.alertSvc.Resolve(c.Request.Context(), id, strings.TrimSpace(req.ResolvedBy))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}

func (s *Server) ReopenAlert(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil || id == 0 {
		AbortWithError(c, newValidationError("id", "invalid_snowflake_id", "invalid alert id"))
		return
	}

	alert, err := s.alertSvc.Reopen(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, alert)
}
