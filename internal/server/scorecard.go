package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	scorecarddomain "github.com/corridorlabs/roamsight/internal/scorecard/domain"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
)

func (s *Server) GetScorecard(c *gin.Context) {
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

	months, err := parseOptionalInt(c.Query("months"))
	if err != nil {
		AbortWithError(c, newValidationError("months", "invalid_int", "invalid months"))
		return
	}
	minScore, err := parseOptionalFloat(c.Query("min_score"))
	if err != nil {
		AbortWithError(c, newValidationError("min_score", "invalid_float", "invalid min score"))
		return
	}

	result, err := s.scorecardSvc.Compose(c.Request.Context(), scorecarddomain.Query{
		ProjectID: projectID,
		Months:    months,
		MinScore:  minScore,
		Name:      strings.TrimSpace(c.Query("name")),
		SortBy:    strings.TrimSpace(c.Query("sort_by")),
		SortDesc:  strings.EqualFold(strings.TrimSpace(c.Query("order")), "desc"),
		Page:      page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
