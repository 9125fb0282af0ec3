package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ReprocessFile queues the file for a fresh ETL pass. The trigger is rate
// limited per project so partners re-uploading in a loop cannot starve the
// coalescer.
func (s *Server) ReprocessFile(c *gin.Context) {
	fileID, err := parseSnowflakeID(c.Param("id"))
	if err != nil || fileID == 0 {
		AbortWithError(c, newValidationError("id", "invalid_snowflake_id", "invalid file id"))
		return
	}

	file, err := s.rows.GetFile(c.Request.Context(), fileID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.scope.Authorize(c.Request.Context(), file.ProjectID); err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.reprocessLimiter.AllowReprocess(c.Request.Context(), file.ProjectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	projectID := file.ProjectID.String()
	if !result.Allowed {
		s.obsMetrics.RecordRateLimitDenied(c.Request.Context(), projectID, "files.reprocess", "token_bucket")
		c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
		AbortWithError(c, ErrRateLimited)
		return
	}
	s.obsMetrics.RecordRateLimitAllowed(c.Request.Context(), projectID, "files.reprocess")

	s.etlSvc.Trigger(fileID)

	c.JSON(http.StatusAccepted, gin.H{
		"file_id": fileID.String(),
		"status":  "queued",
	})
}
