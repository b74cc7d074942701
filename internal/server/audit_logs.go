package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
)

type listAuditLogsQuery struct {
	Action        string `form:"action"`
	TargetType    string `form:"target_type"`
	TargetID      string `form:"target_id"`
	CorrelationID string `form:"correlation_id"`
	StartAt       string `form:"start_at"`
	EndAt         string `form:"end_at"`
	Limit         string `form:"limit"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var startAt *time.Time
	if value := strings.TrimSpace(query.StartAt); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_start_at", "invalid start_at"))
			return
		}
		startAt = &parsed
	}

	var endAt *time.Time
	if value := strings.TrimSpace(query.EndAt); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_end_at", "invalid end_at"))
			return
		}
		endAt = &parsed
	}

	limit := 0
	if value := strings.TrimSpace(query.Limit); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	logs, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Action:        strings.TrimSpace(query.Action),
		TargetType:    strings.TrimSpace(query.TargetType),
		TargetID:      strings.TrimSpace(query.TargetID),
		CorrelationID: strings.TrimSpace(query.CorrelationID),
		StartAt:       startAt,
		EndAt:         endAt,
		Limit:         limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit_logs": logs})
}
