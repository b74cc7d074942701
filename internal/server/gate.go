package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
)

type manualOpenRequest struct {
	ChannelID string `json:"channel_id"`
	Reason    string `json:"reason"`
}

// ManualOpenGate is the operator override for an unconfirmed
// notification: it releases the gate and records who asked for it and
// why.
func (s *Server) ManualOpenGate(c *gin.Context) {
	var req manualOpenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = gatedomain.ReasonOperator
	}

	entry, err := s.gateSvc.OpenGate(c.Request.Context(), strings.TrimSpace(req.ChannelID), reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) ListManualOpens(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	entries, err := s.gateSvc.ListManualOpens(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"manual_opens": entries})
}
