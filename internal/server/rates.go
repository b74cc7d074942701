package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type updateRatesRequest struct {
	HourlyRate  *float64 `json:"hourly_rate"`
	MonthlyRate *float64 `json:"monthly_rate"`
}

func (s *Server) GetRates(c *gin.Context) {
	ctx := c.Request.Context()

	hourly, err := s.rateProvider.HourlyRate(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	monthly, err := s.rateProvider.MonthlyRate(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"hourly_rate": hourly, "monthly_rate": monthly})
}

func (s *Server) UpdateRates(c *gin.Context) {
	var req updateRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.HourlyRate == nil && req.MonthlyRate == nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if req.HourlyRate != nil {
		if err := s.rateProvider.SetHourlyRate(ctx, *req.HourlyRate); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	if req.MonthlyRate != nil {
		if err := s.rateProvider.SetMonthlyRate(ctx, *req.MonthlyRate); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	_ = s.auditSvc.Record(ctx, "rates.updated", "settings", nil, map[string]any{
		"hourly_rate":  req.HourlyRate,
		"monthly_rate": req.MonthlyRate,
	})
	s.GetRates(c)
}
