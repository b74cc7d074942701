package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	voucherdomain "github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
)

type issueVouchersRequest struct {
	Count       int     `json:"count" binding:"required"`
	Amount      float64 `json:"amount" binding:"required"`
	Description string  `json:"description"`
}

func (s *Server) IssueVouchers(c *gin.Context) {
	var req issueVouchersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.voucherSvc.Issue(c.Request.Context(), voucherdomain.IssueRequest{
		Count:       req.Count,
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetVoucher(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	found, err := s.voucherSvc.Lookup(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (s *Server) VoidVoucher(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if code == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	if err := s.voucherSvc.Void(ctx, code); err != nil {
		AbortWithError(c, err)
		return
	}

	_ = s.auditSvc.Record(ctx, "voucher.voided", "voucher", &code, nil)
	c.JSON(http.StatusOK, gin.H{"code": code, "status": voucherdomain.VoucherStatusVoid})
}

func (s *Server) ListVoucherBatch(c *gin.Context) {
	batchID, err := snowflake.ParseString(strings.TrimSpace(c.Param("batch_id")))
	if err != nil {
		AbortWithError(c, newValidationError("batch_id", "invalid_batch_id", "invalid batch id"))
		return
	}

	vouchers, err := s.voucherSvc.ListBatch(c.Request.Context(), batchID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batch_id": batchID, "vouchers": vouchers})
}
