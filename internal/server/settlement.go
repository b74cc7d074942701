package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	settlementdomain "github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
)

type settleTicketRequest struct {
	Mode              string   `json:"mode" binding:"required"`
	VoucherCode       string   `json:"voucher_code"`
	CustomAmount      float64  `json:"custom_amount"`
	ClientDurationMin *int     `json:"client_duration_min"`
	ClientHourlyRate  *float64 `json:"client_hourly_rate"`
	ClientTotal       *float64 `json:"client_total"`
}

// SettleTicket runs the settlement workflow. The response always
// reports a definite outcome; certification and gate failures are
// delivered as flags, not error statuses.
func (s *Server) SettleTicket(c *gin.Context) {
	ticketNo := strings.TrimSpace(c.Param("ticket_no"))
	if ticketNo == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	var req settleTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.settlementSvc.Settle(c.Request.Context(), settlementdomain.SettleRequest{
		TicketNo:          ticketNo,
		Mode:              strings.TrimSpace(req.Mode),
		VoucherCode:       strings.TrimSpace(req.VoucherCode),
		CustomAmount:      req.CustomAmount,
		ClientDurationMin: req.ClientDurationMin,
		ClientHourlyRate:  req.ClientHourlyRate,
		ClientTotal:       req.ClientTotal,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) ListInvoices(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
			return
		}
		limit = parsed
	}

	invoices, err := s.settlementSvc.ListInvoices(c.Request.Context(), settlementdomain.ListRequest{
		TicketNo: strings.TrimSpace(c.Query("ticket_no")),
		Status:   settlementdomain.InvoiceStatus(strings.TrimSpace(c.Query("status"))),
		Limit:    limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := parseInvoiceID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.settlementSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) GetReceiptPDF(c *gin.Context) {
	id, err := parseInvoiceID(c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	pdfBytes, err := s.settlementSvc.ReceiptPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}

func parseInvoiceID(raw string) (snowflake.ID, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, newValidationError("id", "invalid_invoice_id", "invalid invoice id")
	}
	return parsed, nil
}
