package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ticketdomain "github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	"gorm.io/gorm"
)

type createTicketRequest struct {
	TicketNo    string  `json:"ticket_no" binding:"required"`
	Plate       string  `json:"plate" binding:"required"`
	EntryAt     string  `json:"entry_at"`
	ReceptorNIT string  `json:"receptor_nit"`
	Billin      float64 `json:"billin"`
	BillinJSON  string  `json:"billin_json"`
}

// CreateTicket ingests a parked vehicle: the OPEN ticket plus the
// external billing record the gate controller keys payments by.
func (s *Server) CreateTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entryAt := time.Now().UTC()
	if value := strings.TrimSpace(req.EntryAt); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			AbortWithError(c, newValidationError("entry_at", "invalid_entry_at", "invalid entry_at"))
			return
		}
		entryAt = parsed.UTC()
	}

	receptorNIT := strings.TrimSpace(req.ReceptorNIT)
	if receptorNIT == "" {
		receptorNIT = "CF"
	}

	ctx := c.Request.Context()
	ticket := &ticketdomain.Ticket{
		ID:          s.genID.Generate(),
		TicketNo:    strings.TrimSpace(req.TicketNo),
		Plate:       strings.TrimSpace(req.Plate),
		Status:      ticketdomain.TicketStatusOpen,
		EntryAt:     entryAt,
		ReceptorNIT: receptorNIT,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if txErr := s.ticketRepo.Create(ctx, tx, ticket); txErr != nil {
			return txErr
		}
		if req.BillinJSON == "" && req.Billin == 0 {
			return nil
		}
		return s.paymentRepo.Create(ctx, tx, &ticketdomain.PaymentRecord{
			ID:         s.genID.Generate(),
			TicketNo:   ticket.TicketNo,
			Plate:      ticket.Plate,
			Billin:     req.Billin,
			BillinJSON: strings.TrimSpace(req.BillinJSON),
			CreatedAt:  time.Now().UTC(),
		})
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	_ = s.auditSvc.Record(ctx, "ticket.ingested", "ticket", &ticket.TicketNo, map[string]any{
		"plate":        ticket.Plate,
		"receptor_nit": ticket.ReceptorNIT,
	})

	c.JSON(http.StatusCreated, ticket)
}

func (s *Server) GetTicket(c *gin.Context) {
	ticketNo := strings.TrimSpace(c.Param("ticket_no"))
	if ticketNo == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	ticket, err := s.ticketRepo.FindByNo(c.Request.Context(), s.db, ticketNo)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, ticket)
}
