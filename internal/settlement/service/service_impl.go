package service

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	feldomain "github.com/programador11r-tec/zkt-sub000/internal/fel/domain"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/locks"
	obsmetrics "github.com/programador11r-tec/zkt-sub000/internal/observability/metrics"
	"github.com/programador11r-tec/zkt-sub000/internal/pricing"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
	ticketdomain "github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	voucherdomain "github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Tickets    ticketdomain.Repository
	Payments   ticketdomain.PaymentRepository
	Vouchers   voucherdomain.Service
	Rates      ratesdomain.Provider
	Certifier  feldomain.Certifier
	Gate       gatedomain.Service
	Audit      auditdomain.Service
	Locker     *locks.Locker       `optional:"true"`
	Renderer   domain.ReceiptRenderer
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	tickets    ticketdomain.Repository
	payments   ticketdomain.PaymentRepository
	vouchers   voucherdomain.Service
	rates      ratesdomain.Provider
	certifier  feldomain.Certifier
	gate       gatedomain.Service
	audit      auditdomain.Service
	locker     *locks.Locker
	renderer   domain.ReceiptRenderer
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("settlement.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		tickets:    p.Tickets,
		payments:   p.Payments,
		vouchers:   p.Vouchers,
		rates:      p.Rates,
		certifier:  p.Certifier,
		gate:       p.Gate,
		audit:      p.Audit,
		locker:     p.Locker,
		renderer:   p.Renderer,
		obsMetrics: p.ObsMetrics,
	}
}

// priced carries the charge decision between the pricing and
// persistence phases.
type priced struct {
	quote       pricing.Quote
	hourlyRate  *float64
	monthlyRate *float64
}

// Settle runs the full workflow for one ticket: validate, price,
// apply discount, certify (outside any transaction), persist invoice
// plus ticket close plus voucher redemption in one transaction, then
// notify the gate. Certification failures are recorded on the invoice,
// never raised; voucher races abort the transaction.
func (s *Service) Settle(ctx context.Context, req domain.SettleRequest) (*domain.SettleResult, error) {
	req.TicketNo = strings.TrimSpace(req.TicketNo)
	if req.TicketNo == "" {
		return nil, ticketdomain.ErrNotFound
	}

	token, acquired, err := s.locker.TryLockTicket(ctx, req.TicketNo, locks.DefaultSettlementTTL)
	if err != nil {
		s.log.Warn("settlement lock unavailable, relying on database guards",
			zap.String("ticket_no", req.TicketNo),
			zap.Error(err),
		)
	} else if !acquired {
		return nil, domain.ErrSettlementInProgress
	} else {
		defer func() {
			if releaseErr := s.locker.Release(context.WithoutCancel(ctx), req.TicketNo, token); releaseErr != nil {
				s.log.Warn("settlement lock release failed", zap.Error(releaseErr))
			}
		}()
	}

	ticket, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	exitAt := time.Now().UTC()
	if ticket.ExitAt != nil {
		exitAt = *ticket.ExitAt
	}

	charge, err := s.price(ctx, req, ticket, exitAt)
	if err != nil {
		return nil, err
	}

	// Discount phase.
	net := charge.quote.Total
	mode := string(charge.quote.Mode)
	discountApplied := 0.0
	var voucher *voucherdomain.Voucher
	if code := strings.TrimSpace(req.VoucherCode); code != "" {
		voucher, err = s.vouchers.PrepareForRedemption(ctx, code)
		if err != nil {
			return nil, err
		}
		discountApplied = math.Min(voucher.Amount, net)
		net = pricing.Round2(net - voucher.Amount)
	}

	// A net charge of zero, whether fully discounted or priced at zero
	// elapsed time, exits as grace. A zero-value fiscal document is
	// never certified.
	if net <= 0 {
		net = 0
		mode = string(pricing.ModeGrace)
	}

	invoice := domain.Invoice{
		ID:             s.genID.Generate(),
		TicketNo:       ticket.TicketNo,
		Total:          net,
		BillingMode:    mode,
		AmountSource:   string(charge.quote.Source),
		DurationMin:    charge.quote.DurationMin,
		HoursBilled:    charge.quote.HoursBilled,
		HourlyRate:     charge.hourlyRate,
		MonthlyRate:    charge.monthlyRate,
		DiscountAmount: discountApplied,
		ReceptorNIT:    ticket.ReceptorNIT,
		EntryAt:        ticket.EntryAt,
		ExitAt:         exitAt,
		CreatedAt:      time.Now().UTC(),
	}
	if voucher != nil {
		invoice.DiscountCode = &voucher.Code
	}

	// Certification phase, deliberately outside the transaction below:
	// an external call must never hold row locks.
	if mode == string(pricing.ModeGrace) {
		invoice.Status = domain.InvoiceStatusGratis
	} else {
		s.certify(ctx, &invoice)
	}

	certified := invoice.Status == domain.InvoiceStatusCertified
	grace := invoice.Status == domain.InvoiceStatusGratis

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if txErr := s.repo.Insert(ctx, tx, &invoice); txErr != nil {
			return txErr
		}
		closed, txErr := s.tickets.Close(ctx, tx, ticket.TicketNo, exitAt)
		if txErr != nil {
			return txErr
		}
		if !closed {
			return ticketdomain.ErrAlreadyClosed
		}
		// A failed certification keeps the voucher NEW for the next try.
		if voucher != nil && (certified || grace) {
			return s.vouchers.Redeem(ctx, tx, voucher.Code, ticket.TicketNo)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordSettlement(ctx, mode, string(invoice.Status))
	s.recordSettlement(ctx, &invoice)

	result := &domain.SettleResult{
		InvoiceID:       invoice.ID,
		TicketNo:        ticket.TicketNo,
		Status:          invoice.Status,
		Certified:       certified,
		UUID:            invoice.UUID,
		BillingMode:     mode,
		NetTotal:        net,
		DiscountApplied: discountApplied,
	}

	s.release(ctx, ticket, result)
	return result, nil
}

func (s *Service) validate(ctx context.Context, req domain.SettleRequest) (*ticketdomain.Ticket, error) {
	if _, err := pricing.ParseMode(req.Mode); err != nil {
		return nil, err
	}
	if pricing.Mode(req.Mode) == pricing.ModeCustom && req.CustomAmount <= 0 {
		return nil, pricing.ErrInvalidCustomAmount
	}

	ticket, err := s.tickets.FindByNo(ctx, s.db, req.TicketNo)
	if err != nil {
		return nil, err
	}
	if ticket.Status == ticketdomain.TicketStatusClosed {
		return nil, ticketdomain.ErrAlreadyClosed
	}
	if !validReceptorNIT(ticket.ReceptorNIT) {
		return nil, domain.ErrInvalidReceptorNIT
	}
	return ticket, nil
}

// price resolves the charge, preferring client-supplied figures for
// hourly tickets so the printed amount matches the kiosk display. The
// chosen provenance is recorded on the invoice.
func (s *Service) price(ctx context.Context, req domain.SettleRequest, ticket *ticketdomain.Ticket, exitAt time.Time) (priced, error) {
	mode := pricing.Mode(req.Mode)

	var hourly, monthly *float64
	var err error
	if mode == pricing.ModeHourly {
		if hourly, err = s.rates.HourlyRate(ctx); err != nil {
			return priced{}, err
		}
	}
	if mode == pricing.ModeMonthly {
		if monthly, err = s.rates.MonthlyRate(ctx); err != nil {
			return priced{}, err
		}
	}

	quote, err := pricing.Calculate(pricing.Input{
		EntryAt:      ticket.EntryAt,
		ExitAt:       exitAt,
		Mode:         mode,
		HourlyRate:   hourly,
		MonthlyRate:  monthly,
		CustomAmount: req.CustomAmount,
	})
	if err != nil {
		return priced{}, err
	}

	if mode == pricing.ModeHourly {
		switch {
		case req.ClientTotal != nil && *req.ClientTotal > 0:
			quote.Total = pricing.Round2(*req.ClientTotal)
			quote.Source = pricing.SourceClientTotal
		case req.ClientDurationMin != nil && *req.ClientDurationMin > 0 &&
			req.ClientHourlyRate != nil && *req.ClientHourlyRate > 0:
			hours := (*req.ClientDurationMin + 59) / 60
			if hours < 1 {
				hours = 1
			}
			quote.DurationMin = *req.ClientDurationMin
			quote.HoursBilled = hours
			quote.HourlyRateUsed = *req.ClientHourlyRate
			quote.Total = pricing.Round2(float64(hours) * *req.ClientHourlyRate)
			quote.Source = pricing.SourceClient
			hourly = req.ClientHourlyRate
		}
	}

	return priced{quote: quote, hourlyRate: hourly, monthlyRate: monthly}, nil
}

// certify submits the draft and folds the verdict into the invoice.
// Transport failures and service declines both land as FAILED.
func (s *Service) certify(ctx context.Context, invoice *domain.Invoice) {
	draft := feldomain.InvoiceDraft{
		TicketNo:    invoice.TicketNo,
		ReceptorNIT: invoice.ReceptorNIT,
		Total:       invoice.Total,
		Hours:       invoice.HoursBilled,
		Minutes:     invoice.DurationMin,
		Mode:        invoice.BillingMode,
	}
	if raw, err := json.Marshal(draft); err == nil {
		invoice.RawRequest = datatypes.JSON(raw)
	}

	result, err := s.certifier.Certify(ctx, draft)
	invoice.RawResponse = datatypes.JSON(result.RawResponse)
	switch {
	case err != nil:
		msg := err.Error()
		invoice.Status = domain.InvoiceStatusFailed
		invoice.CertError = &msg
		s.log.Warn("certification transport failure",
			zap.String("ticket_no", invoice.TicketNo),
			zap.Error(err),
		)
	case !result.OK:
		msg := result.Err
		invoice.Status = domain.InvoiceStatusFailed
		invoice.CertError = &msg
		s.log.Warn("certification declined",
			zap.String("ticket_no", invoice.TicketNo),
			zap.String("error", result.Err),
		)
	default:
		uuid := result.UUID
		invoice.Status = domain.InvoiceStatusCertified
		invoice.UUID = &uuid
	}

	s.obsMetrics.RecordCertification(ctx, invoice.Status == domain.InvoiceStatusCertified)
}

// release is the final phase: a certified paid ticket goes through the
// notify protocol, a grace ticket opens the gate directly, a failed
// certification releases nothing.
func (s *Service) release(ctx context.Context, ticket *ticketdomain.Ticket, result *domain.SettleResult) {
	switch {
	case result.Status == domain.InvoiceStatusGratis:
		if _, err := s.gate.OpenGate(ctx, "", gatedomain.ReasonGrace); err != nil {
			s.log.Warn("grace gate open failed",
				zap.String("ticket_no", ticket.TicketNo),
				zap.Error(err),
			)
			result.ManualOpenRequired = true
		}
	case result.Certified && result.NetTotal > 0:
		notify, err := s.gate.NotifyPaid(ctx, ticket.Plate, s.gateRecordID(ctx, ticket))
		if err != nil {
			s.log.Warn("gate notify failed",
				zap.String("ticket_no", ticket.TicketNo),
				zap.Error(err),
			)
			result.ManualOpenRequired = true
			return
		}
		result.Notifier = &notify
		result.ManualOpenRequired = notify.ManualOpenRequired
	}
}

// gateRecordID resolves the external billing reference the gate
// controller keys payments by, captured at ingestion. The ticket
// number stands in when no record exists.
func (s *Service) gateRecordID(ctx context.Context, ticket *ticketdomain.Ticket) string {
	record, err := s.payments.FindByTicket(ctx, s.db, ticket.TicketNo)
	if err != nil || record == nil || strings.TrimSpace(record.BillinJSON) == "" {
		return ticket.TicketNo
	}
	return record.BillinJSON
}

func (s *Service) recordSettlement(ctx context.Context, invoice *domain.Invoice) {
	metadata := map[string]any{
		"invoice_id":      invoice.ID.String(),
		"status":          string(invoice.Status),
		"billing_mode":    invoice.BillingMode,
		"amount_source":   invoice.AmountSource,
		"total":           invoice.Total,
		"discount_amount": invoice.DiscountAmount,
		"hours_billed":    invoice.HoursBilled,
	}
	if invoice.UUID != nil {
		metadata["uuid"] = *invoice.UUID
	}
	if invoice.DiscountCode != nil {
		metadata["discount_code"] = *invoice.DiscountCode
	}
	if invoice.CertError != nil {
		metadata["cert_error"] = *invoice.CertError
	}
	_ = s.audit.Record(ctx, "settlement.completed", "ticket", &invoice.TicketNo, metadata)
}

func (s *Service) GetInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) ListInvoices(ctx context.Context, req domain.ListRequest) ([]domain.Invoice, error) {
	return s.repo.Find(ctx, s.db, req)
}

// ReceiptPDF returns the certified document when the fiscal authority
// has one, falling back to a locally rendered receipt.
func (s *Service) ReceiptPDF(ctx context.Context, id snowflake.ID) ([]byte, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	if invoice.UUID != nil {
		pdf, fetchErr := s.certifier.FetchPDF(ctx, *invoice.UUID)
		if fetchErr == nil && len(pdf) > 0 {
			return pdf, nil
		}
		s.log.Debug("certified pdf unavailable, rendering local receipt",
			zap.String("ticket_no", invoice.TicketNo),
			zap.Error(fetchErr),
		)
	}
	return s.renderer.Render(*invoice)
}

func validReceptorNIT(nit string) bool {
	nit = strings.TrimSpace(nit)
	if strings.EqualFold(nit, "CF") {
		return true
	}
	if nit == "" {
		return false
	}
	for _, r := range nit {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
