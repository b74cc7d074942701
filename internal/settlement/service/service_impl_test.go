package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	auditrepo "github.com/programador11r-tec/zkt-sub000/internal/audit/repository"
	auditservice "github.com/programador11r-tec/zkt-sub000/internal/audit/service"
	feldomain "github.com/programador11r-tec/zkt-sub000/internal/fel/domain"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/rates"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
	settlementrepo "github.com/programador11r-tec/zkt-sub000/internal/settlement/repository"
	settlementservice "github.com/programador11r-tec/zkt-sub000/internal/settlement/service"
	ticketdomain "github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	ticketrepo "github.com/programador11r-tec/zkt-sub000/internal/ticket/repository"
	voucherdomain "github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
	voucherrepo "github.com/programador11r-tec/zkt-sub000/internal/voucher/repository"
	voucherservice "github.com/programador11r-tec/zkt-sub000/internal/voucher/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubCertifier struct {
	result    feldomain.Result
	err       error
	calls     int
	onCertify func()
}

func (c *stubCertifier) Certify(_ context.Context, _ feldomain.InvoiceDraft) (feldomain.Result, error) {
	c.calls++
	if c.onCertify != nil {
		c.onCertify()
	}
	return c.result, c.err
}

func (c *stubCertifier) FetchPDF(_ context.Context, _ string) ([]byte, error) {
	return nil, feldomain.ErrPDFNotFound
}

type stubGate struct {
	notifyResult gatedomain.NotifyResult
	notified     []string
	openReasons  []string
}

func (g *stubGate) NotifyPaid(_ context.Context, _, recordID string) (gatedomain.NotifyResult, error) {
	g.notified = append(g.notified, recordID)
	return g.notifyResult, nil
}

func (g *stubGate) OpenGate(_ context.Context, channelID, reason string) (gatedomain.ManualOpenLog, error) {
	g.openReasons = append(g.openReasons, reason)
	return gatedomain.ManualOpenLog{ChannelID: channelID, Reason: reason}, nil
}

func (g *stubGate) ListManualOpens(_ context.Context, _ int) ([]gatedomain.ManualOpenLog, error) {
	return nil, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(_ domain.Invoice) ([]byte, error) {
	return []byte("%PDF-1.4 receipt"), nil
}

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	vouchers  voucherdomain.Service
	rates     ratesdomain.Provider
	certifier *stubCertifier
	gate      *stubGate
	node      *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:settledb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ticketdomain.Ticket{},
		&ticketdomain.PaymentRecord{},
		&voucherdomain.Voucher{},
		&domain.Invoice{},
		&gatedomain.ManualOpenLog{},
		&auditdomain.AuditLog{},
		&ratesdomain.Setting{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	vouchers := voucherservice.NewService(voucherservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  voucherrepo.Provide(),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepo.Provide(),
	})
	rateProvider := rates.NewProvider(db)
	require.NoError(t, rateProvider.SetHourlyRate(context.Background(), 10))
	require.NoError(t, rateProvider.SetMonthlyRate(context.Background(), 300))

	certifier := &stubCertifier{result: feldomain.Result{OK: true, UUID: "FEL-UUID-1"}}
	gate := &stubGate{notifyResult: gatedomain.NotifyResult{Sent: true, Acknowledged: true, HTTPStatus: 200}}

	svc := settlementservice.NewService(settlementservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      settlementrepo.Provide(),
		Tickets:   ticketrepo.Provide(),
		Payments:  ticketrepo.ProvidePayments(),
		Vouchers:  vouchers,
		Rates:     rateProvider,
		Certifier: certifier,
		Gate:      gate,
		Audit:     audit,
		Renderer:  stubRenderer{},
	})

	return &fixture{db: db, svc: svc, vouchers: vouchers, rates: rateProvider, certifier: certifier, gate: gate, node: node}
}

func (f *fixture) openTicket(t *testing.T, ticketNo string, parked time.Duration) *ticketdomain.Ticket {
	t.Helper()

	now := time.Now().UTC()
	exit := now
	ticket := &ticketdomain.Ticket{
		ID:          f.node.Generate(),
		TicketNo:    ticketNo,
		Plate:       "P123ABC",
		Status:      ticketdomain.TicketStatusOpen,
		EntryAt:     now.Add(-parked),
		ExitAt:      &exit,
		ReceptorNIT: "CF",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, f.db.Create(ticket).Error)
	return ticket
}

func (f *fixture) issueVoucher(t *testing.T, amount float64) string {
	t.Helper()

	resp, err := f.vouchers.Issue(context.Background(), voucherdomain.IssueRequest{Count: 1, Amount: amount, Description: "promo"})
	require.NoError(t, err)
	return resp.Vouchers[0].Code
}

func TestSettleHourlyCertifiesAndNotifiesGate(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1001", 90*time.Minute)

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1001", Mode: "hourly"})
	require.NoError(t, err)

	assert.True(t, result.Certified)
	assert.Equal(t, domain.InvoiceStatusCertified, result.Status)
	require.NotNil(t, result.UUID)
	assert.Equal(t, "FEL-UUID-1", *result.UUID)
	assert.Equal(t, 20.0, result.NetTotal)
	assert.False(t, result.ManualOpenRequired)
	assert.Len(t, f.gate.notified, 1)
	// no payment record was ingested, the ticket number stands in
	assert.Equal(t, "T-1001", f.gate.notified[0])

	var ticket ticketdomain.Ticket
	require.NoError(t, f.db.Where("ticket_no = ?", "T-1001").First(&ticket).Error)
	assert.Equal(t, ticketdomain.TicketStatusClosed, ticket.Status)

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1001"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, 2, invoices[0].HoursBilled)
	assert.Equal(t, "backend", invoices[0].AmountSource)
}

func TestSettleRejectsClosedTicket(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1002", time.Hour)

	_, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1002", Mode: "hourly"})
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1002", Mode: "hourly"})
	assert.ErrorIs(t, err, ticketdomain.ErrAlreadyClosed)
	assert.Equal(t, 1, f.certifier.calls)
}

func TestSettleRejectsBadReceptorNIT(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	ticket := f.openTicket(t, "T-1003", time.Hour)
	require.NoError(t, f.db.Model(ticket).Update("receptor_nit", "ABC-123").Error)

	_, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1003", Mode: "hourly"})
	assert.ErrorIs(t, err, domain.ErrInvalidReceptorNIT)
}

func TestSettleDiscountFloorForcesGrace(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1004", 30*time.Minute) // 1 hour billed, Q10
	code := f.issueVoucher(t, 25)

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1004", Mode: "hourly", VoucherCode: code})
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusGratis, result.Status)
	assert.Equal(t, "grace", result.BillingMode)
	assert.Equal(t, 0.0, result.NetTotal)
	assert.Equal(t, 10.0, result.DiscountApplied)
	assert.Nil(t, result.UUID)
	assert.Equal(t, 0, f.certifier.calls)
	assert.Empty(t, f.gate.notified)
	assert.Equal(t, []string{gatedomain.ReasonGrace}, f.gate.openReasons)

	redeemed, err := f.vouchers.Lookup(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, voucherdomain.VoucherStatusRedeemed, redeemed.Status)
	require.NotNil(t, redeemed.RedeemedTicket)
	assert.Equal(t, "T-1004", *redeemed.RedeemedTicket)
}

func TestSettlePartialDiscountStaysCertified(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1005", 3*time.Hour) // Q30
	code := f.issueVoucher(t, 12)

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1005", Mode: "hourly", VoucherCode: code})
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusCertified, result.Status)
	assert.Equal(t, 18.0, result.NetTotal)
	assert.Equal(t, 12.0, result.DiscountApplied)
	assert.Len(t, f.gate.notified, 1)
}

func TestSettleFailedCertificationKeepsVoucherAndClosesTicket(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1006", 2*time.Hour)
	code := f.issueVoucher(t, 5)
	f.certifier.result = feldomain.Result{OK: false, Err: "emitter rejected"}

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1006", Mode: "hourly", VoucherCode: code})
	require.NoError(t, err)

	assert.False(t, result.Certified)
	assert.Equal(t, domain.InvoiceStatusFailed, result.Status)
	assert.Nil(t, result.UUID)
	assert.Empty(t, f.gate.notified)
	assert.Empty(t, f.gate.openReasons)

	var ticket ticketdomain.Ticket
	require.NoError(t, f.db.Where("ticket_no = ?", "T-1006").First(&ticket).Error)
	assert.Equal(t, ticketdomain.TicketStatusClosed, ticket.Status)

	kept, err := f.vouchers.Lookup(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, voucherdomain.VoucherStatusNew, kept.Status)

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1006"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	require.NotNil(t, invoices[0].CertError)
	assert.Equal(t, "emitter rejected", *invoices[0].CertError)
}

func TestSettleCertificationTransportErrorRecordedAsFailed(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1007", time.Hour)
	f.certifier.err = errors.New("context deadline exceeded")

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1007", Mode: "hourly"})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusFailed, result.Status)
	assert.Empty(t, f.gate.notified)
}

func TestSettleVoucherRaceLostRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1008", time.Hour)
	code := f.issueVoucher(t, 3)

	// The voucher is consumed by a rival settlement while this one is
	// waiting on the certifier, after prepareForRedemption saw it NEW.
	f.certifier.onCertify = func() {
		require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
			return f.vouchers.Redeem(ctx, tx, code, "T-OTHER")
		}))
	}

	_, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1008", Mode: "hourly", VoucherCode: code})
	assert.ErrorIs(t, err, voucherdomain.ErrVoucherRaceLost)

	var ticket ticketdomain.Ticket
	require.NoError(t, f.db.Where("ticket_no = ?", "T-1008").First(&ticket).Error)
	assert.Equal(t, ticketdomain.TicketStatusOpen, ticket.Status)

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1008"})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	taken, err := f.vouchers.Lookup(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, taken.RedeemedTicket)
	assert.Equal(t, "T-OTHER", *taken.RedeemedTicket)
}

func TestSettleUnacknowledgedNotifyFlagsManualOpen(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1009", time.Hour)
	f.gate.notifyResult = gatedomain.NotifyResult{Sent: true, Acknowledged: false, HTTPStatus: 200, ManualOpenRequired: true}

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1009", Mode: "hourly"})
	require.NoError(t, err)

	assert.True(t, result.Certified)
	assert.True(t, result.ManualOpenRequired)
	require.NotNil(t, result.Notifier)
	assert.False(t, result.Notifier.Acknowledged)
}

func TestSettleClientTotalOverrideRecordsProvenance(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1010", 90*time.Minute)
	clientTotal := 17.5

	result, err := f.svc.Settle(ctx, domain.SettleRequest{
		TicketNo:    "T-1010",
		Mode:        "hourly",
		ClientTotal: &clientTotal,
	})
	require.NoError(t, err)
	assert.Equal(t, 17.5, result.NetTotal)

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1010"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "client_total", invoices[0].AmountSource)
}

func TestSettleClientDurationAndRateOverride(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1011", 90*time.Minute)
	duration := 125
	rate := 8.0

	result, err := f.svc.Settle(ctx, domain.SettleRequest{
		TicketNo:          "T-1011",
		Mode:              "hourly",
		ClientDurationMin: &duration,
		ClientHourlyRate:  &rate,
	})
	require.NoError(t, err)
	assert.Equal(t, 24.0, result.NetTotal) // 125 min -> 3 hours at Q8

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1011"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "client", invoices[0].AmountSource)
	assert.Equal(t, 125, invoices[0].DurationMin)
	assert.Equal(t, 3, invoices[0].HoursBilled)
}

func TestSettleGrandTotalZeroInvariant(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1012", time.Hour)

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1012", Mode: "grace"})
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.NetTotal)
	assert.Equal(t, domain.InvoiceStatusGratis, result.Status)
	assert.Nil(t, result.UUID)
	assert.Equal(t, 0, f.certifier.calls)

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1012"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "grace", invoices[0].BillingMode)
	assert.Nil(t, invoices[0].UUID)
}

func TestSettleZeroElapsedHourlyBecomesGrace(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	// entry and exit coincide, the backend quote is already zero with
	// no voucher in play
	f.openTicket(t, "T-1015", 0)

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1015", Mode: "hourly"})
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusGratis, result.Status)
	assert.Equal(t, "grace", result.BillingMode)
	assert.Equal(t, 0.0, result.NetTotal)
	assert.Nil(t, result.UUID)
	assert.Equal(t, 0, f.certifier.calls)
	assert.Empty(t, f.gate.notified)
	// the vehicle is not stranded, the gate opens on the grace path
	assert.Equal(t, []string{gatedomain.ReasonGrace}, f.gate.openReasons)

	var ticket ticketdomain.Ticket
	require.NoError(t, f.db.Where("ticket_no = ?", "T-1015").First(&ticket).Error)
	assert.Equal(t, ticketdomain.TicketStatusClosed, ticket.Status)

	invoices, err := f.svc.ListInvoices(ctx, domain.ListRequest{TicketNo: "T-1015"})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, "grace", invoices[0].BillingMode)
	assert.Nil(t, invoices[0].UUID)
}

func TestReceiptPDFFallsBackToLocalRender(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1013", time.Hour)

	result, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1013", Mode: "hourly"})
	require.NoError(t, err)

	pdf, err := f.svc.ReceiptPDF(ctx, result.InvoiceID)
	require.NoError(t, err)
	assert.Contains(t, string(pdf), "PDF")
}

func TestSettleCustomModeRequiresPositiveAmount(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.openTicket(t, "T-1014", time.Hour)

	_, err := f.svc.Settle(ctx, domain.SettleRequest{TicketNo: "T-1014", Mode: "custom"})
	require.Error(t, err)
	assert.Equal(t, 0, f.certifier.calls)

	var ticket ticketdomain.Ticket
	require.NoError(t, f.db.Where("ticket_no = ?", "T-1014").First(&ticket).Error)
	assert.Equal(t, ticketdomain.TicketStatusOpen, ticket.Status)
}
