package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	auditrepo "github.com/programador11r-tec/zkt-sub000/internal/audit/repository"
	auditservice "github.com/programador11r-tec/zkt-sub000/internal/audit/service"
	feldomain "github.com/programador11r-tec/zkt-sub000/internal/fel/domain"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/rates"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/server"
	settlementdomain "github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
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

type okCertifier struct{}

func (okCertifier) Certify(_ context.Context, _ feldomain.InvoiceDraft) (feldomain.Result, error) {
	return feldomain.Result{OK: true, UUID: "FEL-TEST-UUID"}, nil
}

func (okCertifier) FetchPDF(_ context.Context, _ string) ([]byte, error) {
	return nil, feldomain.ErrPDFNotFound
}

type ackGate struct {
	opens []string
}

func (g *ackGate) NotifyPaid(_ context.Context, _, _ string) (gatedomain.NotifyResult, error) {
	return gatedomain.NotifyResult{Sent: true, Acknowledged: true, HTTPStatus: 200}, nil
}

func (g *ackGate) OpenGate(_ context.Context, channelID, reason string) (gatedomain.ManualOpenLog, error) {
	g.opens = append(g.opens, reason)
	return gatedomain.ManualOpenLog{ChannelID: channelID, Reason: reason}, nil
}

func (g *ackGate) ListManualOpens(_ context.Context, _ int) ([]gatedomain.ManualOpenLog, error) {
	return nil, nil
}

type textRenderer struct{}

func (textRenderer) Render(_ settlementdomain.Invoice) ([]byte, error) {
	return []byte("%PDF-1.4 local"), nil
}

func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:serverdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ticketdomain.Ticket{},
		&ticketdomain.PaymentRecord{},
		&voucherdomain.Voucher{},
		&settlementdomain.Invoice{},
		&gatedomain.ManualOpenLog{},
		&auditdomain.AuditLog{},
		&ratesdomain.Setting{},
	))

	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	vouchers := voucherservice.NewService(voucherservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: voucherrepo.Provide(),
	})
	audit := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: auditrepo.Provide(),
	})
	rateProvider := rates.NewProvider(db)
	require.NoError(t, rateProvider.SetHourlyRate(context.Background(), 10))

	settlementSvc := settlementservice.NewService(settlementservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      settlementrepo.Provide(),
		Tickets:   ticketrepo.Provide(),
		Payments:  ticketrepo.ProvidePayments(),
		Vouchers:  vouchers,
		Rates:     rateProvider,
		Certifier: okCertifier{},
		Gate:      &ackGate{},
		Audit:     audit,
		Renderer:  textRenderer{},
	})

	engine := gin.New()
	engine.Use(server.ErrorHandlingMiddleware())
	server.NewServer(server.ServerParams{
		Gin:           engine,
		DB:            db,
		GenID:         node,
		SettlementSvc: settlementSvc,
		VoucherSvc:    vouchers,
		GateSvc:       &ackGate{},
		AuditSvc:      audit,
		TicketRepo:    ticketrepo.Provide(),
		PaymentRepo:   ticketrepo.ProvidePayments(),
		RateProvider:  rateProvider,
	})
	return engine, db
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/tickets", gin.H{
		"ticket_no":   "T-9001",
		"plate":       "P456DEF",
		"entry_at":    time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339),
		"billin_json": "EXT-REC-42",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/v1/tickets/T-9001/settle", gin.H{"mode": "hourly"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result settlementdomain.SettleResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Certified)
	assert.Equal(t, 20.0, result.NetTotal)
	assert.False(t, result.ManualOpenRequired)

	rec = doJSON(t, engine, http.MethodGet, "/v1/tickets/T-9001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ticket ticketdomain.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.Equal(t, ticketdomain.TicketStatusClosed, ticket.Status)

	rec = doJSON(t, engine, http.MethodGet, "/v1/invoices?ticket_no=T-9001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CERTIFIED")
}

func TestSettleClosedTicketReturnsBadRequest(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/tickets", gin.H{
		"ticket_no": "T-9002",
		"plate":     "P456DEF",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, engine, http.MethodPost, "/v1/tickets/T-9002/settle", gin.H{"mode": "grace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, engine, http.MethodPost, "/v1/tickets/T-9002/settle", gin.H{"mode": "grace"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticket_already_closed")
}

func TestSettleUnknownTicketReturnsNotFound(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/tickets/NOPE/settle", gin.H{"mode": "hourly"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoucherIssueAndVoidOverHTTP(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPost, "/v1/vouchers", gin.H{"count": 2, "amount": 15.0})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var issued voucherdomain.IssueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	require.Len(t, issued.Vouchers, 2)
	code := issued.Vouchers[0].Code

	rec = doJSON(t, engine, http.MethodPost, "/v1/vouchers/"+code+"/void", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// a voided voucher cannot be voided again
	rec = doJSON(t, engine, http.MethodPost, "/v1/vouchers/"+code+"/void", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, engine, http.MethodGet, "/v1/vouchers/"+code, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "VOID")
}

func TestRatesUpdateOverHTTP(t *testing.T) {
	engine, _ := newTestServer(t)

	rec := doJSON(t, engine, http.MethodPut, "/v1/rates", gin.H{"hourly_rate": 12.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "12.5")

	rec = doJSON(t, engine, http.MethodPut, "/v1/rates", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
