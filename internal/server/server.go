package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/programador11r-tec/zkt-sub000/internal/audit"
	auditdomain "github.com/programador11r-tec/zkt-sub000/internal/audit/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/config"
	"github.com/programador11r-tec/zkt-sub000/internal/fel"
	"github.com/programador11r-tec/zkt-sub000/internal/gate"
	gatedomain "github.com/programador11r-tec/zkt-sub000/internal/gate/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/locks"
	"github.com/programador11r-tec/zkt-sub000/internal/observability"
	obscontext "github.com/programador11r-tec/zkt-sub000/internal/observability/context"
	obsmiddleware "github.com/programador11r-tec/zkt-sub000/internal/observability/logger"
	obsmetrics "github.com/programador11r-tec/zkt-sub000/internal/observability/metrics"
	obstracing "github.com/programador11r-tec/zkt-sub000/internal/observability/tracing"
	"github.com/programador11r-tec/zkt-sub000/internal/providers/pdf"
	"github.com/programador11r-tec/zkt-sub000/internal/rates"
	ratesdomain "github.com/programador11r-tec/zkt-sub000/internal/rates/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/settlement"
	settlementdomain "github.com/programador11r-tec/zkt-sub000/internal/settlement/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/ticket"
	ticketdomain "github.com/programador11r-tec/zkt-sub000/internal/ticket/domain"
	"github.com/programador11r-tec/zkt-sub000/internal/voucher"
	voucherdomain "github.com/programador11r-tec/zkt-sub000/internal/voucher/domain"
	"github.com/programador11r-tec/zkt-sub000/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	audit.Module,
	fel.Module,
	gate.Module,
	locks.Module,
	pdf.Module,
	rates.Module,
	settlement.Module,
	ticket.Module,
	voucher.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CorrelationMiddleware())
	r.Use(OperatorMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

// CorrelationMiddleware guarantees every request carries a correlation
// id, honoring one supplied by the caller.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if supplied := c.GetHeader("X-Correlation-Id"); supplied != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, supplied)
		}
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Writer.Header().Set("X-Correlation-Id", cid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OperatorMiddleware tags the request context with the booth operator
// identity, when the kiosk supplies one, so audit rows name a person.
func OperatorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if operator := c.GetHeader("X-Operator"); operator != "" {
			c.Request = c.Request.WithContext(obscontext.WithOperator(c.Request.Context(), operator))
		}
		c.Next()
	}
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	settlementSvc settlementdomain.Service
	voucherSvc    voucherdomain.Service
	gateSvc       gatedomain.Service
	auditSvc      auditdomain.Service
	ticketRepo    ticketdomain.Repository
	paymentRepo   ticketdomain.PaymentRepository
	rateProvider  ratesdomain.Provider
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	SettlementSvc settlementdomain.Service
	VoucherSvc    voucherdomain.Service
	GateSvc       gatedomain.Service
	AuditSvc      auditdomain.Service
	TicketRepo    ticketdomain.Repository
	PaymentRepo   ticketdomain.PaymentRepository
	RateProvider  ratesdomain.Provider
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		settlementSvc: p.SettlementSvc,
		voucherSvc:    p.VoucherSvc,
		gateSvc:       p.GateSvc,
		auditSvc:      p.AuditSvc,
		ticketRepo:    p.TicketRepo,
		paymentRepo:   p.PaymentRepo,
		rateProvider:  p.RateProvider,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/tickets", s.CreateTicket)
	v1.GET("/tickets/:ticket_no", s.GetTicket)
	v1.POST("/tickets/:ticket_no/settle", s.SettleTicket)

	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:id", s.GetInvoice)
	v1.GET("/invoices/:id/receipt.pdf", s.GetReceiptPDF)

	v1.POST("/vouchers", s.IssueVouchers)
	v1.GET("/vouchers/:code", s.GetVoucher)
	v1.POST("/vouchers/:code/void", s.VoidVoucher)
	v1.GET("/voucher-batches/:batch_id", s.ListVoucherBatch)

	v1.POST("/gate/open", s.ManualOpenGate)
	v1.GET("/gate/manual-opens", s.ListManualOpens)

	v1.GET("/rates", s.GetRates)
	v1.PUT("/rates", s.UpdateRates)

	v1.GET("/audit-logs", s.ListAuditLogs)
}
