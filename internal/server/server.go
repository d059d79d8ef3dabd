package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tollgate/internal/account"
	accountdomain "github.com/smallbiznis/tollgate/internal/account/domain"
	"github.com/smallbiznis/tollgate/internal/aggregate"
	aggregatedomain "github.com/smallbiznis/tollgate/internal/aggregate/domain"
	"github.com/smallbiznis/tollgate/internal/alert"
	alertdomain "github.com/smallbiznis/tollgate/internal/alert/domain"
	"github.com/smallbiznis/tollgate/internal/cache"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/event"
	eventdomain "github.com/smallbiznis/tollgate/internal/event/domain"
	"github.com/smallbiznis/tollgate/internal/gating"
	"github.com/smallbiznis/tollgate/internal/idempotency"
	idempotencydomain "github.com/smallbiznis/tollgate/internal/idempotency/domain"
	"github.com/smallbiznis/tollgate/internal/invoice"
	invoicedomain "github.com/smallbiznis/tollgate/internal/invoice/domain"
	"github.com/smallbiznis/tollgate/internal/observability"
	obsmiddleware "github.com/smallbiznis/tollgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tollgate/internal/observability/tracing"
	"github.com/smallbiznis/tollgate/internal/payment"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	"github.com/smallbiznis/tollgate/internal/pipeline"
	"github.com/smallbiznis/tollgate/internal/pricing"
	"github.com/smallbiznis/tollgate/internal/ratelimit"
	"github.com/smallbiznis/tollgate/internal/rating"
	"github.com/smallbiznis/tollgate/internal/tax"
	taxdomain "github.com/smallbiznis/tollgate/internal/tax/domain"
	"github.com/smallbiznis/tollgate/internal/wallet"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	account.Module,
	event.Module,
	idempotency.Module,
	pricing.Module,
	rating.Module,
	wallet.Module,
	aggregate.Module,
	tax.Module,
	invoice.Module,
	alert.Module,
	gating.Module,
	payment.Module,
	pipeline.Module,
	ratelimit.Module,
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
	r.Use(httpMetrics.GinMiddleware())
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
	engine *gin.Engine
	cfg    config.Config
	genID  *snowflake.Node

	accountSvc     accountdomain.Service
	eventSvc       eventdomain.Service
	idempotencySvc idempotencydomain.Service
	walletSvc      walletdomain.Service
	aggregateSvc   aggregatedomain.Service
	invoiceSvc     invoicedomain.Service
	taxSvc         taxdomain.Service
	alertSvc       alertdomain.Service
	paymentSvc     paymentdomain.Service
	pipe           *pipeline.Pipeline
	ingestLimiter  *ratelimit.IngestLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	GenID *snowflake.Node

	AccountSvc     accountdomain.Service
	EventSvc       eventdomain.Service
	IdempotencySvc idempotencydomain.Service
	WalletSvc      walletdomain.Service
	AggregateSvc   aggregatedomain.Service
	InvoiceSvc     invoicedomain.Service
	TaxSvc         taxdomain.Service
	AlertSvc       alertdomain.Service
	PaymentSvc     paymentdomain.Service
	Pipeline       *pipeline.Pipeline
	IngestLimiter  *ratelimit.IngestLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		genID:  p.GenID,

		accountSvc:     p.AccountSvc,
		eventSvc:       p.EventSvc,
		idempotencySvc: p.IdempotencySvc,
		walletSvc:      p.WalletSvc,
		aggregateSvc:   p.AggregateSvc,
		invoiceSvc:     p.InvoiceSvc,
		taxSvc:         p.TaxSvc,
		alertSvc:       p.AlertSvc,
		paymentSvc:     p.PaymentSvc,
		pipe:           p.Pipeline,
		ingestLimiter:  p.IngestLimiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/events", s.IngestEvent)
	v1.GET("/events", s.ListEvents)

	v1.POST("/accounts", s.CreateAccount)
	v1.GET("/accounts/:id", s.GetAccount)
	v1.POST("/accounts/:id/cycles/close", s.CloseCycle)

	v1.POST("/wallets/:id/credit", s.CreditWallet)
	v1.POST("/wallets/:id/debit", s.DebitWallet)
	v1.GET("/wallets/:id/balance", s.GetWalletBalance)
	v1.GET("/wallets/:id/transactions", s.ListWalletTransactions)
	v1.GET("/wallets/:id/alerts", s.ListWalletAlerts)
	v1.POST("/wallets/:id/transactions/:txn_id/reverse", s.ReverseWalletTransaction)

	v1.POST("/invoices", s.GenerateInvoice)
	v1.GET("/invoices/:id", s.GetInvoice)
	v1.POST("/invoices/:id/issue", s.IssueInvoice)
	v1.POST("/invoices/:id/cancel", s.CancelInvoice)
	v1.POST("/invoices/tax-preview", s.TaxPreview)

	v1.POST("/webhooks/payment", s.HandlePaymentWebhook)
}
