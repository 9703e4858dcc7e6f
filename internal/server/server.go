package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutdomain "github.com/smallbiznis/classbill/internal/checkout/domain"
	"github.com/smallbiznis/classbill/internal/config"
	ledgerdomain "github.com/smallbiznis/classbill/internal/ledger/domain"
	obslogger "github.com/smallbiznis/classbill/internal/observability/logger"
	obstracing "github.com/smallbiznis/classbill/internal/observability/tracing"
	webhookdomain "github.com/smallbiznis/classbill/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	checkoutSvc checkoutdomain.Service
	ledgerSvc   ledgerdomain.Service
	webhookSvc  webhookdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	CheckoutSvc checkoutdomain.Service
	LedgerSvc   ledgerdomain.Service
	WebhookSvc  webhookdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		checkoutSvc: p.CheckoutSvc,
		ledgerSvc:   p.LedgerSvc,
		webhookSvc:  p.WebhookSvc,
	}

	svc.registerBillingRoutes()
	svc.registerWebhookRoutes()

	return svc
}
