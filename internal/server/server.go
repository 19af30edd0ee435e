package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	"github.com/smallbiznis/finora/internal/authorization"
	"github.com/smallbiznis/finora/internal/config"
	"github.com/smallbiznis/finora/internal/observability"
	obsmiddleware "github.com/smallbiznis/finora/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/finora/internal/observability/metrics"
	obstracing "github.com/smallbiznis/finora/internal/observability/tracing"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server started", zap.String("addr", cfg.HTTPAddr))
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	accountSvc      accountdomain.Service
	authzSvc        authorization.Service
	subscriptionSvc subscriptiondomain.Service
	catalog         *config.PlanCatalogHolder
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AccountSvc      accountdomain.Service
	AuthzSvc        authorization.Service
	SubscriptionSvc subscriptiondomain.Service
	Catalog         *config.PlanCatalogHolder
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		accountSvc:      p.AccountSvc,
		authzSvc:        p.AuthzSvc,
		subscriptionSvc: p.SubscriptionSvc,
		catalog:         p.Catalog,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/plans", s.ListPlans)
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	subscriptions := api.Group("/subscriptions", s.AuthRequired())
	{
		subscriptions.POST("", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionManage), s.Subscribe)
		subscriptions.GET("", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
		subscriptions.GET("/active", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetActiveSubscription)
		subscriptions.GET("/state", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionState)
		subscriptions.PATCH("", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionManage), s.UpgradeSubscription)
		subscriptions.POST("/cancel", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionManage), s.CancelSubscription)
	}

	billing := api.Group("/billing", s.AuthRequired())
	{
		billing.PUT("/payment-method", s.authorize(authorization.ObjectPaymentMethod, authorization.ActionPaymentMethodManage), s.UpdatePaymentMethod)
	}

	admin := api.Group("/admin", s.AuthRequired())
	{
		admin.GET("/accounts/:id/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionViewAny), s.ListAccountSubscriptions)
	}
}
