package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/cablesync/internal/config"
	"github.com/jmehdipour/cablesync/internal/http/middleware"
	"github.com/jmehdipour/cablesync/internal/logger"
	"github.com/jmehdipour/cablesync/internal/metrics"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmehdipour/cablesync/internal/service/customers"
	"github.com/jmehdipour/cablesync/internal/session"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct{ e *echo.Echo }

// customerService is everything the handlers need from the lifecycle service.
type customerService interface {
	selfService
	adminService
	subscriptionCanceler
}

type deps struct {
	customers customerService
	sessions  sessionStore
	admins    repository.AdminsRepository
	history   repository.HistoryRepository
	redis     *redis.Client
}

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	customersRepo := repository.NewCustomersRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	adminsRepo := repository.NewAdminsRepository(mysqlDB)

	// repos (ClickHouse)
	historyRepo := repository.NewHistoryRepository(clickhouseDB)

	// services
	customerSvc := customers.New(
		mysqlDB,
		customersRepo,
		outboxRepo,
		customers.WithTopic(cfg.Kafka.Topic),
		customers.WithPlaceholderEmail(cfg.Admin.PlaceholderEmail),
		customers.WithDefaultOrder(cfg.Admin.DefaultOrder),
	)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e := newRouter(cfg, deps{
		customers: customerSvc,
		sessions:  session.NewStore(rds, cfg.Session.KeyPrefix, cfg.Session.TTL),
		admins:    adminsRepo,
		history:   historyRepo,
		redis:     rds,
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{e: e}
}

func newRouter(cfg config.Config, d deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = newRequestValidator()
	e.Use(echoMid.Recover(), echoMid.Logger())
	if len(cfg.HTTP.CORSOrigins) > 0 {
		e.Use(echoMid.CORSWithConfig(echoMid.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSOrigins,
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
		}))
	}

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// payment provider callback, unauthenticated
	if cfg.Webhook.Secret == "" {
		logger.Log.Warn("webhook signature verification disabled", zap.String("path", cfg.Webhook.Path))
	}
	e.POST(cfg.Webhook.Path, paymentWebhookHandler(d.customers, webhookConfig{
		Secret:          cfg.Webhook.Secret,
		SignatureHeader: cfg.Webhook.SignatureHeader,
	}))

	// middlewares
	authMW := middleware.SessionMiddleware(d.sessions)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          d.redis,
		RPS:            cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "rl:id:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	e.POST("/v1/sessions", createSessionHandler(d.sessions, d.admins, cfg.Session.ProxySecret))

	v1 := e.Group("/v1", authMW, rlMW)
	v1.DELETE("/sessions", deleteSessionHandler(d.sessions))
	v1.GET("/me", meHandler(d.customers))
	v1.POST("/me/checkout", checkoutHandler(d.customers))

	admin := v1.Group("/admin", middleware.RequireAdmin())
	admin.GET("/customers", listCustomersHandler(d.customers))
	admin.GET("/customers/:id", getCustomerHandler(d.customers))
	admin.POST("/customers/:id/activate", activateHandler(d.customers))
	admin.POST("/customers/:id/end-service", endServiceHandler(d.customers))
	admin.POST("/customers/:id/process-cancellation", processCancellationHandler(d.customers))
	admin.DELETE("/customers/:id", deleteCustomerHandler(d.customers))
	admin.GET("/customers/:id/history", historyHandler(d.history))

	return e
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
