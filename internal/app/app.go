package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	ginadapter "github.com/steyzi/server/internal/adapter/inbound/gin"
	"github.com/steyzi/server/internal/adapter/outbound/entitlement"
	"github.com/steyzi/server/internal/domain/billing"
	"github.com/steyzi/server/internal/infra/cache"
	"github.com/steyzi/server/internal/infra/persistence"
	"github.com/steyzi/server/internal/infra/persistence/entity"
	"github.com/steyzi/server/internal/job/sweeper"
	sharedcache "github.com/steyzi/server/internal/shared/cache"
	"github.com/steyzi/server/internal/shared/config"
	"github.com/steyzi/server/internal/shared/database"
	"github.com/steyzi/server/internal/shared/logger"
	"github.com/steyzi/server/internal/shared/metrics"
	"github.com/steyzi/server/internal/shared/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Application wires the billing service together: database, cache, outbound
// entitlement client, domain service, HTTP router and the expiry sweeper.
type Application struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *gorm.DB
	redis   redis.UniversalClient
	ledger  *cache.SyncingLedger
	router  *gin.Engine
	sweeper *sweeper.Sweeper
}

// New builds the application from configuration.
func New(cfg *config.Config) (*Application, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}

	redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	m := metrics.New("steyzi")

	repo := persistence.NewBillingRepository(db)
	if err := repo.SeedPlans(context.Background(), defaultPlans()); err != nil {
		return nil, fmt.Errorf("seed plans: %w", err)
	}

	ledger := cache.NewSyncingLedger(cache.NewUsageLedger(redisClient, m), repo, log, 1000)
	entitlementClient := entitlement.NewClient(&cfg.Entitlement, m, log)

	domain := billing.NewBillingDomain(repo, ledger, entitlementClient, log)

	app := &Application{
		cfg:    cfg,
		logger: log,
		db:     db,
		redis:  redisClient,
		ledger: ledger,
		router: buildRouter(cfg, domain, m, log),
	}

	if cfg.Sweep.Enabled {
		app.sweeper = sweeper.New(domain, &cfg.Sweep, m, log)
		if err := app.sweeper.Start(); err != nil {
			return nil, fmt.Errorf("start sweeper: %w", err)
		}
	}

	return app, nil
}

// Router returns the HTTP handler.
func (a *Application) Router() http.Handler {
	return a.router
}

// Stop releases application resources.
func (a *Application) Stop() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	a.ledger.Close()
	if err := sharedcache.Close(a.redis); err != nil {
		a.logger.Warn("close redis", zap.Error(err))
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&entity.PlanEntity{}, &entity.SubscriptionEntity{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func buildRouter(cfg *config.Config, domain *billing.Domain, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(middleware.Metrics(m))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	billingHandler := ginadapter.NewBillingHandler(domain, m)
	quotaHandler := ginadapter.NewQuotaHandler(domain, m)

	v1 := router.Group("/api/v1")

	// Plan catalog is public: the pricing page renders before signup.
	v1.GET("/plans", billingHandler.ListPlans)
	v1.GET("/plans/:id", billingHandler.GetPlan)
	v1.POST("/plans/preview-cost", billingHandler.PreviewCost)

	authed := v1.Group("")
	authed.Use(middleware.Auth(middleware.NewJWTValidator(cfg.Auth.JWTSecret)))
	{
		authed.GET("/subscription", billingHandler.GetSubscription)
		authed.POST("/subscription", billingHandler.SelectPlan)
		authed.DELETE("/subscription", billingHandler.CancelSubscription)
		authed.POST("/subscription/switch", billingHandler.SwitchPlan)
		authed.GET("/subscription/history", billingHandler.GetSubscriptionHistory)
		authed.POST("/subscription/renewal", billingHandler.HandleRenewal)

		authed.POST("/quota/check", quotaHandler.CheckCapacity)
		authed.GET("/quota/status", quotaHandler.QuotaStatus)
		authed.POST("/quota/top-up", quotaHandler.ConfirmTopUp)
		authed.POST("/quota/usage", quotaHandler.RecordUsageDelta)
		authed.POST("/quota/bulk-upload-check", quotaHandler.CheckBulkUpload)
	}

	return router
}
