package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/audit"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/config"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/handlers"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/housekeeping"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/middleware"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/pacer"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/refresh"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/upstream"
)

const authStateDir = "/var/run/bws-cache/auth-state"

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	cfg := config.NewConfig()

	if cfg.Server.IsProd() {
		logger.SetLevel(logrus.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	} else {
		logger.SetLevel(logrus.DebugLevel)
		gin.SetMode(gin.DebugMode)
	}
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(level)
	}

	log := logger.WithField("service", "bws-cache")
	log.Info("starting bws-cache service")

	if cfg.GCP.ProjectID == "" {
		log.Fatal("GCP_PROJECT_ID is required")
	}

	db, err := initDatabase(cfg, log)
	if err != nil {
		log.WithError(err).Warn("audit database unavailable, continuing without the audit trail")
		db = nil
	}

	var auditRepo audit.Repository
	if db != nil {
		auditRepo = audit.NewRepository(db)
	}

	reg := registry.New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		return upstream.NewGCPAdapter(cfg.GCP.ProjectID, upstream.OrgFingerprint(string(fp)), log.WithField("tenant", string(fp)))
	}, log)

	wireAuditHooks(reg, auditRepo, log)

	p := pacer.New(cfg.Cache.RequestInterval, log.WithField("component", "pacer"))

	refreshLoop := refresh.New(reg, cfg.Cache.RefreshInterval, log.WithField("component", "refresh"))
	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	go refreshLoop.Run(refreshCtx)

	sweeper := housekeeping.New(authStateDir, reg, log)
	startHousekeeping(refreshCtx, sweeper, log)

	secretHandler := handlers.NewSecretHandler(p, &cfg.Cache, log)
	healthHandler := handlers.NewHealthHandler(db)
	housekeepingHandler := handlers.NewHousekeepingHandler(sweeper, log)
	streamHandler := handlers.NewStreamHandler(log)

	router := setupRouter(cfg, reg, secretHandler, healthHandler, housekeepingHandler, streamHandler, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancelRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server stopped")
}

func initDatabase(cfg *config.Config, log *logrus.Entry) (*gorm.DB, error) {
	var gormLog gormlogger.Interface
	if cfg.Server.IsProd() {
		gormLog = gormlogger.Default.LogMode(gormlogger.Silent)
	} else {
		gormLog = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.AutoMigrate(&audit.EventLog{}); err != nil {
		return nil, fmt.Errorf("failed to run audit migrations: %w", err)
	}

	log.Info("audit database connection established")
	return db, nil
}

// wireAuditHooks feeds registry lifecycle events into the operational
// audit trail. Hooks run outside the registry lock, so a slow or failed
// database write never blocks other tenants' lookups; the request that
// registers a tenant waits for its own write.
func wireAuditHooks(reg *registry.Registry, repo audit.Repository, log *logrus.Entry) {
	if repo == nil {
		return
	}
	reg.OnRegister(func(fp secretmeta.Key) {
		if err := repo.Record(context.Background(), &audit.EventLog{Tenant: string(fp), Event: audit.EventTenantRegistered}); err != nil {
			log.WithError(err).Warn("failed to record tenant-registered audit event")
		}
	})
	reg.OnEvict(func(fp secretmeta.Key) {
		if err := repo.Record(context.Background(), &audit.EventLog{Tenant: string(fp), Event: audit.EventTenantEvicted}); err != nil {
			log.WithError(err).Warn("failed to record tenant-evicted audit event")
		}
	})
}

func startHousekeeping(ctx context.Context, sweeper *housekeeping.Sweeper, log *logrus.Entry) {
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := sweeper.Sweep(ctx); err != nil {
					log.WithError(err).Warn("scheduled housekeeping sweep failed")
				}
			}
		}
	}()
}

func setupRouter(cfg *config.Config, reg *registry.Registry, secretHandler *handlers.SecretHandler, healthHandler *handlers.HealthHandler, housekeepingHandler *handlers.HousekeepingHandler, streamHandler *handlers.StreamHandler, log *logrus.Entry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))

	router.GET("/healthcheck", healthHandler.Healthcheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stats", secretHandler.Stats(reg))

	tenantScoped := router.Group("/")
	tenantScoped.Use(middleware.ResolveTenant(reg, &cfg.Cache))
	{
		tenantScoped.GET("/id/:uuid", secretHandler.GetByID)
		tenantScoped.GET("/key/:key", secretHandler.GetByKey)
		tenantScoped.GET("/reset", secretHandler.Reset)
		tenantScoped.GET("/stream", streamHandler.Stream)
	}

	admin := router.Group("/admin")
	{
		admin.POST("/housekeeping/sweep", housekeepingHandler.Sweep)
	}

	return router
}
