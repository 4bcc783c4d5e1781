// api/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"beacon/api/config"
	"beacon/api/database"
	"beacon/api/handlers"
	"beacon/api/insights"
	"beacon/api/middleware"
	"beacon/api/observability"
	"beacon/api/store"
	"beacon/api/tenant"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	cfg, errs := config.Load(*configFile)
	log := newLogger(cfg)
	if len(errs) > 0 {
		for _, err := range errs {
			log.WithError(err).Error("invalid configuration")
		}
		log.Fatal("aborting on configuration errors")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	// --- Tenants (PostgreSQL) ---
	dbClient, err := database.NewPostgresDB(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize PostgreSQL database")
	}
	defer dbClient.Close()

	// --- Events (ClickHouse) ---
	chClient, err := database.NewClickHouseDB(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize ClickHouse database")
	}
	defer chClient.Close()

	tenantStore := store.NewTenantStore(dbClient.DB)
	analyticsStore := store.NewAnalyticsStore(chClient.DB, metrics)

	service := insights.NewService(
		tenant.NewRouter(tenantStore),
		analyticsStore,
		insights.Options{
			SessionInactivityThreshold: cfg.SessionInactivityThreshold,
			SessionMaxEvents:           cfg.SessionMaxEvents,
			NewJoinersLimit:            cfg.NewJoinersLimit,
			ActiveNowWindow:            cfg.ActiveNowWindow,
		},
		log,
		metrics,
	)
	insightsHandlers := handlers.NewInsightsHandlers(service, log)

	scheduler, err := scheduleRefresh(cfg, analyticsStore, metrics, log)
	if err != nil {
		log.WithError(err).Fatal("failed to schedule identified users refresh")
	}
	scheduler.Start()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log, metrics))
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(observability.Handler(registry)))

	api := r.Group("/api")
	protected := api.Group("/insights")
	protected.Use(middleware.AuthRequired([]byte(cfg.JWTSecret), log))
	{
		protected.GET("/overview", insightsHandlers.GetOverview)
		protected.GET("/sessions/:identifyId", insightsHandlers.GetSessions)
		protected.GET("/new-joiners", insightsHandlers.GetNewJoiners)
		protected.GET("/errors/daily", insightsHandlers.GetDailyErrors)
		protected.GET("/active-now", insightsHandlers.GetActiveNow)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("insights API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("insights API failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	<-scheduler.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("server exiting")
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	env, level := config.DefaultEnv, config.DefaultLogLevel
	if cfg != nil {
		env, level = cfg.Env, cfg.LogLevel
	}
	if env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// scheduleRefresh registers the identified users projection refresh. The
// projection is eventually consistent, so failures are only logged.
func scheduleRefresh(cfg *config.Config, s *store.AnalyticsStore, metrics *observability.Metrics, log *logrus.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(cfg.IdentifiedUsersRefreshSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		err := s.RefreshIdentifiedUsers(ctx, cfg.IdentifiedUsersView)
		metrics.ObserveRefresh(err)
		if err != nil {
			log.WithError(err).Warn("identified users refresh failed")
			return
		}
		log.Debug("identified users refreshed")
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", cfg.IdentifiedUsersRefreshSchedule, err)
	}
	return c, nil
}
