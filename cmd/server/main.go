package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"housefinder/server/config"
	"housefinder/server/internal/api"
	"housefinder/server/internal/database"
	"housefinder/server/internal/geocoding"
	"housefinder/server/internal/geoindex"
	"housefinder/server/internal/matcher"
	"housefinder/server/internal/models"
	"housefinder/server/internal/queue"
	"housefinder/server/internal/scheduler"
	"housefinder/server/internal/session"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if level != logrus.DebugLevel && level != logrus.TraceLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.Search.RegionsFile != "" {
		if err := config.LoadRegions(cfg.Search.RegionsFile); err != nil {
			logger.WithError(err).Fatal("Failed to load regions")
		}
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	logger.Info("Running database migrations...")
	if err := database.MigrateSchema(db); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	properties, err := database.LoadProperties(db)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load properties")
	}
	index, err := geoindex.New(properties)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build spatial index")
	}
	logger.WithField("count", index.Len()).Info("Loaded property universe")

	var m matcher.Matcher = matcher.Disabled
	if cfg.Matcher.URL != "" {
		m = matcher.NewClient(matcher.ClientConfig{
			URL:       cfg.Matcher.URL,
			APIKey:    cfg.Matcher.APIKey,
			Timeout:   cfg.Matcher.Timeout,
			RateLimit: cfg.Matcher.RateLimit,
		}, logger)
	} else {
		logger.Warn("No matcher configured, AI search is disabled")
	}

	suggester := geocoding.NewSuggester(geocoding.Config{
		URL:          cfg.Geocoder.URL,
		CountryCodes: cfg.Geocoder.CountryCodes,
		CacheDir:     cfg.Geocoder.CacheDir,
		RateLimit:    cfg.Geocoder.RateLimit,
	}, logger)

	searches := queue.NewSearchQueue(cfg.Search.QueueSize, logger)
	searches.Subscribe(func(job queue.Job, err error) {
		entry := logger.WithField("session", job.Key)
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("Search job finished")
	})
	searches.Start(cfg.Search.Workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := api.NewRegistry(index, cfg.Search.SessionTTL, logger)
	go registry.RunJanitor(ctx, time.Minute)

	refresher := scheduler.NewRefresher(func() ([]models.Property, error) {
		return database.LoadProperties(db)
	}, registry, cfg.Search.RefreshInterval, logger)
	refresher.Start()

	handler := api.NewHandler(registry, session.NewRunner(m, searches, logger), suggester, logger)
	server := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: api.NewRouter(handler, cfg.HTTP.AllowedOrigins),
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()
	refresher.Stop()
	if err := searches.Close(); err != nil {
		logger.WithError(err).Error("Failed to close search queue")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Info("Server stopped")
}
