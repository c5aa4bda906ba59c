package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"housefinder/server/config"
	"housefinder/server/internal/database"
	"housefinder/server/internal/models"
	"housefinder/server/internal/processor"
)

func main() {
	input := flag.String("input", "", "JSON file with an array of listings")
	remove := flag.String("delete", "", "Comma separated ids of listings to remove")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if *input == "" && *remove == "" {
		logger.Fatal("Nothing to do, use -input and/or -delete")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	if err := database.MigrateSchema(db); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	importer := processor.NewImporter(db, cfg, logger)

	if *remove != "" {
		var ids []string
		for _, id := range strings.Split(*remove, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		if err := importer.Remove(ctx, ids); err != nil {
			logger.WithError(err).Fatal("Failed to remove listings")
		}
	}

	if *input != "" {
		data, err := os.ReadFile(*input)
		if err != nil {
			logger.WithError(err).Fatal("Failed to read listings")
		}

		var properties []models.Property
		if err := json.Unmarshal(data, &properties); err != nil {
			logger.WithError(err).Fatal("Failed to parse listings")
		}

		result, err := importer.Import(ctx, properties)
		if err != nil {
			logger.WithError(err).Fatal("Import failed")
		}
		logger.WithFields(logrus.Fields{
			"imported": result.Imported,
			"skipped":  result.Skipped,
			"batches":  result.Batches,
		}).Info("Listings imported")
	}

	total, err := database.CountProperties(db)
	if err != nil {
		logger.WithError(err).Error("Failed to count properties")
	}
	logger.WithField("total", total).Info("Store updated")
}
