// Package processor loads listings into the store in transactional batches.
package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"housefinder/server/config"
	"housefinder/server/internal/database"
	"housefinder/server/internal/models"
)

var ErrInvalidProperty = errors.New("invalid property")

// Transactor runs a function inside a transaction. *gorm.DB implements it.
type Transactor interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// Result summarizes an import run.
type Result struct {
	Imported int
	Skipped  int
	Batches  int
}

// Importer upserts properties in batches with retry logic
type Importer struct {
	db         Transactor
	logger     *logrus.Logger
	batchSize  int
	maxRetries int
	retryDelay time.Duration
}

// NewImporter creates an importer configured from the import section
func NewImporter(db Transactor, cfg *config.Config, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	batchSize := cfg.Import.MaxBatchSize
	if batchSize < 1 {
		batchSize = 100
	}
	maxRetries := cfg.Import.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &Importer{
		db:         db,
		logger:     logger,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		retryDelay: time.Duration(cfg.Import.RetryDelay) * time.Second,
	}
}

// Import validates and stores properties. Invalid properties are skipped;
// the run stops at the first batch that cannot be stored.
func (im *Importer) Import(ctx context.Context, properties []models.Property) (Result, error) {
	var res Result
	batch := make([]*models.Property, 0, im.batchSize)
	seen := make(map[string]struct{}, len(properties))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.processBatch(ctx, batch); err != nil {
			return err
		}
		res.Imported += len(batch)
		res.Batches++
		batch = batch[:0]
		return nil
	}

	for i := range properties {
		p := &properties[i]
		if err := Validate(p); err != nil {
			im.logger.WithError(err).WithField("id", p.ID).Warn("Skipping property")
			res.Skipped++
			continue
		}
		if _, dup := seen[p.ID]; dup {
			im.logger.WithField("id", p.ID).Warn("Skipping duplicate property")
			res.Skipped++
			continue
		}
		seen[p.ID] = struct{}{}

		batch = append(batch, p)
		if len(batch) == im.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	im.logger.WithFields(logrus.Fields{
		"imported": res.Imported,
		"skipped":  res.Skipped,
		"batches":  res.Batches,
	}).Info("Import finished")
	return res, nil
}

// Remove deletes properties and their units by id in one transaction.
// Unknown ids are ignored.
func (im *Importer) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	err := im.transact(ctx, "remove properties", func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := database.DeleteProperty(tx, id); err != nil {
				return fmt.Errorf("failed to delete property %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	im.logger.WithField("count", len(ids)).Info("Removed properties")
	return nil
}

// processBatch handles a single batch with transaction and retry logic.
func (im *Importer) processBatch(ctx context.Context, batch []*models.Property) error {
	err := im.transact(ctx, "process batch", func(tx *gorm.DB) error {
		return database.UpsertProperties(tx, batch)
	})
	if err == nil {
		im.logger.Debugf("Stored batch of %d properties", len(batch))
	}
	return err
}

// transact runs fn in a transaction. Only lock contention is retried.
func (im *Importer) transact(ctx context.Context, what string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= im.maxRetries; attempt++ {
		if attempt > 0 {
			im.logger.Infof("Retrying %s, attempt %d of %d", what, attempt, im.maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(im.retryDelay):
			}
		}

		err = im.db.Transaction(func(tx *gorm.DB) error {
			return fn(tx.WithContext(ctx))
		})
		if err == nil {
			return nil
		}

		im.logger.WithError(err).Errorf("Failed to %s", what)
		if !database.IsBusy(err) {
			return fmt.Errorf("failed to %s: %w", what, err)
		}
	}

	return fmt.Errorf("failed to %s after %d attempts: %w", what, im.maxRetries+1, err)
}

// Validate checks the invariants every stored property must hold.
func Validate(p *models.Property) error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProperty)
	}
	if !p.Coordinates.Valid() || (p.Coordinates.Lat == 0 && p.Coordinates.Lng == 0) {
		return fmt.Errorf("%w: invalid coordinates %s", ErrInvalidProperty, p.Coordinates)
	}
	if p.Price < 0 {
		return fmt.Errorf("%w: negative price", ErrInvalidProperty)
	}
	for _, u := range p.Units {
		if u.Price < 0 {
			return fmt.Errorf("%w: negative unit price", ErrInvalidProperty)
		}
	}
	return nil
}
