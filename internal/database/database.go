// Package database stores the property universe in SQLite.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"housefinder/server/internal/models"
)

// PropertyRecord is the stored form of a listing. Rows are read back in
// insertion order, which is the universe order.
type PropertyRecord struct {
	ID           string `gorm:"primaryKey"`
	Title        string `gorm:"not null"`
	Category     string `gorm:"index"`
	LandlordType string
	Price        float64 `gorm:"index"`
	Area         float64
	Layout       string
	Location     string
	Address      string
	Tags         []string     `gorm:"serializer:json"`
	LeaseTerms   []string     `gorm:"serializer:json"`
	Latitude     float64      `gorm:"index:idx_properties_coordinates"`
	Longitude    float64      `gorm:"index:idx_properties_coordinates"`
	Units        []UnitRecord `gorm:"foreignKey:PropertyID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PropertyRecord) TableName() string {
	return "properties"
}

// UnitRecord is a sub-unit of a multi-unit listing.
type UnitRecord struct {
	PropertyID string `gorm:"primaryKey"`
	ID         string `gorm:"primaryKey"`
	Position   int
	Name       string
	Price      float64
	Area       float64
	Layout     string
}

func (UnitRecord) TableName() string {
	return "property_units"
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return open(path + "?_foreign_keys=on&_busy_timeout=5000")
}

// NewTestDB opens a private in-memory database.
func NewTestDB() (*gorm.DB, error) {
	return open(fmt.Sprintf("file:test-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano()))
}

func open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// UpsertProperties inserts or replaces a batch of properties and their units.
func UpsertProperties(tx *gorm.DB, batch []*models.Property) error {
	if len(batch) == 0 {
		return nil
	}

	records := make([]PropertyRecord, 0, len(batch))
	ids := make([]string, 0, len(batch))
	var units []UnitRecord
	for _, p := range batch {
		rec := ToRecord(p)
		units = append(units, rec.Units...)
		rec.Units = nil
		records = append(records, rec)
		ids = append(ids, p.ID)
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "category", "landlord_type", "price", "area", "layout",
			"location", "address", "tags", "lease_terms", "latitude", "longitude", "updated_at",
		}),
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("failed to upsert properties: %w", err)
	}

	if err := tx.Where("property_id IN ?", ids).Delete(&UnitRecord{}).Error; err != nil {
		return fmt.Errorf("failed to clear units: %w", err)
	}
	if len(units) > 0 {
		if err := tx.Create(&units).Error; err != nil {
			return fmt.Errorf("failed to insert units: %w", err)
		}
	}
	return nil
}

// LoadProperties returns every stored property in insertion order.
func LoadProperties(db *gorm.DB) ([]models.Property, error) {
	var records []PropertyRecord
	err := db.
		Preload("Units", func(tx *gorm.DB) *gorm.DB { return tx.Order("position") }).
		Order("rowid").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}

	out := make([]models.Property, len(records))
	for i := range records {
		out[i] = records[i].ToModel()
	}
	return out, nil
}

func CountProperties(db *gorm.DB) (int64, error) {
	var n int64
	if err := db.Model(&PropertyRecord{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count properties: %w", err)
	}
	return n, nil
}

// DeleteProperty removes a property and its units.
func DeleteProperty(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("property_id = ?", id).Delete(&UnitRecord{}).Error; err != nil {
			return err
		}
		return tx.Delete(&PropertyRecord{ID: id}).Error
	})
}

// IsBusy reports whether err is a transient SQLite lock error.
func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func ToRecord(p *models.Property) PropertyRecord {
	rec := PropertyRecord{
		ID:           p.ID,
		Title:        p.Title,
		Category:     string(p.Category),
		LandlordType: string(p.LandlordType),
		Price:        p.Price,
		Area:         p.Area,
		Layout:       p.Layout,
		Location:     p.Location,
		Address:      p.Address,
		Tags:         p.Tags,
		LeaseTerms:   p.LeaseTerms,
		Latitude:     p.Coordinates.Lat,
		Longitude:    p.Coordinates.Lng,
	}
	for i, u := range p.Units {
		id := u.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", p.ID, i+1)
		}
		rec.Units = append(rec.Units, UnitRecord{
			PropertyID: p.ID,
			ID:         id,
			Position:   i,
			Name:       u.Name,
			Price:      u.Price,
			Area:       u.Area,
			Layout:     u.Layout,
		})
	}
	return rec
}

func (r *PropertyRecord) ToModel() models.Property {
	p := models.Property{
		ID:           r.ID,
		Title:        r.Title,
		Category:     models.Category(r.Category),
		LandlordType: models.LandlordType(r.LandlordType),
		Price:        r.Price,
		Area:         r.Area,
		Layout:       r.Layout,
		Location:     r.Location,
		Address:      r.Address,
		Tags:         r.Tags,
		LeaseTerms:   r.LeaseTerms,
		Coordinates:  models.Point{Lat: r.Latitude, Lng: r.Longitude},
	}
	for _, u := range r.Units {
		p.Units = append(p.Units, models.SubUnit{
			ID:     u.ID,
			Name:   u.Name,
			Price:  u.Price,
			Area:   u.Area,
			Layout: u.Layout,
		})
	}
	return p
}
