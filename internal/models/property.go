package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Orb converts the point to orb's [lng, lat] ordering.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// PointFromOrb converts an orb point back to lat/lng.
func PointFromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lng: p.Lon()}
}

// Valid reports whether the coordinates are within WGS84 range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%.4f, %.4f", p.Lat, p.Lng)
}

type Category string

const (
	CategoryResidential   Category = "住宅"
	CategoryCityApartment Category = "城市公寓"
	CategoryVillageFlat   Category = "城中村公寓"
	CategoryVilla         Category = "别墅"
	CategoryFactory       Category = "工厂"
	CategoryOffice        Category = "写字楼"
	CategoryShop          Category = "商铺"
	CategoryOther         Category = "其他"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryResidential,
	CategoryCityApartment,
	CategoryVillageFlat,
	CategoryVilla,
	CategoryFactory,
	CategoryOffice,
	CategoryShop,
	CategoryOther,
}

type LandlordType string

const (
	LandlordIndividual LandlordType = "INDIVIDUAL"
	LandlordCorporate  LandlordType = "CORPORATE"
)

// SubUnit is an independently priced unit inside a multi-unit listing.
type SubUnit struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Area   float64 `json:"area"`
	Layout string  `json:"layout"`
}

// Property is an immutable rental listing. For corporate landlords Price and
// Area are the starting values across Units.
type Property struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Category     Category     `json:"category"`
	LandlordType LandlordType `json:"landlord_type"`
	Price        float64      `json:"price"`
	Area         float64      `json:"area"`
	Layout       string       `json:"layout"`
	Location     string       `json:"location"`
	Address      string       `json:"address"`
	Tags         []string     `json:"tags,omitempty"`
	LeaseTerms   []string     `json:"lease_terms,omitempty"`
	Coordinates  Point        `json:"coordinates"`
	Units        []SubUnit    `json:"units,omitempty"`
}

// IsMultiUnit reports whether the listing aggregates several rentable units.
func (p *Property) IsMultiUnit() bool {
	return p.LandlordType == LandlordCorporate && len(p.Units) > 0
}

// Destination is a named point used for commute overlays and search queries.
type Destination struct {
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Point   *Point `json:"point,omitempty"`
}

// HasPoint reports whether the destination has resolved coordinates.
func (d *Destination) HasPoint() bool {
	return d != nil && d.Point != nil
}
