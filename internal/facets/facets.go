package facets

import (
	"regexp"
	"strconv"

	"housefinder/server/config"
)

// PriceRange bounds a price; a negative side is unbounded.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Unbounded is the range that accepts every price.
var Unbounded = PriceRange{Min: -1, Max: -1}

func (r PriceRange) IsUnbounded() bool {
	return r.Min < 0 && r.Max < 0
}

// Contains reports whether price lies within the range, bounds included.
func (r PriceRange) Contains(price float64) bool {
	if r.Min >= 0 && price < r.Min {
		return false
	}
	if r.Max >= 0 && price > r.Max {
		return false
	}
	return true
}

// Facets holds the independent filter criteria of a search session.
type Facets struct {
	Province     string  `json:"province"`
	City         string  `json:"city"`
	District     string  `json:"district"`
	Category     string  `json:"category"`
	PriceBracket string  `json:"price_bracket"`
	CustomMin    float64 `json:"custom_min"`
	CustomMax    float64 `json:"custom_max"`
	Commute      string  `json:"commute"`
	LeaseTerm    string  `json:"lease_term"`
	Requirements string  `json:"requirements"`
}

// Default returns facets that accept every property.
func Default() Facets {
	return Facets{
		Province:     config.All,
		City:         config.All,
		District:     config.All,
		Category:     config.All,
		PriceBracket: config.All,
		CustomMin:    -1,
		CustomMax:    -1,
		Commute:      config.Unlimited,
		LeaseTerm:    config.Unlimited,
	}
}

// Normalize replaces empty selections with their "all" values.
func (f Facets) Normalize() Facets {
	def := Default()
	if f.Province == "" {
		f.Province = def.Province
	}
	if f.City == "" {
		f.City = def.City
	}
	if f.District == "" {
		f.District = def.District
	}
	if f.Category == "" {
		f.Category = def.Category
	}
	if f.PriceBracket == "" {
		f.PriceBracket = def.PriceBracket
	}
	if f.Commute == "" {
		f.Commute = def.Commute
	}
	if f.LeaseTerm == "" {
		f.LeaseTerm = def.LeaseTerm
	}
	if f.CustomMin < 0 {
		f.CustomMin = -1
	}
	if f.CustomMax < 0 {
		f.CustomMax = -1
	}
	return f
}

func (f Facets) IsDefault() bool {
	return f == Default()
}

// HasRegion reports whether any region level is selected.
func (f Facets) HasRegion() bool {
	return f.Province != config.All || f.City != config.All || f.District != config.All
}

// HasCustomPrice reports whether explicit price bounds are set. They take
// precedence over the named bracket.
func (f Facets) HasCustomPrice() bool {
	return f.CustomMin >= 0 || f.CustomMax >= 0
}

// HasPrice reports whether any price criterion is active.
func (f Facets) HasPrice() bool {
	return f.HasCustomPrice() || f.PriceBracket != config.All
}

// PriceRange resolves the active price criterion.
func (f Facets) PriceRange() PriceRange {
	if f.HasCustomPrice() {
		return PriceRange{Min: f.CustomMin, Max: f.CustomMax}
	}
	if f.PriceBracket == config.All || f.PriceBracket == "" {
		return Unbounded
	}
	r, ok := ResolveBracket(f.PriceBracket)
	if !ok {
		return Unbounded
	}
	return r
}

var (
	bracketBetween = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)\s*元\s*$`)
	bracketBelow   = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*元以下\s*$`)
	bracketAbove   = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*元以上\s*$`)
)

// ResolveBracket maps a named price bracket to its range. Labels missing from
// the fixed table are parsed when they follow the "A-B元", "A元以下" or
// "A元以上" forms.
func ResolveBracket(label string) (PriceRange, bool) {
	for _, b := range config.PriceBrackets {
		if b.Label == label {
			return PriceRange{Min: b.Min, Max: b.Max}, true
		}
	}

	if m := bracketBetween.FindStringSubmatch(label); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		hi, _ := strconv.ParseFloat(m[2], 64)
		if lo > hi {
			lo, hi = hi, lo
		}
		return PriceRange{Min: lo, Max: hi}, true
	}
	if m := bracketBelow.FindStringSubmatch(label); m != nil {
		hi, _ := strconv.ParseFloat(m[1], 64)
		return PriceRange{Min: 0, Max: hi}, true
	}
	if m := bracketAbove.FindStringSubmatch(label); m != nil {
		lo, _ := strconv.ParseFloat(m[1], 64)
		return PriceRange{Min: lo, Max: -1}, true
	}
	return Unbounded, false
}
