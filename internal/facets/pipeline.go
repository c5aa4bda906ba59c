// Package facets filters a base set of properties by the manually chosen
// facets of a search session.
//
// Commute-time and lease-term facets are recorded but not evaluated here: no
// local travel-time estimate exists, so they are forwarded to the external
// matcher and act as pass-through criteria.
package facets

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"housefinder/server/config"
	"housefinder/server/internal/models"
)

type predicate func(p *models.Property) bool

// Apply returns the properties of base that pass every active facet, in base
// order. base is not modified.
func Apply(base []models.Property, f Facets) []models.Property {
	preds := compile(f.Normalize())

	out := make([]models.Property, 0, len(base))
	for i := range base {
		if matchesAll(&base[i], preds) {
			out = append(out, base[i])
		}
	}
	return out
}

// Matches reports whether a single property passes the facets.
func Matches(p *models.Property, f Facets) bool {
	return matchesAll(p, compile(f.Normalize()))
}

func matchesAll(p *models.Property, preds []predicate) bool {
	for _, pred := range preds {
		if !pred(p) {
			return false
		}
	}
	return true
}

// compile builds the predicates in evaluation order: region, category, price.
func compile(f Facets) []predicate {
	var preds []predicate

	if f.Province != config.All {
		province := normalize(f.Province)
		preds = append(preds, func(p *models.Property) bool {
			return strings.Contains(normalize(p.Location), province)
		})
	}
	// Municipalities share their name with the province; filtering twice
	// would be redundant.
	if f.City != config.All && f.City != f.Province {
		city := normalize(f.City)
		preds = append(preds, func(p *models.Property) bool {
			return strings.Contains(normalize(p.Location), city)
		})
	}
	if f.District != config.All {
		district := normalize(f.District)
		preds = append(preds, func(p *models.Property) bool {
			return strings.Contains(normalize(p.Location), district) ||
				strings.Contains(normalize(p.Address), district)
		})
	}

	if f.Category != config.All {
		category := models.Category(f.Category)
		preds = append(preds, func(p *models.Property) bool {
			return p.Category == category
		})
	}

	if r := f.PriceRange(); !r.IsUnbounded() {
		preds = append(preds, func(p *models.Property) bool {
			return matchesPrice(p, r)
		})
	}

	return preds
}

// matchesPrice accepts the headline price, or for multi-unit listings whose
// headline is only a starting price, any unit price.
func matchesPrice(p *models.Property, r PriceRange) bool {
	if r.Contains(p.Price) {
		return true
	}
	if !p.IsMultiUnit() {
		return false
	}
	for _, u := range p.Units {
		if r.Contains(u.Price) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return norm.NFKC.String(s)
}

// Stats summarizes a display set.
type Stats struct {
	Total        int `json:"total"`
	AveragePrice int `json:"average_price"`
}

// Summarize counts the properties and rounds their average headline price.
func Summarize(props []models.Property) Stats {
	if len(props) == 0 {
		return Stats{}
	}

	var sum float64
	for _, p := range props {
		sum += p.Price
	}
	return Stats{
		Total:        len(props),
		AveragePrice: int(math.Round(sum / float64(len(props)))),
	}
}
