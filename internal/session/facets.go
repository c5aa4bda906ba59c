package session

import (
	"strings"

	"housefinder/server/config"
	"housefinder/server/internal/facets"
)

// Preset is a canned requirement offered as a one-click chip.
type Preset struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

var PresetRequirements = []Preset{
	{Label: "💰 预算有限", Text: "我的预算在 5000元以内，希望性价比高。"},
	{Label: "🛏️ 两居室", Text: "我需要两室一厅的房子，适合合租。"},
	{Label: "🚇 地铁房", Text: "希望距离地铁站步行10分钟以内。"},
	{Label: "📅 短租", Text: "我只需要租3个月，支持短租。"},
}

func (s *Session) updateFacets(fn func(f *facets.Facets)) facets.Facets {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.facets)
	s.facets = s.facets.Normalize()
	s.refresh()
	return s.facets
}

// SetFacets replaces every facet at once.
func (s *Session) SetFacets(f facets.Facets) facets.Facets {
	return s.updateFacets(func(cur *facets.Facets) { *cur = f })
}

// SetProvince selects a province and clears the city and district below it.
func (s *Session) SetProvince(province string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) {
		f.Province = province
		f.City = config.All
		f.District = config.All
	})
}

// SetCity selects a city and clears the district below it.
func (s *Session) SetCity(city string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) {
		f.City = city
		f.District = config.All
	})
}

func (s *Session) SetDistrict(district string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) { f.District = district })
}

func (s *Session) SetCategory(category string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) { f.Category = category })
}

// SetPriceBracket selects a named bracket and drops custom bounds.
func (s *Session) SetPriceBracket(label string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) {
		f.PriceBracket = label
		f.CustomMin = -1
		f.CustomMax = -1
	})
}

// SetCustomPrice sets explicit bounds; -1 leaves a side open.
func (s *Session) SetCustomPrice(lo, hi float64) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) {
		if lo >= 0 && hi >= 0 && lo > hi {
			lo, hi = hi, lo
		}
		f.CustomMin = lo
		f.CustomMax = hi
	})
}

func (s *Session) SetCommute(label string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) { f.Commute = label })
}

func (s *Session) SetLeaseTerm(label string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) { f.LeaseTerm = label })
}

func (s *Session) SetRequirements(text string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) { f.Requirements = text })
}

// AddPresetRequirement appends text to the free-text requirements.
func (s *Session) AddPresetRequirement(text string) facets.Facets {
	return s.updateFacets(func(f *facets.Facets) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if f.Requirements == "" {
			f.Requirements = text
			return
		}
		f.Requirements += " " + text
	})
}
