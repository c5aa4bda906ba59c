package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// RegionHierarchy maps province -> city -> districts.
type RegionHierarchy map[string]map[string][]string

var defaultRegions = RegionHierarchy{
	"北京": {
		"北京": {"朝阳", "海淀", "东城", "西城", "丰台", "石景山", "通州", "昌平", "大兴", "顺义", "房山", "门头沟", "怀柔", "平谷", "密云", "延庆", "亦庄"},
	},
	"上海": {
		"上海": {"浦东", "静安", "徐汇", "杨浦", "松江", "闵行", "黄浦", "长宁", "普陀"},
	},
	"广东": {
		"广州": {"天河", "越秀", "海珠"},
		"深圳": {"南山", "福田", "罗湖"},
	},
}

var (
	regions    = defaultRegions
	regionLock sync.RWMutex
)

// LoadRegions replaces the built-in region hierarchy with the contents of a JSON file
func LoadRegions(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read regions file: %w", err)
	}

	var loaded RegionHierarchy
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse regions file: %w", err)
	}
	if len(loaded) == 0 {
		return fmt.Errorf("regions file %s is empty", path)
	}

	regionLock.Lock()
	regions = loaded
	regionLock.Unlock()
	return nil
}

// GetProvinces returns all provinces in sorted order
func GetProvinces() []string {
	regionLock.RLock()
	defer regionLock.RUnlock()

	provinces := make([]string, 0, len(regions))
	for p := range regions {
		provinces = append(provinces, p)
	}
	sort.Strings(provinces)
	return provinces
}

// GetCities returns the cities of a province in sorted order
func GetCities(province string) []string {
	regionLock.RLock()
	defer regionLock.RUnlock()

	cities := make([]string, 0, len(regions[province]))
	for c := range regions[province] {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	return cities
}

// GetDistricts returns the districts of a city
func GetDistricts(province, city string) []string {
	regionLock.RLock()
	defer regionLock.RUnlock()

	districts := regions[province][city]
	out := make([]string, len(districts))
	copy(out, districts)
	return out
}

// GetRegions returns a copy of the whole hierarchy
func GetRegions() RegionHierarchy {
	regionLock.RLock()
	defer regionLock.RUnlock()

	out := make(RegionHierarchy, len(regions))
	for p, cities := range regions {
		out[p] = make(map[string][]string, len(cities))
		for c, districts := range cities {
			out[p][c] = append([]string(nil), districts...)
		}
	}
	return out
}
