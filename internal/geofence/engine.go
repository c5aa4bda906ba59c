// Package geofence selects properties inside a drawn circle.
package geofence

import (
	"fmt"

	"housefinder/server/internal/geometry"
	"housefinder/server/internal/models"
)

// Circle is a finalized geofence.
type Circle struct {
	Center models.Point `json:"center"`
	Radius float64      `json:"radius"`
}

// Contains reports whether p lies within the circle, boundary included.
func (c Circle) Contains(p models.Point) bool {
	return geometry.Distance(c.Center, p) <= c.Radius
}

// Select returns the candidates whose great-circle distance to center is at
// most radiusMeters, in candidate order. A non-positive radius selects nothing.
func Select(center models.Point, radiusMeters float64, candidates []models.Property) []models.Property {
	if radiusMeters <= 0 || len(candidates) == 0 {
		return []models.Property{}
	}

	circle := Circle{Center: center, Radius: radiusMeters}
	matched := make([]models.Property, 0, len(candidates))
	for _, p := range candidates {
		if circle.Contains(p.Coordinates) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Summary describes a geofence result for display.
func Summary(radiusMeters float64, count int) string {
	return fmt.Sprintf("已筛选出半径 %.2fkm 内的 %d 套房源。", radiusMeters/1000, count)
}
