// Package geoindex holds the full candidate universe of properties and answers
// spatial and id-set queries over it.
//
// Properties are addressed by their ordinal in the universe, so any set of
// properties can be represented as a roaring bitmap and materialized back in
// universe order.
package geoindex

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"

	"housefinder/server/internal/geofence"
	"housefinder/server/internal/geometry"
	"housefinder/server/internal/models"
)

// CellPrecision is the geohash length used for bucketing (~4.9km cells).
const CellPrecision = 5

var (
	ErrDuplicateID        = errors.New("duplicate property id")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

type Index struct {
	properties []models.Property
	ordinals   map[string]uint32
	cells      map[string]*roaring.Bitmap
}

// New builds an index over properties, keeping their order.
func New(properties []models.Property) (*Index, error) {
	ix := &Index{
		properties: make([]models.Property, len(properties)),
		ordinals:   make(map[string]uint32, len(properties)),
		cells:      make(map[string]*roaring.Bitmap),
	}
	copy(ix.properties, properties)

	for i, p := range ix.properties {
		if _, ok := ix.ordinals[p.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
		}
		if !p.Coordinates.Valid() {
			return nil, fmt.Errorf("%w: property %s at %s", ErrInvalidCoordinates, p.ID, p.Coordinates)
		}

		ordinal := uint32(i)
		ix.ordinals[p.ID] = ordinal

		cell := geohash.EncodeWithPrecision(p.Coordinates.Lat, p.Coordinates.Lng, CellPrecision)
		bm, ok := ix.cells[cell]
		if !ok {
			bm = roaring.New()
			ix.cells[cell] = bm
		}
		bm.Add(ordinal)
	}

	return ix, nil
}

func (ix *Index) Len() int {
	return len(ix.properties)
}

// All returns the universe in its original order.
func (ix *Index) All() []models.Property {
	out := make([]models.Property, len(ix.properties))
	copy(out, ix.properties)
	return out
}

func (ix *Index) Get(id string) (models.Property, bool) {
	ordinal, ok := ix.ordinals[id]
	if !ok {
		return models.Property{}, false
	}
	return ix.properties[ordinal], true
}

// Ordinals returns the set of known ids. Unknown ids are ignored.
func (ix *Index) Ordinals(ids []string) *roaring.Bitmap {
	bm := roaring.New()
	for _, id := range ids {
		if ordinal, ok := ix.ordinals[id]; ok {
			bm.Add(ordinal)
		}
	}
	return bm
}

// OrdinalsOf returns the set of the given properties that belong to the universe.
func (ix *Index) OrdinalsOf(properties []models.Property) *roaring.Bitmap {
	bm := roaring.New()
	for _, p := range properties {
		if ordinal, ok := ix.ordinals[p.ID]; ok {
			bm.Add(ordinal)
		}
	}
	return bm
}

// Subset materializes a set of ordinals in universe order.
func (ix *Index) Subset(bm *roaring.Bitmap) []models.Property {
	out := make([]models.Property, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		ordinal := it.Next()
		if int(ordinal) < len(ix.properties) {
			out = append(out, ix.properties[ordinal])
		}
	}
	return out
}

// Candidates returns the ordinals of every property whose geohash cell
// intersects a bounding box of the circle. It is a superset of the exact
// circle members.
func (ix *Index) Candidates(center models.Point, radiusMeters float64) *roaring.Bitmap {
	result := roaring.New()
	if radiusMeters <= 0 {
		return result
	}

	bounds := geometry.BoundsAround(center, radiusMeters)
	for cell, bm := range ix.cells {
		cb := cellBound(cell)
		for _, b := range bounds {
			if cb.Intersects(b) {
				result.Or(bm)
				break
			}
		}
	}
	return result
}

// Within returns the properties inside the circle in universe order.
func (ix *Index) Within(center models.Point, radiusMeters float64) []models.Property {
	return geofence.Select(center, radiusMeters, ix.Subset(ix.Candidates(center, radiusMeters)))
}

func cellBound(cell string) orb.Bound {
	box := geohash.BoundingBox(cell)
	return orb.Bound{
		Min: orb.Point{box.MinLng, box.MinLat},
		Max: orb.Point{box.MaxLng, box.MaxLat},
	}
}
