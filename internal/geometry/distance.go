package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"housefinder/server/internal/models"
)

// boundEpsilon widens bounds in degrees to absorb rounding.
const boundEpsilon = 1e-9

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b models.Point) float64 {
	return geo.DistanceHaversine(a.Orb(), b.Orb())
}

// BoundsAround returns bounding boxes that together contain every point
// within radius meters of center. A box crossing the antimeridian is split in
// two, and a circle reaching a pole spans every longitude.
func BoundsAround(center models.Point, radius float64) []orb.Bound {
	if radius <= 0 {
		return []orb.Bound{{Min: center.Orb(), Max: center.Orb()}}
	}

	// Angular radius on the sphere used by the haversine distance
	delta := radius / orb.EarthRadius
	dLat := delta*180/math.Pi + boundEpsilon

	minLat, maxLat := center.Lat-dLat, center.Lat+dLat
	if minLat <= -90 || maxLat >= 90 {
		return []orb.Bound{{
			Min: orb.Point{-180, math.Max(minLat, -90)},
			Max: orb.Point{180, math.Min(maxLat, 90)},
		}}
	}

	ratio := math.Sin(delta) / math.Cos(center.Lat*math.Pi/180)
	if ratio >= 1 {
		return []orb.Bound{{Min: orb.Point{-180, minLat}, Max: orb.Point{180, maxLat}}}
	}
	dLng := math.Asin(ratio)*180/math.Pi + boundEpsilon
	if dLng >= 180 {
		return []orb.Bound{{Min: orb.Point{-180, minLat}, Max: orb.Point{180, maxLat}}}
	}

	minLng, maxLng := center.Lng-dLng, center.Lng+dLng
	switch {
	case minLng < -180:
		return []orb.Bound{
			{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLng, maxLat}},
			{Min: orb.Point{minLng + 360, minLat}, Max: orb.Point{180, maxLat}},
		}
	case maxLng > 180:
		return []orb.Bound{
			{Min: orb.Point{minLng, minLat}, Max: orb.Point{180, maxLat}},
			{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLng - 360, maxLat}},
		}
	}
	return []orb.Bound{{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}}
}

// Fit returns the bound of all points and whether any point was given.
func Fit(points []models.Point) (orb.Bound, bool) {
	if len(points) == 0 {
		return orb.Bound{}, false
	}

	bound := orb.Bound{Min: points[0].Orb(), Max: points[0].Orb()}
	for _, p := range points[1:] {
		bound = bound.Extend(p.Orb())
	}
	return bound, true
}

// ZoomForBound estimates the web-mercator zoom level that shows the bound on a
// viewport of the given pixel size.
func ZoomForBound(bound orb.Bound, widthPx, heightPx float64) int {
	const tileSize = 256.0
	const maxZoom = 18

	lngSpan := bound.Max.Lon() - bound.Min.Lon()
	latSpan := mercatorY(bound.Max.Lat()) - mercatorY(bound.Min.Lat())
	if lngSpan <= 0 && latSpan <= 0 {
		return maxZoom
	}

	zoom := float64(maxZoom)
	if lngSpan > 0 {
		zoom = math.Min(zoom, math.Log2(widthPx*360/(lngSpan*tileSize)))
	}
	if latSpan > 0 {
		zoom = math.Min(zoom, math.Log2(heightPx*2*math.Pi/(latSpan*tileSize)))
	}
	if zoom < 0 {
		return 0
	}
	return int(math.Floor(zoom))
}

func mercatorY(lat float64) float64 {
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}

// Connector returns a straight line between two points.
func Connector(from, to models.Point) orb.LineString {
	return orb.LineString{from.Orb(), to.Orb()}
}
