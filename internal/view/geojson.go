package view

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders the frame as GeoJSON. Features carry a "kind"
// property of marker, destination, route or circle.
func (f Frame) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, m := range f.Markers {
		feat := geojson.NewFeature(m.Point.Orb())
		feat.ID = m.ID
		feat.Properties["kind"] = "marker"
		feat.Properties["title"] = m.Title
		feat.Properties["price"] = m.Price
		feat.Properties["selected"] = m.Selected
		if m.Commute != "" {
			feat.Properties["commute"] = m.Commute
		}
		fc.Append(feat)
	}

	if pin := f.DestinationPin; pin.HasPoint() {
		feat := geojson.NewFeature(pin.Point.Orb())
		feat.Properties["kind"] = "destination"
		feat.Properties["name"] = pin.Name
		if pin.Address != "" {
			feat.Properties["address"] = pin.Address
		}
		fc.Append(feat)
	}

	for _, r := range f.Routes {
		feat := geojson.NewFeature(r.Line)
		feat.Properties["kind"] = "route"
		feat.Properties["property_id"] = r.PropertyID
		fc.Append(feat)
	}

	if c := f.Circle; c != nil {
		feat := geojson.NewFeature(c.Center.Orb())
		feat.Properties["kind"] = "circle"
		feat.Properties["radius"] = c.Radius
		fc.Append(feat)
	}

	if f.Viewport.Bound != nil {
		fc.BBox = geojson.NewBBox(*f.Viewport.Bound)
	}

	return fc
}
