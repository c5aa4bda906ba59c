// Package view derives the map artifacts of a search session: markers,
// destination pin, route lines and viewport.
package view

import (
	"github.com/paulmach/orb"

	"housefinder/server/config"
	"housefinder/server/internal/geofence"
	"housefinder/server/internal/geometry"
	"housefinder/server/internal/models"
)

const (
	// FocusZoom is the zoom used when centering on a single property
	FocusZoom = 14

	// Nominal surface used to derive a zoom level from fitted bounds
	surfaceWidth  = 1280
	surfaceHeight = 800
	surfacePad    = 80
)

type ViewportSource string

const (
	ViewportRegion  ViewportSource = "region"
	ViewportFit     ViewportSource = "fit"
	ViewportFocus   ViewportSource = "focus"
	ViewportDefault ViewportSource = "default"
)

type Viewport struct {
	Center models.Point   `json:"center"`
	Zoom   int            `json:"zoom"`
	Bound  *orb.Bound     `json:"bound,omitempty"`
	Source ViewportSource `json:"source"`
}

type Marker struct {
	ID       string       `json:"id"`
	Point    models.Point `json:"point"`
	Title    string       `json:"title"`
	Price    float64      `json:"price"`
	Commute  string       `json:"commute,omitempty"`
	Selected bool         `json:"selected"`
}

type Route struct {
	PropertyID string         `json:"property_id"`
	Line       orb.LineString `json:"line"`
}

type Frame struct {
	Markers        []Marker            `json:"markers"`
	DestinationPin *models.Destination `json:"destination_pin,omitempty"`
	Routes         []Route             `json:"routes"`
	Viewport       Viewport            `json:"viewport"`
	Selected       *models.Property    `json:"selected,omitempty"`

	// Circle is the draft geofence while one is being drawn
	Circle *geofence.Circle `json:"circle,omitempty"`
}

// Input is everything a frame is derived from.
type Input struct {
	DisplaySet  []models.Property
	Destination *models.Destination
	Selected    *models.Property
	FixedRegion *config.RegionView
	Commute     map[string]string
	Circle      *geofence.Circle
}

// Render builds the frame for the given state. It is deterministic: the same
// input always yields the same frame.
func Render(in Input) Frame {
	f := Frame{
		Markers:  make([]Marker, 0, len(in.DisplaySet)),
		Routes:   []Route{},
		Selected: in.Selected,
		Circle:   in.Circle,
	}

	points := make([]models.Point, 0, len(in.DisplaySet)+1)
	for i := range in.DisplaySet {
		p := &in.DisplaySet[i]
		f.Markers = append(f.Markers, Marker{
			ID:       p.ID,
			Point:    p.Coordinates,
			Title:    p.Title,
			Price:    p.Price,
			Commute:  in.Commute[p.ID],
			Selected: in.Selected != nil && in.Selected.ID == p.ID,
		})
		points = append(points, p.Coordinates)
	}

	if in.Destination.HasPoint() {
		pin := *in.Destination
		f.DestinationPin = &pin
		dest := *pin.Point
		for _, m := range f.Markers {
			f.Routes = append(f.Routes, Route{
				PropertyID: m.ID,
				Line:       geometry.Connector(m.Point, dest),
			})
		}
		points = append(points, dest)
	}

	switch {
	case in.Selected != nil:
		f.Viewport = Focus(*in.Selected)
	case in.FixedRegion != nil:
		f.Viewport = regionViewport(*in.FixedRegion, ViewportRegion)
	default:
		if vp, ok := Fit(points); ok {
			f.Viewport = vp
		} else {
			f.Viewport = regionViewport(config.DefaultView, ViewportDefault)
		}
	}

	return f
}

// Focus recenters on a single property.
func Focus(p models.Property) Viewport {
	return Viewport{Center: p.Coordinates, Zoom: FocusZoom, Source: ViewportFocus}
}

// Fit returns a viewport showing every point.
func Fit(points []models.Point) (Viewport, bool) {
	bound, ok := geometry.Fit(points)
	if !ok {
		return Viewport{}, false
	}
	return Viewport{
		Center: models.PointFromOrb(bound.Center()),
		Zoom:   geometry.ZoomForBound(bound, surfaceWidth-2*surfacePad, surfaceHeight-2*surfacePad),
		Bound:  &bound,
		Source: ViewportFit,
	}, true
}

func regionViewport(r config.RegionView, source ViewportSource) Viewport {
	vp := Viewport{Zoom: r.ZoomLevel, Source: source}
	if len(r.Center) == 2 {
		vp.Center = models.Point{Lat: r.Center[0], Lng: r.Center[1]}
	}
	return vp
}

// MarkerIDs returns the marker identities in display order.
func (f Frame) MarkerIDs() []string {
	ids := make([]string, len(f.Markers))
	for i, m := range f.Markers {
		ids[i] = m.ID
	}
	return ids
}

// Changes lists marker identities to add and remove between two frames.
type Changes struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Diff compares the marker identities a renderer already shows with the
// markers of next, so it can update incrementally.
func Diff(shown []string, next Frame) Changes {
	before := make(map[string]struct{}, len(shown))
	for _, id := range shown {
		before[id] = struct{}{}
	}
	after := make(map[string]struct{}, len(next.Markers))
	for _, id := range next.MarkerIDs() {
		after[id] = struct{}{}
	}

	c := Changes{Added: []string{}, Removed: []string{}}
	for _, id := range next.MarkerIDs() {
		if _, ok := before[id]; !ok {
			c.Added = append(c.Added, id)
		}
	}
	for _, id := range shown {
		if _, ok := after[id]; !ok {
			c.Removed = append(c.Removed, id)
			// Guard against ids repeated by the client
			after[id] = struct{}{}
		}
	}
	return c
}
