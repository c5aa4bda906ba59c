// Package interaction implements the map gesture state machine: free viewing,
// picking a destination point and drawing a search circle.
package interaction

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"housefinder/server/internal/geofence"
	"housefinder/server/internal/geometry"
	"housefinder/server/internal/models"
)

// Mode represents the active gesture mode
type Mode int

const (
	ModeView Mode = iota
	ModePickPoint
	ModeDrawCircle
)

// String returns the string representation of a Mode
func (m Mode) String() string {
	switch m {
	case ModeView:
		return "VIEW"
	case ModePickPoint:
		return "PICK_POINT"
	case ModeDrawCircle:
		return "DRAW_CIRCLE"
	default:
		return "UNKNOWN"
	}
}

// ParseMode parses the string form of a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VIEW":
		return ModeView, nil
	case "PICK_POINT":
		return ModePickPoint, nil
	case "DRAW_CIRCLE":
		return ModeDrawCircle, nil
	default:
		return ModeView, fmt.Errorf("unknown interaction mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// State is one of View, PickPoint or DrawCircle.
type State interface {
	Mode() Mode
	isState()
}

type View struct{}

type PickPoint struct{}

// DrawCircle is the drawing state. A radius only exists once a center has
// been committed.
type DrawCircle struct {
	draft *geofence.Circle
}

func (View) Mode() Mode       { return ModeView }
func (PickPoint) Mode() Mode  { return ModePickPoint }
func (DrawCircle) Mode() Mode { return ModeDrawCircle }

func (View) isState()       {}
func (PickPoint) isState()  {}
func (DrawCircle) isState() {}

// Center returns the committed center, if any.
func (d DrawCircle) Center() (models.Point, bool) {
	if d.draft == nil {
		return models.Point{}, false
	}
	return d.draft.Center, true
}

// Radius returns the live preview radius in meters.
func (d DrawCircle) Radius() float64 {
	if d.draft == nil {
		return 0
	}
	return d.draft.Radius
}

// EffectKind describes what a renderer or session must do after an event.
type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectModeChanged
	EffectDestinationPicked
	EffectCenterCommitted
	EffectRadiusChanged
	EffectCircleFinalized
	EffectDrawCancelled
)

func (k EffectKind) String() string {
	switch k {
	case EffectNone:
		return "none"
	case EffectModeChanged:
		return "mode_changed"
	case EffectDestinationPicked:
		return "destination_picked"
	case EffectCenterCommitted:
		return "center_committed"
	case EffectRadiusChanged:
		return "radius_changed"
	case EffectCircleFinalized:
		return "circle_finalized"
	case EffectDrawCancelled:
		return "draw_cancelled"
	default:
		return "unknown"
	}
}

func (k EffectKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Effect is the outcome of a single gesture event.
type Effect struct {
	Kind           EffectKind       `json:"kind"`
	Mode           Mode             `json:"mode"`
	PanningEnabled bool             `json:"panning_enabled"`
	Cursor         string           `json:"cursor,omitempty"`
	Point          *models.Point    `json:"point,omitempty"`
	Circle         *geofence.Circle `json:"circle,omitempty"`
}

// Controller owns the gesture state. It is not safe for concurrent use.
type Controller struct {
	state  State
	frozen bool
	logger *logrus.Logger
}

// NewController creates a controller in VIEW mode
func NewController(logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Controller{
		state:  View{},
		logger: logger,
	}
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) Mode() Mode {
	return c.state.Mode()
}

// PanningEnabled is false for the whole duration of a draw.
func (c *Controller) PanningEnabled() bool {
	_, drawing := c.state.(DrawCircle)
	return !drawing
}

func (c *Controller) Frozen() bool {
	return c.frozen
}

// Freeze forces VIEW and rejects mode changes until Unfreeze.
func (c *Controller) Freeze() Effect {
	c.frozen = true
	if c.state.Mode() == ModeView {
		return c.effect(EffectNone)
	}
	return c.cancel()
}

func (c *Controller) Unfreeze() {
	c.frozen = false
}

// SetMode switches modes. Selecting the active mode again cancels back to VIEW.
func (c *Controller) SetMode(mode Mode) Effect {
	current := c.state.Mode()

	if mode == ModeView || mode == current {
		if current == ModeView {
			return c.effect(EffectNone)
		}
		return c.cancel()
	}

	if c.frozen {
		c.logger.WithField("mode", mode.String()).Debug("Ignoring mode change while search is in flight")
		return c.effect(EffectNone)
	}

	switch mode {
	case ModePickPoint:
		c.state = PickPoint{}
	case ModeDrawCircle:
		c.state = DrawCircle{}
	default:
		return c.effect(EffectNone)
	}

	c.logger.WithFields(logrus.Fields{
		"from": current.String(),
		"to":   mode.String(),
	}).Debug("Interaction mode changed")
	return c.effect(EffectModeChanged)
}

// OnMapClick handles a click on the map.
func (c *Controller) OnMapClick(p models.Point) Effect {
	switch s := c.state.(type) {
	case PickPoint:
		c.state = View{}
		e := c.effect(EffectDestinationPicked)
		e.Point = &p
		return e

	case DrawCircle:
		if s.draft == nil {
			c.state = DrawCircle{draft: &geofence.Circle{Center: p}}
			e := c.effect(EffectCenterCommitted)
			e.Point = &p
			return e
		}

		circle := geofence.Circle{
			Center: s.draft.Center,
			Radius: geometry.Distance(s.draft.Center, p),
		}
		c.state = View{}
		if circle.Radius <= 0 {
			c.logger.Debug("Discarding zero radius circle")
			return c.effect(EffectDrawCancelled)
		}

		c.logger.WithFields(logrus.Fields{
			"lat":    circle.Center.Lat,
			"lng":    circle.Center.Lng,
			"radius": circle.Radius,
		}).Debug("Circle finalized")
		e := c.effect(EffectCircleFinalized)
		e.Circle = &circle
		return e
	}

	return c.effect(EffectNone)
}

// OnMapMove updates the live radius while a center is committed.
func (c *Controller) OnMapMove(p models.Point) Effect {
	s, ok := c.state.(DrawCircle)
	if !ok || s.draft == nil {
		return c.effect(EffectNone)
	}

	draft := geofence.Circle{
		Center: s.draft.Center,
		Radius: geometry.Distance(s.draft.Center, p),
	}
	c.state = DrawCircle{draft: &draft}

	e := c.effect(EffectRadiusChanged)
	e.Circle = &draft
	return e
}

func (c *Controller) cancel() Effect {
	kind := EffectModeChanged
	if _, drawing := c.state.(DrawCircle); drawing {
		kind = EffectDrawCancelled
	}
	c.state = View{}
	return c.effect(kind)
}

func (c *Controller) effect(kind EffectKind) Effect {
	e := Effect{
		Kind:           kind,
		Mode:           c.state.Mode(),
		PanningEnabled: c.PanningEnabled(),
	}
	if c.state.Mode() != ModeView {
		e.Cursor = "crosshair"
	}
	return e
}
