package interaction

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housefinder/server/internal/geometry"
	"housefinder/server/internal/models"
)

var (
	pointA = models.Point{Lat: 39.90, Lng: 116.40}
	pointB = models.Point{Lat: 39.95, Lng: 116.45}
	pointC = models.Point{Lat: 39.80, Lng: 116.30}
	pointD = models.Point{Lat: 39.91, Lng: 116.41}
)

func newController() *Controller {
	return NewController(logrus.New())
}

func TestNewController(t *testing.T) {
	c := newController()
	assert.Equal(t, ModeView, c.Mode())
	assert.True(t, c.PanningEnabled())
	assert.False(t, c.Frozen())
}

func TestDrawCircleSequence(t *testing.T) {
	c := newController()

	e := c.SetMode(ModeDrawCircle)
	assert.Equal(t, EffectModeChanged, e.Kind)
	assert.Equal(t, ModeDrawCircle, e.Mode)
	assert.False(t, e.PanningEnabled)
	assert.Equal(t, "crosshair", e.Cursor)

	e = c.OnMapClick(pointA)
	assert.Equal(t, EffectCenterCommitted, e.Kind)
	center, ok := c.State().(DrawCircle).Center()
	require.True(t, ok)
	assert.Equal(t, pointA, center)
	assert.Zero(t, c.State().(DrawCircle).Radius())

	e = c.OnMapMove(pointB)
	assert.Equal(t, EffectRadiusChanged, e.Kind)
	assert.InDelta(t, geometry.Distance(pointA, pointB), e.Circle.Radius, 1e-6)

	c.OnMapMove(pointC)
	assert.InDelta(t, geometry.Distance(pointA, pointC), c.State().(DrawCircle).Radius(), 1e-6)
	assert.False(t, c.PanningEnabled())

	e = c.OnMapClick(pointD)
	assert.Equal(t, EffectCircleFinalized, e.Kind)
	require.NotNil(t, e.Circle)
	assert.Equal(t, pointA, e.Circle.Center)
	assert.InDelta(t, geometry.Distance(pointA, pointD), e.Circle.Radius, 1e-6)

	assert.Equal(t, ModeView, c.Mode())
	assert.True(t, c.PanningEnabled())
	assert.True(t, e.PanningEnabled)
	assert.Empty(t, e.Cursor)
}

func TestDrawCircleZeroRadiusCancels(t *testing.T) {
	c := newController()
	c.SetMode(ModeDrawCircle)
	c.OnMapClick(pointA)

	e := c.OnMapClick(pointA)
	assert.Equal(t, EffectDrawCancelled, e.Kind)
	assert.Nil(t, e.Circle)
	assert.Equal(t, ModeView, c.Mode())
	assert.True(t, c.PanningEnabled())
}

func TestPickPoint(t *testing.T) {
	c := newController()
	c.SetMode(ModePickPoint)
	assert.True(t, c.PanningEnabled())

	// Moves are ignored while picking
	assert.Equal(t, EffectNone, c.OnMapMove(pointB).Kind)

	e := c.OnMapClick(pointB)
	assert.Equal(t, EffectDestinationPicked, e.Kind)
	require.NotNil(t, e.Point)
	assert.Equal(t, pointB, *e.Point)
	assert.Equal(t, ModeView, c.Mode())
}

func TestSetModeTransitions(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(c *Controller)
		mode     Mode
		expected Mode
		effect   EffectKind
	}{
		{
			name:     "View to pick",
			setup:    func(c *Controller) {},
			mode:     ModePickPoint,
			expected: ModePickPoint,
			effect:   EffectModeChanged,
		},
		{
			name:     "Same mode toggles back to view",
			setup:    func(c *Controller) { c.SetMode(ModePickPoint) },
			mode:     ModePickPoint,
			expected: ModeView,
			effect:   EffectModeChanged,
		},
		{
			name:     "Drawing toggled off cancels the draw",
			setup:    func(c *Controller) { c.SetMode(ModeDrawCircle); c.OnMapClick(pointA) },
			mode:     ModeDrawCircle,
			expected: ModeView,
			effect:   EffectDrawCancelled,
		},
		{
			name:     "View while drawing cancels",
			setup:    func(c *Controller) { c.SetMode(ModeDrawCircle) },
			mode:     ModeView,
			expected: ModeView,
			effect:   EffectDrawCancelled,
		},
		{
			name:     "View while viewing is a no-op",
			setup:    func(c *Controller) {},
			mode:     ModeView,
			expected: ModeView,
			effect:   EffectNone,
		},
		{
			name:     "Pick to draw",
			setup:    func(c *Controller) { c.SetMode(ModePickPoint) },
			mode:     ModeDrawCircle,
			expected: ModeDrawCircle,
			effect:   EffectModeChanged,
		},
		{
			name:     "Draw with center to pick discards geometry",
			setup:    func(c *Controller) { c.SetMode(ModeDrawCircle); c.OnMapClick(pointA) },
			mode:     ModePickPoint,
			expected: ModePickPoint,
			effect:   EffectModeChanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController()
			tt.setup(c)
			e := c.SetMode(tt.mode)
			assert.Equal(t, tt.effect, e.Kind)
			assert.Equal(t, tt.expected, c.Mode())
			assert.Equal(t, tt.expected != ModeDrawCircle, c.PanningEnabled())
		})
	}
}

func TestCancelledDrawStartsFresh(t *testing.T) {
	c := newController()
	c.SetMode(ModeDrawCircle)
	c.OnMapClick(pointA)
	c.SetMode(ModeView)

	c.SetMode(ModeDrawCircle)
	_, ok := c.State().(DrawCircle).Center()
	assert.False(t, ok, "uncommitted geometry must be discarded")

	e := c.OnMapClick(pointB)
	assert.Equal(t, EffectCenterCommitted, e.Kind)
}

func TestInvalidSequencesAreNoOps(t *testing.T) {
	c := newController()
	assert.Equal(t, EffectNone, c.OnMapMove(pointA).Kind)
	assert.Equal(t, EffectNone, c.OnMapClick(pointA).Kind)

	c.SetMode(ModeDrawCircle)
	assert.Equal(t, EffectNone, c.OnMapMove(pointA).Kind, "move before a center is committed")
	assert.Equal(t, ModeDrawCircle, c.Mode())
}

func TestFreeze(t *testing.T) {
	c := newController()
	c.SetMode(ModeDrawCircle)
	c.OnMapClick(pointA)

	e := c.Freeze()
	assert.Equal(t, EffectDrawCancelled, e.Kind)
	assert.Equal(t, ModeView, c.Mode())
	assert.True(t, c.Frozen())

	assert.Equal(t, EffectNone, c.SetMode(ModeDrawCircle).Kind)
	assert.Equal(t, EffectNone, c.SetMode(ModePickPoint).Kind)
	assert.Equal(t, ModeView, c.Mode())

	c.Unfreeze()
	assert.Equal(t, EffectModeChanged, c.SetMode(ModePickPoint).Kind)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
		wantErr  bool
	}{
		{input: "VIEW", expected: ModeView},
		{input: "pick_point", expected: ModePickPoint},
		{input: " DRAW_CIRCLE ", expected: ModeDrawCircle},
		{input: "ZOOM", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestEffectJSON(t *testing.T) {
	c := newController()
	data, err := json.Marshal(c.SetMode(ModeDrawCircle))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"mode_changed","mode":"DRAW_CIRCLE","panning_enabled":false,"cursor":"crosshair"}`, string(data))
}
