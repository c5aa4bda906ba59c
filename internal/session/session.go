// Package session owns the search state of one map session: the base set,
// the facets, the destination and the gesture controller. Three operations
// replace the base set: a full reset, a drawn geofence and an external
// semantic search. Each of them restores the default facets.
package session

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"housefinder/server/config"
	"housefinder/server/internal/facets"
	"housefinder/server/internal/geofence"
	"housefinder/server/internal/geoindex"
	"housefinder/server/internal/interaction"
	"housefinder/server/internal/matcher"
	"housefinder/server/internal/models"
	"housefinder/server/internal/view"
)

var (
	ErrStaleResponse   = errors.New("stale search response")
	ErrDrawInProgress  = errors.New("cannot search while drawing")
	ErrUnknownProperty = errors.New("property is not displayed")
	ErrNoSelection     = errors.New("no property selected")
)

const (
	// PickedDestinationName names destinations picked on the map
	PickedDestinationName = "地图选点"

	// ReturnedDestinationName names a destination located by the matcher
	// when the user never named one
	ReturnedDestinationName = "通勤地点"

	SearchFailedMessage = "AI 搜索服务出现错误。"
)

// Source is the operation that produced the current base set.
type Source string

const (
	SourceAll      Source = "all"
	SourceGeofence Source = "geofence"
	SourceExternal Source = "external"
)

// Ticket identifies one external search request. Only the latest ticket may
// resolve.
type Ticket struct {
	Token   uint64
	Request matcher.Request
}

// Session is safe for concurrent use; every operation is serialized.
type Session struct {
	ID string

	mu          sync.Mutex
	index       *geoindex.Index
	base        []models.Property
	display     []models.Property
	source      Source
	facets      facets.Facets
	destination *models.Destination
	controller  *interaction.Controller
	explanation string
	commute     map[string]string
	selected    *models.Property
	searching   bool
	message     string
	token       uint64
	lastQuery   string
	logger      *logrus.Logger
}

// New creates a session over the whole universe with default facets.
func New(id string, index *geoindex.Index, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	s := &Session{
		ID:         id,
		index:      index,
		facets:     facets.Default(),
		controller: interaction.NewController(logger),
		logger:     logger,
	}
	s.resetLocked()
	return s
}

// BaseSet returns a copy of the base set.
func (s *Session) BaseSet() []models.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Property(nil), s.base...)
}

// DisplaySet returns a copy of the base set after facet filtering.
func (s *Session) DisplaySet() []models.Property {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Property(nil), s.display...)
}

func (s *Session) Facets() facets.Facets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facets
}

func (s *Session) Destination() *models.Destination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyDestination(s.destination)
}

func (s *Session) Mode() interaction.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.Mode()
}

func (s *Session) Searching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searching
}

func (s *Session) Stats() facets.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return facets.Summarize(s.display)
}

// refresh re-derives the display set from the base set and facets. A
// selection hidden by the facets is dropped.
func (s *Session) refresh() {
	s.display = facets.Apply(s.base, s.facets)
	if s.selected != nil && !facets.Matches(s.selected, s.facets) {
		s.selected = nil
	}
}

// SetMode forwards a mode change to the gesture controller.
func (s *Session) SetMode(mode interaction.Mode) interaction.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.SetMode(mode)
}

// MapClick forwards a click and applies its outcome: a picked destination or
// a finalized geofence.
func (s *Session) MapClick(p models.Point) interaction.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.controller.OnMapClick(p)
	switch e.Kind {
	case interaction.EffectDestinationPicked:
		s.chooseDestinationLocked(models.Destination{
			Name:    PickedDestinationName,
			Address: e.Point.String(),
			Point:   &models.Point{Lat: e.Point.Lat, Lng: e.Point.Lng},
		})
	case interaction.EffectCircleFinalized:
		circle := *e.Circle
		s.applyGeofenceLocked(s.index.Within(circle.Center, circle.Radius), circle)
	}
	return e
}

func (s *Session) MapMove(p models.Point) interaction.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controller.OnMapMove(p)
}

// ChooseDestination sets the commute destination.
func (s *Session) ChooseDestination(d models.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chooseDestinationLocked(d)
}

func (s *Session) chooseDestinationLocked(d models.Destination) {
	s.destination = copyDestination(&d)
	s.logger.WithFields(logrus.Fields{
		"session":     s.ID,
		"destination": d.Name,
	}).Debug("Destination chosen")
}

func (s *Session) ClearDestination() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destination = nil
}

// ResetToAll restores the whole universe, clears facets, destination,
// annotations and selection, and cancels any gesture. A pending external
// search is superseded.
func (s *Session) ResetToAll() interaction.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *Session) resetLocked() interaction.Effect {
	if s.searching {
		s.token++
		s.searching = false
	}
	s.controller.Unfreeze()
	e := s.controller.SetMode(interaction.ModeView)

	s.base = s.index.All()
	s.source = SourceAll
	s.facets = facets.Default()
	s.destination = nil
	s.explanation = ""
	s.commute = nil
	s.selected = nil
	s.message = ""
	s.lastQuery = ""
	s.refresh()
	return e
}

// ApplyGeofenceResult replaces the base set with the properties inside circle.
func (s *Session) ApplyGeofenceResult(subset []models.Property, circle geofence.Circle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyGeofenceLocked(subset, circle)
}

func (s *Session) applyGeofenceLocked(subset []models.Property, circle geofence.Circle) {
	s.replaceBase(subset, SourceGeofence)
	s.explanation = geofence.Summary(circle.Radius, len(subset))
	s.commute = nil
	s.refresh()

	s.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"radius":  circle.Radius,
		"matched": len(subset),
	}).Info("Geofence applied")
}

// ApplyExternalSearchResult replaces the base set with the matcher's choice.
// A nil destination keeps the current one.
func (s *Session) ApplyExternalSearchResult(subset []models.Property, dest *models.Destination, explanation string, commute map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyExternalLocked(subset, dest, explanation, commute)
}

func (s *Session) applyExternalLocked(subset []models.Property, dest *models.Destination, explanation string, commute map[string]string) {
	s.replaceBase(subset, SourceExternal)
	if dest != nil {
		s.destination = copyDestination(dest)
	}
	s.explanation = explanation
	s.commute = make(map[string]string, len(commute))
	for id, c := range commute {
		s.commute[id] = c
	}
	s.refresh()
}

// replaceBase installs a new base set, restricted to the universe and kept in
// universe order. Every facet is reset: neither a geofence nor an external
// result can be narrowed again by criteria chosen before it.
func (s *Session) replaceBase(subset []models.Property, source Source) {
	s.base = s.index.Subset(s.index.OrdinalsOf(subset))
	s.source = source
	if !s.facets.IsDefault() {
		s.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"source":  source,
			"region":  s.facets.HasRegion(),
			"price":   s.facets.HasPrice(),
		}).Debug("Facets reset by new base set")
	}
	s.facets = facets.Default()
	s.selected = nil
	s.message = ""
}

// BeginSearch issues a new ticket, superseding any pending one, and freezes
// drawing until the ticket resolves.
func (s *Session) BeginSearch() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.controller.Mode() == interaction.ModeDrawCircle {
		return Ticket{}, ErrDrawInProgress
	}

	s.token++
	s.searching = true
	s.explanation = ""
	s.message = ""
	s.controller.Freeze()
	s.lastQuery = matcher.BuildQuery(s.facets, s.destination)

	s.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"token":   s.token,
	}).Info("External search started")

	return Ticket{
		Token: s.token,
		Request: matcher.Request{
			Query:      s.lastQuery,
			Candidates: s.index.All(),
		},
	}, nil
}

// CompleteSearch applies a response if t is still the latest ticket.
func (s *Session) CompleteSearch(t Ticket, resp matcher.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(t) {
		return ErrStaleResponse
	}
	s.finishSearch()

	subset := s.index.Subset(s.index.Ordinals(resp.MatchedIDs))

	var dest *models.Destination
	if resp.Destination != nil {
		d := models.Destination{Name: ReturnedDestinationName, Point: resp.Destination}
		if s.destination != nil {
			d.Name = s.destination.Name
			d.Address = s.destination.Address
		}
		dest = &d
	}

	s.applyExternalLocked(subset, dest, resp.Explanation, resp.CommuteEstimates)

	s.logger.WithFields(logrus.Fields{
		"session": s.ID,
		"token":   t.Token,
		"matched": len(subset),
	}).Info("External search completed")
	return nil
}

// FailSearch records a failed search. The base set is left untouched.
func (s *Session) FailSearch(t Ticket, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(t) {
		return ErrStaleResponse
	}
	s.finishSearch()
	s.message = SearchFailedMessage

	s.logger.WithError(cause).WithFields(logrus.Fields{
		"session": s.ID,
		"token":   t.Token,
	}).Warn("External search failed")
	return nil
}

func (s *Session) current(t Ticket) bool {
	return s.searching && t.Token == s.token
}

func (s *Session) finishSearch() {
	s.searching = false
	s.controller.Unfreeze()
}

// Select marks a displayed property for detail display. The display set is
// not changed.
func (s *Session) Select(id string) (models.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.display {
		if s.display[i].ID == id {
			p := s.display[i]
			s.selected = &p
			return p, nil
		}
	}
	return models.Property{}, ErrUnknownProperty
}

func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// Render derives the map frame of the current state.
func (s *Session) Render() view.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view.Render(s.renderInput())
}

func (s *Session) renderInput() view.Input {
	in := view.Input{
		DisplaySet:  s.display,
		Destination: s.destination,
		Selected:    s.selected,
		FixedRegion: fixedRegion(s.facets),
		Commute:     s.commute,
	}
	if d, ok := s.controller.State().(interaction.DrawCircle); ok {
		if center, committed := d.Center(); committed {
			in.Circle = &geofence.Circle{Center: center, Radius: d.Radius()}
		}
	}
	return in
}

// fixedRegion returns the standard view of the most specific selected region
// that has one.
func fixedRegion(f facets.Facets) *config.RegionView {
	if f.City != config.All {
		if v := config.GetRegionView(f.City); v != nil {
			return v
		}
	}
	if f.Province != config.All {
		return config.GetRegionView(f.Province)
	}
	return nil
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	ID             string              `json:"id"`
	Mode           interaction.Mode    `json:"mode"`
	PanningEnabled bool                `json:"panning_enabled"`
	Source         Source              `json:"source"`
	Facets         facets.Facets       `json:"facets"`
	Destination    *models.Destination `json:"destination,omitempty"`
	Explanation    string              `json:"explanation,omitempty"`
	Message        string              `json:"message,omitempty"`
	Searching      bool                `json:"searching"`
	Query          string              `json:"query,omitempty"`
	Stats          facets.Stats        `json:"stats"`
	BaseIDs        []string            `json:"base_ids"`
	DisplayIDs     []string            `json:"display_ids"`
	Selected       *models.Property    `json:"selected,omitempty"`
	Commute        map[string]string   `json:"commute,omitempty"`
	TakenAt        time.Time           `json:"taken_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:             s.ID,
		Mode:           s.controller.Mode(),
		PanningEnabled: s.controller.PanningEnabled(),
		Source:         s.source,
		Facets:         s.facets,
		Destination:    copyDestination(s.destination),
		Explanation:    s.explanation,
		Message:        s.message,
		Searching:      s.searching,
		Query:          s.lastQuery,
		Stats:          facets.Summarize(s.display),
		BaseIDs:        propertyIDs(s.base),
		DisplayIDs:     propertyIDs(s.display),
		Commute:        s.commute,
		TakenAt:        time.Now(),
	}
	if s.selected != nil {
		p := *s.selected
		snap.Selected = &p
	}
	return snap
}

func propertyIDs(props []models.Property) []string {
	ids := make([]string, len(props))
	for i, p := range props {
		ids[i] = p.ID
	}
	return ids
}

func copyDestination(d *models.Destination) *models.Destination {
	if d == nil {
		return nil
	}
	out := *d
	if d.Point != nil {
		p := *d.Point
		out.Point = &p
	}
	return &out
}
