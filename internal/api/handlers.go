package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"housefinder/server/config"
	"housefinder/server/internal/facets"
	"housefinder/server/internal/interaction"
	"housefinder/server/internal/models"
	"housefinder/server/internal/queue"
	"housefinder/server/internal/session"
	"housefinder/server/internal/view"
)

// Suggester looks up destinations for a partial keyword.
type Suggester interface {
	Suggest(ctx context.Context, keyword string) ([]models.Destination, error)
}

type Handler struct {
	registry  *Registry
	runner    *session.Runner
	suggester Suggester
	logger    *logrus.Logger
}

type PointRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (r PointRequest) Point() models.Point {
	return models.Point{Lat: *r.Lat, Lng: *r.Lng}
}

type ModeRequest struct {
	Mode *interaction.Mode `json:"mode" binding:"required"`
}

// FacetsPatch changes only the facets it names. Region changes cascade.
type FacetsPatch struct {
	Province     *string  `json:"province"`
	City         *string  `json:"city"`
	District     *string  `json:"district"`
	Category     *string  `json:"category"`
	PriceBracket *string  `json:"price_bracket"`
	CustomMin    *float64 `json:"custom_min"`
	CustomMax    *float64 `json:"custom_max"`
	Commute      *string  `json:"commute"`
	LeaseTerm    *string  `json:"lease_term"`
	Requirements *string  `json:"requirements"`
}

type RequirementRequest struct {
	Text string `json:"text" binding:"required"`
}

type DestinationRequest struct {
	Name    string   `json:"name" binding:"required"`
	Address string   `json:"address"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
}

func NewHandler(registry *Registry, runner *session.Runner, suggester Suggester, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		registry:  registry,
		runner:    runner,
		suggester: suggester,
		logger:    logger,
	}
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Handled request")
	}
}

// session resolves the :id parameter, answering 404 when it is unknown.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, ok := h.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return s, true
}

// GetRegions answers the option tables. With ?province= it lists that
// province's cities, adding &city= lists the city's districts.
func (h *Handler) GetRegions(c *gin.Context) {
	if province := c.Query("province"); province != "" {
		if city := c.Query("city"); city != "" {
			c.JSON(http.StatusOK, gin.H{"districts": config.GetDistricts(province, city)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cities": config.GetCities(province)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"regions":            config.GetRegions(),
		"provinces":          config.GetProvinces(),
		"views":              config.SupportedRegions,
		"home_view":          config.HomeView,
		"default_view":       config.DefaultView,
		"categories":         models.Categories,
		"price_brackets":     config.PriceBrackets,
		"commute_options":    config.CommuteOptions,
		"lease_term_options": config.LeaseTermOptions,
	})
}

func (h *Handler) GetPresets(c *gin.Context) {
	c.JSON(http.StatusOK, session.PresetRequirements)
}

func (h *Handler) GetSuggestions(c *gin.Context) {
	suggestions, err := h.suggester.Suggest(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.logger.WithError(err).Error("Failed to get suggestions")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to get suggestions"})
		return
	}
	if suggestions == nil {
		suggestions = []models.Destination{}
	}
	c.JSON(http.StatusOK, suggestions)
}

func (h *Handler) CreateSession(c *gin.Context) {
	s := h.registry.Create()
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) GetSession(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if !h.registry.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SetMode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req ModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid interaction mode"})
		return
	}

	effect := s.SetMode(*req.Mode)
	c.JSON(http.StatusOK, gin.H{"effect": effect, "session": s.Snapshot()})
}

func (h *Handler) bindPoint(c *gin.Context) (models.Point, bool) {
	var req PointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return models.Point{}, false
	}
	p := req.Point()
	if !p.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range"})
		return models.Point{}, false
	}
	return p, true
}

func (h *Handler) MapClick(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	p, ok := h.bindPoint(c)
	if !ok {
		return
	}

	effect := s.MapClick(p)
	c.JSON(http.StatusOK, gin.H{"effect": effect, "session": s.Snapshot()})
}

func (h *Handler) MapMove(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	p, ok := h.bindPoint(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"effect": s.MapMove(p)})
}

// ReplaceFacets sets every facet; omitted ones fall back to their defaults.
func (h *Handler) ReplaceFacets(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	f := facets.Default()
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid facets"})
		return
	}

	s.SetFacets(f)
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) UpdateFacets(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var patch FacetsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid facets"})
		return
	}

	// Outer levels first so their cascade does not clear inner values
	if patch.Province != nil {
		s.SetProvince(*patch.Province)
	}
	if patch.City != nil {
		s.SetCity(*patch.City)
	}
	if patch.District != nil {
		s.SetDistrict(*patch.District)
	}
	if patch.Category != nil {
		s.SetCategory(*patch.Category)
	}
	if patch.PriceBracket != nil {
		s.SetPriceBracket(*patch.PriceBracket)
	}
	if patch.CustomMin != nil || patch.CustomMax != nil {
		cur := s.Facets()
		lo, hi := cur.CustomMin, cur.CustomMax
		if patch.CustomMin != nil {
			lo = *patch.CustomMin
		}
		if patch.CustomMax != nil {
			hi = *patch.CustomMax
		}
		s.SetCustomPrice(lo, hi)
	}
	if patch.Commute != nil {
		s.SetCommute(*patch.Commute)
	}
	if patch.LeaseTerm != nil {
		s.SetLeaseTerm(*patch.LeaseTerm)
	}
	if patch.Requirements != nil {
		s.SetRequirements(*patch.Requirements)
	}

	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) AddRequirement(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req RequirementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	s.AddPresetRequirement(req.Text)
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) ChooseDestination(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	d := models.Destination{Name: req.Name, Address: req.Address}
	if req.Lat != nil && req.Lng != nil {
		p := models.Point{Lat: *req.Lat, Lng: *req.Lng}
		if !p.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Coordinates out of range"})
			return
		}
		d.Point = &p
	}

	s.ChooseDestination(d)
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) ClearDestination(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.ClearDestination()
	c.JSON(http.StatusOK, s.Snapshot())
}

func (h *Handler) Search(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ticket, err := h.runner.Search(s)
	switch {
	case errors.Is(err, session.ErrDrawInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Finish or cancel drawing before searching"})
		return
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		h.logger.WithError(err).Warn("Search rejected")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search service is busy"})
		return
	case err != nil:
		h.logger.WithError(err).Error("Failed to start search")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start search"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"token": ticket.Token,
		"query": ticket.Request.Query,
	})
}

func (h *Handler) Reset(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	effect := s.ResetToAll()
	c.JSON(http.StatusOK, gin.H{"effect": effect, "session": s.Snapshot()})
}

func (h *Handler) Select(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	p, err := s.Select(c.Param("property"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property is not displayed"})
		return
	}

	link, err := s.NavigationURL()
	if err != nil {
		h.logger.WithError(err).Error("Failed to build navigation link")
	}

	c.JSON(http.StatusOK, gin.H{
		"property":       p,
		"navigation_url": link,
		"viewport":       view.Focus(p),
	})
}

func (h *Handler) ClearSelection(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	s.ClearSelection()
	c.Status(http.StatusNoContent)
}

// Render answers GeoJSON by default, the raw frame with ?format=frame, or the
// frame with marker changes against the comma separated ?shown= ids with
// ?format=diff.
func (h *Handler) Render(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	frame := s.Render()
	switch c.Query("format") {
	case "frame":
		c.JSON(http.StatusOK, frame)
	case "diff":
		var shown []string
		if raw := c.Query("shown"); raw != "" {
			shown = strings.Split(raw, ",")
		}
		c.JSON(http.StatusOK, gin.H{
			"changes": view.Diff(shown, frame),
			"frame":   frame,
		})
	default:
		c.JSON(http.StatusOK, frame.FeatureCollection())
	}
}
