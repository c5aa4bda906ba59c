package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housefinder/server/internal/geoindex"
	"housefinder/server/internal/interaction"
	"housefinder/server/internal/matcher"
	"housefinder/server/internal/models"
	"housefinder/server/internal/queue"
	"housefinder/server/internal/session"
	"housefinder/server/internal/view"
)

type stubSuggester struct {
	results []models.Destination
	err     error
}

func (s stubSuggester) Suggest(ctx context.Context, keyword string) ([]models.Destination, error) {
	return s.results, s.err
}

func listings() []models.Property {
	return []models.Property{
		{
			ID: "1", Title: "国贸两居", Category: models.CategoryResidential, Price: 5000,
			Location: "北京市朝阳区", Address: "建国门外大街1号",
			Coordinates: models.Point{Lat: 39.90, Lng: 116.40},
		},
		{
			ID: "2", Title: "团结湖公寓", Category: models.CategoryCityApartment, Price: 9000,
			Location: "北京市朝阳区", Address: "团结湖路",
			Coordinates: models.Point{Lat: 39.91, Lng: 116.41},
		},
		{
			ID: "3", Title: "陆家嘴公寓", Category: models.CategoryCityApartment, Price: 7000,
			Location: "上海市浦东新区", Address: "陆家嘴环路",
			Coordinates: models.Point{Lat: 31.23, Lng: 121.50},
		},
	}
}

type testServer struct {
	router   *gin.Engine
	registry *Registry
	resolved chan error
}

func newTestServer(t *testing.T, m matcher.Matcher, suggester Suggester) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ix, err := geoindex.New(listings())
	require.NoError(t, err)

	q := queue.NewSearchQueue(4, logger)
	resolved := make(chan error, 4)
	q.Subscribe(func(job queue.Job, err error) { resolved <- err })
	q.Start(1)
	t.Cleanup(func() { q.Close() })

	registry := NewRegistry(ix, time.Hour, logger)
	handler := NewHandler(registry, session.NewRunner(m, q, logger), suggester, logger)

	return &testServer{
		router:   NewRouter(handler, nil),
		registry: registry,
		resolved: resolved,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) createSession(t *testing.T) session.Snapshot {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder, key string) session.Snapshot {
	t.Helper()
	var snap session.Snapshot
	if key == "" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
		return snap
	}
	var wrapped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wrapped))
	require.NoError(t, json.Unmarshal(wrapped[key], &snap))
	return snap
}

func TestCreateAndGetSession(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})

	snap := ts.createSession(t)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, []string{"1", "2", "3"}, snap.DisplayIDs)
	assert.Equal(t, 3, snap.Stats.Total)
	assert.Equal(t, 1, ts.registry.Len())

	w := ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, snap.ID, decodeSnapshot(t, w, "").ID)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+snap.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+snap.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/sessions/"+snap.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRegions(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})

	w := ts.do(t, http.MethodGet, "/api/regions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	for _, key := range []string{"regions", "provinces", "views", "price_brackets", "categories", "commute_options", "lease_term_options"} {
		assert.Contains(t, body, key)
	}
}

func TestGetRegionLevels(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})

	w := ts.do(t, http.MethodGet, "/api/regions?province=广东", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cities":["广州","深圳"]}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/regions?province=广东&city=深圳", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"districts":["南山","福田","罗湖"]}`, w.Body.String())

	w = ts.do(t, http.MethodGet, "/api/regions?province=西藏", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cities":[]}`, w.Body.String())
}

func TestGetPresets(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})

	w := ts.do(t, http.MethodGet, "/api/presets", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var presets []session.Preset
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &presets))
	assert.Equal(t, session.PresetRequirements, presets)
}

func TestGetSuggestions(t *testing.T) {
	dest := models.Destination{Name: "国贸", Point: &models.Point{Lat: 39.9087, Lng: 116.4605}}
	ts := newTestServer(t, matcher.Disabled, stubSuggester{results: []models.Destination{dest}})

	w := ts.do(t, http.MethodGet, "/api/suggestions?q=guomao", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got []models.Destination
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []models.Destination{dest}, got)

	empty := newTestServer(t, matcher.Disabled, stubSuggester{})
	w = empty.do(t, http.MethodGet, "/api/suggestions?q=x", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	failing := newTestServer(t, matcher.Disabled, stubSuggester{err: errors.New("upstream down")})
	w = failing.do(t, http.MethodGet, "/api/suggestions?q=guomao", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDrawCircleThroughAPI(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/mode", gin.H{"mode": "DRAW_CIRCLE"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, interaction.ModeDrawCircle, decodeSnapshot(t, w, "session").Mode)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/click", gin.H{"lat": 39.90, "lng": 116.40})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/move", gin.H{"lat": 39.92, "lng": 116.40})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "radius_changed")

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/click", gin.H{"lat": 39.918, "lng": 116.40})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "circle_finalized")

	snap := decodeSnapshot(t, w, "session")
	assert.Equal(t, interaction.ModeView, snap.Mode)
	assert.Equal(t, session.SourceGeofence, snap.Source)
	assert.Equal(t, []string{"1", "2"}, snap.DisplayIDs)

	w = ts.do(t, http.MethodPatch, "/api/sessions/"+id+"/facets", gin.H{"price_bracket": "4000-8000元"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"1"}, decodeSnapshot(t, w, "").DisplayIDs)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w, "session")
	assert.Equal(t, []string{"1", "2", "3"}, snap.DisplayIDs)
	assert.True(t, snap.Facets.IsDefault())
}

func TestInvalidRequests(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{name: "Unknown mode", method: http.MethodPost, path: "/mode", body: gin.H{"mode": "ZOOM"}, code: http.StatusBadRequest},
		{name: "Missing coordinate", method: http.MethodPost, path: "/click", body: gin.H{"lat": 39.9}, code: http.StatusBadRequest},
		{name: "Out of range", method: http.MethodPost, path: "/click", body: gin.H{"lat": 99.0, "lng": 116.4}, code: http.StatusBadRequest},
		{name: "Missing requirement text", method: http.MethodPost, path: "/requirements", body: gin.H{}, code: http.StatusBadRequest},
		{name: "Missing destination name", method: http.MethodPost, path: "/destination", body: gin.H{"address": "x"}, code: http.StatusBadRequest},
		{name: "Destination out of range", method: http.MethodPost, path: "/destination", body: gin.H{"name": "x", "lat": 0.0, "lng": 200.0}, code: http.StatusBadRequest},
		{name: "Select hidden property", method: http.MethodPost, path: "/select/missing", code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, "/api/sessions/"+id+tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}

	w := ts.do(t, http.MethodPost, "/api/sessions/nope/click", gin.H{"lat": 39.9, "lng": 116.4})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFacetsEndpoints(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	w := ts.do(t, http.MethodPut, "/api/sessions/"+id+"/facets", gin.H{"province": "上海"})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w, "")
	assert.Equal(t, "上海", snap.Facets.Province)
	assert.Equal(t, []string{"3"}, snap.DisplayIDs)

	w = ts.do(t, http.MethodPatch, "/api/sessions/"+id+"/facets", gin.H{"province": "北京", "custom_max": 6000})
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w, "")
	assert.Equal(t, []string{"1"}, snap.DisplayIDs)
	assert.Equal(t, 6000.0, snap.Facets.CustomMax)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/requirements", gin.H{"text": "近地铁"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decodeSnapshot(t, w, "").Facets.Requirements, "近地铁")
}

func TestDestinationAndSelection(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/destination", gin.H{"name": "国贸", "address": "国贸CBD", "lat": 39.9087, "lng": 116.4605})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w, "")
	require.NotNil(t, snap.Destination)
	assert.Equal(t, "国贸", snap.Destination.Name)

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/select/2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var selected struct {
		Property      models.Property `json:"property"`
		NavigationURL string          `json:"navigation_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &selected))
	assert.Equal(t, "2", selected.Property.ID)
	assert.Contains(t, selected.NavigationURL, "https://www.amap.com/dir?")

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/render?format=frame", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"selected"`)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id+"/select", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/sessions/"+id+"/destination", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decodeSnapshot(t, w, "").Destination)
}

func TestRenderGeoJSON(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/render", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 3)
}

func TestRenderDiff(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	ts.do(t, http.MethodPatch, "/api/sessions/"+id+"/facets", gin.H{"province": "北京"})

	w := ts.do(t, http.MethodGet, "/api/sessions/"+id+"/render?format=diff&shown=1,3", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Changes view.Changes `json:"changes"`
		Frame   struct {
			Markers []view.Marker `json:"markers"`
		} `json:"frame"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"2"}, body.Changes.Added)
	assert.Equal(t, []string{"3"}, body.Changes.Removed)
	assert.Len(t, body.Frame.Markers, 2)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id+"/render?format=diff", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"1", "2"}, body.Changes.Added)
	assert.Empty(t, body.Changes.Removed)
}

func TestSetModeRequiresMode(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	ts.do(t, http.MethodPost, "/api/sessions/"+id+"/mode", gin.H{"mode": "DRAW_CIRCLE"})
	ts.do(t, http.MethodPost, "/api/sessions/"+id+"/click", gin.H{"lat": 39.90, "lng": 116.40})

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/mode", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	assert.Equal(t, interaction.ModeDrawCircle, decodeSnapshot(t, w, "").Mode, "a rejected request must not cancel the draw")

	w = ts.do(t, http.MethodPost, "/api/sessions/"+id+"/mode", gin.H{"mode": "VIEW"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, interaction.ModeView, decodeSnapshot(t, w, "session").Mode)
}

func TestSearchThroughAPI(t *testing.T) {
	m := matcher.Func(func(ctx context.Context, req matcher.Request) (matcher.Response, error) {
		return matcher.Response{
			MatchedIDs:  []string{"3"},
			Explanation: "陆家嘴附近",
			Destination: &models.Point{Lat: 31.24, Lng: 121.50},
		}, nil
	})
	ts := newTestServer(t, m, stubSuggester{})
	id := ts.createSession(t).ID

	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/search", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var accepted struct {
		Token uint64 `json:"token"`
		Query string `json:"query"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	assert.NotZero(t, accepted.Token)
	assert.NotEmpty(t, accepted.Query)

	select {
	case err := <-ts.resolved:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("search was not resolved")
	}

	w = ts.do(t, http.MethodGet, "/api/sessions/"+id, nil)
	snap := decodeSnapshot(t, w, "")
	assert.Equal(t, session.SourceExternal, snap.Source)
	assert.Equal(t, []string{"3"}, snap.DisplayIDs)
	assert.Equal(t, "陆家嘴附近", snap.Explanation)
	assert.False(t, snap.Searching)
}

func TestSearchWhileDrawing(t *testing.T) {
	ts := newTestServer(t, matcher.Disabled, stubSuggester{})
	id := ts.createSession(t).ID

	ts.do(t, http.MethodPost, "/api/sessions/"+id+"/mode", gin.H{"mode": "DRAW_CIRCLE"})
	w := ts.do(t, http.MethodPost, "/api/sessions/"+id+"/search", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
