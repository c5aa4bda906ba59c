// Package geocoding suggests destinations for a free-text keyword.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"housefinder/server/internal/models"
)

const (
	// MinKeywordLength is the shortest keyword, in characters, worth looking up
	MinKeywordLength = 2

	cacheFileName = "suggestion_cache.json"
	resultLimit   = 5
)

// Landmarks are answered locally without a network round trip.
var Landmarks = []models.Destination{
	landmark("国贸", "北京市朝阳区建国门外大街", 39.9083, 116.4556),
	landmark("中关村", "北京市海淀区", 39.9806, 116.3069),
	landmark("望京", "北京市朝阳区", 39.9958, 116.4786),
	landmark("三里屯", "北京市朝阳区工体北路", 39.9351, 116.4551),
	landmark("西二旗", "北京市海淀区", 40.0528, 116.3057),
	landmark("天安门", "北京市东城区", 39.9042, 116.4074),
	landmark("亦庄", "北京市大兴区", 39.8000, 116.5000),
	landmark("通州副中心", "北京市通州区", 39.9100, 116.6500),
}

func landmark(name, address string, lat, lng float64) models.Destination {
	return models.Destination{Name: name, Address: address, Point: &models.Point{Lat: lat, Lng: lng}}
}

type Config struct {
	URL          string
	CountryCodes string
	CacheDir     string

	// Requests per second towards the remote geocoder
	RateLimit float64
}

type Suggester struct {
	logger       *logrus.Logger
	url          string
	countryCodes string
	cacheDir     string
	cache        map[string][]models.Destination
	cacheLock    sync.RWMutex
	client       *http.Client
	limiter      *rate.Limiter
	group        singleflight.Group
}

func NewSuggester(cfg Config, logger *logrus.Logger) *Suggester {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	limit := rate.Limit(1)
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	s := &Suggester{
		logger:       logger,
		url:          cfg.URL,
		countryCodes: cfg.CountryCodes,
		cacheDir:     cfg.CacheDir,
		cache:        make(map[string][]models.Destination),
		client:       &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(limit, 1),
	}

	if s.cacheDir != "" {
		if err := os.MkdirAll(s.cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create suggestion cache directory")
		}
		s.loadCache()
	}

	return s
}

func (s *Suggester) loadCache() {
	data, err := os.ReadFile(filepath.Join(s.cacheDir, cacheFileName))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WithError(err).Warn("Could not load suggestion cache")
		}
		return
	}

	if err := json.Unmarshal(data, &s.cache); err != nil {
		s.logger.WithError(err).Error("Failed to parse suggestion cache")
		return
	}

	s.logger.Infof("Loaded %d cached keywords", len(s.cache))
}

func (s *Suggester) saveCache() {
	if s.cacheDir == "" {
		return
	}

	s.cacheLock.RLock()
	data, err := json.Marshal(s.cache)
	s.cacheLock.RUnlock()
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal suggestion cache")
		return
	}

	if err := os.WriteFile(filepath.Join(s.cacheDir, cacheFileName), data, 0644); err != nil {
		s.logger.WithError(err).Error("Failed to save suggestion cache")
	}
}

// Suggest returns candidate destinations for keyword. Landmarks are matched
// first; the remote geocoder is only consulted when none match.
func (s *Suggester) Suggest(ctx context.Context, keyword string) ([]models.Destination, error) {
	keyword = strings.TrimSpace(keyword)
	if utf8.RuneCountInString(keyword) < MinKeywordLength {
		return []models.Destination{}, nil
	}

	if local := matchLandmarks(keyword); len(local) > 0 {
		return local, nil
	}

	s.cacheLock.RLock()
	cached, ok := s.cache[keyword]
	s.cacheLock.RUnlock()
	if ok {
		s.logger.WithFields(logrus.Fields{
			"keyword": keyword,
			"source":  "cache",
		}).Debug("Found suggestions in cache")
		return cached, nil
	}

	if s.url == "" {
		return []models.Destination{}, nil
	}

	// The shared lookup outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := s.group.DoChan(keyword, func() (interface{}, error) {
		return s.lookup(context.WithoutCancel(ctx), keyword)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.Destination), nil
	}
}

func matchLandmarks(keyword string) []models.Destination {
	var out []models.Destination
	for _, l := range Landmarks {
		if strings.Contains(l.Name, keyword) {
			out = append(out, l)
		}
	}
	return out
}

type nominatimResponse []struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

func (s *Suggester) lookup(ctx context.Context, keyword string) ([]models.Destination, error) {
	// Respect the geocoder's usage policy
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	params := url.Values{
		"q":      []string{keyword},
		"format": []string{"json"},
		"limit":  []string{strconv.Itoa(resultLimit)},
	}
	if s.countryCodes != "" {
		params.Set("countrycodes", s.countryCodes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "HouseFinder/1.0")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.7")

	s.logger.WithField("keyword", keyword).Info("Looking up suggestions with Nominatim")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("keyword", keyword).Error("Geocoding request failed")
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result nominatimResponse
	if err := json.Unmarshal(body, &result); err != nil {
		s.logger.WithError(err).WithField("keyword", keyword).Error("Failed to parse response")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	out := make([]models.Destination, 0, len(result))
	for _, r := range result {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		name := r.Name
		if name == "" {
			name, _, _ = strings.Cut(r.DisplayName, ",")
		}
		out = append(out, landmark(strings.TrimSpace(name), r.DisplayName, lat, lng))
	}

	s.logger.WithFields(logrus.Fields{
		"keyword": keyword,
		"results": len(out),
		"source":  "nominatim",
	}).Info("Fetched suggestions")

	s.cacheLock.Lock()
	s.cache[keyword] = out
	s.cacheLock.Unlock()
	s.saveCache()

	return out, nil
}
