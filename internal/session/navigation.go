package session

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	amapDirectionURL = "https://www.amap.com/dir"
	amapMarkerURL    = "https://uri.amap.com/marker"

	defaultOriginName = "通勤起点"
)

// NavigationURL links to the selected property on Amap, routed from the
// destination when it has coordinates.
func (s *Session) NavigationURL() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return "", ErrNoSelection
	}
	p := s.selected
	to := lngLat(p.Coordinates.Lng, p.Coordinates.Lat)

	if s.destination.HasPoint() {
		name := s.destination.Name
		if name == "" {
			name = defaultOriginName
		}
		from := lngLat(s.destination.Point.Lng, s.destination.Point.Lat)
		return fmt.Sprintf("%s?from[lnglat]=%s&from[name]=%s&to[lnglat]=%s&to[name]=%s&mode=car",
			amapDirectionURL, from, url.QueryEscape(name), to, url.QueryEscape(p.Address)), nil
	}

	return fmt.Sprintf("%s?position=%s&name=%s", amapMarkerURL, to, url.QueryEscape(p.Address)), nil
}

func lngLat(lng, lat float64) string {
	return strconv.FormatFloat(lng, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
}
