package config

// All is the "no selection" value of every region, category and price facet.
const All = "全部"

// Unlimited is the "no selection" value of the commute and lease facets.
const Unlimited = "不限"

// RegionView represents a fixed administrative map view
type RegionView struct {
	Name      string    `json:"name"`
	Center    []float64 `json:"center"`
	ZoomLevel int       `json:"zoom_level"`
}

// DefaultView is used when nothing else determines the viewport.
var DefaultView = RegionView{
	Name:      "中国",
	Center:    []float64{35.8617, 104.1954},
	ZoomLevel: 4,
}

// HomeView is the initial view of a new session.
var HomeView = RegionView{
	Name:      "北京",
	Center:    []float64{39.9042, 116.4074},
	ZoomLevel: 12,
}

// SupportedRegions lists the fixed views of provinces and cities
var SupportedRegions = []RegionView{
	{Name: "北京", Center: []float64{39.9042, 116.4074}, ZoomLevel: 11},
	{Name: "上海", Center: []float64{31.2304, 121.4737}, ZoomLevel: 11},
	{Name: "广东", Center: []float64{23.3790, 113.7633}, ZoomLevel: 7},
	{Name: "广州", Center: []float64{23.1291, 113.2644}, ZoomLevel: 11},
	{Name: "深圳", Center: []float64{22.5431, 114.0579}, ZoomLevel: 11},
}

// GetRegionView returns the fixed view for a region, or nil
func GetRegionView(name string) *RegionView {
	for _, region := range SupportedRegions {
		if region.Name == name {
			return &region
		}
	}
	return nil
}

// PriceBracket maps a named price option to bounds; -1 means unbounded.
type PriceBracket struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// PriceBrackets are the named price options offered to users.
var PriceBrackets = []PriceBracket{
	{Label: "1000元以下", Min: 0, Max: 1000},
	{Label: "1000-2000元", Min: 1000, Max: 2000},
	{Label: "2000-3000元", Min: 2000, Max: 3000},
	{Label: "3000-4000元", Min: 3000, Max: 4000},
	{Label: "4000-5000元", Min: 4000, Max: 5000},
	{Label: "5000-8000元", Min: 5000, Max: 8000},
	{Label: "8000-12000元", Min: 8000, Max: 12000},
	{Label: "12000-15000元", Min: 12000, Max: 15000},
	{Label: "15000-20000元", Min: 15000, Max: 20000},
	{Label: "20000元以上", Min: 20000, Max: -1},
}

var CommuteOptions = []string{"30分钟内", "45分钟内", "1小时内", "1.5小时内", "2小时内", "2.5小时内", "3小时内"}

var LeaseTermOptions = []string{"日租", "周租", "月租", "季租", "半年租", "年租"}
