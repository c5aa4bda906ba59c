package matcher

import (
	"strconv"
	"strings"

	"housefinder/server/config"
	"housefinder/server/internal/facets"
	"housefinder/server/internal/models"
)

const (
	queryPrefix = "请根据以下综合条件筛选最佳匹配的房源: "
	querySuffix = "。请特别注意目的地通勤时间和价格要求。"
)

// Clauses renders the active facets and destination as human-readable criteria.
func Clauses(f facets.Facets, dest *models.Destination) []string {
	f = f.Normalize()
	clauses := []string{"交易类型: 租房"}

	if f.HasRegion() {
		var region strings.Builder
		for _, level := range []string{f.Province, f.City, f.District} {
			if level != config.All {
				region.WriteString(level)
			}
		}
		clauses = append(clauses, "区域: "+region.String())
	}
	if f.Category != config.All {
		clauses = append(clauses, "房型: "+f.Category)
	}
	if f.HasCustomPrice() {
		clauses = append(clauses, "价格范围: "+formatRange(f.PriceRange()))
	} else if f.HasPrice() {
		clauses = append(clauses, "价格范围: "+f.PriceBracket)
	}
	if f.Commute != config.Unlimited {
		clauses = append(clauses, "通勤时间要求: "+f.Commute)
	}
	if f.LeaseTerm != config.Unlimited {
		clauses = append(clauses, "租赁方式: "+f.LeaseTerm)
	}
	if req := strings.TrimSpace(f.Requirements); req != "" {
		clauses = append(clauses, "其他自定义需求: "+req)
	}

	if dest != nil && dest.Name != "" {
		if dest.HasPoint() {
			clauses = append(clauses, "目的地: "+dest.Name+" (坐标: "+
				formatFloat(dest.Point.Lat)+", "+formatFloat(dest.Point.Lng)+")")
		} else {
			clauses = append(clauses, "目的地: "+dest.Name)
		}
	}

	return clauses
}

// BuildQuery composes the query string sent to the matcher.
func BuildQuery(f facets.Facets, dest *models.Destination) string {
	return queryPrefix + strings.Join(Clauses(f, dest), "; ") + querySuffix
}

func formatRange(r facets.PriceRange) string {
	switch {
	case r.Min >= 0 && r.Max >= 0:
		return formatFloat(r.Min) + "-" + formatFloat(r.Max) + "元"
	case r.Max >= 0:
		return formatFloat(r.Max) + "元以下"
	default:
		return formatFloat(r.Min) + "元以上"
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
