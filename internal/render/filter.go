package render

import (
	"strings"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/samber/lo"
)

// FilterAll is the preset name that keeps every stock.
const FilterAll = "All"

// FindPreset looks up a filter preset by case-insensitive name.
// FilterAll always resolves.
func FindPreset(presets []config.FilterPreset, name string) (config.FilterPreset, bool) {
	if strings.EqualFold(strings.TrimSpace(name), FilterAll) {
		return config.FilterPreset{Name: FilterAll}, true
	}
	return lo.Find(presets, func(p config.FilterPreset) bool {
		return strings.EqualFold(p.Name, strings.TrimSpace(name))
	})
}

// FilterStocks keeps the stocks matching preset, preserving their order.
// A preset without a metric keeps everything.
func FilterStocks(stocks []Stock, preset config.FilterPreset) []Stock {
	if preset.Metric == "" {
		return append([]Stock{}, stocks...)
	}
	return lo.Filter(stocks, func(s Stock, _ int) bool {
		v, ok := s.Metric(preset.Metric)
		if !ok {
			return false
		}
		switch preset.Op {
		case "<=":
			return v <= preset.Threshold
		default:
			return v >= preset.Threshold
		}
	})
}
