package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog holds the selectable options and fallbacks shown on each page.
// Prompts fall back to these values when a selection set is empty.
type Catalog struct {
	Markets  MarketsCatalog  `yaml:"markets"`
	Stocks   StocksCatalog   `yaml:"stocks"`
	Learning LearningCatalog `yaml:"learning"`
	Podcast  PodcastCatalog  `yaml:"podcast"`
}

// MarketsCatalog lists forecast options.
type MarketsCatalog struct {
	DefaultTopic    string   `yaml:"default_topic"`
	Domains         []string `yaml:"domains"`
	Countries       []string `yaml:"countries"`
	Models          []string `yaml:"models"`
	Horizons        []string `yaml:"horizons"`
	DefaultDomains  []string `yaml:"default_domains"`
	DefaultHorizons []string `yaml:"default_horizons"`
}

// StocksCatalog lists the analytics universe and filter presets.
type StocksCatalog struct {
	DefaultUniverse []string       `yaml:"default_universe"`
	Filters         []FilterPreset `yaml:"filters"`
}

// FilterPreset is a named threshold filter over a numeric stock metric.
type FilterPreset struct {
	Name      string  `yaml:"name" json:"name"`
	Metric    string  `yaml:"metric" json:"metric,omitempty"`
	Op        string  `yaml:"op" json:"op,omitempty"` // ">=" or "<="
	Threshold float64 `yaml:"threshold" json:"threshold,omitempty"`
}

// LearningCatalog lists learning page options.
type LearningCatalog struct {
	DefaultSubject string `yaml:"default_subject"`
	DefaultLevel   string `yaml:"default_level"`
}

// PodcastCatalog lists podcast page options.
type PodcastCatalog struct {
	DefaultTopic string   `yaml:"default_topic"`
	Topics       []string `yaml:"topics"`
	Voices       []string `yaml:"voices"`
	Sentences    int      `yaml:"sentences"`
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Markets: MarketsCatalog{
			DefaultTopic:    "Global Markets Overview",
			Domains:         []string{"Equities", "Bonds", "Commodities", "Currencies", "Crypto"},
			Countries:       []string{"United States", "Germany", "Japan", "United Kingdom", "China"},
			Models:          []string{"Consensus", "Momentum", "Mean Reversion"},
			Horizons:        []string{"1 month", "3 months", "6 months", "1 year"},
			DefaultDomains:  []string{"Equities"},
			DefaultHorizons: []string{"3 months"},
		},
		Stocks: StocksCatalog{
			DefaultUniverse: []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"},
			Filters: []FilterPreset{
				{Name: "Wide Moats", Metric: "moat", Op: ">=", Threshold: 70},
				{Name: "High Growth", Metric: "growth", Op: ">=", Threshold: 20},
				{Name: "Undervalued", Metric: "upside", Op: ">=", Threshold: 15},
				{Name: "Low Risk", Metric: "risk", Op: "<=", Threshold: 30},
			},
		},
		Learning: LearningCatalog{
			DefaultSubject: "Personal Finance Basics",
			DefaultLevel:   "beginner",
		},
		Podcast: PodcastCatalog{
			DefaultTopic: "Mindfulness Meditation",
			Topics: []string{
				"Mindfulness Meditation",
				"The History of Money",
				"How Interest Rates Work",
				"Sleep and Productivity",
			},
			Voices:    []string{"narrator", "host-a", "host-b"},
			Sentences: 12,
		},
	}
}

// LoadCatalog reads a YAML catalog from path, layered over the defaults.
// An empty path returns the defaults.
func LoadCatalog(path string) (Catalog, error) {
	cat := DefaultCatalog()
	if path == "" {
		return cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cat, fmt.Errorf("read catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return cat, fmt.Errorf("parse catalog: %w", err)
	}
	for _, f := range cat.Stocks.Filters {
		if f.Op != ">=" && f.Op != "<=" {
			return cat, fmt.Errorf("filter %q: unsupported op %q", f.Name, f.Op)
		}
	}
	return cat, nil
}
