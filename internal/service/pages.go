package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/render"
)

// ErrUnknownPreset is returned for a stock filter preset not in the catalog.
var ErrUnknownPreset = errors.New("unknown filter preset")

// ForecastPage is the markets page state.
type ForecastPage struct {
	render.ForecastView
	Error *render.ErrorPanel `json:"error,omitempty"`
}

// MarketsService drives the markets forecast page.
type MarketsService struct {
	runner   *Runner
	composer *prompt.Composer
}

// NewMarketsService creates a MarketsService.
func NewMarketsService(runner *Runner, composer *prompt.Composer) *MarketsService {
	return &MarketsService{runner: runner, composer: composer}
}

// Forecast requests and renders a market forecast for sel.
func (s *MarketsService) Forecast(ctx context.Context, scope string, sel prompt.MarketSelection) (*ForecastPage, error) {
	req := s.composer.MarketForecast(sel)
	return runPage(ctx, s.runner, Key(scope, PageForecast), req,
		func(_ context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (*ForecastPage, error) {
			if panel != nil {
				return &ForecastPage{Error: panel}, nil
			}
			return &ForecastPage{ForecastView: render.Forecast(render.FromResult(res))}, nil
		})
}

// StocksPage is the stock analytics page state.
type StocksPage struct {
	render.StocksView
	Presets []config.FilterPreset `json:"presets"`
	Error   *render.ErrorPanel    `json:"error,omitempty"`
}

// StocksService drives the stock analytics page. The last analysis of
// each scope is kept so filters can be switched without a new request.
type StocksService struct {
	runner   *Runner
	composer *prompt.Composer

	mu   sync.RWMutex
	last map[string]render.StocksView
}

// NewStocksService creates a StocksService.
func NewStocksService(runner *Runner, composer *prompt.Composer) *StocksService {
	return &StocksService{runner: runner, composer: composer, last: make(map[string]render.StocksView)}
}

// Presets returns the filter presets, "All" first.
func (s *StocksService) Presets() []config.FilterPreset {
	presets := []config.FilterPreset{{Name: render.FilterAll}}
	return append(presets, s.composer.Catalog().Stocks.Filters...)
}

// Analyze requests a stock analysis and applies the named filter preset.
func (s *StocksService) Analyze(ctx context.Context, scope string, sel prompt.StockSelection, filter string) (*StocksPage, error) {
	preset, ok := render.FindPreset(s.composer.Catalog().Stocks.Filters, orAll(filter))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, filter)
	}

	req := s.composer.StockAnalysis(sel)
	return runPage(ctx, s.runner, Key(scope, PageStocks), req,
		func(_ context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (*StocksPage, error) {
			if panel != nil {
				return &StocksPage{Presets: s.Presets(), Error: panel}, nil
			}
			view := render.Stocks(render.FromResult(res))
			s.mu.Lock()
			s.last[scopeOf(scope)] = view
			s.mu.Unlock()
			return &StocksPage{StocksView: applyPreset(view, preset), Presets: s.Presets()}, nil
		})
}

// Filter re-filters the scope's last analysis, or stocks when given.
func (s *StocksService) Filter(scope, filter string, stocks []render.Stock) (*StocksPage, error) {
	preset, ok := render.FindPreset(s.composer.Catalog().Stocks.Filters, orAll(filter))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, filter)
	}

	view := render.StocksView{Stocks: stocks}
	if stocks == nil {
		s.mu.RLock()
		view = s.last[scopeOf(scope)]
		s.mu.RUnlock()
	}
	return &StocksPage{StocksView: applyPreset(view, preset), Presets: s.Presets()}, nil
}

func applyPreset(view render.StocksView, preset config.FilterPreset) render.StocksView {
	view.Stocks = render.FilterStocks(view.Stocks, preset)
	view.Filter = preset.Name
	view.Empty = len(view.Stocks) == 0
	return view
}

func orAll(filter string) string {
	if strings.TrimSpace(filter) == "" {
		return render.FilterAll
	}
	return filter
}

func scopeOf(scope string) string {
	if scope == "" {
		return DefaultScope
	}
	return scope
}

// LearningPage is the learning content page state.
type LearningPage struct {
	render.LearningPathView
	Error *render.ErrorPanel `json:"error,omitempty"`
}

// IdeasPage lists suggested podcast episodes.
type IdeasPage struct {
	render.IdeasView
	Error *render.ErrorPanel `json:"error,omitempty"`
}

// LearningService drives the learning page and episode suggestions.
type LearningService struct {
	runner   *Runner
	composer *prompt.Composer
}

// NewLearningService creates a LearningService.
func NewLearningService(runner *Runner, composer *prompt.Composer) *LearningService {
	return &LearningService{runner: runner, composer: composer}
}

// Path requests a learning path for sel.
func (s *LearningService) Path(ctx context.Context, scope string, sel prompt.LearningSelection) (*LearningPage, error) {
	req := s.composer.LearningPath(sel)
	return runPage(ctx, s.runner, Key(scope, PageLearning), req,
		func(_ context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (*LearningPage, error) {
			if panel != nil {
				return &LearningPage{Error: panel}, nil
			}
			return &LearningPage{LearningPathView: render.LearningPath(render.FromResult(res))}, nil
		})
}

// Ideas suggests podcast episodes around interest.
func (s *LearningService) Ideas(ctx context.Context, scope, interest string, count int) (*IdeasPage, error) {
	req := s.composer.EpisodeIdeas(interest, count)
	return runPage(ctx, s.runner, Key(scope, PageIdeas), req,
		func(_ context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (*IdeasPage, error) {
			if panel != nil {
				return &IdeasPage{Error: panel}, nil
			}
			return &IdeasPage{IdeasView: render.Ideas(render.FromResult(res))}, nil
		})
}
