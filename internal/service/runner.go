// Package service holds the page logic of the portal: each page composes a
// prompt, runs it through the Runner and renders the result into view state.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/render"
)

var (
	// ErrSuperseded is returned to a request overtaken by a newer one for the same key.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrNothingToRetry is returned when no failed request is recorded for a key.
	ErrNothingToRetry = errors.New("nothing to retry")
)

// Invoker runs one prompt request.
type Invoker interface {
	Invoke(ctx context.Context, req models.PromptRequest) (*models.InferenceResult, error)
}

// Page names, used as the second half of run keys.
const (
	PageForecast = "forecast"
	PageStocks   = "stocks"
	PageLearning = "learning"
	PageIdeas    = "ideas"
	PageChat     = "chat"
	PageDraft    = "draft"
)

// DefaultScope is used when a caller does not name one.
const DefaultScope = "default"

// Key joins a scope (one client's page lifetime) and a page name.
func Key(scope, page string) string {
	if scope == "" {
		scope = DefaultScope
	}
	return scope + "/" + page
}

// finishFunc turns a result, or the error panel of a failed call, into
// page state. Exactly one of res and panel is non-nil.
type finishFunc func(ctx context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (any, error)

type call struct {
	req    models.PromptRequest
	finish finishFunc
}

// Runner executes page requests. Requests are keyed by scope and page:
// a newer request cancels an older in-flight one with the same key, and
// the older completion is discarded even if it arrives later.
type Runner struct {
	invoker Invoker
	logger  *slog.Logger

	mu      sync.Mutex
	gens    map[string]uint64
	cancels map[string]context.CancelFunc
	failed  map[string]call
}

// NewRunner creates a Runner.
func NewRunner(invoker Invoker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		invoker: invoker,
		logger:  logger,
		gens:    make(map[string]uint64),
		cancels: make(map[string]context.CancelFunc),
		failed:  make(map[string]call),
	}
}

// run executes c under key.
func (r *Runner) run(ctx context.Context, key string, c call) (any, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.gens[key]++
	gen := r.gens[key]
	if prev, ok := r.cancels[key]; ok {
		prev()
	}
	r.cancels[key] = cancel
	r.mu.Unlock()

	start := time.Now()
	res, err := r.invoker.Invoke(runCtx, c.req)

	r.mu.Lock()
	stale := r.gens[key] != gen
	if !stale {
		delete(r.cancels, key)
		if err != nil {
			r.failed[key] = c
		} else {
			delete(r.failed, key)
		}
	}
	r.mu.Unlock()

	if stale {
		r.logger.Debug("discarding superseded result", "key", key)
		return nil, ErrSuperseded
	}
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var panel *render.ErrorPanel
	if err != nil {
		panel = render.PanelFor(err)
		panel.RetryKey = key
		r.logger.Warn("page request failed", "key", key, "kind", llm.KindOf(err), "error", err, "elapsed", time.Since(start))
	}
	return c.finish(ctx, res, panel)
}

// Retry re-issues the last failed request recorded for key, unchanged.
func (r *Runner) Retry(ctx context.Context, key string) (any, error) {
	r.mu.Lock()
	c, ok := r.failed[key]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNothingToRetry
	}
	r.logger.Info("retrying page request", "key", key)
	return r.run(ctx, key, c)
}

// CloseScope cancels every in-flight request of scope and forgets its
// failed requests. Late completions are discarded.
func (r *Runner) CloseScope(scope string) int {
	prefix := Key(scope, "")
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, cancel := range r.cancels {
		if strings.HasPrefix(key, prefix) {
			cancel()
			delete(r.cancels, key)
			n++
		}
	}
	for key := range r.gens {
		if strings.HasPrefix(key, prefix) {
			r.gens[key]++
		}
	}
	for key := range r.failed {
		if strings.HasPrefix(key, prefix) {
			delete(r.failed, key)
		}
	}
	return n
}

// runPage runs req under key and renders it with finish.
func runPage[P any](ctx context.Context, r *Runner, key string, req models.PromptRequest,
	finish func(ctx context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (P, error)) (P, error) {
	v, err := r.run(ctx, key, call{
		req: req,
		finish: func(ctx context.Context, res *models.InferenceResult, panel *render.ErrorPanel) (any, error) {
			return finish(ctx, res, panel)
		},
	})
	if err != nil {
		var zero P
		return zero, err
	}
	return v.(P), nil
}
