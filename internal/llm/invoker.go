package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/models"
)

const (
	schemaInstruction = "Respond with a single JSON object that matches this JSON Schema. Do not add any text outside the JSON object."
	currentInfoSystem = "Ground your answer in the most recent real-world information you have and state the as-of date of your data where it matters."
)

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	// MaxAttempts includes the first call. Values below 1 mean one attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryConfigFrom reads the retry policy from configuration.
func RetryConfigFrom(cfg config.Config) RetryConfig {
	return RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}
}

func (rc RetryConfig) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if rc.BaseDelay > 0 {
		b.InitialInterval = rc.BaseDelay
	}
	if rc.MaxDelay > 0 {
		b.MaxInterval = rc.MaxDelay
	}
	b.MaxElapsedTime = 0

	retries := rc.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs op until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. onRetry may be nil. The returned
// error is classified.
func (rc RetryConfig) Do(ctx context.Context, op func() error, onRetry func(err error, wait time.Duration)) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		err = Classify(err)
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if onRetry == nil {
		onRetry = func(error, time.Duration) {}
	}
	return Classify(backoff.RetryNotify(wrapped, rc.policy(ctx), onRetry))
}

// Invoker turns prompt requests into inference results.
type Invoker struct {
	gen     Generator
	retry   RetryConfig
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewInvoker creates an invoker. logger and mc may be nil.
func NewInvoker(gen Generator, retry RetryConfig, logger *slog.Logger, mc *metrics.Collector) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{gen: gen, retry: retry, logger: logger, metrics: mc}
}

// Invoke runs one request. Transient failures are retried with bounded
// exponential backoff; the returned error is always an *Error.
func (inv *Invoker) Invoke(ctx context.Context, req models.PromptRequest) (*models.InferenceResult, error) {
	system, prompt := buildMessages(req)
	structured := req.Structured()
	result := &models.InferenceResult{
		RequestID: uuid.NewString(),
		Model:     inv.gen.Model(),
	}

	attempt := 0
	op := func() error {
		attempt++
		return inv.attempt(ctx, system, prompt, structured, result)
	}

	notify := func(err error, wait time.Duration) {
		inv.metrics.Count(metrics.OpLLMRetry)
		inv.logger.Warn("inference attempt failed, retrying",
			"request_id", result.RequestID,
			"attempt", attempt,
			"kind", KindOf(err),
			"wait_ms", wait.Milliseconds(),
			"error", err)
	}

	if err := inv.retry.Do(ctx, op, notify); err != nil {
		inv.logger.Error("inference failed",
			"request_id", result.RequestID,
			"attempts", attempt,
			"kind", KindOf(err),
			"error", err)
		return nil, fmt.Errorf("invoke: %w", err)
	}

	inv.logger.Debug("inference complete",
		"request_id", result.RequestID,
		"attempts", attempt,
		"structured", structured)
	return result, nil
}

// attempt makes exactly one outbound call and fills result on success.
func (inv *Invoker) attempt(ctx context.Context, system, prompt string, structured bool, result *models.InferenceResult) error {
	start := time.Now()
	c, err := inv.gen.Generate(ctx, system, prompt, structured)
	if err != nil {
		inv.metrics.RecordTiming(metrics.OpLLMGenerate, time.Since(start))
		return Classify(err)
	}
	inv.metrics.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start), c.InputTokens, c.OutputTokens)

	text := strings.TrimSpace(c.Text)
	if perr := ClassifyPayload([]byte(text)); perr != nil {
		return perr
	}

	if !structured {
		result.FreeText = text
		return nil
	}

	raw := ExtractJSON(text)
	var fields map[string]any
	if raw == "" || json.Unmarshal([]byte(raw), &fields) != nil || fields == nil {
		return &Error{Kind: KindMalformed, Err: errors.New("response is not a JSON object")}
	}
	result.FreeText = text
	result.Raw = json.RawMessage(raw)
	result.Fields = fields
	return nil
}

func buildMessages(req models.PromptRequest) (system, prompt string) {
	var sys []string
	if req.System != "" {
		sys = append(sys, req.System)
	}
	if req.WantsInternetContext {
		sys = append(sys, currentInfoSystem)
	}

	prompt = req.TopicText
	if req.Structured() {
		prompt += "\n\n" + schemaInstruction + "\n" + req.Schema.String()
	}
	return strings.Join(sys, "\n\n"), prompt
}
