// Package tts synthesizes narration audio through an HTTP text-to-speech
// provider and decodes the returned base64 audio.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/tidwall/gjson"
)

// Synthesizer turns text into base64-encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
}

// Client implements Synthesizer against a JSON HTTP endpoint.
type Client struct {
	endpoint string
	apiKey   string
	voice    string
	client   *http.Client
	retry    llm.RetryConfig
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// Compile-time check that Client implements Synthesizer.
var _ Synthesizer = (*Client)(nil)

// NewClient creates a TTS client. defaultVoice is used when a call passes
// an empty voice ID.
func NewClient(endpoint, apiKey, defaultVoice string, retry llm.RetryConfig, logger *slog.Logger, mc *metrics.Collector) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("TTS endpoint required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		voice:    defaultVoice,
		client:   &http.Client{Timeout: 2 * time.Minute},
		retry:    retry,
		logger:   logger,
		metrics:  mc,
	}, nil
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// Synthesize requests audio for text, retrying transient failures.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (string, error) {
	if voiceID == "" {
		voiceID = c.voice
	}
	body, err := json.Marshal(synthesizeRequest{Text: text, VoiceID: voiceID})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var audio string
	err = c.retry.Do(ctx, func() error {
		start := time.Now()
		defer func() { c.metrics.RecordTiming(metrics.OpTTSSynthesize, time.Since(start)) }()

		var err error
		audio, err = c.post(ctx, body)
		return err
	}, func(err error, wait time.Duration) {
		c.logger.Warn("tts request failed, retrying", "kind", llm.KindOf(err), "wait_ms", wait.Milliseconds(), "error", err)
	})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return audio, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if perr := llm.ClassifyPayload(respBody); perr != nil {
		return "", perr
	}
	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, respBody)
	}

	audio := gjson.GetBytes(respBody, "audio")
	if !audio.Exists() {
		audio = gjson.GetBytes(respBody, "audio_base64")
	}
	if audio.String() == "" {
		return "", &llm.Error{Kind: llm.KindMalformed, Err: errors.New("response has no audio")}
	}
	return audio.String(), nil
}

func classifyStatus(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200] + "..."
	}
	err := fmt.Errorf("TTS API error (status %d): %s", status, snippet)

	switch {
	case status == http.StatusTooManyRequests:
		return &llm.Error{Kind: llm.KindRateLimited, Err: err}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &llm.Error{Kind: llm.KindInvalidKey, Err: err}
	case status >= 500:
		return &llm.Error{Kind: llm.KindProvider, Err: err}
	default:
		return &llm.Error{Kind: llm.KindUnknown, Err: err}
	}
}
