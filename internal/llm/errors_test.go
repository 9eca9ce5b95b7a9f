package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"canceled", context.Canceled, KindCanceled},
		{"wrapped deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), KindTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindTransport},
		{"connection reset", errors.New("read: connection reset by peer"), KindTransport},
		{"rate limit", errors.New("rate limit exceeded"), KindRateLimited},
		{"429 status", errors.New("API returned unexpected status code: 429"), KindRateLimited},
		{"credit balance", errors.New("insufficient credit balance"), KindQuota},
		{"invalid api key", errors.New("invalid api key"), KindInvalidKey},
		{"403 status", errors.New("HTTP 403: forbidden"), KindInvalidKey},
		{"content filter", errors.New("blocked by content_filter"), KindContentPolicy},
		{"overloaded", errors.New("overloaded_error: Overloaded"), KindProvider},
		{"unknown", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_PassesThroughClassified(t *testing.T) {
	orig := &Error{Kind: KindContentPolicy, Err: errors.New("rate limit")}
	assert.Same(t, orig, Classify(orig))
	assert.Nil(t, Classify(nil))
}

func TestKind_Retryable(t *testing.T) {
	for _, k := range []Kind{KindTransport, KindTimeout, KindRateLimited, KindProvider, KindMalformed} {
		assert.True(t, k.Retryable(), k)
	}
	for _, k := range []Kind{KindInvalidKey, KindQuota, KindContentPolicy, KindCanceled, KindUnknown} {
		assert.False(t, k.Retryable(), k)
	}
}

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{"string code", `{"error":"rate_limited"}`, KindRateLimited},
		{"object type", `{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`, KindInvalidKey},
		{"object message only", `{"error":{"message":"You exceeded your current quota"}}`, KindQuota},
		{"unrecognized code", `{"error":"boom"}`, KindProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyPayload([]byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, tt.want, KindOf(err))
		})
	}

	t.Run("no error", func(t *testing.T) {
		assert.NoError(t, ClassifyPayload([]byte(`{"title":"ok"}`)))
		assert.NoError(t, ClassifyPayload([]byte(`{"error":null}`)))
		assert.NoError(t, ClassifyPayload([]byte("plain text")))
	})
}
