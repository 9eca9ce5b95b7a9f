package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = llm.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Collector) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	mc := metrics.NewCollector()
	c, err := NewClient(srv.URL, "secret", "narrator", fastRetry, nil, mc)
	require.NoError(t, err)
	return c, mc
}

func TestClient_Synthesize(t *testing.T) {
	var got synthesizeRequest
	c, mc := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"audio":"UklGRg=="}`))
	})

	audio, err := c.Synthesize(context.Background(), "Hello world.", "")
	require.NoError(t, err)

	assert.Equal(t, "UklGRg==", audio)
	assert.Equal(t, "Hello world.", got.Text)
	assert.Equal(t, "narrator", got.VoiceID, "empty voice falls back to default")
	require.NotNil(t, mc.Snapshot().TTSSynthesize)
	assert.Equal(t, int64(1), mc.Snapshot().TTSSynthesize.Count)
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"audio_base64":"QUJD"}`))
	})

	audio, err := c.Synthesize(context.Background(), "x", "host-a")
	require.NoError(t, err)
	assert.Equal(t, "QUJD", audio)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantKind  llm.Kind
		wantCalls int32
	}{
		{"error payload", http.StatusOK, `{"error":"rate_limited"}`, llm.KindRateLimited, 3},
		{"unauthorized", http.StatusUnauthorized, `nope`, llm.KindInvalidKey, 1},
		{"server error", http.StatusBadGateway, `upstream`, llm.KindProvider, 3},
		{"missing audio", http.StatusOK, `{"status":"ok"}`, llm.KindMalformed, 3},
		{"bad request", http.StatusBadRequest, `{"detail":"text too long"}`, llm.KindUnknown, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Synthesize(context.Background(), "x", "")
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, llm.KindOf(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient("", "", "", llm.RetryConfig{}, nil, nil)
	assert.Error(t, err)
}
