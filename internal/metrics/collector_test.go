package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordTiming(t *testing.T) {
	c := NewCollector()

	c.RecordTiming(OpStoreQuery, 10*time.Millisecond)
	c.RecordTiming(OpStoreQuery, 30*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.StoreQuery)
	assert.Equal(t, int64(2), snap.StoreQuery.Count)
	assert.Equal(t, int64(10), snap.StoreQuery.MinTimeMs)
	assert.Equal(t, int64(30), snap.StoreQuery.MaxTimeMs)
	assert.InDelta(t, 20.0, snap.StoreQuery.AvgTimeMs, 0.001)
	assert.Nil(t, snap.StoreMutate, "operations without data are omitted")
}

func TestCollector_RecordLLMUsage(t *testing.T) {
	c := NewCollector()

	c.RecordLLMUsage(OpLLMGenerate, time.Second, 100, 40)
	c.RecordLLMUsage(OpLLMGenerate, 3*time.Second, 300, 60)

	snap := c.Snapshot().LLMGenerate
	require.NotNil(t, snap)
	require.NotNil(t, snap.TotalInputTokens)
	assert.Equal(t, int64(400), *snap.TotalInputTokens)
	assert.Equal(t, int64(100), *snap.TotalOutputTokens)
	assert.Equal(t, int64(100), *snap.MinInputTokens)
	assert.Equal(t, int64(60), *snap.MaxOutputTokens)
	assert.InDelta(t, 200.0, *snap.AvgInputTokens, 0.001)
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector()

	c.AddGauge(GaugeLiveBuffers, 1)
	c.AddGauge(GaugeLiveBuffers, 1)
	c.AddGauge(GaugeLiveBuffers, -1)
	c.AddGauge(GaugeActiveSessions, 1)

	snap := c.Snapshot()
	assert.Equal(t, int64(1), snap.LiveBuffers)
	assert.Equal(t, int64(1), snap.ActiveSessions)
}

func TestCollector_NilIsSafe(t *testing.T) {
	var c *Collector

	c.RecordTiming(OpStoreQuery, time.Millisecond)
	c.RecordLLMUsage(OpLLMGenerate, time.Millisecond, 1, 1)
	c.Count(OpCacheHit)
	c.AddGauge(GaugeLiveBuffers, 1)

	assert.Equal(t, Snapshot{}, c.Snapshot())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpLLMGenerate, 250*time.Millisecond, 10, 5)
	c.AddGauge(GaugeActiveSessions, 2)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `portal_operation_duration_seconds_count{op="llm_generate"} 1`)
	assert.Contains(t, body, "portal_llm_input_tokens_total 10")
	assert.Contains(t, body, `portal_resources{name="active_sessions"} 2`)
}
