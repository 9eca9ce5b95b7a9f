package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/portal-go/internal/client"
	"github.com/raphaelgruber/portal-go/internal/render"
	"github.com/raphaelgruber/portal-go/internal/service"
)

// captureStdout swaps the package writer for the duration of a test.
func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestClock(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{-3, "0:00"},
		{9.6, "0:10"},
		{42, "0:42"},
		{61, "1:01"},
		{3600, "60:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clock(tt.seconds), "seconds=%v", tt.seconds)
	}
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		name string
		rec  map[string]any
		want string
	}{
		{"title first", map[string]any{"title": "File taxes", "name": "ignored"}, "File taxes"},
		{"falls through blanks", map[string]any{"title": "  ", "name": "Ada"}, "Ada"},
		{"collapses whitespace", map[string]any{"body": "line one\n\nline   two"}, "line one line two"},
		{"phone only", map[string]any{"phone_number": "+1555"}, "+1555"},
		{"nothing", map[string]any{"id": "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, headline(tt.rec))
		})
	}

	long := headline(map[string]any{"content": string(bytes.Repeat([]byte("a"), 100))})
	assert.Len(t, []rune(long), 60)
	assert.Equal(t, "...", long[len(long)-3:])
}

func TestParseSeek(t *testing.T) {
	req, err := parseSeek("50%")
	require.NoError(t, err)
	require.NotNil(t, req.Fraction)
	assert.InDelta(t, 0.5, *req.Fraction, 1e-9)
	assert.Nil(t, req.Seconds)

	req, err = parseSeek("21")
	require.NoError(t, err)
	require.NotNil(t, req.Seconds)
	assert.InDelta(t, 21.0, *req.Seconds, 1e-9)

	_, err = parseSeek("half")
	assert.Error(t, err)
	_, err = parseSeek("x%")
	assert.Error(t, err)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".wav", extensionFor("audio/wav"))
	assert.Equal(t, ".mp3", extensionFor("audio/mpeg"))
	assert.Equal(t, ".bin", extensionFor(""))
}

func TestPrintStocks(t *testing.T) {
	out := captureStdout(t)

	printStocks(&service.StocksPage{StocksView: render.StocksView{
		MarketSummary: "Calm markets.",
		Filter:        "Wide Moats",
		Stocks: []render.Stock{
			{Ticker: "MSFT", Price: 410.5, Moat: 95},
			{Ticker: "KO", Price: 60, Moat: 72},
		},
	}})

	s := out.String()
	assert.Contains(t, s, "Calm markets.")
	assert.Contains(t, s, "MSFT")
	assert.Contains(t, s, "410.50")
	assert.Contains(t, s, "KO")
	assert.Contains(t, s, "2 shown")
}

func TestPrintStocks_EmptyAndPanel(t *testing.T) {
	out := captureStdout(t)
	printStocks(&service.StocksPage{StocksView: render.StocksView{Filter: "Low Risk", Empty: true}})
	assert.Contains(t, out.String(), `No stocks match "Low Risk"`)

	out.Reset()
	printStocks(&service.StocksPage{Error: &render.ErrorPanel{
		Title:     "Too many requests",
		Message:   "Slow down.",
		Retryable: true,
		RetryKey:  "default/stocks",
	}})
	s := out.String()
	assert.Contains(t, s, "Too many requests")
	assert.Contains(t, s, "portal retry default/stocks")
	assert.NotContains(t, s, "shown")
}

func TestRunRetry_PrintsByPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/retry/alice/forecast", r.URL.Path)
		_ = json.NewEncoder(w).Encode(service.ForecastPage{ForecastView: render.ForecastView{
			Outlook: "bullish",
			Summary: "Up and to the right.",
		}})
	}))
	defer srv.Close()

	prev := apiClient
	apiClient = client.New(srv.URL)
	t.Cleanup(func() { apiClient = prev })
	out := captureStdout(t)

	require.NoError(t, runRetry(retryCmd, []string{"alice/forecast"}))
	assert.Contains(t, out.String(), "bullish")
	assert.Contains(t, out.String(), "Up and to the right.")
}
