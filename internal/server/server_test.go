package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/metrics"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/podcast"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/server"
	"github.com/raphaelgruber/portal-go/internal/service"
	"github.com/raphaelgruber/portal-go/internal/store"
	"github.com/raphaelgruber/portal-go/internal/tts"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// scriptedInvoker answers by the first matching substring of the prompt.
// A queued error is returned once before answers resume.
type scriptedInvoker struct {
	mu      sync.Mutex
	errs    []error
	answers map[string]string
}

func (s *scriptedInvoker) Invoke(_ context.Context, req models.PromptRequest) (*models.InferenceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	for frag, answer := range s.answers {
		if strings.Contains(req.TopicText, frag) {
			return &models.InferenceResult{Raw: json.RawMessage(answer), FreeText: answer}, nil
		}
	}
	return &models.InferenceResult{FreeText: "Assistant: Noted."}, nil
}

func (s *scriptedInvoker) failNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

type testEnv struct {
	srv     *httptest.Server
	invoker *scriptedInvoker
	podcast *podcast.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	inv := &scriptedInvoker{answers: map[string]string{
		"market forecast": `{"summary": "Calm", "outlook": "Bullish", "confidence": 64, "series": [{"label": "S&P 500", "value": 4.2}]}`,
		"Analyze these stocks": `{"market_summary": "Mixed", "stocks": [
			{"ticker": "a", "moat": 95}, {"ticker": "b", "moat": 60}, {"ticker": "c", "moat": 72},
			{"ticker": "d", "moat": 45}, {"ticker": "e", "moat": 88}]}`,
		"complete sentences": `{"title": "Tides", "script": "The sea rises. The sea falls. The moon pulls. We listen."}`,
	}}
	logger := testLogger()
	mc := metrics.NewCollector()
	composer := prompt.NewComposer(config.DefaultCatalog())
	stores := store.NewMemoryStores(mc)
	runner := service.NewRunner(inv, logger)

	pod := podcast.NewService(podcast.Options{
		Composer:       composer,
		Invoker:        inv,
		Synthesizer:    tts.Silent{SampleRate: 1000},
		Episodes:       stores.Episodes,
		Logger:         logger,
		Metrics:        mc,
		AutoplayDelay:  time.Hour,
		SessionOptions: []playback.Option{playback.WithTickInterval(time.Hour)},
	})

	svc := server.Services{
		Runner:   runner,
		Markets:  service.NewMarketsService(runner, composer),
		Stocks:   service.NewStocksService(runner, composer),
		Learning: service.NewLearningService(runner, composer),
		Chat:     service.NewChatService(runner, composer, stores.Conversations, stores.ChatMessages, logger),
		Comms:    service.NewCommsService(runner, composer, stores.Contacts, stores.Messages, logger),
		Records:  service.NewRecordsService(stores),
		Podcast:  pod,
	}
	ts := httptest.NewServer(server.New("test", svc, mc, logger).Handler())
	t.Cleanup(func() {
		ts.Close()
		require.NoError(t, pod.Shutdown(context.Background()))
	})
	return &testEnv{srv: ts, invoker: inv, podcast: pod}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(server.ScopeHeader, "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeJSON[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthStatsAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
	assert.NotEmpty(t, resp.Header.Get(server.RequestIDHeader))

	env.do(t, http.MethodGet, "/api/records/task", "")

	resp, body = env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decodeJSON[map[string]any](t, body)
	assert.Equal(t, "test", stats["version"])
	assert.Contains(t, stats["metrics"], "store_query")

	resp, body = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "portal_")
}

func TestForecast_ErrorPanelThenRetry(t *testing.T) {
	env := newTestEnv(t)
	env.invoker.failNext(&llm.Error{Kind: llm.KindRateLimited, Err: assert.AnError})

	resp, body := env.do(t, http.MethodPost, "/api/markets/forecast", `{"domains": ["Bonds"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, "failed pages still answer 200")
	page := decodeJSON[service.ForecastPage](t, body)
	require.NotNil(t, page.Error)
	assert.Equal(t, "rate_limited", page.Error.Code)
	assert.Equal(t, "alice/forecast", page.Error.RetryKey)

	resp, body = env.do(t, http.MethodPost, "/api/retry/"+page.Error.RetryKey, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page = decodeJSON[service.ForecastPage](t, body)
	assert.Nil(t, page.Error)
	assert.Equal(t, "bullish", page.Outlook)
	require.Len(t, page.Series, 1)

	resp, _ = env.do(t, http.MethodPost, "/api/retry/alice/forecast", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStocks_AnalyzeThenFilter(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/stocks/analyze", `{"tickers": ["a"], "filter": "Wide Moats"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decodeJSON[service.StocksPage](t, body)
	tickers := func(p service.StocksPage) []string {
		out := []string{}
		for _, s := range p.Stocks {
			out = append(out, s.Ticker)
		}
		return out
	}
	assert.Equal(t, []string{"A", "C", "E"}, tickers(page))

	resp, body = env.do(t, http.MethodPost, "/api/stocks/filter", `{"filter": "All"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[service.StocksPage](t, body).Stocks, 5)

	resp, _ = env.do(t, http.MethodPost, "/api/stocks/filter", `{"filter": "Moonshots"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/stocks/analyze", `{"tickers": `)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRecords_CRUD(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/records/contact", `{"name": "Ada", "email": "ada@example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	contact := decodeJSON[models.Contact](t, body)
	require.NotEmpty(t, contact.ID)

	resp, body = env.do(t, http.MethodGet, "/api/records/contact?limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]models.Contact](t, body), 1)

	resp, _ = env.do(t, http.MethodPost, "/api/records/contact", `{"id": "`+contact.ID+`", "name": "Ada", "email": "a@b.c"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/records/contact", `{"name": "Nobody"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/records/task", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/records/invoice", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/records/task?sort=-bad%20field", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/records/contact/"+contact.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/records/contact/"+contact.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestChatAndDraft(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/chat", `{"message": "Hello"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	chat := decodeJSON[service.ChatPage](t, body)
	assert.Equal(t, "Noted.", chat.Reply)

	resp, body = env.do(t, http.MethodGet, "/api/chat/conversations/"+chat.ConversationID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeJSON[[]models.ChatMessage](t, body), 2)

	resp, _ = env.do(t, http.MethodPost, "/api/comms/draft", `{"contact_id": "missing"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func waitForState(t *testing.T, env *testEnv, id string, want playback.State) server.SessionView {
	t.Helper()
	var view server.SessionView
	require.Eventually(t, func() bool {
		_, body := env.do(t, http.MethodGet, "/api/podcast/sessions/"+id, "")
		view = decodeJSON[server.SessionView](t, body)
		return view.State == want
	}, 5*time.Second, 10*time.Millisecond)
	return view
}

func TestPodcast_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/podcast/sessions", `{"topic": "Oceans", "sentences": 4}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	opened := decodeJSON[server.SessionView](t, body)
	assert.Equal(t, "Oceans", opened.Topic)

	ready := waitForState(t, env, opened.ID, playback.StateReady)
	assert.Equal(t, "Tides", ready.Title)
	require.Len(t, ready.Sentences, 4)
	require.Greater(t, ready.DurationSeconds, 0.0)

	resp, body = env.do(t, http.MethodPost, "/api/podcast/sessions/"+opened.ID+"/seek", `{"fraction": 0.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, 2, decodeJSON[server.SessionView](t, body).Index)

	resp, body = env.do(t, http.MethodPost, "/api/podcast/sessions/"+opened.ID+"/seek", `{"seconds": 1e12}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	end := decodeJSON[server.SessionView](t, body)
	assert.Equal(t, end.DurationSeconds, end.PositionSeconds, "huge seeks clamp to the end")
	assert.Equal(t, 3, end.Index)

	resp, body = env.do(t, http.MethodPost, "/api/podcast/sessions/"+opened.ID+"/volume", `{"volume": 250}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, playback.MaxVolume, decodeJSON[server.SessionView](t, body).Volume)

	resp, _ = env.do(t, http.MethodPost, "/api/podcast/sessions/"+opened.ID+"/dance", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/podcast/sessions/"+opened.ID+"/audio", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/"))
	assert.True(t, bytes.HasPrefix(body, []byte("RIFF")))

	resp, _ = env.do(t, http.MethodDelete, "/api/podcast/sessions/"+opened.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/podcast/sessions/"+opened.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPodcast_EventsOverWebSocket(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/api/podcast/sessions", `{"topic": "Oceans"}`)
	id := decodeJSON[server.SessionView](t, body).ID
	waitForState(t, env, id, playback.StateReady)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/podcast/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first playback.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, playback.StateReady, first.Snapshot.State)

	resp, _ := env.do(t, http.MethodPost, "/api/podcast/sessions/"+id+"/play", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for {
		var ev playback.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == playback.EventState && ev.Snapshot.State == playback.StatePlaying {
			break
		}
	}

	// Closing publishes a final idle state before the close frame.
	require.NoError(t, env.podcast.Close(id))
	var last playback.Event
	for {
		var ev playback.Event
		if err = conn.ReadJSON(&ev); err != nil {
			break
		}
		last = ev
	}
	assert.Equal(t, playback.StateIdle, last.Snapshot.State)

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}
