package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/llm"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/prompt"
	"github.com/raphaelgruber/portal-go/internal/render"
	"github.com/raphaelgruber/portal-go/internal/store"
)

func structured(v any) *models.InferenceResult {
	raw, _ := json.Marshal(v)
	return &models.InferenceResult{Raw: raw, FreeText: string(raw)}
}

func constInvoker(res *models.InferenceResult, err error) funcInvoker {
	return func(context.Context, models.PromptRequest) (*models.InferenceResult, error) {
		return res, err
	}
}

var composer = prompt.NewComposer(config.DefaultCatalog())

func stockRows(moats ...float64) []map[string]any {
	rows := make([]map[string]any, len(moats))
	for i, m := range moats {
		rows[i] = map[string]any{"ticker": string(rune('a' + i)), "moat": m}
	}
	return rows
}

func moats(stocks []render.Stock) []float64 {
	out := make([]float64, len(stocks))
	for i, s := range stocks {
		out[i] = s.Moat
	}
	return out
}

func TestStocks_AnalyzeAndFilter(t *testing.T) {
	res := structured(map[string]any{"market_summary": "Mixed", "stocks": stockRows(95, 60, 72, 45, 88)})
	stocks := NewStocksService(NewRunner(constInvoker(res, nil), nil), composer)
	ctx := context.Background()

	page, err := stocks.Analyze(ctx, "s", prompt.StockSelection{}, "Wide Moats")
	require.NoError(t, err)
	assert.Equal(t, []float64{95, 72, 88}, moats(page.Stocks))
	assert.Equal(t, "Wide Moats", page.Filter)
	assert.Equal(t, render.FilterAll, page.Presets[0].Name)

	all, err := stocks.Filter("s", "all", nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{95, 60, 72, 45, 88}, moats(all.Stocks), "filters apply to the kept analysis")

	low, err := stocks.Filter("s", "Low Risk", nil)
	require.NoError(t, err)
	assert.Len(t, low.Stocks, 5, "missing risk coerces to 0")

	_, err = stocks.Filter("s", "Moonshots", nil)
	assert.ErrorIs(t, err, ErrUnknownPreset)

	other, err := stocks.Filter("other-scope", "", nil)
	require.NoError(t, err)
	assert.True(t, other.Empty)
	assert.NotNil(t, other.Stocks)
}

func TestStocks_FilterGivenRows(t *testing.T) {
	stocks := NewStocksService(NewRunner(constInvoker(nil, nil), nil), composer)
	rows := []render.Stock{{Ticker: "A", Growth: 25}, {Ticker: "B", Growth: 5}}

	page, err := stocks.Filter("", "High Growth", rows)
	require.NoError(t, err)
	require.Len(t, page.Stocks, 1)
	assert.Equal(t, "A", page.Stocks[0].Ticker)
}

func TestForecast_MissingArraysRenderEmpty(t *testing.T) {
	markets := NewMarketsService(NewRunner(constInvoker(structured(map[string]any{"outlook": "Bearish"}), nil), nil), composer)

	page, err := markets.Forecast(context.Background(), "", prompt.MarketSelection{})
	require.NoError(t, err)
	assert.Nil(t, page.Error)
	assert.NotNil(t, page.Series)
	assert.Empty(t, page.Series)
	assert.True(t, page.Empty)
	assert.Equal(t, render.Placeholder, page.Summary)
}

func TestLearning_PathAndIdeas(t *testing.T) {
	inv := funcInvoker(func(_ context.Context, req models.PromptRequest) (*models.InferenceResult, error) {
		if strings.Contains(req.TopicText, "podcast episodes") {
			return structured(map[string]any{"episodes": []map[string]any{{"title": "Tides", "minutes": 12}, {"description": "no title"}}}), nil
		}
		return structured(map[string]any{"title": "Budgeting", "modules": []map[string]any{{"title": "Basics", "minutes": 15}}}), nil
	})
	learning := NewLearningService(NewRunner(inv, nil), composer)
	ctx := context.Background()

	path, err := learning.Path(ctx, "", prompt.LearningSelection{Subject: "Budgeting"})
	require.NoError(t, err)
	assert.Equal(t, "Budgeting", path.Title)
	require.Len(t, path.Modules, 1)
	assert.NotNil(t, path.Quiz)

	ideas, err := learning.Ideas(ctx, "", "oceans", 3)
	require.NoError(t, err)
	require.Len(t, ideas.Ideas, 1)
	assert.Equal(t, "Tides", ideas.Ideas[0].Title)
}

func TestChat_PersistsConversation(t *testing.T) {
	stores := store.NewMemoryStores(nil)
	var prompts []string
	inv := funcInvoker(func(_ context.Context, req models.PromptRequest) (*models.InferenceResult, error) {
		prompts = append(prompts, req.TopicText)
		return &models.InferenceResult{FreeText: "Assistant: Reply " + string(rune('0'+len(prompts)))}, nil
	})
	chat := NewChatService(NewRunner(inv, nil), composer, stores.Conversations, stores.ChatMessages, nil)
	ctx := context.Background()

	first, err := chat.Send(ctx, "", ChatRequest{Message: "What is on my list today?"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ConversationID)
	assert.Equal(t, "Reply 1", first.Reply)
	assert.NotEmpty(t, first.MessageID)

	second, err := chat.Send(ctx, "", ChatRequest{ConversationID: first.ConversationID, Message: "Thanks"})
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, second.ConversationID)
	assert.Contains(t, prompts[1], "User: What is on my list today?\nAssistant: Reply 1\nUser: Thanks")

	history, err := chat.History(ctx, first.ConversationID)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[3].Role)

	convs, err := chat.Conversations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "What is on my list today?", convs[0].Title)
}

func TestChat_Errors(t *testing.T) {
	stores := store.NewMemoryStores(nil)
	rateLimited := &llm.Error{Kind: llm.KindRateLimited, Err: assert.AnError}
	chat := NewChatService(NewRunner(constInvoker(nil, rateLimited), nil), composer, stores.Conversations, stores.ChatMessages, nil)
	ctx := context.Background()

	_, err := chat.Send(ctx, "", ChatRequest{Message: "  "})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)

	_, err = chat.Send(ctx, "", ChatRequest{ConversationID: "missing", Message: "hi"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	page, err := chat.Send(ctx, "", ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.NotNil(t, page.Error)
	assert.True(t, page.Empty)

	history, err := chat.History(ctx, page.ConversationID)
	require.NoError(t, err)
	assert.Len(t, history, 1, "the user's turn is kept for a retry")
}

func TestComms_DraftStoresOutboundMessage(t *testing.T) {
	stores := store.NewMemoryStores(nil)
	ctx := context.Background()
	ada, err := stores.Contacts.Create(ctx, &models.Contact{Name: "Ada", Phone: "+4312345", Company: "Analytical Co"})
	require.NoError(t, err)

	var got models.PromptRequest
	inv := funcInvoker(func(_ context.Context, req models.PromptRequest) (*models.InferenceResult, error) {
		got = req
		return structured(map[string]any{"subject": "ignored for sms", "body": "See you Friday!"}), nil
	})
	comms := NewCommsService(NewRunner(inv, nil), composer, stores.Contacts, stores.Messages, nil)

	page, err := comms.Draft(ctx, "", DraftRequest{ContactID: ada.ID, Purpose: "the Friday demo"})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelSMS, page.Channel, "contacts without email default to sms")
	assert.Equal(t, "See you Friday!", page.Body)
	assert.Empty(t, page.Subject)
	assert.Contains(t, got.TopicText, "Draft a short sms to Ada at Analytical Co about the Friday demo.")

	msgs, err := stores.Messages.List(ctx, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, page.MessageID, msgs[0].ID)
	assert.Equal(t, models.DirectionOutbound, msgs[0].Direction)
	assert.Equal(t, MessageDraft, msgs[0].Status)

	_, err = comms.Draft(ctx, "", DraftRequest{ContactID: "nope"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = comms.Draft(ctx, "", DraftRequest{ContactID: ada.ID, Channel: "fax"})
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}

func TestRecords_CRUD(t *testing.T) {
	records := NewRecordsService(store.NewMemoryStores(nil))
	ctx := context.Background()

	assert.Contains(t, records.Kinds(), models.KindCallLog)

	created, err := records.Create(ctx, models.KindTask, []byte(`{"title": "File taxes", "priority": "high"}`))
	require.NoError(t, err)
	task, ok := created.(*models.Task)
	require.True(t, ok)
	assert.Equal(t, models.TaskTodo, task.Status)

	list, err := records.List(ctx, models.KindTask, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, records.Delete(ctx, models.KindTask, task.ID))
	assert.ErrorIs(t, records.Delete(ctx, models.KindTask, task.ID), store.ErrNotFound)

	_, err = records.List(ctx, "invoice", store.ListOptions{})
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = records.Create(ctx, models.KindTask, []byte("null"))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
	_, err = records.Create(ctx, models.KindTask, []byte(`{"title": 5}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
	_, err = records.Create(ctx, models.KindContact, []byte(`{"name": "No Reach"}`))
	assert.ErrorIs(t, err, models.ErrInvalidRecord)
}
