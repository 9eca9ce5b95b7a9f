package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// badFragments must never appear in a composed prompt.
var badFragments = []string{"undefined", "NaN", "<nil>", "%!", ", ,", ": .", "\"\"", "[]"}

func assertWellFormed(t *testing.T, req models.PromptRequest) {
	t.Helper()
	require.NotEmpty(t, strings.TrimSpace(req.TopicText))
	for _, frag := range badFragments {
		assert.NotContains(t, req.TopicText, frag)
	}
	if req.Schema != nil {
		var js map[string]any
		require.NoError(t, json.Unmarshal([]byte(req.Schema.String()), &js), "schema renders as JSON")
	}
}

func TestComposer_EmptySelectionsStayValid(t *testing.T) {
	catalogs := map[string]config.Catalog{
		"default catalog": config.DefaultCatalog(),
		"empty catalog":   {},
	}

	for name, cat := range catalogs {
		t.Run(name, func(t *testing.T) {
			c := NewComposer(cat)
			reqs := map[string]models.PromptRequest{
				"forecast":     c.MarketForecast(MarketSelection{}),
				"stocks":       c.StockAnalysis(StockSelection{}),
				"episode":      c.EpisodeScript("", 0),
				"continuation": c.EpisodeContinuation("", nil, 0),
				"ideas":        c.EpisodeIdeas("", 0),
				"learning":     c.LearningPath(LearningSelection{}),
				"chat":         c.ChatReply(nil, ""),
				"draft":        c.MessageDraft(DraftSelection{}),
			}
			for kind, req := range reqs {
				t.Run(kind, func(t *testing.T) {
					assertWellFormed(t, req)
				})
			}
		})
	}
}

func TestComposer_WhitespaceOnlySelectionsFallBack(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	req := c.MarketForecast(MarketSelection{
		Topic:     "   ",
		Domains:   []string{" ", ""},
		Countries: []string{"\t"},
	})

	assertWellFormed(t, req)
	assert.Contains(t, req.TopicText, "Global Markets Overview")
	assert.Contains(t, req.TopicText, "Asset domains: Equities.")
	assert.Contains(t, req.TopicText, "Countries: global.")
}

func TestComposer_Deterministic(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	a := c.MarketForecast(MarketSelection{
		Domains:   []string{"Bonds", "Equities", "Bonds"},
		Countries: []string{"Japan", "Germany"},
		Horizons:  []string{"1 year", "1 month"},
	})
	b := c.MarketForecast(MarketSelection{
		Domains:   []string{"Equities", "Bonds"},
		Countries: []string{"Germany", "Japan", "Japan"},
		Horizons:  []string{"1 month", "1 year"},
	})

	assert.Equal(t, a.TopicText, b.TopicText)
	assert.Contains(t, a.TopicText, "Asset domains: Bonds, Equities.")
	assert.True(t, a.WantsInternetContext)
	assert.True(t, a.Structured())
}

func TestComposer_StockAnalysisNormalizesTickers(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	req := c.StockAnalysis(StockSelection{Tickers: []string{" msft", "aapl", "MSFT"}})
	assert.Contains(t, req.TopicText, "Analyze these stocks: AAPL, MSFT.")

	req = c.StockAnalysis(StockSelection{})
	assert.Contains(t, req.TopicText, "AAPL, AMZN, GOOGL, MSFT, NVDA")
}

func TestComposer_EpisodeScript(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	req := c.EpisodeScript("Mindfulness Meditation", 6)
	assert.Contains(t, req.TopicText, `"Mindfulness Meditation"`)
	assert.Contains(t, req.TopicText, "exactly 6 complete sentences")
	require.NotNil(t, req.Schema)
	assert.Equal(t, "script", req.Schema.Fields[1].Name)

	capped := c.EpisodeScript("Long", 500)
	assert.Contains(t, capped.TopicText, "exactly 60 complete sentences")
}

func TestComposer_EpisodeContinuationUsesTail(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	prev := []string{"One.", "Two.", "Three.", "Four."}
	req := c.EpisodeContinuation("Counting", prev, 2)

	assert.NotContains(t, req.TopicText, "One.")
	assert.Contains(t, req.TopicText, "Two., Three., Four.")
	assert.Contains(t, req.TopicText, "exactly 2 more sentences")
}

func TestComposer_ChatReplySkipsEmptyTurns(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "Hi"},
		{Role: models.RoleAssistant, Content: "  "},
		{Role: models.RoleAssistant, Content: "Hello, how can I help?"},
	}
	req := c.ChatReply(history, "What's on my list?")

	assert.Equal(t, "User: Hi\nAssistant: Hello, how can I help?\nUser: What's on my list?\nAssistant:", req.TopicText)
	assert.False(t, req.Structured())
}

func TestComposer_MessageDraftSMS(t *testing.T) {
	c := NewComposer(config.DefaultCatalog())

	req := c.MessageDraft(DraftSelection{ContactName: "Ada", Company: "Analytical Co", Channel: "SMS", Purpose: "the Friday demo"})
	assert.Equal(t, "Draft a short sms to Ada at Analytical Co about the Friday demo. Keep it under 300 characters and leave the subject empty.", req.TopicText)
}
