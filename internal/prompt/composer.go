// Package prompt composes inference requests from page selections.
//
// Composition is pure: the same selection always yields the same prompt text
// and schema. Empty selections fall back to catalog defaults so a prompt never
// interpolates an empty list.
package prompt

import (
	"fmt"
	"slices"
	"strings"

	"github.com/raphaelgruber/portal-go/internal/config"
	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/samber/lo"
)

// Composer builds prompt requests using catalog defaults as fallbacks.
type Composer struct {
	catalog config.Catalog
}

// NewComposer creates a composer over the given catalog.
func NewComposer(catalog config.Catalog) *Composer {
	return &Composer{catalog: catalog}
}

// Catalog returns the catalog backing the composer.
func (c *Composer) Catalog() config.Catalog {
	return c.catalog
}

// MarketSelection holds the markets page filters.
type MarketSelection struct {
	Topic     string   `json:"topic"`
	Domains   []string `json:"domains"`
	Countries []string `json:"countries"`
	Models    []string `json:"models"`
	Horizons  []string `json:"horizons"`
}

// StockSelection holds the stock analytics page filters.
type StockSelection struct {
	Tickers []string `json:"tickers"`
	Focus   string   `json:"focus"`
}

// LearningSelection holds the learning page inputs.
type LearningSelection struct {
	Subject string `json:"subject"`
	Level   string `json:"level"`
}

// DraftSelection holds the communications page inputs.
type DraftSelection struct {
	ContactName string `json:"contact_name"`
	Company     string `json:"company"`
	Channel     string `json:"channel"`
	Purpose     string `json:"purpose"`
}

// MarketForecast composes a structured market forecast request.
func (c *Composer) MarketForecast(sel MarketSelection) models.PromptRequest {
	m := c.catalog.Markets
	topic := orDefault(sel.Topic, m.DefaultTopic, "Global Markets Overview")
	domains := normalize(sel.Domains, m.DefaultDomains)
	countries := normalize(sel.Countries, nil)
	modelNames := normalize(sel.Models, nil)
	horizons := normalize(sel.Horizons, m.DefaultHorizons)

	var b strings.Builder
	fmt.Fprintf(&b, "Produce a market forecast on %q.\n", topic)
	fmt.Fprintf(&b, "Asset domains: %s.\n", joinList(domains, "all major asset classes"))
	fmt.Fprintf(&b, "Countries: %s.\n", joinList(countries, "global"))
	fmt.Fprintf(&b, "Forecasting approaches: %s.\n", joinList(modelNames, "a consensus of standard approaches"))
	fmt.Fprintf(&b, "Time horizons: %s.\n", joinList(horizons, "3 months"))
	b.WriteString("Give one series point per horizon with a numeric expected change in percent, ")
	b.WriteString("the main drivers, the key risks and an overall outlook of bullish, bearish or neutral.")

	return models.PromptRequest{
		TopicText:            b.String(),
		Schema:               ForecastSchema(),
		WantsInternetContext: true,
		System:               "You are a markets analyst. Be specific and quantitative.",
	}
}

// StockAnalysis composes a structured stock metrics request.
func (c *Composer) StockAnalysis(sel StockSelection) models.PromptRequest {
	tickers := lo.Map(sel.Tickers, func(t string, _ int) string {
		return strings.ToUpper(strings.TrimSpace(t))
	})
	tickers = normalize(tickers, c.catalog.Stocks.DefaultUniverse)
	focus := orDefault(sel.Focus, "", "long-term quality and valuation")

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these stocks: %s.\n", joinList(tickers, "AAPL, MSFT"))
	fmt.Fprintf(&b, "Focus on %s.\n", focus)
	b.WriteString("For each stock score moat, growth, upside and risk on a 0-100 scale, ")
	b.WriteString("give the latest price, a rating of buy, hold or sell, and a one-sentence thesis. ")
	b.WriteString("Keep the stocks in the order given.")

	return models.PromptRequest{
		TopicText:            b.String(),
		Schema:               StockSchema(),
		WantsInternetContext: true,
		System:               "You are an equity research analyst.",
	}
}

// EpisodeScript composes a podcast script request for one episode title.
func (c *Composer) EpisodeScript(title string, sentences int) models.PromptRequest {
	p := c.catalog.Podcast
	title = orDefault(title, p.DefaultTopic, "Mindfulness Meditation")
	sentences = clampSentences(sentences, p.Sentences)

	text := fmt.Sprintf(
		"Write a spoken podcast episode titled %q.\n"+
			"Use exactly %d complete sentences of natural narration, no stage directions, no speaker labels.\n"+
			"Open with a welcome and close with a short takeaway.",
		title, sentences)

	return models.PromptRequest{
		TopicText: text,
		Schema:    EpisodeSchema(),
		System:    "You are a warm, clear podcast host.",
	}
}

// EpisodeContinuation composes a request that extends an existing script.
func (c *Composer) EpisodeContinuation(title string, previous []string, sentences int) models.PromptRequest {
	p := c.catalog.Podcast
	title = orDefault(title, p.DefaultTopic, "Mindfulness Meditation")
	sentences = clampSentences(sentences, p.Sentences)

	tail := previous
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}
	ending := joinList(tail, "(the episode has just started)")

	text := fmt.Sprintf(
		"Continue the podcast episode titled %q.\n"+
			"It currently ends with: %s\n"+
			"Write exactly %d more sentences that follow on naturally without repeating earlier material.",
		title, ending, sentences)

	return models.PromptRequest{
		TopicText: text,
		Schema:    EpisodeSchema(),
		System:    "You are a warm, clear podcast host.",
	}
}

// EpisodeIdeas composes a request for episode suggestions around an interest.
func (c *Composer) EpisodeIdeas(interest string, count int) models.PromptRequest {
	interest = orDefault(interest, c.catalog.Podcast.DefaultTopic, "Mindfulness Meditation")
	if count <= 0 || count > 20 {
		count = 5
	}
	text := fmt.Sprintf("Suggest %d short podcast episodes for a listener interested in %q. "+
		"Give each a title, a one-sentence description and a length in minutes.", count, interest)

	return models.PromptRequest{
		TopicText: text,
		Schema:    IdeasSchema(),
	}
}

// LearningPath composes a structured learning path request.
func (c *Composer) LearningPath(sel LearningSelection) models.PromptRequest {
	l := c.catalog.Learning
	subject := orDefault(sel.Subject, l.DefaultSubject, "Personal Finance Basics")
	level := orDefault(strings.ToLower(sel.Level), l.DefaultLevel, "beginner")

	text := fmt.Sprintf("Design a learning path on %q for a %s learner. "+
		"Split it into modules with a title, a summary, an estimated duration in minutes and suggested resources, "+
		"then add a short quiz.", subject, level)

	return models.PromptRequest{
		TopicText: text,
		Schema:    LearningSchema(),
	}
}

// ChatReply composes a free-text chat request from prior turns and a new message.
func (c *Composer) ChatReply(history []models.ChatMessage, message string) models.PromptRequest {
	message = orDefault(message, "", "Hello!")

	var b strings.Builder
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		role := "User"
		if m.Role == models.RoleAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, content)
	}
	fmt.Fprintf(&b, "User: %s\nAssistant:", message)

	return models.PromptRequest{
		TopicText: b.String(),
		System:    "You are a helpful assistant inside a personal dashboard. Answer concisely.",
	}
}

// MessageDraft composes a structured outbound message draft.
func (c *Composer) MessageDraft(sel DraftSelection) models.PromptRequest {
	name := orDefault(sel.ContactName, "", "there")
	channel := orDefault(strings.ToLower(sel.Channel), "", models.ChannelEmail)
	purpose := orDefault(sel.Purpose, "", "a friendly check-in")

	var b strings.Builder
	fmt.Fprintf(&b, "Draft a short %s to %s", channel, name)
	if sel.Company != "" {
		fmt.Fprintf(&b, " at %s", strings.TrimSpace(sel.Company))
	}
	fmt.Fprintf(&b, " about %s.", purpose)
	if channel == models.ChannelSMS {
		b.WriteString(" Keep it under 300 characters and leave the subject empty.")
	}

	return models.PromptRequest{
		TopicText: b.String(),
		Schema:    DraftSchema(),
	}
}

// normalize trims, drops empties, dedupes and sorts a selection, falling back
// to defaults (normalized the same way) when nothing remains.
func normalize(values, defaults []string) []string {
	clean := func(in []string) []string {
		out := lo.Uniq(lo.Compact(lo.Map(in, func(s string, _ int) string {
			return strings.TrimSpace(s)
		})))
		slices.Sort(out)
		return out
	}
	if out := clean(values); len(out) > 0 {
		return out
	}
	return clean(defaults)
}

func joinList(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}

func orDefault(value, def, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if d := strings.TrimSpace(def); d != "" {
		return d
	}
	return fallback
}

func clampSentences(n, def int) int {
	if n <= 0 {
		n = def
	}
	if n <= 0 {
		n = 12
	}
	return min(n, 60)
}
