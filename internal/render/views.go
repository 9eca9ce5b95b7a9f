package render

import (
	"strings"

	"github.com/raphaelgruber/portal-go/internal/models"
	"github.com/raphaelgruber/portal-go/internal/parser"
	"github.com/samber/lo"
)

// SeriesPoint is one chart point of a forecast.
type SeriesPoint struct {
	Label   string  `json:"label"`
	Horizon string  `json:"horizon"`
	Value   float64 `json:"value"`
}

// ForecastView is the markets page state.
type ForecastView struct {
	Summary    string        `json:"summary"`
	Outlook    string        `json:"outlook"`
	Confidence float64       `json:"confidence"`
	Series     []SeriesPoint `json:"series"`
	Drivers    []string      `json:"drivers"`
	Risks      []string      `json:"risks"`
	Empty      bool          `json:"empty"`
}

// Forecast renders a market forecast.
func Forecast(d Doc) ForecastView {
	series := lo.Map(d.Objects("series"), func(p Doc, _ int) SeriesPoint {
		return SeriesPoint{
			Label:   p.String("label"),
			Horizon: p.StringOr("horizon", ""),
			Value:   p.Number("value"),
		}
	})
	v := ForecastView{
		Summary:    d.String("summary"),
		Outlook:    strings.ToLower(d.StringOr("outlook", "neutral")),
		Confidence: clamp(d.Number("confidence"), 0, 100),
		Series:     series,
		Drivers:    d.Strings("drivers"),
		Risks:      d.Strings("risks"),
	}
	v.Empty = len(v.Series) == 0 && !d.Exists("summary")
	return v
}

// Stock is one row of the analytics table.
type Stock struct {
	Ticker string  `json:"ticker"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Moat   float64 `json:"moat"`
	Growth float64 `json:"growth"`
	Upside float64 `json:"upside"`
	Risk   float64 `json:"risk"`
	Rating string  `json:"rating"`
	Thesis string  `json:"thesis"`
}

// Metric returns the named numeric metric.
func (s Stock) Metric(name string) (float64, bool) {
	switch strings.ToLower(name) {
	case "price":
		return s.Price, true
	case "moat":
		return s.Moat, true
	case "growth":
		return s.Growth, true
	case "upside":
		return s.Upside, true
	case "risk":
		return s.Risk, true
	}
	return 0, false
}

// StocksView is the stock analytics page state.
type StocksView struct {
	MarketSummary string  `json:"market_summary"`
	Stocks        []Stock `json:"stocks"`
	Filter        string  `json:"filter,omitempty"`
	Empty         bool    `json:"empty"`
}

// Stocks renders a stock analysis. Rows without a ticker are dropped.
func Stocks(d Doc) StocksView {
	rows := lo.FilterMap(d.Objects("stocks"), func(s Doc, _ int) (Stock, bool) {
		ticker := strings.ToUpper(s.StringOr("ticker", ""))
		if ticker == "" {
			return Stock{}, false
		}
		return Stock{
			Ticker: ticker,
			Name:   s.String("name"),
			Price:  s.Number("price"),
			Moat:   s.Number("moat"),
			Growth: s.Number("growth"),
			Upside: s.Number("upside"),
			Risk:   s.Number("risk"),
			Rating: s.String("rating"),
			Thesis: s.String("thesis"),
		}, true
	})
	return StocksView{
		MarketSummary: d.String("market_summary"),
		Stocks:        rows,
		Empty:         len(rows) == 0,
	}
}

// EpisodeScriptView is a generated podcast script split for captions.
type EpisodeScriptView struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Sentences []string `json:"sentences"`
	Empty     bool     `json:"empty"`
}

// EpisodeScript renders a podcast script. fallbackTitle is used when
// neither the response nor the script names one.
func EpisodeScript(d Doc, fallbackTitle string) EpisodeScriptView {
	script := parser.ParseScript(d.StringOr("script", ""))
	title := d.StringOr("title", script.Title)
	if title == "" {
		title = fallbackTitle
	}
	sentences := script.Sentences
	if sentences == nil {
		sentences = []string{}
	}
	return EpisodeScriptView{
		Title:     title,
		Summary:   d.StringOr("summary", ""),
		Sentences: sentences,
		Empty:     len(sentences) == 0,
	}
}

// Idea is one suggested episode.
type Idea struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Minutes     float64 `json:"minutes"`
}

// IdeasView lists suggested episodes.
type IdeasView struct {
	Ideas []Idea `json:"ideas"`
	Empty bool   `json:"empty"`
}

// Ideas renders episode suggestions. Entries without a title are dropped.
func Ideas(d Doc) IdeasView {
	ideas := lo.FilterMap(d.Objects("episodes"), func(e Doc, _ int) (Idea, bool) {
		title := e.StringOr("title", "")
		return Idea{
			Title:       title,
			Description: e.StringOr("description", ""),
			Minutes:     e.Number("minutes"),
		}, title != ""
	})
	return IdeasView{Ideas: ideas, Empty: len(ideas) == 0}
}

// LearningModule is one step of a learning path.
type LearningModule struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Minutes   float64  `json:"minutes"`
	Resources []string `json:"resources"`
}

// QuizItem is one review question.
type QuizItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LearningPathView is the learning page state.
type LearningPathView struct {
	Title    string           `json:"title"`
	Overview string           `json:"overview"`
	Modules  []LearningModule `json:"modules"`
	Quiz     []QuizItem       `json:"quiz"`
	Empty    bool             `json:"empty"`
}

// LearningPath renders a learning path.
func LearningPath(d Doc) LearningPathView {
	modules := lo.Map(d.Objects("modules"), func(m Doc, _ int) LearningModule {
		return LearningModule{
			Title:     m.String("title"),
			Summary:   m.StringOr("summary", ""),
			Minutes:   m.Number("minutes"),
			Resources: m.Strings("resources"),
		}
	})
	quiz := lo.FilterMap(d.Objects("quiz"), func(q Doc, _ int) (QuizItem, bool) {
		question := q.StringOr("question", "")
		return QuizItem{Question: question, Answer: q.String("answer")}, question != ""
	})
	return LearningPathView{
		Title:    d.String("title"),
		Overview: d.StringOr("overview", ""),
		Modules:  modules,
		Quiz:     quiz,
		Empty:    len(modules) == 0,
	}
}

// ChatReplyView is an assistant reply.
type ChatReplyView struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Reply          string `json:"reply"`
	Empty          bool   `json:"empty"`
}

// ChatReply renders a free-text reply.
func ChatReply(r *models.InferenceResult) ChatReplyView {
	text := ""
	if r != nil {
		text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(r.FreeText), "Assistant:"))
	}
	if text == "" {
		return ChatReplyView{Reply: Placeholder, Empty: true}
	}
	return ChatReplyView{Reply: text}
}

// DraftView is a composed message draft.
type DraftView struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Empty   bool   `json:"empty"`
}

// Draft renders a message draft.
func Draft(d Doc) DraftView {
	body := d.StringOr("body", "")
	return DraftView{
		Subject: d.StringOr("subject", ""),
		Body:    body,
		Empty:   body == "",
	}
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
