package prompt

import "github.com/raphaelgruber/portal-go/internal/models"

// ForecastSchema describes a market forecast response.
func ForecastSchema() *models.Schema {
	return &models.Schema{Fields: []models.Field{
		{Name: "summary", Type: models.FieldString, Required: true},
		{Name: "outlook", Type: models.FieldString, Description: "bullish, bearish or neutral"},
		{Name: "confidence", Type: models.FieldNumber, Description: "0-100"},
		{Name: "series", Type: models.FieldArray, Items: &models.Schema{Fields: []models.Field{
			{Name: "label", Type: models.FieldString, Required: true},
			{Name: "horizon", Type: models.FieldString},
			{Name: "value", Type: models.FieldNumber, Required: true, Description: "expected change in percent"},
		}}},
		{Name: "drivers", Type: models.FieldArray, ItemType: models.FieldString},
		{Name: "risks", Type: models.FieldArray, ItemType: models.FieldString},
	}}
}

// StockSchema describes a stock analytics response.
func StockSchema() *models.Schema {
	return &models.Schema{Fields: []models.Field{
		{Name: "market_summary", Type: models.FieldString},
		{Name: "stocks", Type: models.FieldArray, Required: true, Items: &models.Schema{Fields: []models.Field{
			{Name: "ticker", Type: models.FieldString, Required: true},
			{Name: "name", Type: models.FieldString},
			{Name: "price", Type: models.FieldNumber},
			{Name: "moat", Type: models.FieldNumber, Description: "0-100"},
			{Name: "growth", Type: models.FieldNumber, Description: "0-100"},
			{Name: "upside", Type: models.FieldNumber, Description: "0-100"},
			{Name: "risk", Type: models.FieldNumber, Description: "0-100"},
			{Name: "rating", Type: models.FieldString},
			{Name: "thesis", Type: models.FieldString},
		}}},
	}}
}

// EpisodeSchema describes a podcast script response.
func EpisodeSchema() *models.Schema {
	return &models.Schema{Fields: []models.Field{
		{Name: "title", Type: models.FieldString},
		{Name: "script", Type: models.FieldString, Required: true, Description: "narration text"},
		{Name: "summary", Type: models.FieldString},
	}}
}

// IdeasSchema describes an episode suggestions response.
func IdeasSchema() *models.Schema {
	return &models.Schema{Fields: []models.Field{
		{Name: "episodes", Type: models.FieldArray, Required: true, Items: &models.Schema{Fields: []models.Field{
			{Name: "title", Type: models.FieldString, Required: true},
			{Name: "description", Type: models.FieldString},
			{Name: "minutes", Type: models.FieldNumber},
		}}},
	}}
}

// LearningSchema describes a learning path response.
func LearningSchema() *models.Schema {
	return &models.Schema{Fields: []models.Field{
		{Name: "title", Type: models.FieldString, Required: true},
		{Name: "overview", Type: models.FieldString},
		{Name: "modules", Type: models.FieldArray, Items: &models.Schema{Fields: []models.Field{
			{Name: "title", Type: models.FieldString, Required: true},
			{Name: "summary", Type: models.FieldString},
			{Name: "minutes", Type: models.FieldNumber},
			{Name: "resources", Type: models.FieldArray, ItemType: models.FieldString},
		}}},
		{Name: "quiz", Type: models.FieldArray, Items: &models.Schema{Fields: []models.Field{
			{Name: "question", Type: models.FieldString, Required: true},
			{Name: "answer", Type: models.FieldString},
		}}},
	}}
}

// DraftSchema describes a message draft response.
func DraftSchema() *models.Schema {
	return &models.Schema{Fields: []models.Field{
		{Name: "subject", Type: models.FieldString},
		{Name: "body", Type: models.FieldString, Required: true},
	}}
}
