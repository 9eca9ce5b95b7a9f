package render

import (
	"github.com/raphaelgruber/portal-go/internal/llm"
)

// ErrorPanel is the error card shown in place of a result.
type ErrorPanel struct {
	Code      string `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	// RetryKey identifies the request to re-issue; set by the caller.
	RetryKey string `json:"retry_key,omitempty"`
}

type descriptor struct {
	title     string
	message   string
	retryable bool
}

var descriptors = map[llm.Kind]descriptor{
	llm.KindRateLimited:   {"Too many requests", "The AI service is busy right now. Wait a moment and try again.", true},
	llm.KindInvalidKey:    {"Service not configured", "The AI service rejected our credentials. Contact your administrator.", false},
	llm.KindQuota:         {"Usage limit reached", "The AI service quota is exhausted for now.", false},
	llm.KindContentPolicy: {"Request declined", "The AI service declined this request. Try rephrasing it.", false},
	llm.KindTransport:     {"Connection problem", "We could not reach the AI service. Check your connection and try again.", true},
	llm.KindTimeout:       {"Request timed out", "The AI service took too long to answer. Try again.", true},
	llm.KindMalformed:     {"Unexpected response", "The AI service returned something we could not read. Try again.", true},
	llm.KindProvider:      {"AI service error", "The AI service had a problem. Try again in a moment.", true},
	llm.KindCanceled:      {"Request canceled", "The request was canceled before it finished.", true},
	llm.KindUnknown:       {"Something went wrong", "An unexpected error occurred. Try again.", true},
}

// PanelFor maps an error to its error card. Returns nil for a nil error.
func PanelFor(err error) *ErrorPanel {
	if err == nil {
		return nil
	}
	kind := llm.KindOf(err)
	d, ok := descriptors[kind]
	if !ok {
		kind = llm.KindUnknown
		d = descriptors[kind]
	}
	return &ErrorPanel{
		Code:      string(kind),
		Title:     d.title,
		Message:   d.message,
		Retryable: d.retryable,
	}
}
