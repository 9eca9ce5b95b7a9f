package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies an inference failure.
type Kind string

const (
	KindTransport     Kind = "transport"
	KindTimeout       Kind = "timeout"
	KindRateLimited   Kind = "rate_limited"
	KindInvalidKey    Kind = "invalid_key"
	KindQuota         Kind = "quota_exceeded"
	KindContentPolicy Kind = "content_policy"
	KindMalformed     Kind = "malformed_response"
	KindProvider      Kind = "provider"
	KindCanceled      Kind = "canceled"
	KindUnknown       Kind = "unknown"
)

// Retryable reports whether failures of this kind may succeed on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindTimeout, KindRateLimited, KindProvider, KindMalformed:
		return true
	}
	return false
}

// Error is a classified inference failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a classified error, or KindUnknown.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a classified error worth retrying.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// Classify wraps err in an *Error. Already-classified errors pass through.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: classifyKind(err), Err: err}
}

// messageKinds maps provider message fragments to kinds. Order matters:
// the first match wins.
var messageKinds = []struct {
	kind      Kind
	fragments []string
}{
	{KindRateLimited, []string{"rate_limited", "rate limit", "too many requests", "429"}},
	{KindQuota, []string{"credit balance", "quota", "billing", "insufficient_quota"}},
	{KindInvalidKey, []string{"invalid_key", "invalid api key", "invalid x-api-key", "authentication", "unauthorized", "401", "403", "forbidden"}},
	{KindContentPolicy, []string{"content_policy", "content policy", "content_filter", "safety"}},
	{KindTimeout, []string{"deadline exceeded", "timeout", "timed out"}},
	{KindTransport, []string{"connection refused", "connection reset", "no such host", "broken pipe", "eof"}},
	{KindProvider, []string{"overloaded", "internal server error", "bad gateway", "service unavailable", "500", "502", "503", "504"}},
}

func classifyKind(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}

	return kindFromMessage(err.Error())
}

func kindFromMessage(msg string) Kind {
	lower := strings.ToLower(msg)
	for _, mk := range messageKinds {
		for _, frag := range mk.fragments {
			if strings.Contains(lower, frag) {
				return mk.kind
			}
		}
	}
	return KindUnknown
}

// ClassifyPayload inspects a provider response body of the form
// {"error": "rate_limited"} or {"error": {"type": ..., "message": ...}}
// and returns a classified error, or nil if the body carries no error.
func ClassifyPayload(body []byte) error {
	if !gjson.ValidBytes(body) {
		return nil
	}
	e := gjson.GetBytes(body, "error")
	if !e.Exists() || e.Type == gjson.Null {
		return nil
	}

	var code, msg string
	if e.IsObject() {
		code = firstNonEmpty(e.Get("code").String(), e.Get("type").String())
		msg = e.Get("message").String()
	} else {
		code = e.String()
		msg = gjson.GetBytes(body, "message").String()
	}
	if code == "" && msg == "" {
		return nil
	}

	text := strings.TrimSpace(code + " " + msg)
	kind := kindFromMessage(code)
	if kind == KindUnknown {
		kind = kindFromMessage(text)
	}
	if kind == KindUnknown {
		kind = KindProvider
	}
	return &Error{Kind: kind, Err: errors.New("provider error: " + text)}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
