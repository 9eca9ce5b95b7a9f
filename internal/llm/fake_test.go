package llm

import (
	"context"
	"sync"
)

// scriptedGenerator replays a fixed sequence of responses and errors.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []scriptedReply
	calls   []scriptedCall
}

type scriptedReply struct {
	text string
	err  error
}

type scriptedCall struct {
	system   string
	prompt   string
	jsonMode bool
}

func (g *scriptedGenerator) Generate(ctx context.Context, system, prompt string, jsonMode bool) (*Completion, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, scriptedCall{system: system, prompt: prompt, jsonMode: jsonMode})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx := len(g.calls) - 1
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	r := g.replies[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &Completion{Text: r.text, InputTokens: 10, OutputTokens: 5}, nil
}

func (g *scriptedGenerator) Model() string { return "scripted" }

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
