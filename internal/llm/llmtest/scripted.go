// Package llmtest provides a scripted llm.Backend for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/petasbytes/toolchat/internal/llm"
)

// ErrExhausted is returned once every queued response has been consumed.
var ErrExhausted = errors.New("llmtest: no scripted responses left")

type step struct {
	text string
	err  error
}

// ScriptedBackend replays queued responses in order and records every request.
type ScriptedBackend struct {
	mu    sync.Mutex
	steps []step
	calls [][]llm.Message
}

func New(responses ...string) *ScriptedBackend {
	b := &ScriptedBackend{}
	b.SetResponses(responses...)
	return b
}

// SetResponses replaces the queue.
func (b *ScriptedBackend) SetResponses(responses ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = b.steps[:0]
	for _, r := range responses {
		b.steps = append(b.steps, step{text: r})
	}
}

// Respond queues one more successful response.
func (b *ScriptedBackend) Respond(text string) *ScriptedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, step{text: text})
	return b
}

// Fail queues one failing call.
func (b *ScriptedBackend) Fail(err error) *ScriptedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps = append(b.steps, step{err: err})
	return b
}

func (b *ScriptedBackend) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]llm.Message, len(msgs))
	copy(cp, msgs)
	b.calls = append(b.calls, cp)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(b.steps) == 0 {
		return "", ErrExhausted
	}
	s := b.steps[0]
	b.steps = b.steps[1:]
	return s.text, s.err
}

// Calls returns the recorded requests, oldest first.
func (b *ScriptedBackend) Calls() [][]llm.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]llm.Message, len(b.calls))
	copy(out, b.calls)
	return out
}
