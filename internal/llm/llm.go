// Package llm defines the message shape and backend contract shared by the
// conversation core. The backend is a black box: messages in, text out.
package llm

import (
	"context"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry handed to a Backend, oldest first.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Backend completes a conversation.
type Backend interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// BackendFunc adapts a plain function to Backend.
type BackendFunc func(ctx context.Context, msgs []Message) (string, error)

func (f BackendFunc) Complete(ctx context.Context, msgs []Message) (string, error) {
	return f(ctx, msgs)
}

// BackendError wraps a failed model call. Op names the call site.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// WithSystem returns a copy of msgs whose leading system message carries prompt.
// A leading system message is added when msgs has none.
func WithSystem(msgs []Message, prompt string) []Message {
	out := make([]Message, 0, len(msgs)+1)
	if len(msgs) > 0 && msgs[0].Role == RoleSystem {
		out = append(out, Message{Role: RoleSystem, Content: prompt})
		return append(out, msgs[1:]...)
	}
	out = append(out, Message{Role: RoleSystem, Content: prompt})
	return append(out, msgs...)
}
