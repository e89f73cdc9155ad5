// Package prompt builds the effective system prompt for one turn.
//
// The base prompt (identity plus capability text) is fixed for a session and
// is what the conversation stores and counts. Memory context, the
// summarization notice and the budget warning are appended to a local copy on
// every turn and never written back to the conversation.
package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/petasbytes/toolchat/internal/conversation"
	"github.com/petasbytes/toolchat/memory"
	"go.uber.org/zap"
)

// DefaultIdentity is used when no profile supplies one.
const DefaultIdentity = `You are a helpful assistant with long-term memory and a few tools.
Answer directly when you can. Use a tool when it gives a better answer, and
explain results in plain language. Ask before remembering anything personal
about the user.`

const section = "\n\n"

// Base joins identity and capabilities into the session-constant prompt.
// An empty identity falls back to DefaultIdentity.
func Base(identity, capabilities string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = DefaultIdentity
	}
	if c := strings.TrimSpace(capabilities); c != "" {
		return identity + section + c
	}
	return identity
}

// Compose returns base followed by the transient augmentations that apply to
// status. memoryContext may be empty.
func Compose(base string, status conversation.TokenStatus, memoryContext string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	for _, aug := range Augmentations(status, memoryContext) {
		b.WriteString(section)
		b.WriteString(aug)
	}
	return b.String()
}

// Augmentations lists the per-turn additions in the order Compose appends them.
func Augmentations(status conversation.TokenStatus, memoryContext string) []string {
	var out []string
	if m := strings.TrimSpace(memoryContext); m != "" {
		out = append(out, m)
	}
	if status.SummarizedCount > 0 {
		out = append(out, fmt.Sprintf(
			"Note: earlier parts of this conversation were summarized %d time(s) to stay within the context window. "+
				"Details from those turns may be incomplete; ask the user if something important is missing.",
			status.SummarizedCount))
	}
	if status.Max > 0 && status.UsagePercent > status.WarningThreshold*100 {
		out = append(out, fmt.Sprintf(
			"Warning: this conversation is using %.1f%% of its token budget (%d of %d tokens). "+
				"Keep answers concise, or use token_manager to summarize or reset.",
			status.UsagePercent, status.Current, status.Max))
	}
	return out
}

// Composer carries the session-constant parts of the prompt.
type Composer struct {
	Identity     string
	Capabilities string
	// Memory feeds the recent-memory augmentation; nil disables it.
	Memory memory.Store
	// MemoryItems is how many recent memories to include.
	MemoryItems int
	Logger      *zap.Logger
}

// MemoryContext renders the recent-memory augmentation. Store failures are
// logged and yield no augmentation so a turn never fails on it.
func (c *Composer) MemoryContext(ctx context.Context) string {
	if c.Memory == nil || c.MemoryItems <= 0 {
		return ""
	}
	text, err := memory.FormatForContext(ctx, c.Memory, c.MemoryItems)
	if err != nil {
		c.logger().Warn("memory context unavailable", zap.Error(err))
		return ""
	}
	return text
}

// Base is the session-constant prompt to store with SetSystemPrompt.
func (c *Composer) Base() string { return Base(c.Identity, c.Capabilities) }

// Compose builds the effective prompt from the stored base for status.
// An empty base falls back to c.Base().
func (c *Composer) Compose(ctx context.Context, base string, status conversation.TokenStatus) string {
	if strings.TrimSpace(base) == "" {
		base = c.Base()
	}
	return Compose(base, status, c.MemoryContext(ctx))
}

func (c *Composer) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
