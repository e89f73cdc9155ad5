package windowing

import (
	"github.com/petasbytes/toolchat/internal/llm"
)

// GroupKind denotes the atomic unit type when preparing a send window.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	GroupExchange
)

// Group describes a contiguous span of messages [Start, End) in the original slice.
// Kind indicates whether it is a singleton or an exchange.
type Group struct {
	Kind  GroupKind
	Start int // inclusive index into msgs
	End   int // exclusive index into msgs
}

// Len returns the number of messages in g.
func (g Group) Len() int { return g.End - g.Start }

// GroupTurns groups messages into atomic units that keep an exchange together.
// Invariants:
// - An exchange starts at a user message and absorbs the assistant messages that follow it,
// so a tool-call transcript and the reply built on it are never separated from their prompt.
// - System messages (including summaries) are always singletons and close any open exchange.
// - An assistant message with no preceding user message in reach is a singleton.
//
// GroupTurns may run under the conversation lock and does not log.
func GroupTurns(msgs []llm.Message) []Group {
	groups := make([]Group, 0, len(msgs))
	for i := 0; i < len(msgs); {
		if msgs[i].Role != llm.RoleUser {
			groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
			i++
			continue
		}
		end := i + 1
		for end < len(msgs) && msgs[end].Role == llm.RoleAssistant {
			end++
		}
		// A lone user message is still an exchange (one in progress).
		groups = append(groups, Group{Kind: GroupExchange, Start: i, End: end})
		i = end
	}
	return groups
}
