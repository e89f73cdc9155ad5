package windowing

import (
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/tokens"
)

// TokenCounter estimates input-token cost for messages or groups.
type TokenCounter interface {
	CountMessage(m llm.Message) int
	CountGroup(g Group, all []llm.Message) int
}

// ModelCounter prices messages with a tokens.Counter for one model,
// plus the fixed per-message overhead.
type ModelCounter struct {
	Tokens tokens.Counter
	Model  string
}

func (c ModelCounter) CountMessage(m llm.Message) int {
	return tokens.MessageCost(c.Tokens, m.Content, c.Model)
}

func (c ModelCounter) CountGroup(g Group, all []llm.Message) int {
	return countGroup(c, g, all)
}

// HeuristicCounter is the deterministic default: tokens.Heuristic plus overhead.
type HeuristicCounter struct{}

func (HeuristicCounter) CountMessage(m llm.Message) int {
	return tokens.Heuristic(m.Content) + tokens.MessageOverhead
}

func (h HeuristicCounter) CountGroup(g Group, all []llm.Message) int {
	return countGroup(h, g, all)
}

func countGroup(c TokenCounter, g Group, all []llm.Message) int {
	total := 0
	for i := g.Start; i < g.End && i < len(all); i++ {
		total += c.CountMessage(all[i])
	}
	return total
}
