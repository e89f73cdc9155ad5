package windowing

import (
	"github.com/petasbytes/toolchat/internal/llm"
	"go.uber.org/zap"
)

// Stats describes a prepared window. Total counts included groups only;
// SkippedGroups is every group left out.
type Stats struct {
	Total            int
	Budget           int
	IncludedGroups   int
	SkippedGroups    int
	OverBudgetNewest bool
}

// PrepareSendWindow returns the longest suffix of msgs, in original order,
// whose whole groups fit within budget under c. Groups are never split.
//
// An empty window is returned with OverBudgetNewest set when the newest
// group alone costs more than budget, or when budget <= 0 and msgs is
// not empty.
func PrepareSendWindow(msgs []llm.Message, budget int, c TokenCounter) ([]llm.Message, Stats) {
	stats := Stats{Budget: budget}
	if len(msgs) == 0 {
		return nil, stats
	}

	groups := GroupTurns(msgs)
	stats.SkippedGroups = len(groups)
	if budget <= 0 {
		stats.OverBudgetNewest = true
		return nil, stats
	}

	start := len(msgs)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		cost := c.CountGroup(groups[gi], msgs)
		if stats.Total+cost > budget {
			if stats.IncludedGroups == 0 {
				zap.L().Debug("newest group over budget", zap.Int("budget", budget), zap.Int("cost", cost))
				stats.OverBudgetNewest = true
			}
			break
		}
		stats.Total += cost
		stats.IncludedGroups++
		start = groups[gi].Start
	}
	stats.SkippedGroups = len(groups) - stats.IncludedGroups

	if stats.IncludedGroups == 0 {
		return nil, stats
	}
	return msgs[start:], stats
}
