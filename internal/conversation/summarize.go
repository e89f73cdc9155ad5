package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/windowing"
	"go.uber.org/zap"
)

// minSummarizeTurns is the shortest run worth replacing with a summary.
const minSummarizeTurns = 2

const summaryInstruction = "Summarize the following conversation segment concisely while preserving key information. Use third person, objective language."

var (
	// ErrNoSummarizer is returned when summarization is needed but no summarizer was given.
	ErrNoSummarizer = errors.New("conversation: no summarizer configured")
	// ErrSummaryNotShorter rejects a summary that would not reduce the token total.
	ErrSummaryNotShorter = errors.New("conversation: summary is not shorter than the turns it replaces")
)

// Summarizer condenses a run of turns into plain text.
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (string, error)
}

// BackendSummarizer asks a model backend for the summary.
type BackendSummarizer struct {
	Backend llm.Backend
}

func (b BackendSummarizer) Summarize(ctx context.Context, turns []Turn) (string, error) {
	var seg strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&seg, "%s: %s\n\n", t.Role, t.Content)
	}
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: summaryInstruction},
		{Role: llm.RoleUser, Content: strings.TrimSpace(seg.String())},
	}
	out, err := b.Backend.Complete(ctx, msgs)
	if err != nil {
		return "", &llm.BackendError{Op: "summarize", Err: err}
	}
	return strings.TrimSpace(out), nil
}

// SummaryContent wraps summary text in the marker used for summary turns.
func SummaryContent(text string) string {
	return "[SUMMARY OF PREVIOUS CONVERSATION: " + text + "]"
}

// MaybeSummarize summarizes when usage has reached the summarize threshold.
// It reports whether a summary was applied. On error the state is unchanged.
func (s *State) MaybeSummarize(ctx context.Context, sum Summarizer) (bool, error) {
	s.mu.RLock()
	due := s.usageLocked() >= s.limits.SummarizeThreshold
	s.mu.RUnlock()
	if !due {
		return false, nil
	}
	return s.Summarize(ctx, sum)
}

// Summarize replaces the oldest run of turns preceding the protected exchanges
// with a single summary turn, regardless of the threshold. It returns false
// with a nil error when there is nothing worth summarizing.
func (s *State) Summarize(ctx context.Context, sum Summarizer) (bool, error) {
	s.mu.RLock()
	end := s.summarizableEndLocked()
	run := append([]Turn(nil), s.turns[:end]...)
	s.mu.RUnlock()

	if len(run) < minSummarizeTurns {
		s.logger.Debug("summarization skipped", zap.Int("candidate_turns", len(run)))
		return false, nil
	}
	if sum == nil {
		return false, ErrNoSummarizer
	}

	// The backend call happens without the lock; turns are only appended
	// meanwhile, so the run prefix is still in place afterwards.
	text, err := sum.Summarize(ctx, run)
	if err != nil {
		s.logger.Warn("summarization failed", zap.Error(err))
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) < len(run) || !samePrefix(s.turns, run) {
		return false, errors.New("conversation: turns changed during summarization")
	}
	replaced := 0
	for _, t := range run {
		replaced += t.TokenCount
	}
	summary := Turn{Role: llm.RoleSystem, Content: SummaryContent(text), Summary: true}
	summary.TokenCount = s.cost(summary.Content)
	if summary.TokenCount >= replaced {
		s.logger.Info("summary rejected",
			zap.Int("summary_tokens", summary.TokenCount),
			zap.Int("replaced_tokens", replaced))
		return false, ErrSummaryNotShorter
	}

	kept := s.turns[len(run):]
	turns := make([]Turn, 0, len(kept)+1)
	turns = append(turns, summary)
	turns = append(turns, kept...)
	s.turns = turns
	s.total = s.total - replaced + summary.TokenCount
	s.summarizedCount++
	s.warningIssued = s.usageLocked() > s.limits.WarningThreshold
	s.logger.Info("conversation summarized",
		zap.Int("replaced_turns", len(run)),
		zap.Int("replaced_tokens", replaced),
		zap.Int("summary_tokens", summary.TokenCount),
		zap.Int("summarized_count", s.summarizedCount))
	return true, nil
}

// summarizableEndLocked returns the index of the first protected turn.
func (s *State) summarizableEndLocked() int {
	msgs := make([]llm.Message, len(s.turns))
	for i, t := range s.turns {
		msgs[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	groups := windowing.GroupTurns(msgs)
	protected, end := 0, len(s.turns)
	for gi := len(groups) - 1; gi >= 0 && protected < s.keepExchanges; gi-- {
		end = groups[gi].Start
		if groups[gi].Kind == windowing.GroupExchange {
			protected++
		}
	}
	return end
}

func samePrefix(turns, prefix []Turn) bool {
	for i := range prefix {
		if turns[i] != prefix[i] {
			return false
		}
	}
	return true
}
