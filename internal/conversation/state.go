// Package conversation holds the ordered turn list, system prompt and token
// accounting for one agent session, and condenses old turns when the budget
// runs low.
//
// Invariants:
//   - TotalTokens equals the system prompt cost plus the sum of turn costs.
//   - The system prompt is never dropped from Messages.
//   - A failed summarization leaves the state untouched.
package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/tokens"
	"go.uber.org/zap"
)

// Turn is one entry of the conversation. Summary marks a turn that replaced older turns.
type Turn struct {
	Role       llm.Role `json:"role"`
	Content    string   `json:"content"`
	TokenCount int      `json:"token_count"`
	Summary    bool     `json:"summary,omitempty"`
}

// Limits bounds the conversation size.
type Limits struct {
	MaxTokens          int     `json:"max_tokens" validate:"gt=0"`
	WarningThreshold   float64 `json:"warning_threshold" validate:"gt=0,lt=1"`
	SummarizeThreshold float64 `json:"summarize_threshold" validate:"gt=0,lt=1,gtfield=WarningThreshold"`
}

// DefaultLimits mirrors the stock agent profile.
func DefaultLimits() Limits {
	return Limits{MaxTokens: 100_000, WarningThreshold: 0.8, SummarizeThreshold: 0.9}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate reports whether l is usable.
func (l Limits) Validate() error {
	if err := validate.Struct(l); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}
	return nil
}

// TokenStatus is a point-in-time view of the token budget.
type TokenStatus struct {
	Current            int     `json:"current"`
	Max                int     `json:"max"`
	UsagePercent       float64 `json:"usage_percent"`
	WarningThreshold   float64 `json:"warning_threshold"`
	SummarizeThreshold float64 `json:"summarize_threshold"`
	WarningIssued      bool    `json:"warning_issued"`
	SummarizedCount    int     `json:"summarized_count"`
	Turns              int     `json:"turns"`
}

// DefaultKeepExchanges protects the previous exchange and the one in progress.
const DefaultKeepExchanges = 2

// State is the conversation of one session. It is safe for concurrent reads;
// mutations are expected from one goroutine at a time.
type State struct {
	mu sync.RWMutex

	model   string
	counter tokens.Counter
	logger  *zap.Logger

	systemPrompt string
	systemTokens int
	turns        []Turn
	total        int

	limits          Limits
	keepExchanges   int
	warningIssued   bool
	summarizedCount int
}

type Option func(*State)

func WithModel(model string) Option { return func(s *State) { s.model = model } }

func WithCounter(c tokens.Counter) Option { return func(s *State) { s.counter = c } }

func WithLogger(l *zap.Logger) Option { return func(s *State) { s.logger = l } }

func WithLimits(l Limits) Option { return func(s *State) { s.limits = l } }

// WithKeepExchanges sets how many trailing exchanges summarization never touches.
func WithKeepExchanges(n int) Option { return func(s *State) { s.keepExchanges = n } }

// New returns an empty conversation. Limits are validated.
func New(opts ...Option) (*State, error) {
	s := &State{
		counter:       tokens.HeuristicCounter{},
		logger:        zap.NewNop(),
		limits:        DefaultLimits(),
		keepExchanges: DefaultKeepExchanges,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.limits.Validate(); err != nil {
		return nil, err
	}
	if s.keepExchanges < 1 {
		return nil, fmt.Errorf("keep exchanges must be >= 1, got %d", s.keepExchanges)
	}
	return s, nil
}

func (s *State) cost(content string) int {
	return tokens.MessageCost(s.counter, content, s.model)
}

// SetSystemPrompt replaces the system prompt and its token cost.
// An empty prompt costs nothing and is omitted from Messages.
func (s *State) SetSystemPrompt(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total -= s.systemTokens
	s.systemPrompt = text
	s.systemTokens = 0
	if text != "" {
		s.systemTokens = s.cost(text)
	}
	s.total += s.systemTokens
}

// SystemPrompt returns the stored system prompt.
func (s *State) SystemPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemPrompt
}

// AddMessage appends a turn and reports whether usage now exceeds the warning threshold.
func (s *State) AddMessage(role llm.Role, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Turn{Role: role, Content: content, TokenCount: s.cost(content)}
	s.turns = append(s.turns, t)
	s.total += t.TokenCount
	exceeded := s.usageLocked() > s.limits.WarningThreshold
	if exceeded && !s.warningIssued {
		s.warningIssued = true
		s.logger.Warn("conversation nearing token limit",
			zap.Int("total_tokens", s.total),
			zap.Int("max_tokens", s.limits.MaxTokens))
	}
	return exceeded
}

func (s *State) usageLocked() float64 {
	return float64(s.total) / float64(s.limits.MaxTokens)
}

// Messages returns the system prompt (when set) followed by every turn, oldest first.
func (s *State) Messages() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLocked()
}

func (s *State) messagesLocked() []llm.Message {
	out := make([]llm.Message, 0, len(s.turns)+1)
	if s.systemPrompt != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt})
	}
	for _, t := range s.turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// Turns returns a copy of the turn list.
func (s *State) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// TotalTokens returns the current token total.
func (s *State) TotalTokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// TokenStatus is a pure read of the budget.
func (s *State) TokenStatus() TokenStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return TokenStatus{
		Current:            s.total,
		Max:                s.limits.MaxTokens,
		UsagePercent:       s.usageLocked() * 100,
		WarningThreshold:   s.limits.WarningThreshold,
		SummarizeThreshold: s.limits.SummarizeThreshold,
		WarningIssued:      s.warningIssued,
		SummarizedCount:    s.summarizedCount,
		Turns:              len(s.turns),
	}
}

// Limits returns the active limits.
func (s *State) Limits() Limits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limits
}

// SetLimits validates and applies new limits. The warning flag is re-evaluated.
func (s *State) SetLimits(l Limits) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits = l
	s.warningIssued = s.usageLocked() > l.WarningThreshold
	return nil
}

// Clear drops every turn and keeps the system prompt.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.total = s.systemTokens
	s.warningIssued = false
}

// RecentText renders the last n user and assistant turns as plain text.
func (s *State) RecentText(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var picked []Turn
	for i := len(s.turns) - 1; i >= 0 && len(picked) < n; i-- {
		if r := s.turns[i].Role; r == llm.RoleUser || r == llm.RoleAssistant {
			picked = append(picked, s.turns[i])
		}
	}
	if len(picked) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent conversation:")
	for i := len(picked) - 1; i >= 0; i-- {
		label := "User"
		if picked[i].Role == llm.RoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(&b, "\n\n%s: %s", label, picked[i].Content)
	}
	return b.String()
}
