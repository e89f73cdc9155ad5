// Package provider adapts hosted model APIs to llm.Backend.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/petasbytes/toolchat/internal/windowing"
	"go.uber.org/zap"
)

// NewAnthropicClient returns a client using API key from the env.
func NewAnthropicClient() *anthropic.Client {
	c := anthropic.NewClient()
	return &c
}

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest
const APIVersion = "2023-06-01"

// DefaultMaxResponseTokens caps each completion.
const DefaultMaxResponseTokens = 1024

// ErrNewestOverBudget means the newest exchange alone exceeds the send budget.
var ErrNewestOverBudget = errors.New("windowing: newest group exceeds AGT_TOKEN_BUDGET; increase budget with headroom")

// Anthropic is an llm.Backend on the Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	budget    int
	counter   windowing.TokenCounter
	logger    *zap.Logger
}

type Option func(*Anthropic)

func WithClient(c *anthropic.Client) Option { return func(a *Anthropic) { a.client = c } }

func WithModel(model string) Option {
	return func(a *Anthropic) {
		if model != "" {
			a.model = anthropic.Model(model)
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(a *Anthropic) {
		if n > 0 {
			a.maxTokens = int64(n)
		}
	}
}

// WithTokenBudget bounds the input of each request; 0 sends everything.
func WithTokenBudget(n int) Option { return func(a *Anthropic) { a.budget = n } }

// WithCounter prices messages for the send window. Defaults to windowing.HeuristicCounter.
func WithCounter(c windowing.TokenCounter) Option { return func(a *Anthropic) { a.counter = c } }

func WithLogger(l *zap.Logger) Option {
	return func(a *Anthropic) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAnthropic(opts ...Option) *Anthropic {
	a := &Anthropic{
		model:     DefaultModel,
		maxTokens: DefaultMaxResponseTokens,
		counter:   windowing.HeuristicCounter{},
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.client == nil {
		a.client = NewAnthropicClient()
	}
	return a
}

// Model returns the configured model name.
func (a *Anthropic) Model() string { return string(a.model) }

// Complete sends msgs and returns the concatenated text of the reply.
// System messages, summaries included, become system blocks in order.
func (a *Anthropic) Complete(ctx context.Context, msgs []llm.Message) (string, error) {
	var system []anthropic.TextBlockParam
	rest := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			if m.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			}
			continue
		}
		rest = append(rest, m)
	}

	if a.budget > 0 {
		window, stats := windowing.PrepareSendWindow(rest, a.budget, a.counter)
		turnID, _ := telemetry.TurnIDFromContext(ctx)
		telemetry.Emit("window_prepared", map[string]any{
			"turn_id":            turnID,
			"model":              string(a.model),
			"budget":             stats.Budget,
			"total_estimated":    stats.Total,
			"included_groups":    stats.IncludedGroups,
			"skipped_groups":     stats.SkippedGroups,
			"over_budget_newest": stats.OverBudgetNewest,
		})
		a.logger.Debug("window prepared",
			zap.Int("budget", stats.Budget),
			zap.Int("total_estimated", stats.Total),
			zap.Int("included_groups", stats.IncludedGroups),
			zap.Int("skipped_groups", stats.SkippedGroups))
		// Fail fast rather than send a request that drops the message being answered.
		if stats.OverBudgetNewest {
			return "", &llm.BackendError{Op: "window", Err: ErrNewestOverBudget}
		}
		rest = window
	}

	conv := mergeRoles(rest)
	if len(conv) == 0 {
		return "", &llm.BackendError{Op: "request", Err: errors.New("no user or assistant messages to send")}
	}

	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  conv,
		System:    system,
	}
	a.persist(ctx, "request", params)

	start := time.Now()
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		a.logger.Warn("model call failed", zap.String("model", string(a.model)), zap.Error(err))
		return "", &llm.BackendError{Op: "messages", Err: err}
	}
	a.persist(ctx, "response", msg)

	var b strings.Builder
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(v.Text)
		}
	}
	a.logger.Debug("model call completed",
		zap.String("model", string(a.model)),
		zap.Duration("took", time.Since(start)),
		zap.Int("reply_bytes", b.Len()),
		zap.String("stop_reason", string(msg.StopReason)))
	return b.String(), nil
}

// mergeRoles joins consecutive messages of the same role; the API expects
// strictly alternating turns.
func mergeRoles(msgs []llm.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var (
		role llm.Role
		buf  []string
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(buf, "\n\n"))
		if role == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		buf = buf[:0]
	}
	for _, m := range msgs {
		if m.Role != role {
			flush()
			role = m.Role
		}
		buf = append(buf, m.Content)
	}
	flush()
	return out
}

// persist writes raw API payloads under <artifacts>/payloads when
// AGT_PERSIST_API_PAYLOADS is on. Failures are logged only.
func (a *Anthropic) persist(ctx context.Context, kind string, v any) {
	if !telemetry.PersistPayloadsEnabled() {
		return
	}
	turnID, ok := telemetry.TurnIDFromContext(ctx)
	if !ok {
		turnID = "noturn"
	}
	dir := filepath.Join(telemetry.ArtifactsDir(), "payloads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.logger.Warn("create payload dir", zap.Error(err))
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		a.logger.Warn("marshal payload", zap.String("kind", kind), zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s_%d_%s.json", turnID, time.Now().UnixNano(), kind)
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o644); err != nil {
		a.logger.Warn("write payload", zap.String("kind", kind), zap.Error(err))
	}
}
