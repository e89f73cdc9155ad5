package runner

import (
	"context"
	"errors"
	"time"

	"github.com/petasbytes/toolchat/internal/conversation"
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/prompt"
	"github.com/petasbytes/toolchat/internal/protocol"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/petasbytes/toolchat/tools"
	"go.uber.org/zap"
)

// FollowUpPrompt asks for the final answer once tool results are in the transcript.
const FollowUpPrompt = "Tool results are included above. Continue and give your final answer to the user."

// Reply is the outcome of one turn.
type Reply struct {
	// Text is the final user-facing reply.
	Text string
	// Transcript is the first reply with result blocks spliced in; empty without tool calls.
	Transcript string
	Results    []tools.Result
	// Summarized reports that older turns were condensed before this turn.
	Summarized bool
	// Skipped counts malformed tool blocks that produced no call.
	Skipped int
}

type Runner struct {
	backend    llm.Backend
	conv       *conversation.State
	exec       *tools.Executor
	composer   *prompt.Composer
	summarizer conversation.Summarizer

	recordTranscript bool
	logger           *zap.Logger
	metrics          *metrics.Collectors
}

type Option func(*Runner)

// WithSummarizer overrides the default, which summarizes through the backend.
func WithSummarizer(s conversation.Summarizer) Option { return func(r *Runner) { r.summarizer = s } }

// WithTranscriptTurns controls whether the spliced transcript is kept as an
// assistant turn ahead of the final reply. On by default.
func WithTranscriptTurns(on bool) Option { return func(r *Runner) { r.recordTranscript = on } }

func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collectors) Option { return func(r *Runner) { r.metrics = m } }

func New(backend llm.Backend, conv *conversation.State, exec *tools.Executor, composer *prompt.Composer, opts ...Option) *Runner {
	r := &Runner{
		backend:          backend,
		conv:             conv,
		exec:             exec,
		composer:         composer,
		summarizer:       conversation.BackendSummarizer{Backend: backend},
		recordTranscript: true,
		logger:           zap.NewNop(),
	}
	if r.composer == nil {
		r.composer = &prompt.Composer{}
	}
	for _, o := range opts {
		o(r)
	}
	if conv.SystemPrompt() == "" {
		conv.SetSystemPrompt(r.composer.Base())
	}
	return r
}

// Conversation returns the state the runner drives.
func (r *Runner) Conversation() *conversation.State { return r.conv }

// RunTurn orchestrates one user turn. The returned error is non-nil only
// when a backend call failed; the error then wraps an *llm.BackendError.
func (r *Runner) RunTurn(ctx context.Context, user string) (Reply, error) {
	start := time.Now()
	ctx, turnID := telemetry.EnsureTurnID(ctx)
	log := r.logger.With(zap.String("turn_id", turnID))
	telemetry.EmitLocalFeatures(ctx, user)

	r.conv.AddMessage(llm.RoleUser, user)

	var reply Reply
	reply.Summarized = r.maybeSummarize(ctx, turnID, log)

	system := r.composer.Compose(ctx, r.conv.SystemPrompt(), r.conv.TokenStatus())
	msgs := llm.WithSystem(r.conv.Messages(), system)

	first, err := r.complete(ctx, "first", msgs)
	if err != nil {
		return Reply{}, r.fail(turnID, start, reply, err, log)
	}

	blocks := protocol.Parse(first)
	calls := make([]protocol.Call, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case protocol.Skipped:
			reply.Skipped++
			log.Debug("tool block skipped", zap.String("reason", b.Reason))
		case protocol.PartiallyParsed:
			log.Debug("tool block parsed from key-value lines", zap.String("tool", b.Call.Name))
			calls = append(calls, b.Call)
		default:
			calls = append(calls, b.Call)
		}
	}

	if len(calls) == 0 {
		reply.Text = first
		r.conv.AddMessage(llm.RoleAssistant, first)
		r.finish(turnID, start, reply, nil, log)
		return reply, nil
	}

	// Tools may rewrite the conversation (reset, summarize, limits); a failed
	// follow-up call rolls that back with the rest of the turn.
	before := r.conv.Snapshot()

	// Sequential: a later call may depend on an earlier one's side effects.
	results := make([]string, 0, len(calls))
	for _, c := range calls {
		res := r.exec.Execute(ctx, c)
		reply.Results = append(reply.Results, res)
		results = append(results, protocol.SerializeResult(c, res.Outcome()))
	}
	reply.Transcript = protocol.Splice(first, calls, results)

	followUp := append(msgs[:len(msgs):len(msgs)],
		llm.Message{Role: llm.RoleAssistant, Content: reply.Transcript},
		llm.Message{Role: llm.RoleUser, Content: FollowUpPrompt},
	)
	final, err := r.complete(ctx, "final", followUp)
	if err != nil {
		if rerr := r.conv.Restore(before); rerr != nil {
			log.Error("restore conversation after failed turn", zap.Error(rerr))
		}
		return Reply{}, r.fail(turnID, start, reply, err, log)
	}

	r.ensureUserTurn(user)
	if r.recordTranscript {
		r.conv.AddMessage(llm.RoleAssistant, reply.Transcript)
	}
	r.conv.AddMessage(llm.RoleAssistant, final)
	reply.Text = final
	r.finish(turnID, start, reply, nil, log)
	return reply, nil
}

// ensureUserTurn re-adds user when a tool cleared it, so the recorded
// exchange still opens with the user's message.
func (r *Runner) ensureUserTurn(user string) {
	turns := r.conv.Turns()
	if n := len(turns); n > 0 && turns[n-1].Role == llm.RoleUser && turns[n-1].Content == user {
		return
	}
	r.conv.AddMessage(llm.RoleUser, user)
}

func (r *Runner) complete(ctx context.Context, call string, msgs []llm.Message) (string, error) {
	start := time.Now()
	out, err := r.backend.Complete(ctx, msgs)
	r.metrics.ObserveBackend(call, time.Since(start))
	if err != nil {
		var be *llm.BackendError
		if !errors.As(err, &be) {
			err = &llm.BackendError{Op: call, Err: err}
		}
		return "", err
	}
	return out, nil
}

// maybeSummarize is best-effort: a failure is logged and the turn continues.
func (r *Runner) maybeSummarize(ctx context.Context, turnID string, log *zap.Logger) bool {
	before := r.conv.TotalTokens()
	done, err := r.conv.MaybeSummarize(ctx, r.summarizer)

	result := "skipped"
	switch {
	case err != nil:
		result = "error"
		log.Warn("summarization failed; continuing with full history", zap.Error(err))
	case done:
		result = "performed"
	}
	r.metrics.ObserveSummarization(result)

	if err != nil || done {
		st := r.conv.TokenStatus()
		telemetry.Emit("summarize", map[string]any{
			"turn_id":          turnID,
			"result":           result,
			"tokens_before":    before,
			"tokens_after":     st.Current,
			"summarized_count": st.SummarizedCount,
		})
	}
	return done
}

func (r *Runner) fail(turnID string, start time.Time, reply Reply, err error, log *zap.Logger) error {
	log.Error("turn aborted", zap.Error(err))
	r.finish(turnID, start, reply, err, log)
	return err
}

func (r *Runner) finish(turnID string, start time.Time, reply Reply, err error, log *zap.Logger) {
	toolErrors := 0
	for _, res := range reply.Results {
		if !res.Success {
			toolErrors++
		}
	}
	st := r.conv.TokenStatus()
	var errField any
	if err != nil {
		errField = "backend"
	}
	telemetry.Emit("turn_completed", map[string]any{
		"turn_id":        turnID,
		"duration_ms":    time.Since(start).Milliseconds(),
		"tool_calls":     len(reply.Results),
		"tool_errors":    toolErrors,
		"skipped_blocks": reply.Skipped,
		"summarized":     reply.Summarized,
		"total_tokens":   st.Current,
		"usage_percent":  st.UsagePercent,
		"error":          errField,
	})
	r.metrics.ObserveTurn(err == nil)
	r.metrics.SetConversationTokens(st.Current)
	if err == nil {
		log.Info("turn completed",
			zap.Int("tool_calls", len(reply.Results)),
			zap.Int("tool_errors", toolErrors),
			zap.Int("skipped_blocks", reply.Skipped),
			zap.Int("total_tokens", st.Current),
			zap.Duration("took", time.Since(start)))
	}
}
