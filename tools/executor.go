package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/petasbytes/toolchat/internal/protocol"
	"github.com/petasbytes/toolchat/internal/safety"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/petasbytes/toolchat/memory"
	"go.uber.org/zap"
)

// Result is the outcome of one executed call. Error holds the compact JSON
// error body when Success is false; Code repeats its code for callers.
type Result struct {
	Call    protocol.Call `json:"-"`
	Success bool          `json:"success"`
	Payload any           `json:"payload,omitempty"`
	Error   string        `json:"error,omitempty"`
	Code    string        `json:"code,omitempty"`
}

// Outcome converts r for protocol.SerializeResult.
func (r Result) Outcome() protocol.Outcome {
	return protocol.Outcome{Success: r.Success, Payload: r.Payload, Error: r.Error}
}

// Executor dispatches parsed calls to tool handlers.
type Executor struct {
	env     Env
	tools   map[string]ToolDefinition
	order   []ToolDefinition
	logger  *zap.Logger
	metrics *metrics.Collectors
}

type ExecutorOption func(*Executor)

func WithLogger(l *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithMetrics(m *metrics.Collectors) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor registers defs. A later definition replaces an earlier one of the same name.
func NewExecutor(env Env, defs []ToolDefinition, opts ...ExecutorOption) *Executor {
	e := &Executor{env: env, tools: make(map[string]ToolDefinition, len(defs)), logger: zap.NewNop()}
	for _, d := range defs {
		if _, dup := e.tools[d.Name]; !dup {
			e.order = append(e.order, d)
		} else {
			for i := range e.order {
				if e.order[i].Name == d.Name {
					e.order[i] = d
				}
			}
		}
		e.tools[d.Name] = d
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Definitions returns the registered tools in registration order.
func (e *Executor) Definitions() []ToolDefinition {
	return append([]ToolDefinition(nil), e.order...)
}

// Execute runs call. It never panics and never returns an error: every
// failure becomes an unsuccessful Result.
func (e *Executor) Execute(ctx context.Context, call protocol.Call) (res Result) {
	start := time.Now()
	res.Call = call
	turnID, _ := telemetry.TurnIDFromContext(ctx)
	inSize := paramSize(call.Parameters)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", zap.String("tool", call.Name), zap.Any("panic", r))
			res = failure(call, safety.ToolError{Code: safety.CodeToolFailed, Message: fmt.Sprintf("tool %s failed", call.Name)})
		}
		outSize := 0
		var errField any
		if res.Success {
			outSize = paramSize(res.Payload)
		} else {
			errField = res.Code
		}
		telemetry.Emit("tool_exec", map[string]any{
			"tool_name":   call.Name,
			"duration_ms": time.Since(start).Milliseconds(),
			"input_size":  inSize,
			"output_size": outSize,
			"turn_id":     turnID,
			"error":       errField,
		})
		e.metrics.ObserveToolCall(metricName(e, call.Name), res.Success)
		e.logger.Debug("tool executed",
			zap.String("tool", call.Name),
			zap.Bool("success", res.Success),
			zap.String("code", res.Code),
			zap.Duration("took", time.Since(start)))
	}()

	def, ok := e.tools[call.Name]
	if !ok || def.Function == nil {
		return failure(call, safety.ToolError{Code: safety.CodeUnknownTool, Message: "unknown tool: " + call.Name})
	}
	params := Params(call.Parameters)
	if params == nil {
		params = Params{}
	}
	payload, err := def.Function(ctx, e.env, params)
	if err != nil {
		return failure(call, classify(err))
	}
	return Result{Call: call, Success: true, Payload: payload}
}

func failure(call protocol.Call, te safety.ToolError) Result {
	return Result{Call: call, Error: te.Error(), Code: te.Code}
}

// classify maps handler errors onto tool error codes.
func classify(err error) safety.ToolError {
	var te safety.ToolError
	switch {
	case errors.As(err, &te):
		return te
	case errors.Is(err, memory.ErrNotFound):
		return safety.ToolError{Code: safety.CodeNotFound, Message: err.Error()}
	case errors.Is(err, memory.ErrKeyExists):
		return safety.ToolError{Code: safety.CodeKeyExists, Message: err.Error() + "; pass overwrite=true to replace it"}
	case errors.Is(err, memory.ErrInvalidKey), errors.Is(err, memory.ErrEmptyContent):
		return safety.ToolError{Code: safety.CodeInvalidParam, Message: err.Error()}
	}
	return safety.ToolError{Code: safety.CodeToolFailed, Message: err.Error()}
}

// metricName keeps label cardinality bounded: unknown names share one label.
func metricName(e *Executor, name string) string {
	if _, ok := e.tools[name]; ok {
		return name
	}
	return "unknown"
}

func paramSize(v any) int {
	if v == nil {
		return 0
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
