package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the Prometheus series exported by the conversation core.
// A nil *Collectors is valid and records nothing.
type Collectors struct {
	ToolCalls          *prometheus.CounterVec
	Turns              *prometheus.CounterVec
	Summarizations     *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec
	ConversationTokens prometheus.Gauge
}

// NewCollectors builds the collectors and registers them with reg when non-nil.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolchat_tool_calls_total",
				Help: "Tool calls executed, by tool and outcome.",
			},
			[]string{"tool", "outcome"},
		),
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolchat_turns_total",
				Help: "Orchestrated user turns, by outcome.",
			},
			[]string{"outcome"},
		),
		Summarizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolchat_summarizations_total",
				Help: "Summarization attempts, by outcome.",
			},
			[]string{"outcome"},
		),
		BackendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolchat_backend_latency_ms",
				Help:    "Model backend call latency in milliseconds.",
				Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
			},
			[]string{"call"},
		),
		ConversationTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "toolchat_conversation_tokens",
			Help: "Current estimated conversation token total.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.ToolCalls, c.Turns, c.Summarizations, c.BackendLatency, c.ConversationTokens)
	}
	return c
}

func (c *Collectors) ObserveToolCall(tool string, ok bool) {
	if c == nil {
		return
	}
	c.ToolCalls.WithLabelValues(tool, outcome(ok)).Inc()
}

func (c *Collectors) ObserveTurn(ok bool) {
	if c == nil {
		return
	}
	c.Turns.WithLabelValues(outcome(ok)).Inc()
}

// ObserveSummarization records "performed", "skipped" or "error".
func (c *Collectors) ObserveSummarization(result string) {
	if c == nil {
		return
	}
	c.Summarizations.WithLabelValues(result).Inc()
}

func (c *Collectors) ObserveBackend(call string, d time.Duration) {
	if c == nil {
		return
	}
	c.BackendLatency.WithLabelValues(call).Observe(float64(d.Milliseconds()))
}

func (c *Collectors) SetConversationTokens(n int) {
	if c == nil {
		return
	}
	c.ConversationTokens.Set(float64(n))
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
