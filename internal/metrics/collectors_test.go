package metrics_test

import (
	"testing"
	"time"

	"github.com/petasbytes/toolchat/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectors_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)

	c.ObserveToolCall("memory", true)
	c.ObserveToolCall("memory", false)
	c.ObserveToolCall("memory", true)
	c.ObserveTurn(true)
	c.ObserveSummarization("performed")
	c.ObserveBackend("first", 120*time.Millisecond)
	c.SetConversationTokens(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ToolCalls.WithLabelValues("memory", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ToolCalls.WithLabelValues("memory", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Turns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Summarizations.WithLabelValues("performed")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.ConversationTokens))
	assert.Equal(t, 1, testutil.CollectAndCount(c.BackendLatency))
}

func TestCollectors_NilIsNoop(t *testing.T) {
	var c *metrics.Collectors
	assert.NotPanics(t, func() {
		c.ObserveToolCall("x", true)
		c.ObserveTurn(false)
		c.ObserveSummarization("error")
		c.ObserveBackend("first", time.Second)
		c.SetConversationTokens(1)
	})
}
