package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/petasbytes/toolchat/internal/conversation"
	"github.com/petasbytes/toolchat/internal/safety"
	"github.com/petasbytes/toolchat/memory"
	"github.com/petasbytes/toolchat/tools"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T) tools.Env {
	t.Helper()
	conv, err := conversation.New()
	require.NoError(t, err)
	return tools.Env{
		Memory:       memory.NewMemStore(),
		Conversation: conv,
		Detector:     safety.NewKeywordDetector(),
	}
}

// toolErr unpacks the JSON body of a failed call.
func toolErr(t *testing.T, err error) safety.ToolError {
	t.Helper()
	require.Error(t, err)
	var te safety.ToolError
	require.ErrorAs(t, err, &te)
	return te
}

// roundTrip re-decodes a payload as the model would see it.
func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

type fixedSummary string

func (f fixedSummary) Summarize(context.Context, []conversation.Turn) (string, error) {
	return string(f), nil
}
