package provider_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/petasbytes/toolchat/internal/llm"
	"github.com/petasbytes/toolchat/internal/provider"
	"github.com/petasbytes/toolchat/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	method string
	url    string
	body   []byte
}

type fakeTransport struct {
	respStatus int
	respBody   []byte
	captured   *capture
}

func (f *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b, _ := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if f.captured != nil {
		f.captured.method = req.Method
		f.captured.url = req.URL.String()
		f.captured.body = b
	}
	resp := &http.Response{
		StatusCode: f.respStatus,
		Body:       io.NopCloser(bytes.NewReader(f.respBody)),
		Header:     make(http.Header),
	}
	resp.Header.Set("Content-Type", "application/json")
	return resp, nil
}

func newClientWithTransport(rt http.RoundTripper) *anthropic.Client {
	c := anthropic.NewClient(
		option.WithHTTPClient(&http.Client{Transport: rt}),
		option.WithAPIKey("test-key"),
		option.WithMaxRetries(0),
	)
	return &c
}

type reqBody struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	System    []struct {
		Text string `json:"text"`
	} `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"messages"`
}

const okReply = `{"id":"msg_1","type":"message","role":"assistant","model":"m","stop_reason":"end_turn",
"content":[{"type":"text","text":"Hello"},{"type":"text","text":" world"}]}`

func newBackend(t *testing.T, status int, body string, opts ...provider.Option) (*provider.Anthropic, *capture) {
	t.Helper()
	capReq := &capture{}
	cli := newClientWithTransport(&fakeTransport{respStatus: status, respBody: []byte(body), captured: capReq})
	return provider.NewAnthropic(append([]provider.Option{provider.WithClient(cli)}, opts...)...), capReq
}

func decodeReq(t *testing.T, c *capture) reqBody {
	t.Helper()
	require.NotNil(t, c.body, "no request captured")
	var rb reqBody
	require.NoError(t, json.Unmarshal(c.body, &rb), "body=%s", c.body)
	return rb
}

func TestComplete_MapsSystemAndConcatenatesText(t *testing.T) {
	b, capReq := newBackend(t, 200, okReply, provider.WithModel("claude-test"), provider.WithMaxTokens(256))

	out, err := b.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "identity"},
		{Role: llm.RoleSystem, Content: "[SUMMARY OF PREVIOUS CONVERSATION: earlier]"},
		{Role: llm.RoleUser, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", out)

	rb := decodeReq(t, capReq)
	assert.Equal(t, "POST", capReq.method)
	assert.Contains(t, capReq.url, "/v1/messages")
	assert.Equal(t, "claude-test", rb.Model)
	assert.Equal(t, 256, rb.MaxTokens)
	require.Len(t, rb.System, 2)
	assert.Equal(t, "identity", rb.System[0].Text)
	require.Len(t, rb.Messages, 1)
	assert.Equal(t, "user", rb.Messages[0].Role)
	assert.Equal(t, "hi", rb.Messages[0].Content[0].Text)
}

func TestComplete_MergesConsecutiveRoles(t *testing.T) {
	b, capReq := newBackend(t, 200, okReply)
	_, err := b.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleUser, Content: "q"},
		{Role: llm.RoleAssistant, Content: "transcript"},
		{Role: llm.RoleAssistant, Content: "answer"},
		{Role: llm.RoleUser, Content: "next"},
	})
	require.NoError(t, err)

	rb := decodeReq(t, capReq)
	require.Len(t, rb.Messages, 3)
	assert.Equal(t, "assistant", rb.Messages[1].Role)
	assert.Equal(t, "transcript\n\nanswer", rb.Messages[1].Content[0].Text)
}

func TestComplete_SendsPreparedWindowSubset(t *testing.T) {
	// Sends only the newest exchange, not the full conversation.
	b, capReq := newBackend(t, 200, okReply, provider.WithTokenBudget(10))
	_, err := b.Complete(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "system text is never windowed"},
		{Role: llm.RoleUser, Content: "abc"},
		{Role: llm.RoleUser, Content: "defgh"},
	})
	require.NoError(t, err)

	rb := decodeReq(t, capReq)
	require.Len(t, rb.Messages, 1)
	assert.Equal(t, "defgh", rb.Messages[0].Content[0].Text)
	require.Len(t, rb.System, 1)
}

func TestComplete_OverBudgetNewest_ReturnsError_NoHTTP(t *testing.T) {
	b, capReq := newBackend(t, 200, okReply, provider.WithTokenBudget(1))
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hello"}})

	var be *llm.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "window", be.Op)
	assert.ErrorIs(t, err, provider.ErrNewestOverBudget)
	assert.Nil(t, capReq.body, "no HTTP call when the newest group is over budget")
}

func TestComplete_EmitsWindowPrepared(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGT_OBSERVE_JSON", "1")
	t.Setenv("AGT_ARTIFACTS_DIR", dir)

	b, _ := newBackend(t, 200, okReply, provider.WithTokenBudget(1000))
	ctx := telemetry.WithTurnID(context.Background(), "turn-w")
	_, err := b.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hello"}})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &ev))
	assert.Equal(t, "window_prepared", ev["event"])
	assert.Equal(t, "turn-w", ev["turn_id"])
	assert.EqualValues(t, 1000, ev["budget"])
	assert.EqualValues(t, 1, ev["included_groups"])
	assert.Equal(t, false, ev["over_budget_newest"])
}

func TestComplete_HTTPErrorIsBackendError(t *testing.T) {
	b, _ := newBackend(t, 500, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})

	var be *llm.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "messages", be.Op)
	var apiErr *anthropic.Error
	assert.True(t, errors.As(err, &apiErr), "underlying SDK error is preserved: %v", err)
}

func TestComplete_NothingToSend(t *testing.T) {
	b, capReq := newBackend(t, 200, okReply)
	_, err := b.Complete(context.Background(), []llm.Message{{Role: llm.RoleSystem, Content: "only system"}})
	require.Error(t, err)
	assert.Nil(t, capReq.body)
}

func TestComplete_PersistsPayloads(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGT_PERSIST_API_PAYLOADS", "1")
	t.Setenv("AGT_ARTIFACTS_DIR", dir)

	b, _ := newBackend(t, 200, okReply)
	ctx := telemetry.WithTurnID(context.Background(), "turn-p")
	_, err := b.Complete(ctx, []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(dir, "payloads", "turn-p_*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestNewAnthropic_Defaults(t *testing.T) {
	b := provider.NewAnthropic(provider.WithClient(newClientWithTransport(&fakeTransport{})))
	assert.Equal(t, string(provider.DefaultModel), b.Model())
}
