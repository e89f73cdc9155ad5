package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petasbytes/toolchat/internal/config"
	"github.com/petasbytes/toolchat/internal/llm/llmtest"
	"github.com/petasbytes/toolchat/internal/prompt"
	"github.com/petasbytes/toolchat/internal/tokens"
	"github.com/petasbytes/toolchat/memory"
	"github.com/petasbytes/toolchat/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedFileStore(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "memory")
	t.Setenv("AGT_MEMORY_BACKEND", "file")
	t.Setenv("AGT_MEMORY_DIR", dir)
	t.Setenv("AGT_CONVERSATION_PATH", "")
	t.Setenv("AGT_LOG_LEVEL", "error")

	s, err := memory.NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.Store(ctx, memory.StoreRequest{Key: "db_port", Content: "Postgres listens on 5432", Tags: []string{"infra"}})
	require.NoError(t, err)
	_, err = s.Store(ctx, memory.StoreRequest{Key: "lunch", Content: "Tacos on Friday"})
	require.NoError(t, err)
	return dir
}

func TestMemoryCommands(t *testing.T) {
	seedFileStore(t)

	out, err := run(t, "memory", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "db_port")
	assert.Contains(t, out, "lunch")

	out, err = run(t, "memory", "list", "--tag", "infra")
	require.NoError(t, err)
	assert.Contains(t, out, "db_port")
	assert.NotContains(t, out, "lunch")

	out, err = run(t, "memory", "search", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "db_port")

	out, err = run(t, "memory", "get", "db_port")
	require.NoError(t, err)
	assert.Contains(t, out, `"content": "Postgres listens on 5432"`)

	out, err = run(t, "memory", "delete", "lunch")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted lunch")

	_, err = run(t, "memory", "get", "lunch")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	out, err = run(t, "memory", "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "index rebuilt")
}

func TestMemorySearch_NeedsQuery(t *testing.T) {
	seedFileStore(t)
	_, err := run(t, "memory", "search")
	assert.ErrorContains(t, err, "give a query")
}

func TestMemoryReindex_FileOnly(t *testing.T) {
	seedFileStore(t)
	_, err := run(t, "--memory-backend", "memory", "memory", "reindex")
	assert.ErrorContains(t, err, "file backend only")
}

func TestStatus(t *testing.T) {
	seedFileStore(t)
	out, err := run(t, "status", "--model", "claude-test")
	require.NoError(t, err)
	assert.Contains(t, out, "model:               claude-test")
	assert.Contains(t, out, "(not saved)")
	assert.Contains(t, out, "turns:               0")
}

func TestNewSession_CountsCapabilityText(t *testing.T) {
	seedFileStore(t)
	t.Setenv("AGT_PROFILE", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	s, err := newSession(cfg, zap.NewNop(), memory.NewMemStore(), llmtest.New(), nil)
	require.NoError(t, err)

	system := s.conv.SystemPrompt()
	assert.True(t, strings.HasPrefix(system, prompt.DefaultIdentity))
	assert.Contains(t, system, tools.Describe(tools.Registry()))
	identityOnly := tokens.MessageCost(tokens.NewCounter(), prompt.DefaultIdentity, cfg.Model)
	assert.Greater(t, s.conv.TotalTokens(), identityOnly)
}

func TestRepl(t *testing.T) {
	in := strings.NewReader("hello\n\nfail\nbye\n")
	var out, errOut bytes.Buffer
	var seen []string
	err := repl(context.Background(), in, &out, &errOut, func(_ context.Context, line string) (string, error) {
		seen = append(seen, line)
		if line == "fail" {
			return "", errors.New("backend down")
		}
		return "echo " + line, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "fail", "bye"}, seen, "blank lines are ignored")
	assert.Contains(t, out.String(), "echo hello")
	assert.Contains(t, out.String(), "echo bye")
	assert.Contains(t, errOut.String(), "error: backend down")
}

func TestRepl_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := repl(ctx, strings.NewReader(""), &out, &out, func(context.Context, string) (string, error) {
		t.Fatal("no turn expected")
		return "", nil
	})
	require.NoError(t, err)
}
