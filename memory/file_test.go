package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petasbytes/toolchat/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func newFileStore(t *testing.T, opts ...memory.Option) (*memory.FileStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "memory")
	s, err := memory.NewFileStore(dir, append([]memory.Option{memory.WithClock(tickClock())}, opts...)...)
	require.NoError(t, err)
	return s, s.Dir()
}

func TestFileStore_RecordFileLayout(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	_, err := s.Store(ctx, memory.StoreRequest{Key: "stack", Content: "Go services\n---\nbehind envoy", Tags: []string{"infra"}, HadPermission: true})
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "stack.md"))
	require.NoError(t, err)
	text := string(b)
	assert.True(t, strings.HasPrefix(text, "---\nkey: stack\n"), text)
	assert.Contains(t, text, "had_permission: true\n")
	assert.True(t, strings.HasSuffix(text, "---\nGo services\n---\nbehind envoy"), text)

	// Content containing a front matter marker survives the round trip.
	rec, err := s.Retrieve(ctx, "stack")
	require.NoError(t, err)
	assert.Equal(t, "Go services\n---\nbehind envoy", rec.Content)

	idx, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
	assert.Contains(t, string(idx), `"file": "stack.md"`)
	assert.Contains(t, string(idx), `"had_permission": true`)
}

func TestFileStore_RebuildsMissingIndex(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	for _, k := range []string{"a", "b"} {
		_, err := s.Store(ctx, memory.StoreRequest{Key: k, Content: "content " + k})
		require.NoError(t, err)
	}
	before, err := s.List(ctx, "")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "index.json")))
	after, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = os.Stat(filepath.Join(dir, "index.json"))
	assert.NoError(t, err, "index should be rewritten")
}

func TestFileStore_RebuildsCorruptIndex(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s, dir := newFileStore(t, memory.WithLogger(zap.New(core)))
	ctx := context.Background()
	_, err := s.Store(ctx, memory.StoreRequest{Key: "k", Content: "kept"})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("{not json"), 0o644))
	rec, err := s.Retrieve(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "kept", rec.Content)
	assert.Equal(t, 1, logs.FilterMessage("memory index corrupt, rebuilding").Len())
}

func TestFileStore_RebuildsWhenRecordsDisagree(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	_, err := s.Store(ctx, memory.StoreRequest{Key: "a", Content: "alpha"})
	require.NoError(t, err)
	_, err = s.Store(ctx, memory.StoreRequest{Key: "b", Content: "beta"})
	require.NoError(t, err)

	// A record file removed behind the store's back disappears from the index.
	require.NoError(t, os.Remove(filepath.Join(dir, "a.md")))
	list, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, summaryKeys(list))

	// A record file added behind the store's back appears.
	other, otherDir := newFileStore(t)
	_, err = other.Store(ctx, memory.StoreRequest{Key: "c", Content: "gamma", Tags: []string{"t"}})
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(otherDir, "c.md"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.md"), b, 0o644))

	got, err := s.Search(ctx, memory.Query{Tags: []string{"t"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, summaryKeys(got))
}

func TestFileStore_UnreadableRecordIsSkipped(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	_, err := s.Store(ctx, memory.StoreRequest{Key: "good", Content: "fine"})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.md"), []byte("no front matter"), 0o644))

	for i := 0; i < 2; i++ {
		list, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"good"}, summaryKeys(list))
	}
}

func TestFileStore_ExplicitRebuild(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	_, err := s.Store(ctx, memory.StoreRequest{Key: "k", Content: "v", Tags: []string{"x"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte("{}"), 0o644))
	require.NoError(t, s.Rebuild(ctx))

	b, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"k"`)
}

func TestFileStore_ReopenSeesRecords(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	_, err := s.Store(ctx, memory.StoreRequest{Key: "persisted", Content: "across restarts"})
	require.NoError(t, err)

	reopened, err := memory.NewFileStore(dir)
	require.NoError(t, err)
	rec, err := reopened.Retrieve(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "across restarts", rec.Content)
}

func TestFileStore_StoreRetrieveProperty(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()
	rapid.Check(t, func(t *rapid.T) {
		content := rapid.StringMatching(`[\PC\n]{1,200}`).Filter(func(s string) bool {
			return strings.TrimSpace(s) != ""
		}).Draw(t, "content")
		tags := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,6}`), 0, 3).Draw(t, "tags")

		key, err := s.Store(ctx, memory.StoreRequest{Content: content, Tags: tags})
		if err != nil {
			t.Fatalf("store: %v", err)
		}
		rec, err := s.Retrieve(ctx, key)
		if err != nil {
			t.Fatalf("retrieve %s: %v", key, err)
		}
		if rec.Content != content {
			t.Fatalf("content mismatch for %s: %q vs %q", key, rec.Content, content)
		}
		if len(rec.Tags) != len(memory.NormalizeTags(tags)) {
			t.Fatalf("tags mismatch: %v vs %v", rec.Tags, tags)
		}
		found, err := s.Search(ctx, memory.Query{Text: key})
		if err != nil {
			t.Fatal(err)
		}
		if !containsKey(found, key) {
			t.Fatalf("search by key %q did not find the record", key)
		}
	})

	// Rebuilding from the record files yields the same index view.
	before, err := s.List(ctx, "")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "index.json")))
	after, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func containsKey(list []memory.Summary, key string) bool {
	for _, s := range list {
		if s.Key == key {
			return true
		}
	}
	return false
}
