package memory_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/petasbytes/toolchat/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickClock returns a clock that advances one second per call.
func tickClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type factory func(t *testing.T, opts ...memory.Option) memory.Store

func backends() map[string]factory {
	return map[string]factory{
		"file": func(t *testing.T, opts ...memory.Option) memory.Store {
			s, err := memory.NewFileStore(filepath.Join(t.TempDir(), "memory"), opts...)
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T, opts ...memory.Option) memory.Store {
			s, err := memory.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"), opts...)
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"mem": func(t *testing.T, opts ...memory.Option) memory.Store {
			return memory.NewMemStore(opts...)
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s memory.Store)) {
	for name, mk := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, mk(t, memory.WithClock(tickClock())))
		})
	}
}

func TestStore_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		key, err := s.Store(ctx, memory.StoreRequest{
			Content:       "The payments service uses Postgres 15.\nReplicas: 2",
			Key:           "payments-db",
			Tags:          []string{"Infra", " db ", "infra"},
			HadPermission: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "payments-db", key)

		rec, err := s.Retrieve(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "The payments service uses Postgres 15.\nReplicas: 2", rec.Content)
		assert.Equal(t, []string{"infra", "db"}, rec.Tags)
		assert.True(t, rec.HadPermission)
		assert.False(t, rec.CreatedAt.IsZero())
	})
}

func TestStore_GeneratedKeys(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		k1, err := s.Store(ctx, memory.StoreRequest{Content: "Deploy window is Tuesday mornings"})
		require.NoError(t, err)
		assert.Equal(t, "deploy_window_is", k1)

		k2, err := s.Store(ctx, memory.StoreRequest{Content: "Deploy window is Thursday now"})
		require.NoError(t, err)
		assert.Regexp(t, `^deploy_window_is_[0-9a-f]{8}$`, k2)

		// Both survive.
		r1, err := s.Retrieve(ctx, k1)
		require.NoError(t, err)
		assert.Contains(t, r1.Content, "Tuesday")
		r2, err := s.Retrieve(ctx, k2)
		require.NoError(t, err)
		assert.Contains(t, r2.Content, "Thursday")
	})
}

func TestStore_ExistingKeyRejectedUnlessOverwrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		_, err := s.Store(ctx, memory.StoreRequest{Content: "v1", Key: "k"})
		require.NoError(t, err)

		_, err = s.Store(ctx, memory.StoreRequest{Content: "v2", Key: "k"})
		require.ErrorIs(t, err, memory.ErrKeyExists)
		rec, _ := s.Retrieve(ctx, "k")
		assert.Equal(t, "v1", rec.Content)

		_, err = s.Store(ctx, memory.StoreRequest{Content: "v2", Key: "k", Overwrite: true})
		require.NoError(t, err)
		rec, _ = s.Retrieve(ctx, "k")
		assert.Equal(t, "v2", rec.Content)
	})
}

func TestStore_InvalidInput(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		_, err := s.Store(ctx, memory.StoreRequest{Content: "  \n"})
		assert.ErrorIs(t, err, memory.ErrEmptyContent)

		for _, key := range []string{"../escape", "a/b", ".hidden", "-x", string(make([]byte, 200))} {
			_, err := s.Store(ctx, memory.StoreRequest{Content: "x", Key: key})
			assert.ErrorIs(t, err, memory.ErrInvalidKey, "key %q", key)
		}
	})
}

func TestStore_DeleteAndNotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		_, err := s.Retrieve(ctx, "missing")
		assert.ErrorIs(t, err, memory.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "missing"), memory.ErrNotFound)

		_, err = s.Store(ctx, memory.StoreRequest{Content: "x", Key: "k"})
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, "k"))
		_, err = s.Retrieve(ctx, "k")
		assert.True(t, errors.Is(err, memory.ErrNotFound))

		list, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestStore_SearchRanking(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		store := func(key, content string, tags ...string) {
			_, err := s.Store(ctx, memory.StoreRequest{Key: key, Content: content, Tags: tags})
			require.NoError(t, err)
		}
		store("old-deploy", "deploy checklist for the api", "ops")
		store("deploy-policy", "we deploy on fridays only", "ops", "policy")
		store("lunch", "team lunch on thursday", "social")
		store("new-deploy", "deploy checklist for the api", "ops")

		got, err := s.Search(ctx, memory.Query{Text: "Deploy Checklist"})
		require.NoError(t, err)
		keys := summaryKeys(got)
		// Phrase hits outrank single-term hits; equal scores go newest first.
		assert.Equal(t, []string{"new-deploy", "old-deploy", "deploy-policy"}, keys)

		got, err = s.Search(ctx, memory.Query{Tags: []string{"POLICY", "social"}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"deploy-policy", "lunch"}, summaryKeys(got))

		got, err = s.Search(ctx, memory.Query{Text: "deploy", Tags: []string{"policy"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"deploy-policy"}, summaryKeys(got))

		got, err = s.Search(ctx, memory.Query{Text: "deploy", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)

		got, err = s.Search(ctx, memory.Query{Text: "kubernetes"})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Search(ctx, memory.Query{})
		require.NoError(t, err)
		assert.Equal(t, []string{"new-deploy", "lunch", "deploy-policy", "old-deploy"}, summaryKeys(got))
	})
}

func TestStore_ListNewestFirstWithTag(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s memory.Store) {
		ctx := context.Background()
		long := make([]byte, 150)
		for i := range long {
			long[i] = 'a'
		}
		for _, req := range []memory.StoreRequest{
			{Key: "a", Content: "first", Tags: []string{"x"}},
			{Key: "b", Content: string(long), Tags: []string{"y"}},
			{Key: "c", Content: "third", Tags: []string{"x", "y"}},
		} {
			_, err := s.Store(ctx, req)
			require.NoError(t, err)
		}
		all, err := s.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b", "a"}, summaryKeys(all))
		assert.Equal(t, string(long[:100])+"...", all[1].Preview)

		xs, err := s.List(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, summaryKeys(xs))
	})
}

func TestFormatForContext(t *testing.T) {
	ctx := context.Background()
	s := memory.NewMemStore(memory.WithClock(tickClock()))

	out, err := memory.FormatForContext(ctx, s, 3)
	require.NoError(t, err)
	assert.Equal(t, memory.NoMemories, out)

	for _, c := range []string{"one fact", "two fact", "three fact", "four fact"} {
		_, err := s.Store(ctx, memory.StoreRequest{Content: c})
		require.NoError(t, err)
	}
	out, err = memory.FormatForContext(ctx, s, 2)
	require.NoError(t, err)
	assert.Equal(t, "Your memory contains the following information:\n\n- four_fact: four fact\n\n- three_fact: three fact", out)

	out, err = memory.FormatForContext(ctx, s, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func summaryKeys(list []memory.Summary) []string {
	keys := make([]string, len(list))
	for i, s := range list {
		keys[i] = s.Key
	}
	return keys
}
