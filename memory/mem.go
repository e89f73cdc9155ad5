package memory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MemStore is a process-local Store with no persistence.
type MemStore struct {
	mu      sync.RWMutex
	opts    options
	records map[string]Record
}

func NewMemStore(opts ...Option) *MemStore {
	return &MemStore{opts: buildOptions(opts), records: map[string]Record{}}
}

func (s *MemStore) Store(ctx context.Context, req StoreRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now().UTC()
	key, err := resolveKey(ctx, req, now, func(_ context.Context, k string) (bool, error) {
		_, ok := s.records[k]
		return ok, nil
	})
	if err != nil {
		return "", err
	}
	s.records[key] = Record{
		Key:           key,
		Content:       req.Content,
		Tags:          NormalizeTags(req.Tags),
		CreatedAt:     now,
		HadPermission: req.HadPermission,
	}
	s.opts.logger.Debug("memory stored", zap.String("key", key), zap.Int("bytes", len(req.Content)))
	return key, nil
}

func (s *MemStore) Retrieve(_ context.Context, key string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return r, nil
}

func (s *MemStore) Search(_ context.Context, q Query) ([]Summary, error) {
	return Rank(s.all(), q), nil
}

func (s *MemStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(s.records, key)
	return nil
}

func (s *MemStore) List(_ context.Context, tag string) ([]Summary, error) {
	return listSummaries(s.all(), tag), nil
}

func (s *MemStore) all() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}
