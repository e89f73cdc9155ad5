package memory

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("memory not found")
	ErrKeyExists    = errors.New("memory key already exists")
	ErrInvalidKey   = errors.New("invalid memory key")
	ErrEmptyContent = errors.New("memory content is empty")
)

// Record is one stored memory.
type Record struct {
	Key           string    `json:"key"`
	Content       string    `json:"content"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	HadPermission bool      `json:"had_permission"`
}

// Summary describes a record without its full content. Score is set by Search.
type Summary struct {
	Key           string    `json:"key"`
	Preview       string    `json:"preview"`
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	HadPermission bool      `json:"had_permission"`
	Score         int       `json:"score,omitempty"`
}

// StoreRequest asks a Store to persist Content. An empty Key is generated
// from the content.
type StoreRequest struct {
	Content       string
	Key           string
	Tags          []string
	Overwrite     bool
	HadPermission bool
}

// Query selects records for Search. Empty Text and Tags match everything.
// Limit <= 0 means no limit.
type Query struct {
	Text  string
	Tags  []string
	Limit int
}

// Store is the contract shared by every memory backend.
type Store interface {
	// Store persists the request and returns the key used.
	Store(ctx context.Context, req StoreRequest) (string, error)
	Retrieve(ctx context.Context, key string) (Record, error)
	Search(ctx context.Context, q Query) ([]Summary, error)
	// Delete removes key; ErrNotFound when it does not exist.
	Delete(ctx context.Context, key string) error
	// List returns newest-first summaries, restricted to tag when non-empty.
	List(ctx context.Context, tag string) ([]Summary, error)
}

type options struct {
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store implementation.
type Option func(*options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (r Record) summary() Summary {
	return Summary{
		Key:           r.Key,
		Preview:       Preview(r.Content),
		Tags:          r.Tags,
		CreatedAt:     r.CreatedAt,
		HadPermission: r.HadPermission,
	}
}
