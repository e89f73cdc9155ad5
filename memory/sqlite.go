package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex
	opts options
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, opts: buildOptions(opts)}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		key TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		had_permission INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Store(ctx context.Context, req StoreRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	now := s.opts.now().UTC()
	key, err := resolveKey(ctx, req, now, func(ctx context.Context, k string) (bool, error) {
		var n int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM memories WHERE key = ?`, k).Scan(&n)
		return n > 0, err
	})
	if err != nil {
		return "", err
	}

	tags, err := json.Marshal(NormalizeTags(req.Tags))
	if err != nil {
		return "", fmt.Errorf("failed to marshal tags: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (key, content, tags, created_at, had_permission)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			content = excluded.content,
			tags = excluded.tags,
			created_at = excluded.created_at,
			had_permission = excluded.had_permission
	`, key, req.Content, string(tags), now.UnixNano(), req.HadPermission)
	if err != nil {
		return "", fmt.Errorf("failed to store memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	s.opts.logger.Debug("memory stored", zap.String("key", key), zap.Int("bytes", len(req.Content)))
	return key, nil
}

func (s *SQLiteStore) Retrieve(ctx context.Context, key string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT key, content, tags, created_at, had_permission FROM memories WHERE key = ?`, key)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return r, err
}

func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]Summary, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(recs, q), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, tag string) ([]Summary, error) {
	recs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	return listSummaries(recs, tag), nil
}

func (s *SQLiteStore) all(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, content, tags, created_at, had_permission FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r       Record
		tags    string
		created int64
	)
	if err := sc.Scan(&r.Key, &r.Content, &tags, &created, &r.HadPermission); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal tags for %s: %w", r.Key, err)
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	return r, nil
}
