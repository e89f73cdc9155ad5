package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/petasbytes/toolchat/internal/fsops"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	indexFile   = "index.json"
	recordExt   = ".md"
	frontMatter = "---\n"
)

type indexEntry struct {
	Tags          []string  `json:"tags"`
	CreatedAt     time.Time `json:"created_at"`
	File          string    `json:"file"`
	Preview       string    `json:"preview"`
	HadPermission bool      `json:"had_permission"`
}

type recordHeader struct {
	Key           string   `yaml:"key"`
	Tags          []string `yaml:"tags"`
	CreatedAt     string   `yaml:"created_at"`
	HadPermission bool     `yaml:"had_permission"`
}

// FileStore keeps each record in <key>.md (YAML front matter followed by the
// content) and a key index in index.json. The index is reloaded on every
// operation and rebuilt from the record files when it is missing, corrupt or
// disagrees with them.
type FileStore struct {
	mu   sync.Mutex
	root *fsops.Root
	opts options

	// record files skipped by the last rebuild because they could not be parsed
	unreadable map[string]struct{}
}

// NewFileStore opens (creating if needed) a store rooted at dir.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	root, err := fsops.NewRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("memory dir: %w", err)
	}
	return &FileStore{root: root, opts: buildOptions(opts), unreadable: map[string]struct{}{}}, nil
}

// Dir returns the absolute store directory.
func (s *FileStore) Dir() string { return s.root.Path() }

func (s *FileStore) Store(ctx context.Context, req StoreRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return "", err
	}
	now := s.opts.now().UTC()
	key, err := resolveKey(ctx, req, now, func(_ context.Context, k string) (bool, error) {
		_, ok := idx[k]
		return ok, nil
	})
	if err != nil {
		return "", err
	}

	rec := Record{
		Key:           key,
		Content:       req.Content,
		Tags:          NormalizeTags(req.Tags),
		CreatedAt:     now,
		HadPermission: req.HadPermission,
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	file := key + recordExt
	if err := s.root.WriteFile(file, data); err != nil {
		return "", fmt.Errorf("write record %s: %w", key, err)
	}
	idx[key] = entryFor(rec, file)
	if err := s.saveIndex(idx); err != nil {
		return "", err
	}
	s.opts.logger.Debug("memory stored", zap.String("key", key), zap.Int("bytes", len(req.Content)), zap.Int("tags", len(rec.Tags)))
	return key, nil
}

func (s *FileStore) Retrieve(_ context.Context, key string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return Record{}, err
	}
	e, ok := idx[key]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.readRecord(e.File)
}

func (s *FileStore) Search(_ context.Context, q Query) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.allRecords()
	if err != nil {
		return nil, err
	}
	return Rank(recs, q), nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return err
	}
	e, ok := idx[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := s.root.Remove(e.File); err != nil {
		return fmt.Errorf("remove record %s: %w", key, err)
	}
	delete(idx, key)
	return s.saveIndex(idx)
}

// List answers from the index alone.
func (s *FileStore) List(_ context.Context, tag string) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(idx))
	previews := make(map[string]string, len(idx))
	for key, e := range idx {
		recs = append(recs, Record{Key: key, Tags: e.Tags, CreatedAt: e.CreatedAt, HadPermission: e.HadPermission})
		previews[key] = e.Preview
	}
	out := listSummaries(recs, tag)
	for i := range out {
		out[i].Preview = previews[out[i].Key]
	}
	return out, nil
}

// Rebuild regenerates index.json from the record files.
func (s *FileStore) Rebuild(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.rebuild()
	return err
}

func (s *FileStore) allRecords() ([]Record, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(idx))
	for _, e := range idx {
		r, err := s.readRecord(e.File)
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// loadIndex reads index.json, rebuilding it when it cannot be trusted.
func (s *FileStore) loadIndex() (map[string]indexEntry, error) {
	b, err := s.root.ReadFile(indexFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s.rebuild()
	case err != nil:
		return nil, fmt.Errorf("read index: %w", err)
	}
	var idx map[string]indexEntry
	if err := json.Unmarshal(b, &idx); err != nil || idx == nil {
		s.opts.logger.Warn("memory index corrupt, rebuilding", zap.Error(err))
		return s.rebuild()
	}

	files, err := s.root.List(recordExt)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if !s.consistent(idx, files) {
		s.opts.logger.Warn("memory index out of date, rebuilding", zap.Int("entries", len(idx)), zap.Int("files", len(files)))
		return s.rebuild()
	}
	return idx, nil
}

func (s *FileStore) consistent(idx map[string]indexEntry, files []string) bool {
	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		if _, bad := s.unreadable[f]; bad {
			continue
		}
		onDisk[f] = struct{}{}
	}
	if len(onDisk) != len(idx) {
		return false
	}
	for key, e := range idx {
		if e.File != key+recordExt {
			return false
		}
		if _, ok := onDisk[e.File]; !ok {
			return false
		}
	}
	return true
}

func (s *FileStore) rebuild() (map[string]indexEntry, error) {
	files, err := s.root.List(recordExt)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	idx := make(map[string]indexEntry, len(files))
	s.unreadable = map[string]struct{}{}
	for _, f := range files {
		rec, err := s.readRecord(f)
		if err != nil || rec.Key+recordExt != f {
			s.opts.logger.Warn("skipping unreadable memory record", zap.String("file", f), zap.Error(err))
			s.unreadable[f] = struct{}{}
			continue
		}
		idx[rec.Key] = entryFor(rec, f)
	}
	if err := s.saveIndex(idx); err != nil {
		return nil, err
	}
	s.opts.logger.Info("memory index rebuilt", zap.Int("records", len(idx)), zap.Int("skipped", len(s.unreadable)))
	return idx, nil
}

func (s *FileStore) saveIndex(idx map[string]indexEntry) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := s.root.WriteFile(indexFile, b); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func (s *FileStore) readRecord(file string) (Record, error) {
	b, err := s.root.ReadFile(file)
	if err != nil {
		return Record{}, fmt.Errorf("read record %s: %w", file, err)
	}
	return decodeRecord(b)
}

func entryFor(r Record, file string) indexEntry {
	return indexEntry{
		Tags:          r.Tags,
		CreatedAt:     r.CreatedAt,
		File:          file,
		Preview:       Preview(r.Content),
		HadPermission: r.HadPermission,
	}
}

func encodeRecord(r Record) ([]byte, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	head, err := yaml.Marshal(recordHeader{
		Key:           r.Key,
		Tags:          tags,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
		HadPermission: r.HadPermission,
	})
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontMatter)
	buf.Write(head)
	buf.WriteString(frontMatter)
	buf.WriteString(r.Content)
	return buf.Bytes(), nil
}

func decodeRecord(b []byte) (Record, error) {
	text := string(b)
	if !strings.HasPrefix(text, frontMatter) {
		return Record{}, errors.New("missing front matter")
	}
	rest := text[len(frontMatter):]
	end := strings.Index(rest, "\n"+frontMatter)
	if end < 0 {
		return Record{}, errors.New("unterminated front matter")
	}
	var h recordHeader
	if err := yaml.Unmarshal([]byte(rest[:end+1]), &h); err != nil {
		return Record{}, fmt.Errorf("decode front matter: %w", err)
	}
	if !ValidKey(h.Key) {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidKey, h.Key)
	}
	created, err := time.Parse(time.RFC3339Nano, h.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("decode created_at: %w", err)
	}
	tags := h.Tags
	if tags == nil {
		tags = []string{}
	}
	return Record{
		Key:           h.Key,
		Content:       rest[end+1+len(frontMatter):],
		Tags:          tags,
		CreatedAt:     created,
		HadPermission: h.HadPermission,
	}, nil
}
