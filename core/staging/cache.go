package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"data-reconciler/core/engine"
	"data-reconciler/core/source"

	"go.uber.org/zap"
)

// CacheMetadata describes a cached canonical table.
type CacheMetadata struct {
	Dataset          string             `json:"dataset"`
	Fingerprint      source.Fingerprint `json:"fingerprint"`
	RowCount         int64              `json:"row_count"`
	Columns          []Column           `json:"columns"`
	Keys             []string           `json:"keys"`
	HasLastModified  bool               `json:"has_last_modified"`
	CoercionFailures map[string]int64   `json:"coercion_failures,omitempty"`
	Transformations  []string           `json:"transformations,omitempty"`
	ConfigDigest     string             `json:"config_digest"`
	StagedAt         time.Time          `json:"staged_at"`
}

// CacheStore persists canonical tables between runs.
type CacheStore interface {
	// Get returns the metadata of a cached dataset, or ok=false on a miss.
	Get(ctx context.Context, name string) (*CacheMetadata, bool, error)
	// Load materializes the cached rows of name as table in sess.
	Load(ctx context.Context, sess *engine.Session, name, table string) error
	// Put replaces the cache entry of name with table. Readers never see a partial entry.
	Put(ctx context.Context, sess *engine.Session, name, table string, meta *CacheMetadata) error
}

// NewCacheStore builds the store selected by cfg.
func NewCacheStore(cfg Config, log *zap.Logger) (CacheStore, error) {
	switch strings.ToLower(cfg.Cache) {
	case "", "file":
		return NewFileCacheStore(cfg.Dir, log), nil
	case "memory":
		return NewMemoryCacheStore(), nil
	default:
		return nil, fmt.Errorf("unknown staging cache %q", cfg.Cache)
	}
}

// FileCacheStore keeps one Parquet file and one JSON metadata file per dataset.
type FileCacheStore struct {
	dir string
	log *zap.Logger
}

// NewFileCacheStore returns a store rooted at dir.
func NewFileCacheStore(dir string, log *zap.Logger) *FileCacheStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileCacheStore{dir: dir, log: log}
}

// Dir returns the cache directory.
func (s *FileCacheStore) Dir() string {
	return s.dir
}

func fileStem(name string) string {
	return strings.NewReplacer("/", "_", `\`, "_", "..", "_").Replace(name)
}

func (s *FileCacheStore) dataPath(name string) string {
	return filepath.Join(s.dir, fileStem(name)+".parquet")
}

func (s *FileCacheStore) metaPath(name string) string {
	return filepath.Join(s.dir, fileStem(name)+".meta.json")
}

// Get implements CacheStore. Unreadable metadata is treated as a miss.
func (s *FileCacheStore) Get(_ context.Context, name string) (*CacheMetadata, bool, error) {
	data, err := os.ReadFile(s.metaPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache metadata of %q: %w", name, err)
	}
	if _, err := os.Stat(s.dataPath(name)); errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("stat cache data of %q: %w", name, err)
	}

	var meta CacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		s.log.Warn("Ignoring unreadable cache metadata", zap.String("dataset", name), zap.Error(err))
		return nil, false, nil
	}
	return &meta, true, nil
}

// Load implements CacheStore.
func (s *FileCacheStore) Load(ctx context.Context, sess *engine.Session, name, table string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM read_parquet(%s)",
		engine.QuoteIdent(table), engine.QuoteLiteral(s.dataPath(name)))
	if err := sess.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("load cache of %q: %w", name, err)
	}
	return nil
}

// Put implements CacheStore. The old metadata is removed first so a crash
// between the two renames leaves a miss, never a mismatched pair.
func (s *FileCacheStore) Put(ctx context.Context, sess *engine.Session, name, table string, meta *CacheMetadata) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmpData, err := tempPath(s.dir, fileStem(name)+".parquet")
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", engine.QuoteIdent(table), engine.QuoteIdent(RowNumberColumn))
	if err := sess.CopyTo(ctx, query, tmpData, engine.FormatParquet); err != nil {
		_ = os.Remove(tmpData)
		return fmt.Errorf("write cache of %q: %w", name, err)
	}

	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(tmpData)
		return fmt.Errorf("encode cache metadata of %q: %w", name, err)
	}
	tmpMeta, err := tempPath(s.dir, fileStem(name)+".meta.json")
	if err != nil {
		_ = os.Remove(tmpData)
		return err
	}
	if err := os.WriteFile(tmpMeta, payload, 0o644); err != nil {
		_ = os.Remove(tmpData)
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("write cache metadata of %q: %w", name, err)
	}

	if err := os.Remove(s.metaPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = os.Remove(tmpData)
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("invalidate cache of %q: %w", name, err)
	}
	if err := os.Rename(tmpData, s.dataPath(name)); err != nil {
		_ = os.Remove(tmpData)
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("publish cache of %q: %w", name, err)
	}
	if err := os.Rename(tmpMeta, s.metaPath(name)); err != nil {
		_ = os.Remove(tmpMeta)
		return fmt.Errorf("publish cache metadata of %q: %w", name, err)
	}

	s.log.Debug("Cache written", zap.String("dataset", name), zap.String("path", s.dataPath(name)))
	return nil
}

func tempPath(dir, stem string) (string, error) {
	f, err := os.CreateTemp(dir, "."+stem+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create cache temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	return name, nil
}

// MemoryCacheStore keeps snapshots in process memory. It is independent of any
// engine session, so entries survive across runs of the same process.
type MemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	meta    CacheMetadata
	columns []engine.Column
	rows    [][]any
}

// NewMemoryCacheStore returns an empty in-memory store.
func NewMemoryCacheStore() *MemoryCacheStore {
	return &MemoryCacheStore{entries: make(map[string]memoryEntry)}
}

// Get implements CacheStore.
func (s *MemoryCacheStore) Get(_ context.Context, name string) (*CacheMetadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false, nil
	}
	meta := e.meta
	return &meta, true, nil
}

// Load implements CacheStore.
func (s *MemoryCacheStore) Load(ctx context.Context, sess *engine.Session, name, table string) error {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no cached snapshot for %q", name)
	}

	defs := make([]string, len(e.columns))
	for i, c := range e.columns {
		defs[i] = engine.QuoteIdent(c.Name) + " " + c.Type
	}
	if err := sess.Exec(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", engine.QuoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("load cache of %q: %w", name, err)
	}
	return sess.AppendRows(ctx, table, e.rows)
}

// Put implements CacheStore.
func (s *MemoryCacheStore) Put(ctx context.Context, sess *engine.Session, name, table string, meta *CacheMetadata) error {
	cols, err := sess.Columns(ctx, table)
	if err != nil {
		return err
	}
	res, err := sess.Fetch(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", engine.QuoteIdent(table), engine.QuoteIdent(RowNumberColumn)))
	if err != nil {
		return fmt.Errorf("snapshot %q: %w", name, err)
	}

	s.mu.Lock()
	s.entries[name] = memoryEntry{meta: *meta, columns: cols, rows: res.Rows}
	s.mu.Unlock()
	return nil
}

// Invalidate drops the entry of name.
func (s *MemoryCacheStore) Invalidate(name string) {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
}
