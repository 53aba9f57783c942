package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"data-reconciler/core/chunked"
	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/normalize"
	"data-reconciler/core/source"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Stager turns dataset sources into canonical tables in one engine session.
// A Stager belongs to one pipeline run: each dataset is staged at most once
// through it unless a restage is forced.
type Stager struct {
	sess  *engine.Session
	cache CacheStore
	deps  source.Deps
	log   *zap.Logger

	mu     sync.RWMutex
	staged map[string]*Table
	sf     singleflight.Group
}

// NewStager creates a stager writing into sess and caching through cache.
func NewStager(sess *engine.Session, cache CacheStore, deps source.Deps, log *zap.Logger) *Stager {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Log == nil {
		deps.Log = log
	}
	return &Stager{
		sess:   sess,
		cache:  cache,
		deps:   deps,
		log:    log,
		staged: make(map[string]*Table),
	}
}

// Staged returns a table already staged by this stager.
func (s *Stager) Staged(name string) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.staged[name]
	return t, ok
}

// Stage returns the canonical table of ds. A valid cache entry is reused
// unless force is set; drift between the cache and the source always forces
// a restage.
func (s *Stager) Stage(ctx context.Context, ds datasets.Dataset, force bool) (*Table, error) {
	if !force {
		if t, ok := s.Staged(ds.Name); ok {
			return t, nil
		}
	}

	result, err, _ := s.sf.Do(ds.Name, func() (any, error) {
		if !force {
			if t, ok := s.Staged(ds.Name); ok {
				return t, nil
			}
		}

		t, err := s.stage(ctx, ds, force)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.staged[ds.Name] = t
		s.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Table), nil
}

func (s *Stager) stage(ctx context.Context, ds datasets.Dataset, force bool) (*Table, error) {
	log := s.log.With(zap.String("dataset", ds.Name))

	reader, err := source.For(ds, s.deps)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil {
			log.Warn("Failed to clean up source temp files", zap.Error(cerr))
		}
	}()

	fp, err := reader.Fingerprint(ctx, s.sess)
	if err != nil {
		return nil, err
	}
	digest := ConfigDigest(ds)

	var drift []string
	if !force {
		meta, ok, err := s.cache.Get(ctx, ds.Name)
		if err != nil {
			log.Warn("Cache lookup failed, restaging", zap.Error(err))
		}
		if ok {
			drift = DetectDrift(meta, fp, digest)
			if len(drift) == 0 {
				t, err := s.loadCached(ctx, ds, meta)
				if err == nil {
					log.Info("Dataset served from cache", zap.Int64("rows", t.RowCount))
					return t, nil
				}
				var keyErr *KeyColumnError
				if errors.As(err, &keyErr) {
					return nil, err
				}
				log.Warn("Cached table unreadable, restaging", zap.Error(err))
				drift = append(drift, "cached table unreadable")
			} else {
				log.Info("Cache drift detected, restaging", zap.Strings("reasons", drift))
			}
		}
	}

	t, err := s.build(ctx, reader, ds, fp, digest, log)
	if err != nil {
		return nil, err
	}
	t.DriftReasons = drift
	return t, nil
}

// loadCached restores a cached table and re-applies canonical naming, which is
// a no-op for caches this package wrote.
func (s *Stager) loadCached(ctx context.Context, ds datasets.Dataset, meta *CacheMetadata) (*Table, error) {
	name := TableName(ds.Name)
	if err := s.cache.Load(ctx, s.sess, ds.Name, name); err != nil {
		return nil, err
	}

	cols, err := s.sess.Columns(ctx, name)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]normalize.ColumnType, len(meta.Columns))
	for _, c := range meta.Columns {
		declared[c.Name] = c.Type
	}

	var plain []engine.Column
	for _, c := range cols {
		if c.Name != RowNumberColumn && c.Name != LastModifiedColumn {
			plain = append(plain, c)
		}
	}
	rawNames := make([]string, len(plain))
	for i, c := range plain {
		rawNames[i] = c.Name
	}
	canonical := normalize.CanonicalNames(rawNames)

	t := &Table{
		Name:             name,
		Dataset:          ds.Name,
		Keys:             ds.Keys,
		FromCache:        true,
		HasLastModified:  meta.HasLastModified,
		Fingerprint:      meta.Fingerprint,
		CoercionFailures: meta.CoercionFailures,
		Transformations:  meta.Transformations,
		StagedAt:         meta.StagedAt,
	}
	for i, c := range plain {
		if canonical[i] != c.Name {
			stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
				engine.QuoteIdent(name), engine.QuoteIdent(c.Name), engine.QuoteIdent(canonical[i]))
			if err := s.sess.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("rename cached column %q: %w", c.Name, err)
			}
			t.Warnings = append(t.Warnings, fmt.Sprintf("cached column %q renamed to %q", c.Name, canonical[i]))
		}
		typ, ok := declared[canonical[i]]
		if !ok {
			typ = normalize.TypeFromSQL(c.Type)
		}
		t.Columns = append(t.Columns, Column{Name: canonical[i], Type: typ})
	}

	for _, k := range ds.Keys {
		if _, ok := t.Column(k); !ok {
			return nil, &KeyColumnError{Dataset: ds.Name, Column: k, Available: t.ColumnNames()}
		}
	}

	if t.RowCount, err = s.sess.RowCount(ctx, name); err != nil {
		return nil, err
	}
	return t, nil
}

// build stages ds from its source, chunk by chunk.
func (s *Stager) build(ctx context.Context, reader source.Reader, ds datasets.Dataset, fp source.Fingerprint, digest string, log *zap.Logger) (*Table, error) {
	raw := "__raw_" + ds.Name
	work := "__build_" + ds.Name
	final := "__final_" + ds.Name
	defer func() {
		for _, tmp := range []string{raw, work, final} {
			_ = s.sess.DropTable(context.WithoutCancel(ctx), tmp)
		}
	}()

	total, err := reader.Load(ctx, s.sess, raw)
	if err != nil {
		return nil, err
	}
	rawCols, err := s.sess.Columns(ctx, raw)
	if err != nil {
		return nil, err
	}
	rawNames := make([]string, 0, len(rawCols))
	for _, c := range rawCols {
		if c.Name != source.OrdinalColumn {
			rawNames = append(rawNames, c.Name)
		}
	}

	plan, err := buildPlan(ds, rawNames)
	if err != nil {
		return nil, err
	}
	for _, w := range plan.warnings {
		log.Warn("Staging warning", zap.String("detail", w))
	}

	override := chunked.Override(ds.ChunkSize, s.sess.Config().ChunkSize)
	chunk := chunked.ChunkSize(fp.Format, len(rawNames), fp.SizeBytes, override)
	log.Debug("Staging source",
		zap.Int64("rows", total),
		zap.Int("columns", len(rawNames)),
		zap.Int("chunk_size", chunk))

	srcCols := plan.sourceColumns()
	if plan.needsInference() {
		err := s.scan(ctx, raw, srcCols, total, chunk, func(rows [][]*string) error {
			for _, row := range rows {
				plan.observe(row)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		plan.resolveInferred()
	}

	defs := make([]string, 0, len(plan.columns)+1)
	for _, c := range plan.columns {
		defs = append(defs, engine.QuoteIdent(c.canonical)+" "+c.typ.SQLType())
	}
	defs = append(defs, engine.QuoteIdent(LastModifiedColumn)+" DATE")
	if err := s.sess.Exec(ctx, fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", engine.QuoteIdent(work), strings.Join(defs, ", "))); err != nil {
		return nil, fmt.Errorf("dataset %q: create staging table: %w", ds.Name, err)
	}

	failures := make([]int64, len(plan.columns))
	err = s.scan(ctx, raw, srcCols, total, chunk, func(rows [][]*string) error {
		out := make([][]any, len(rows))
		for i, row := range rows {
			out[i] = plan.transform(row, failures)
		}
		return s.sess.AppendRows(ctx, work, out)
	})
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", ds.Name, err)
	}

	columns := plan.canonicalColumns()
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	stmt := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS
		SELECT %s, ROW_NUMBER() OVER (ORDER BY %s) AS %s, %s
		FROM %s ORDER BY %s`,
		engine.QuoteIdent(final),
		engine.QuoteIdents(names),
		rowOrder(ds.Keys, names),
		engine.QuoteIdent(RowNumberColumn),
		engine.QuoteIdent(LastModifiedColumn),
		engine.QuoteIdent(work),
		engine.QuoteIdent(RowNumberColumn))
	if err := s.sess.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("dataset %q: assign row numbers: %w", ds.Name, err)
	}

	name := TableName(ds.Name)
	if err := s.sess.ReplaceTable(ctx, final, name); err != nil {
		return nil, fmt.Errorf("dataset %q: publish staged table: %w", ds.Name, err)
	}

	coercion := make(map[string]int64)
	for i, n := range failures {
		if n > 0 {
			coercion[plan.columns[i].canonical] = n
		}
	}

	t := &Table{
		Name:             name,
		Dataset:          ds.Name,
		Columns:          columns,
		Keys:             ds.Keys,
		RowCount:         total,
		HasLastModified:  plan.lastModified >= 0,
		Fingerprint:      fp,
		CoercionFailures: coercion,
		Warnings:         plan.warnings,
		Transformations:  plan.transformations,
		StagedAt:         time.Now().UTC(),
	}

	meta := &CacheMetadata{
		Dataset:          ds.Name,
		Fingerprint:      fp,
		RowCount:         total,
		Columns:          columns,
		Keys:             ds.Keys,
		HasLastModified:  t.HasLastModified,
		CoercionFailures: coercion,
		Transformations:  plan.transformations,
		ConfigDigest:     digest,
		StagedAt:         t.StagedAt,
	}
	if err := s.cache.Put(ctx, s.sess, ds.Name, name, meta); err != nil {
		log.Warn("Failed to write staging cache", zap.Error(err))
		t.Warnings = append(t.Warnings, "cache not written: "+err.Error())
	}

	if n := t.TotalCoercionFailures(); n > 0 {
		log.Warn("Values could not be coerced and were set to null", zap.Int64("count", n))
	}
	log.Info("Dataset staged", zap.Int64("rows", total), zap.Int("columns", len(columns)))
	return t, nil
}

// rowOrder sorts by key columns, then all remaining columns by name.
func rowOrder(keys, columns []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	rest := make([]string, 0, len(columns))
	for _, c := range columns {
		if !isKey[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)

	parts := make([]string, 0, len(columns))
	for _, c := range append(append([]string(nil), keys...), rest...) {
		parts = append(parts, engine.QuoteIdent(c)+" ASC NULLS LAST")
	}
	return strings.Join(parts, ", ")
}

// scan reads table in source-ordinal windows of size chunk and hands each
// window to fn. Cancellation is honoured between windows.
func (s *Stager) scan(ctx context.Context, table string, cols []string, total int64, chunk int, fn func([][]*string) error) error {
	ordinal := engine.QuoteIdent(source.OrdinalColumn)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s >= ? AND %s < ? ORDER BY %s",
		engine.QuoteIdents(cols), engine.QuoteIdent(table), ordinal, ordinal, ordinal)

	for start := int64(0); start < total; start += int64(chunk) {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := s.readWindow(ctx, query, len(cols), start, start+int64(chunk))
		if err != nil {
			return err
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stager) readWindow(ctx context.Context, query string, width int, from, to int64) ([][]*string, error) {
	rows, err := s.sess.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("read rows %d-%d: %w", from, to, err)
	}
	defer rows.Close()

	var batch [][]*string
	scan := make([]sql.NullString, width)
	ptrs := make([]any, width)
	for i := range scan {
		ptrs[i] = &scan[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]*string, width)
		for i, v := range scan {
			if v.Valid {
				text := v.String
				row[i] = &text
			}
		}
		batch = append(batch, row)
	}
	return batch, rows.Err()
}

// CacheStatus reports whether a dataset's cache could be served right now.
type CacheStatus struct {
	Dataset      string     `json:"dataset"`
	Cached       bool       `json:"cached"`
	Fresh        bool       `json:"fresh"`
	DriftReasons []string   `json:"drift_reasons,omitempty"`
	RowCount     int64      `json:"row_count"`
	StagedAt     *time.Time `json:"staged_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Status inspects the cache of ds against its source without staging it.
func (s *Stager) Status(ctx context.Context, ds datasets.Dataset) (*CacheStatus, error) {
	st := &CacheStatus{Dataset: ds.Name}

	meta, ok, err := s.cache.Get(ctx, ds.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return st, nil
	}
	st.Cached = true
	st.RowCount = meta.RowCount
	staged := meta.StagedAt
	st.StagedAt = &staged

	reader, err := source.For(ds, s.deps)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	fp, err := reader.Fingerprint(ctx, s.sess)
	if err != nil {
		return nil, err
	}
	st.DriftReasons = DetectDrift(meta, fp, ConfigDigest(ds))
	st.Fresh = len(st.DriftReasons) == 0
	return st, nil
}
