package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

// Session owns one in-memory engine database and the single connection all work runs on.
// A Session belongs to one pipeline run and must not be shared by concurrent comparisons.
type Session struct {
	db   *sql.DB
	conn *sql.Conn
	cfg  Config
	log  *zap.Logger

	mu         sync.Mutex
	extensions map[string]bool
}

// Column describes one column of an engine table.
type Column struct {
	Name string
	Type string
}

// Open creates an in-memory engine database and applies cfg.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open engine conn: %w", err)
	}

	s := &Session{
		db:         db,
		conn:       conn,
		cfg:        cfg,
		log:        log,
		extensions: make(map[string]bool),
	}

	if err := s.applySettings(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) applySettings(ctx context.Context) error {
	if s.cfg.Threads > 0 {
		if err := s.Exec(ctx, fmt.Sprintf("SET threads = %d", s.cfg.Threads)); err != nil {
			return fmt.Errorf("set engine threads: %w", err)
		}
	}
	if s.cfg.MemoryLimit != "" {
		if err := s.Exec(ctx, "SET memory_limit = "+QuoteLiteral(s.cfg.MemoryLimit)); err != nil {
			return fmt.Errorf("set engine memory limit: %w", err)
		}
	}
	if s.cfg.TempDir != "" {
		if err := s.Exec(ctx, "SET temp_directory = "+QuoteLiteral(s.cfg.TempDir)); err != nil {
			return fmt.Errorf("set engine temp directory: %w", err)
		}
	}
	return nil
}

// Config returns the settings the session was opened with.
func (s *Session) Config() Config {
	return s.cfg
}

// Close releases the connection and the database.
func (s *Session) Close() error {
	connErr := s.conn.Close()
	dbErr := s.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// Exec runs a statement that returns no rows.
func (s *Session) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.conn.ExecContext(ctx, query, args...)
	return err
}

// Query runs a statement and returns its rows. The caller closes them.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.conn.QueryContext(ctx, query, args...)
}

// QueryRow runs a statement expected to return at most one row.
func (s *Session) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn.QueryRowContext(ctx, query, args...)
}

// Int64 runs a single-value query and returns it as an int64. NULL reads as zero.
func (s *Session) Int64(ctx context.Context, query string, args ...any) (int64, error) {
	var v sql.NullInt64
	if err := s.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, err
	}
	return v.Int64, nil
}

// RowCount returns the number of rows in table.
func (s *Session) RowCount(ctx context.Context, table string) (int64, error) {
	n, err := s.Int64(ctx, "SELECT COUNT(*) FROM "+QuoteIdent(table))
	if err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	return n, nil
}

// Columns lists the columns of table in declaration order.
func (s *Session) Columns(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.Query(ctx, `SELECT column_name, data_type FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ? ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type); err != nil {
			return nil, fmt.Errorf("describe %s: %w", table, err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// TableExists reports whether table exists in the session.
func (s *Session) TableExists(ctx context.Context, table string) (bool, error) {
	n, err := s.Int64(ctx, `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = 'main' AND table_name = ?`, table)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DropTable removes table if it exists.
func (s *Session) DropTable(ctx context.Context, table string) error {
	return s.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(table))
}

// ReplaceTable atomically swaps src in as dst. Readers never observe a half-built dst.
func (s *Session) ReplaceTable(ctx context.Context, src, dst string) error {
	if err := s.Exec(ctx, "BEGIN TRANSACTION"); err != nil {
		return err
	}
	rollback := func(err error) error {
		_ = s.Exec(ctx, "ROLLBACK")
		return err
	}
	if err := s.DropTable(ctx, dst); err != nil {
		return rollback(fmt.Errorf("drop %s: %w", dst, err))
	}
	if err := s.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteIdent(src), QuoteIdent(dst))); err != nil {
		return rollback(fmt.Errorf("rename %s to %s: %w", src, dst, err))
	}
	return s.Exec(ctx, "COMMIT")
}

// AppendRows bulk-inserts rows into an existing table through the engine appender.
// Row values must already match the column types (int64, float64, string, bool, time.Time or nil).
func (s *Session) AppendRows(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.conn.Raw(func(raw any) error {
		driverConn, ok := raw.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected raw conn type %T", raw)
		}

		appender, err := duckdb.NewAppenderFromConn(driverConn, "", table)
		if err != nil {
			return fmt.Errorf("create %s appender: %w", table, err)
		}

		values := make([]driver.Value, 0, len(rows[0]))
		for i, row := range rows {
			values = values[:0]
			for _, v := range row {
				values = append(values, v)
			}
			if err := appender.AppendRow(values...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("append row %d to %s: %w", i, table, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("flush %s appender: %w", table, err)
		}
		return nil
	})
}

// LoadExtension installs and loads an engine extension once per session.
func (s *Session) LoadExtension(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.extensions[name] {
		return nil
	}
	if err := s.Exec(ctx, "INSTALL "+name); err != nil {
		return fmt.Errorf("install extension %s: %w", name, err)
	}
	if err := s.Exec(ctx, "LOAD "+name); err != nil {
		return fmt.Errorf("load extension %s: %w", name, err)
	}
	s.extensions[name] = true
	s.log.Debug("Engine extension loaded", zap.String("extension", name))
	return nil
}

// QuoteIdent quotes an identifier for use in engine SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral quotes a string literal for use in engine SQL.
func QuoteLiteral(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// QuoteIdents quotes each name and joins them with ", ".
func QuoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
