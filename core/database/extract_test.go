package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	dialector := mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func setupSQLite(t *testing.T) *gorm.DB {
	db, err := Connect(Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE invoices (id INTEGER PRIMARY KEY, customer TEXT, amount REAL, note TEXT)").Error)
	require.NoError(t, db.Exec("INSERT INTO invoices VALUES (1, 'Alice', 1000.5, NULL), (2, 'Bob', 2500.75, 'late')").Error)
	return db
}

func TestQueryText_SQLite(t *testing.T) {
	db := setupSQLite(t)

	var rows [][]*string
	columns, err := QueryText(context.Background(), db, "SELECT id, customer, amount, note FROM invoices ORDER BY id", func(row []*string) error {
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer", "amount", "note"}, columns)
	require.Len(t, rows, 2)

	assert.Equal(t, "1", *rows[0][0])
	assert.Equal(t, "Alice", *rows[0][1])
	assert.Equal(t, "1000.5", *rows[0][2])
	assert.Nil(t, rows[0][3])
	assert.Equal(t, "late", *rows[1][3])
}

func TestQueryText_StopsOnCallbackError(t *testing.T) {
	db := setupSQLite(t)
	boom := errors.New("boom")

	calls := 0
	_, err := QueryText(context.Background(), db, "SELECT * FROM invoices", func(row []*string) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestQueryText_MySQL(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `ledger`")).
		WillReturnRows(sqlmock.NewRows([]string{"invoice", "amount"}).
			AddRow("INV-1", []byte("10.50")).
			AddRow("INV-2", nil))

	var rows [][]*string
	columns, err := QueryText(context.Background(), db, "SELECT * FROM `ledger`", func(row []*string) error {
		rows = append(rows, row)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice", "amount"}, columns)
	require.Len(t, rows, 2)
	assert.Equal(t, "10.50", *rows[0][1])
	assert.Nil(t, rows[1][1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryText_MySQLError(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("access denied"))

	_, err := QueryText(context.Background(), db, "SELECT * FROM ledger", func([]*string) error { return nil })
	assert.ErrorContains(t, err, "access denied")
}

func TestCountRows(t *testing.T) {
	db := setupSQLite(t)

	n, err := CountRows(context.Background(), db, "invoices")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = CountRows(context.Background(), db, "SELECT * FROM invoices WHERE amount > 2000;")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCountRows_MySQLQuoting(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `ledger`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := CountRows(context.Background(), db, "ledger")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsQuery(t *testing.T) {
	assert.True(t, IsQuery("  select 1"))
	assert.True(t, IsQuery("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.False(t, IsQuery("invoices"))
}

func TestQueryColumns(t *testing.T) {
	db := setupSQLite(t)

	cols, err := QueryColumns(context.Background(), db, "invoices")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer", "amount", "note"}, cols)

	cols, err = QueryColumns(context.Background(), db, "SELECT id AS invoice_id FROM invoices")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice_id"}, cols)
}

func TestSelectAll(t *testing.T) {
	db := setupSQLite(t)
	assert.Equal(t, `SELECT * FROM "invoices"`, SelectAll(db, "invoices"))
	assert.Equal(t, "SELECT id FROM invoices", SelectAll(db, "SELECT id FROM invoices;"))
}
