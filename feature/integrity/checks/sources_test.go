package checks

import (
	"errors"
	"testing"

	"data-reconciler/core/datasets"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const sourcesYAML = `
datasets:
  accounts:
    type: database
    path: accounts
    key_columns: [account]
    column_map:
      ACCT_NO: account
      Balance Amt: balance
    last_modified_column: updated_at
  recent:
    type: database
    path: SELECT * FROM accounts WHERE balance > 0
    key_columns: [id]
  export:
    path: /tmp/export.csv
    key_columns: [id]
`

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

func columnRows(fields ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"})
	for _, f := range fields {
		rows.AddRow(f, "varchar(64)", "YES", "", nil, "")
	}
	return rows
}

func sourcesFile(t *testing.T) *datasets.File {
	t.Helper()
	file, err := datasets.Parse([]byte(sourcesYAML))
	require.NoError(t, err)
	return file
}

func TestCheckSources_NilDB(t *testing.T) {
	report, err := CheckSources(nil, sourcesFile(t))
	assert.Error(t, err)
	assert.Nil(t, report)
	assert.Equal(t, "database connection is nil", err.Error())
}

func TestCheckSources_NoDatabaseDatasets(t *testing.T) {
	file, err := datasets.Parse([]byte("datasets:\n  export:\n    path: /tmp/export.csv\n"))
	require.NoError(t, err)

	report, err := CheckSources(nil, file)
	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.Empty(t, report.Datasets)
}

func TestCheckSources_MissingColumn(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SHOW COLUMNS FROM `accounts`").WillReturnRows(columnRows("ACCT_NO", "Updated At", "owner"))

	report, err := CheckSources(db, sourcesFile(t))
	require.NoError(t, err)
	assert.False(t, report.Matched)

	accounts, ok := report.Datasets["accounts"]
	require.True(t, ok)
	assert.Equal(t, "error", accounts.Status)
	assert.Equal(t, []string{"Balance Amt"}, accounts.MissingColumns)

	recent, ok := report.Datasets["recent"]
	require.True(t, ok)
	assert.Equal(t, "skipped", recent.Status)

	_, ok = report.Datasets["export"]
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckSources_AllPresent(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SHOW COLUMNS FROM `accounts`").WillReturnRows(columnRows("acct_no", "balance_amt", "updated_at"))

	report, err := CheckSources(db, sourcesFile(t))
	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.Equal(t, "ok", report.Datasets["accounts"].Status)
	assert.Empty(t, report.Datasets["accounts"].MissingColumns)
}

func TestCheckSources_InspectError(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectQuery("SHOW COLUMNS FROM `accounts`").WillReturnError(errors.New("table not found"))

	report, err := CheckSources(db, sourcesFile(t))
	require.NoError(t, err)
	assert.False(t, report.Matched)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "table not found")
	assert.Equal(t, "error", report.Datasets["accounts"].Status)
}
