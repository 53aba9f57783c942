package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"data-reconciler/core/database"
	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openSession(t *testing.T) *engine.Session {
	t.Helper()
	sess, err := engine.Open(context.Background(), engine.Config{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func fetchStrings(t *testing.T, sess *engine.Session, query string) [][]any {
	t.Helper()
	res, err := sess.Fetch(context.Background(), query)
	require.NoError(t, err)
	return res.Rows
}

func TestFileReader_CSV(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "left.csv", []byte("ID,Customer Name,Amount\n1,Alice,1000.50\n2,Bob,\n"))

	ds := datasets.Dataset{Name: "left", Path: path, Format: datasets.FormatCSV}
	r, err := For(ds, Deps{TempDir: dir})
	require.NoError(t, err)
	defer r.Close()

	fp, err := r.Fingerprint(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Customer Name", "Amount"}, fp.Columns)
	assert.True(t, fp.HasModTime())
	assert.Equal(t, int64(-1), fp.RowCount)
	assert.Equal(t, datasets.FormatCSV, fp.Format)

	n, err := r.Load(ctx, sess, "raw_left")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	cols, err := sess.Columns(ctx, "raw_left")
	require.NoError(t, err)
	require.Len(t, cols, 4)
	assert.Equal(t, OrdinalColumn, cols[0].Name)
	for _, c := range cols[1:] {
		assert.Equal(t, "VARCHAR", c.Type)
	}

	rows := fetchStrings(t, sess, `SELECT "ID", "Amount" FROM raw_left ORDER BY "ID"`)
	assert.Equal(t, []any{"1", "1000.50"}, rows[0])
	assert.Nil(t, rows[1][1])
}

func TestFileReader_Windows1252(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "latin.csv", []byte("id,name\n1,caf\xe9\n"))

	enc, err := DetectEncoding(path)
	require.NoError(t, err)
	assert.Equal(t, EncodingWindows1252, enc)

	r := NewFileReader(datasets.Dataset{Name: "latin", Format: datasets.FormatCSV}, path, dir, zap.NewNop())
	_, err = r.Load(ctx, sess, "raw_latin")
	require.NoError(t, err)
	assert.Equal(t, EncodingWindows1252, r.Encoding())

	rows := fetchStrings(t, sess, "SELECT name FROM raw_latin")
	assert.Equal(t, "café", rows[0][0])

	transcoded := r.transcode
	require.NotEmpty(t, transcoded)
	require.NoError(t, r.Close())
	_, err = os.Stat(transcoded)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestDetectEncoding_UTF8(t *testing.T) {
	path := writeFile(t, t.TempDir(), "utf8.csv", []byte("id,name\n1,café\n"))
	enc, err := DetectEncoding(path)
	require.NoError(t, err)
	assert.Equal(t, EncodingUTF8, enc)
}

func TestFileReader_ParquetAndJSON(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	dir := t.TempDir()

	pq := filepath.Join(dir, "right.parquet")
	require.NoError(t, sess.CopyTo(ctx, "SELECT 1 AS id, 2.5 AS amount UNION ALL SELECT 2, 3.5", pq, engine.FormatParquet))

	r, err := For(datasets.Dataset{Name: "right", Path: pq, Format: datasets.FormatParquet}, Deps{})
	require.NoError(t, err)
	n, err := r.Load(ctx, sess, "raw_right")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	rows := fetchStrings(t, sess, "SELECT id, amount FROM raw_right ORDER BY id")
	assert.Equal(t, []any{"1", "2.5"}, rows[0])

	js := writeFile(t, dir, "events.json", []byte(`[{"id": 7, "kind": "open"}, {"id": 8, "kind": null}]`))
	r, err = For(datasets.Dataset{Name: "events", Path: js, Format: datasets.FormatJSON}, Deps{})
	require.NoError(t, err)
	n, err = r.Load(ctx, sess, "raw_events")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	rows = fetchStrings(t, sess, "SELECT id, kind FROM raw_events ORDER BY id")
	assert.Equal(t, []any{"7", "open"}, rows[0])
	assert.Nil(t, rows[1][1])
}

func TestFileReader_CustomSQL(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	path := writeFile(t, t.TempDir(), "left.csv", []byte("id,status\n1,open\n2,void\n3,open\n"))

	ds := datasets.Dataset{
		Name:      "left",
		Path:      path,
		Format:    datasets.FormatCSV,
		CustomSQL: "SELECT id FROM {table} WHERE status <> 'void'",
	}
	r, err := For(ds, Deps{})
	require.NoError(t, err)

	n, err := r.Load(ctx, sess, "raw_left")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	fp, err := r.Fingerprint(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "status"}, fp.Columns)
}

func TestFileReader_NotFound(t *testing.T) {
	sess := openSession(t)
	r, err := For(datasets.Dataset{Name: "ghost", Path: "/nonexistent/ghost.csv", Format: datasets.FormatCSV}, Deps{})
	require.NoError(t, err)

	_, err = r.Fingerprint(context.Background(), sess)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.Dataset)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = r.Load(context.Background(), sess, "raw_ghost")
	assert.ErrorAs(t, err, &nf)
}

func TestS3Reader(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)
	client := new(mocks.Client)

	modified := time.Date(2024, 5, 1, 12, 30, 15, 500, time.UTC)
	client.On("StatObject", mock.Anything, "finance", "exports/ledger.csv", mock.Anything).
		Return(minio.ObjectInfo{LastModified: modified, Size: 42}, nil)
	client.On("GetObject", mock.Anything, "finance", "exports/ledger.csv", mock.Anything).
		Return(io.NopCloser(strings.NewReader("id,amount\n1,10\n2,20\n")), nil).Once()

	ds := datasets.Dataset{Name: "ledger", Path: "s3://finance/exports/ledger.csv", Format: datasets.FormatCSV}
	r, err := For(ds, Deps{Storage: client, TempDir: t.TempDir()})
	require.NoError(t, err)
	defer r.Close()

	fp, err := r.Fingerprint(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, modified.Truncate(time.Second), fp.ModTime)
	assert.Equal(t, int64(42), fp.SizeBytes)
	assert.Equal(t, []string{"id", "amount"}, fp.Columns)

	n, err := r.Load(ctx, sess, "raw_ledger")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	client.AssertExpectations(t)
}

func TestS3Reader_NotFound(t *testing.T) {
	client := new(mocks.Client)
	client.On("StatObject", mock.Anything, "finance", "missing.csv", mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	r, err := For(datasets.Dataset{Name: "missing", Path: "s3://finance/missing.csv"}, Deps{Storage: client})
	require.NoError(t, err)

	_, err = r.Fingerprint(context.Background(), openSession(t))
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFor_RequiresCollaborators(t *testing.T) {
	_, err := For(datasets.Dataset{Name: "db", Path: "invoices", Format: datasets.FormatDatabase}, Deps{})
	assert.ErrorContains(t, err, "database connection")

	_, err = For(datasets.Dataset{Name: "remote", Path: "s3://bucket/key.csv"}, Deps{})
	assert.ErrorContains(t, err, "storage")
}

func TestDatabaseReader(t *testing.T) {
	ctx := context.Background()
	sess := openSession(t)

	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE invoices (id INTEGER, customer TEXT, amount REAL)").Error)
	require.NoError(t, db.Exec("INSERT INTO invoices VALUES (1, 'Alice', 1000.5), (2, NULL, 2500.75)").Error)

	r, err := For(datasets.Dataset{Name: "erp", Path: "invoices", Format: datasets.FormatDatabase}, Deps{DB: db})
	require.NoError(t, err)

	fp, err := r.Fingerprint(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer", "amount"}, fp.Columns)
	assert.False(t, fp.HasModTime())
	assert.Equal(t, int64(2), fp.RowCount)

	n, err := r.Load(ctx, sess, "raw_erp")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rows := fetchStrings(t, sess, "SELECT id, customer, amount FROM raw_erp ORDER BY id")
	assert.Equal(t, []any{"1", "Alice", "1000.5"}, rows[0])
	assert.Nil(t, rows[1][1])

	ordinals := fetchStrings(t, sess, `SELECT CAST("__src_ordinal" AS VARCHAR) FROM raw_erp ORDER BY id`)
	assert.Equal(t, []any{"0"}, ordinals[0])
	assert.Equal(t, []any{"1"}, ordinals[1])

	missing, err := For(datasets.Dataset{Name: "gone", Path: "nope", Format: datasets.FormatDatabase}, Deps{DB: db})
	require.NoError(t, err)
	_, err = missing.Fingerprint(ctx, sess)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFingerprint_SameColumns(t *testing.T) {
	a := Fingerprint{Columns: []string{"id", "name"}}
	assert.True(t, a.SameColumns(Fingerprint{Columns: []string{"name", "id"}}))
	assert.False(t, a.SameColumns(Fingerprint{Columns: []string{"id"}}))
	assert.False(t, a.SameColumns(Fingerprint{Columns: []string{"id", "title"}}))
}
