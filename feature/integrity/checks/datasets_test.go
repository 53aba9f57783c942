package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"data-reconciler/core/datasets"
	"data-reconciler/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const existenceYAML = `
datasets:
  ledger:
    path: %[1]s/ledger.csv
    key_columns: [id]
  archive:
    path: %[1]s/archive.csv
    key_columns: [id]
  bank:
    path: s3://imports/bank.csv
    key_columns: [id]
  legacy:
    path: s3://imports/legacy.csv
    key_columns: [id]
  accounts:
    type: database
    path: accounts
    key_columns: [id]
`

func byDataset(reports []DatasetReport) map[string]DatasetReport {
	out := make(map[string]DatasetReport, len(reports))
	for _, r := range reports {
		out[r.Dataset] = r
	}
	return out
}

func TestCheckDatasets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.csv"), []byte("id\n1\n"), 0o644))
	file, err := datasets.Parse([]byte(fmt.Sprintf(existenceYAML, dir)))
	require.NoError(t, err)

	mockClient := new(mocks.Client)
	mockClient.On("StatObject", mock.Anything, "imports", "bank.csv", mock.Anything).
		Return(minio.ObjectInfo{Size: 42}, nil)
	mockClient.On("StatObject", mock.Anything, "imports", "legacy.csv", mock.Anything).
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"})

	got := byDataset(CheckDatasets(context.Background(), file, mockClient))
	require.Len(t, got, 5)

	assert.Equal(t, StatusOK, got["ledger"].Status)
	assert.Equal(t, int64(5), got["ledger"].Size)
	assert.Equal(t, StatusMissing, got["archive"].Status)
	assert.Equal(t, StatusOK, got["bank"].Status)
	assert.Equal(t, int64(42), got["bank"].Size)
	assert.Equal(t, StatusMissing, got["legacy"].Status)
	assert.Equal(t, StatusSkipped, got["accounts"].Status)
	mockClient.AssertExpectations(t)
}

func TestCheckDatasets_NoStorage(t *testing.T) {
	file, err := datasets.Parse([]byte(fmt.Sprintf(existenceYAML, t.TempDir())))
	require.NoError(t, err)

	got := byDataset(CheckDatasets(context.Background(), file, nil))
	assert.Equal(t, StatusError, got["bank"].Status)
	assert.Equal(t, "storage is not configured", got["bank"].Error)
}
