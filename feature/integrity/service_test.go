package integrity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"data-reconciler/core/datasets"
	"data-reconciler/core/pipeline"
	"data-reconciler/core/report"
	"data-reconciler/core/storage/mocks"
	"data-reconciler/feature/integrity/checks"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const workspaceYAML = `
datasets:
  ledger:
    path: %[1]s/ledger.csv
    key_columns: [id]
  bank:
    path: %[1]s/bank.csv
    key_columns: [id]
comparisons:
  - name: ledger_bank
    left: ledger
    right: bank
`

type workspace struct {
	dir     string
	staging string
	reports string
	runner  *pipeline.Runner
}

// newWorkspace writes ledger.csv only, so bank is a missing source.
func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ledger.csv"), []byte("id,amount\n1,10\n2,20\n"), 0o644))

	file, err := datasets.Parse([]byte(fmt.Sprintf(workspaceYAML, dir)))
	require.NoError(t, err)

	reports := filepath.Join(dir, "reports")
	runner := pipeline.NewRunner(file, pipeline.Config{Report: report.Config{Dir: reports}}, pipeline.Deps{Log: zap.NewNop()})
	return &workspace{dir: dir, staging: filepath.Join(dir, ".staging"), reports: reports, runner: runner}
}

func (w *workspace) service(client *mocks.Client, bucket string) *Service {
	return NewService(w.runner, client, bucket, []string{w.staging, w.reports}, nil, zap.NewNop())
}

func TestService_Structure(t *testing.T) {
	w := newWorkspace(t)
	mockClient := new(mocks.Client)
	svc := w.service(mockClient, "test-bucket")

	t.Run("CheckStructure", func(t *testing.T) {
		mockClient.On("BucketExists", mock.Anything, "test-bucket").Return(false, nil).Once()

		missing, err := svc.CheckStructure(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{w.staging, w.reports, "s3://test-bucket"}, missing)
	})

	t.Run("FixStructure", func(t *testing.T) {
		mockClient.On("MakeBucket", mock.Anything, "test-bucket", mock.Anything).Return(nil).Once()

		err := svc.FixStructure(context.Background(), []string{w.reports, checks.BucketEntry("test-bucket")})
		require.NoError(t, err)
		assert.DirExists(t, w.reports)
	})

	mockClient.AssertExpectations(t)
}

func TestService_Datasets(t *testing.T) {
	w := newWorkspace(t)
	svc := w.service(new(mocks.Client), "")

	got := svc.CheckDatasets(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, "ledger", got[0].Dataset)
	assert.Equal(t, checks.StatusOK, got[0].Status)
	assert.Equal(t, "bank", got[1].Dataset)
	assert.Equal(t, checks.StatusMissing, got[1].Status)
}

func TestService_Sources(t *testing.T) {
	w := newWorkspace(t)
	svc := w.service(new(mocks.Client), "")

	report, err := svc.CheckSources()
	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.Empty(t, report.Datasets)
}

func TestService_Cache(t *testing.T) {
	w := newWorkspace(t)
	svc := w.service(new(mocks.Client), "")

	statuses, err := svc.CheckCache(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.False(t, st.Cached, st.Dataset)
	}
}

func TestService_RemoteDataset(t *testing.T) {
	file, err := datasets.Parse([]byte("datasets:\n  bank:\n    path: s3://imports/bank.csv\n"))
	require.NoError(t, err)
	runner := pipeline.NewRunner(file, pipeline.Config{}, pipeline.Deps{})

	mockClient := new(mocks.Client)
	mockClient.On("StatObject", mock.Anything, "imports", "bank.csv", mock.Anything).
		Return(minio.ObjectInfo{Size: 7}, nil)

	svc := NewService(runner, mockClient, "", nil, nil, zap.NewNop())
	got := svc.CheckDatasets(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, checks.StatusOK, got[0].Status)
	assert.Equal(t, int64(7), got[0].Size)
}
