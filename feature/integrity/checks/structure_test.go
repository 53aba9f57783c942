package checks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"data-reconciler/core/storage/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckStructure(t *testing.T) {
	t.Run("All Present", func(t *testing.T) {
		dir := t.TempDir()
		mockClient := new(mocks.Client)
		mockClient.On("BucketExists", mock.Anything, "reports").Return(true, nil)

		missing, err := CheckStructure(context.Background(), mockClient, "reports", []string{dir})
		require.NoError(t, err)
		assert.Empty(t, missing)
	})

	t.Run("All Missing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "staging")
		mockClient := new(mocks.Client)
		mockClient.On("BucketExists", mock.Anything, "reports").Return(false, nil)

		missing, err := CheckStructure(context.Background(), mockClient, "reports", []string{dir, ""})
		require.NoError(t, err)
		assert.Equal(t, []string{dir, "s3://reports"}, missing)
	})

	t.Run("Bucket Error", func(t *testing.T) {
		mockClient := new(mocks.Client)
		mockClient.On("BucketExists", mock.Anything, "reports").Return(false, errors.New("connection refused"))

		_, err := CheckStructure(context.Background(), mockClient, "reports", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("Not A Directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

		_, err := CheckStructure(context.Background(), nil, "", []string{path})
		assert.Error(t, err)
	})

	t.Run("No Storage", func(t *testing.T) {
		missing, err := CheckStructure(context.Background(), nil, "reports", []string{t.TempDir()})
		require.NoError(t, err)
		assert.Empty(t, missing)
	})
}

func TestFixStructure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports", "daily")
	mockClient := new(mocks.Client)
	mockClient.On("MakeBucket", mock.Anything, "reports", mock.Anything).Return(nil)

	err := FixStructure(context.Background(), mockClient, zap.NewNop(), []string{dir, BucketEntry("reports")})
	require.NoError(t, err)
	assert.DirExists(t, dir)
	mockClient.AssertExpectations(t)

	t.Run("Bucket Without Storage", func(t *testing.T) {
		err := FixStructure(context.Background(), nil, zap.NewNop(), []string{BucketEntry("reports")})
		assert.Error(t, err)
	})

	t.Run("MakeBucket Error", func(t *testing.T) {
		failing := new(mocks.Client)
		failing.On("MakeBucket", mock.Anything, "reports", mock.Anything).Return(errors.New("denied"))

		err := FixStructure(context.Background(), failing, zap.NewNop(), []string{BucketEntry("reports")})
		assert.EqualError(t, err, "denied")
	})
}
