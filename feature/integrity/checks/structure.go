package checks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"data-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const bucketPrefix = "s3://"

// BucketEntry names a missing bucket in a structure check result.
func BucketEntry(bucket string) string {
	return bucketPrefix + bucket
}

// CheckStructure returns the local directories and the report bucket that do
// not exist yet. An empty bucket or a nil client skips the bucket check.
func CheckStructure(ctx context.Context, client storage.Client, bucket string, dirs []string) ([]string, error) {
	var missing []string

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		info, err := os.Stat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, dir)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s exists but is not a directory", dir)
		}
	}

	if client == nil || bucket == "" {
		return missing, nil
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		missing = append(missing, BucketEntry(bucket))
	}
	return missing, nil
}

// FixStructure creates the missing directories and bucket.
func FixStructure(ctx context.Context, client storage.Client, logger *zap.Logger, missing []string) error {
	for _, entry := range missing {
		if bucket, ok := strings.CutPrefix(entry, bucketPrefix); ok {
			if client == nil {
				return fmt.Errorf("cannot create bucket %s: storage is not configured", bucket)
			}
			if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				logger.Error("Failed to create bucket", zap.String("bucket", bucket), zap.Error(err))
				return err
			}
			logger.Info("Created missing bucket", zap.String("bucket", bucket))
			continue
		}

		if err := os.MkdirAll(entry, 0o755); err != nil {
			logger.Error("Failed to create directory", zap.String("dir", entry), zap.Error(err))
			return err
		}
		logger.Info("Created missing directory", zap.String("dir", entry))
	}
	return nil
}
