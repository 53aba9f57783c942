// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client behind a small interface. Datasets whose path is an
// s3:// locator are statted and downloaded through it, and report artifacts are
// uploaded to the configured bucket when report uploads are enabled.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it easier
// to mock storage interactions for unit testing (see core/storage/mocks).
//
// # Operations
//
//   - BucketExists / MakeBucket: structure integrity check and fix.
//   - StatObject: size and modification time for source fingerprints.
//   - GetObject: downloads an s3:// source before it is read by the engine.
//   - PutObject: uploads report artifacts.
//
// # Usage
//
//	client, err := storage.NewClient(config)
//	bucket, key, err := storage.ParseLocator("s3://finance/ledger.csv")
//	info, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
package storage
