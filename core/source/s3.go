package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"
	"data-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// S3Reader downloads an object storage source and reads the local copy.
type S3Reader struct {
	dataset datasets.Dataset
	client  storage.Client
	bucket  string
	object  string
	tempDir string
	log     *zap.Logger

	local string
	file  *FileReader
}

func (r *S3Reader) stat(ctx context.Context) (minio.ObjectInfo, error) {
	info, err := r.client.StatObject(ctx, r.bucket, r.object, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" || minio.ToErrorResponse(err).Code == "NoSuchBucket" {
			return minio.ObjectInfo{}, &NotFoundError{Dataset: r.dataset.Name, Locator: r.dataset.Path}
		}
		return minio.ObjectInfo{}, fmt.Errorf("dataset %q: stat %s: %w", r.dataset.Name, r.dataset.Path, err)
	}
	return info, nil
}

// download fetches the object once per reader.
func (r *S3Reader) download(ctx context.Context) (*FileReader, error) {
	if r.file != nil {
		return r.file, nil
	}

	obj, err := r.client.GetObject(ctx, r.bucket, r.object, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("dataset %q: download %s: %w", r.dataset.Name, r.dataset.Path, err)
	}
	defer obj.Close()

	out, err := os.CreateTemp(r.tempDir, "reconcile-s3-*"+filepath.Ext(r.object))
	if err != nil {
		return nil, fmt.Errorf("dataset %q: create download file: %w", r.dataset.Name, err)
	}
	if _, err := io.Copy(out, obj); err != nil {
		_ = out.Close()
		_ = os.Remove(out.Name())
		return nil, fmt.Errorf("dataset %q: download %s: %w", r.dataset.Name, r.dataset.Path, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(out.Name())
		return nil, err
	}

	r.log.Debug("Object downloaded", zap.String("locator", r.dataset.Path), zap.String("local", out.Name()))

	ds := r.dataset
	if ds.Format == "" {
		ds.Format, _ = datasets.FormatFromPath(r.object)
	}
	r.local = out.Name()
	r.file = NewFileReader(ds, r.local, r.tempDir, r.log)
	return r.file, nil
}

// Fingerprint implements Reader. Size and modification time come from the object metadata.
func (r *S3Reader) Fingerprint(ctx context.Context, sess *engine.Session) (Fingerprint, error) {
	info, err := r.stat(ctx)
	if err != nil {
		return Fingerprint{}, err
	}
	file, err := r.download(ctx)
	if err != nil {
		return Fingerprint{}, err
	}
	fp, err := file.Fingerprint(ctx, sess)
	if err != nil {
		return Fingerprint{}, err
	}
	fp.ModTime = info.LastModified.UTC().Truncate(time.Second)
	fp.SizeBytes = info.Size
	return fp, nil
}

// Load implements Reader.
func (r *S3Reader) Load(ctx context.Context, sess *engine.Session, table string) (int64, error) {
	if _, err := r.stat(ctx); err != nil {
		return 0, err
	}
	file, err := r.download(ctx)
	if err != nil {
		return 0, err
	}
	return file.Load(ctx, sess, table)
}

// Close implements Reader.
func (r *S3Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	if rmErr := os.Remove(r.local); rmErr != nil && err == nil {
		err = rmErr
	}
	r.file = nil
	return err
}
