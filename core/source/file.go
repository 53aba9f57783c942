package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/engine"

	"go.uber.org/zap"
)

// FileReader reads a local CSV, Parquet, Excel or JSON file through the engine's table functions.
type FileReader struct {
	dataset datasets.Dataset
	path    string
	tempDir string
	log     *zap.Logger

	once      sync.Once
	prepared  string
	encoding  string
	transcode string
	prepErr   error
}

// NewFileReader returns a reader for path, which may differ from the dataset's
// configured path when the file was downloaded first.
func NewFileReader(ds datasets.Dataset, path, tempDir string, log *zap.Logger) *FileReader {
	return &FileReader{dataset: ds, path: path, tempDir: tempDir, log: log}
}

// Encoding returns the detected text encoding of a CSV source after it was prepared.
func (r *FileReader) Encoding() string {
	return r.encoding
}

func (r *FileReader) format() datasets.Format {
	if r.dataset.Format != "" {
		return r.dataset.Format
	}
	f, _ := datasets.FormatFromPath(r.path)
	return f
}

func (r *FileReader) stat() (os.FileInfo, error) {
	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Dataset: r.dataset.Name, Locator: r.path}
	}
	if err != nil {
		return nil, fmt.Errorf("dataset %q: stat %s: %w", r.dataset.Name, r.path, err)
	}
	return info, nil
}

// prepare transcodes non-UTF-8 CSV input once per reader.
func (r *FileReader) prepare() (string, error) {
	r.once.Do(func() {
		r.prepared = r.path
		if r.format() != datasets.FormatCSV {
			return
		}
		enc, err := DetectEncoding(r.path)
		if err != nil {
			r.prepErr = fmt.Errorf("dataset %q: detect encoding: %w", r.dataset.Name, err)
			return
		}
		r.encoding = enc
		if enc == EncodingUTF8 {
			return
		}
		out, err := TranscodeToUTF8(r.path, enc, r.tempDir)
		if err != nil {
			r.prepErr = fmt.Errorf("dataset %q: %w", r.dataset.Name, err)
			return
		}
		r.log.Warn("CSV source is not UTF-8, transcoded before loading",
			zap.String("path", r.path),
			zap.String("encoding", enc))
		r.transcode = out
		r.prepared = out
	})
	return r.prepared, r.prepErr
}

// scanExpr returns the engine table function reading path.
func (r *FileReader) scanExpr(ctx context.Context, sess *engine.Session, path string) (string, error) {
	lit := engine.QuoteLiteral(path)
	switch r.format() {
	case datasets.FormatCSV:
		return fmt.Sprintf("read_csv(%s, all_varchar = true, header = true)", lit), nil
	case datasets.FormatParquet:
		return fmt.Sprintf("read_parquet(%s)", lit), nil
	case datasets.FormatExcel:
		if err := sess.LoadExtension(ctx, "excel"); err != nil {
			return "", err
		}
		return fmt.Sprintf("read_xlsx(%s, all_varchar = true, header = true)", lit), nil
	case datasets.FormatJSON:
		return fmt.Sprintf("read_json_auto(%s)", lit), nil
	default:
		return "", fmt.Errorf("dataset %q: unsupported file format %q", r.dataset.Name, r.format())
	}
}

// Fingerprint implements Reader.
func (r *FileReader) Fingerprint(ctx context.Context, sess *engine.Session) (Fingerprint, error) {
	info, err := r.stat()
	if err != nil {
		return Fingerprint{}, err
	}
	path, err := r.prepare()
	if err != nil {
		return Fingerprint{}, err
	}
	scan, err := r.scanExpr(ctx, sess, path)
	if err != nil {
		return Fingerprint{}, err
	}
	probe, err := sess.Fetch(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", scan))
	if err != nil {
		return Fingerprint{}, fmt.Errorf("dataset %q: read header of %s: %w", r.dataset.Name, r.path, err)
	}
	return Fingerprint{
		Columns:   probe.Columns,
		ModTime:   info.ModTime().UTC().Truncate(time.Second),
		RowCount:  -1,
		SizeBytes: info.Size(),
		Format:    r.format(),
	}, nil
}

// Load implements Reader.
func (r *FileReader) Load(ctx context.Context, sess *engine.Session, table string) (int64, error) {
	if _, err := r.stat(); err != nil {
		return 0, err
	}
	path, err := r.prepare()
	if err != nil {
		return 0, err
	}
	scan, err := r.scanExpr(ctx, sess, path)
	if err != nil {
		return 0, err
	}

	n, err := loadAsText(ctx, sess, applyCustomSQL(r.dataset.CustomSQL, scan), table)
	if err != nil {
		return 0, fmt.Errorf("dataset %q: load %s: %w", r.dataset.Name, r.path, err)
	}
	r.log.Debug("Source loaded",
		zap.String("path", r.path),
		zap.String("format", string(r.format())),
		zap.Int64("rows", n))
	return n, nil
}

// Close implements Reader.
func (r *FileReader) Close() error {
	if r.transcode == "" {
		return nil
	}
	err := os.Remove(r.transcode)
	r.transcode = ""
	return err
}
