package checks

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"data-reconciler/core/datasets"
	"data-reconciler/core/storage"

	"github.com/minio/minio-go/v7"
)

// Dataset source states.
const (
	StatusOK      = "ok"
	StatusMissing = "missing"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// DatasetReport is the existence check result of one dataset source.
type DatasetReport struct {
	Dataset string `json:"dataset"`
	Locator string `json:"locator"`
	Status  string `json:"status"`
	Size    int64  `json:"size,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CheckDatasets verifies that every file and object storage source exists.
// Database sources are covered by CheckSources and reported as skipped.
func CheckDatasets(ctx context.Context, file *datasets.File, client storage.Client) []DatasetReport {
	reports := make([]DatasetReport, 0, len(file.Datasets))
	for _, name := range file.DatasetNames() {
		ds, _ := file.Dataset(name)
		rep := DatasetReport{Dataset: name, Locator: ds.Path}

		switch {
		case ds.Format == datasets.FormatDatabase:
			rep.Status = StatusSkipped
		case ds.IsRemote():
			checkObject(ctx, client, &rep)
		default:
			checkFile(&rep)
		}
		reports = append(reports, rep)
	}
	return reports
}

func checkFile(rep *DatasetReport) {
	info, err := os.Stat(rep.Locator)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		rep.Status = StatusMissing
	case err != nil:
		rep.Status, rep.Error = StatusError, err.Error()
	case info.IsDir():
		rep.Status, rep.Error = StatusError, "path is a directory"
	default:
		rep.Status, rep.Size = StatusOK, info.Size()
	}
}

func checkObject(ctx context.Context, client storage.Client, rep *DatasetReport) {
	if client == nil {
		rep.Status, rep.Error = StatusError, "storage is not configured"
		return
	}
	bucket, object, err := storage.ParseLocator(rep.Locator)
	if err != nil {
		rep.Status, rep.Error = StatusError, err.Error()
		return
	}

	info, err := client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			rep.Status = StatusMissing
		default:
			rep.Status, rep.Error = StatusError, err.Error()
		}
		return
	}
	rep.Status, rep.Size = StatusOK, info.Size
}
