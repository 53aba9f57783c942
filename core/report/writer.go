package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"data-reconciler/core/engine"
	"data-reconciler/core/lineage"
	"data-reconciler/core/reconcile"
	"data-reconciler/core/staging"
	"data-reconciler/core/storage"
	"data-reconciler/core/validation"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Input carries everything besides the comparison relations that goes into a report.
type Input struct {
	RunID           string
	MaxDifferences  int
	LeftValidation  *validation.Report
	RightValidation *validation.Report
	Lineage         *lineage.Lineage
}

// Artifacts lists the files written for one comparison.
type Artifacts struct {
	OnlyInLeft  string   `json:"only_in_left"`
	OnlyInRight string   `json:"only_in_right"`
	Differences string   `json:"value_differences"`
	Report      string   `json:"report"`
	Uploaded    []string `json:"uploaded,omitempty"`
}

// Files returns the local artifact paths.
func (a *Artifacts) Files() []string {
	return []string{a.OnlyInLeft, a.OnlyInRight, a.Differences, a.Report}
}

// Writer exports comparison results to CSV and JSON artifacts.
type Writer struct {
	sess   *engine.Session
	cfg    Config
	client storage.Client
	bucket string
	log    *zap.Logger
	now    func() time.Time
}

// NewWriter creates a writer. client may be nil when uploads are disabled.
func NewWriter(sess *engine.Session, cfg Config, client storage.Client, bucket string, log *zap.Logger) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{sess: sess, cfg: cfg, client: client, bucket: bucket, log: log, now: time.Now}
}

// Paths returns the artifact paths of a comparison under dir.
func Paths(dir string, res *reconcile.Result) *Artifacts {
	return &Artifacts{
		OnlyInLeft:  filepath.Join(dir, fmt.Sprintf("%s__only_in_%s.csv", res.Name, res.Left)),
		OnlyInRight: filepath.Join(dir, fmt.Sprintf("%s__only_in_%s.csv", res.Name, res.Right)),
		Differences: filepath.Join(dir, res.Name+"__value_differences.csv"),
		Report:      filepath.Join(dir, res.Name+"__report.json"),
	}
}

// Write exports res. Exported difference rows are capped by MaxDifferences
// when positive; counts in the JSON report never are.
func (w *Writer) Write(ctx context.Context, res *reconcile.Result, in Input) (*Artifacts, error) {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir %s: %w", w.cfg.Dir, err)
	}
	art := Paths(w.cfg.Dir, res)
	log := w.log.With(zap.String("comparison", res.Name))

	limit := ""
	if in.MaxDifferences > 0 {
		limit = fmt.Sprintf(" LIMIT %d", in.MaxDifferences)
	}

	onlyLeft, err := w.presenceQuery(ctx, res, res.OnlyLeftTable)
	if err != nil {
		return nil, err
	}
	onlyRight, err := w.presenceQuery(ctx, res, res.OnlyRightTable)
	if err != nil {
		return nil, err
	}
	diffs := diffQuery(res) + limit

	for _, export := range []struct{ query, path string }{
		{onlyLeft, art.OnlyInLeft},
		{onlyRight, art.OnlyInRight},
		{diffs, art.Differences},
	} {
		if err := w.sess.CopyTo(ctx, export.query, export.path, engine.FormatCSV); err != nil {
			return nil, fmt.Errorf("comparison %q: %w", res.Name, err)
		}
	}

	doc := &Document{
		Comparison:  res.Name,
		Left:        res.Left,
		Right:       res.Right,
		RunID:       in.RunID,
		GeneratedAt: w.now().UTC(),
		Counts:      res,
		Summary:     res.Summary(),
		Validation:  map[string]*ValidationSummary{},
		Files:       []string{filepath.Base(art.OnlyInLeft), filepath.Base(art.OnlyInRight), filepath.Base(art.Differences)},
		Lineage:     in.Lineage,
	}
	if s := Summarize(in.LeftValidation); s != nil {
		doc.Validation[res.Left] = s
	}
	if s := Summarize(in.RightValidation); s != nil {
		doc.Validation[res.Right] = s
	}
	if res.Chunked {
		doc.Notes = append(doc.Notes, "chunked mode: presence counts only, value differences were not computed")
	}
	doc.Notes = append(doc.Notes, res.Warnings...)

	if doc.OnlyInLeft, err = w.records(ctx, onlyLeft+limit); err != nil {
		return nil, err
	}
	if doc.OnlyInRight, err = w.records(ctx, onlyRight+limit); err != nil {
		return nil, err
	}
	if doc.Differences, err = w.records(ctx, diffs); err != nil {
		return nil, err
	}
	doc.Truncated = in.MaxDifferences > 0 && (res.ValueDiffs > int64(in.MaxDifferences) ||
		res.OnlyInLeft > int64(in.MaxDifferences) || res.OnlyInRight > int64(in.MaxDifferences))

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report %s: %w", res.Name, err)
	}
	if err := os.WriteFile(art.Report, data, 0o644); err != nil {
		return nil, fmt.Errorf("write report %s: %w", art.Report, err)
	}

	log.Info("Report written",
		zap.String("dir", w.cfg.Dir),
		zap.Int64("differences", res.ValueDiffs),
		zap.Bool("truncated", doc.Truncated))

	if w.cfg.Upload {
		if art.Uploaded, err = w.upload(ctx, in.RunID, art.Files()); err != nil {
			return art, err
		}
	}
	return art, nil
}

func (w *Writer) records(ctx context.Context, query string) ([]map[string]any, error) {
	res, err := w.sess.Fetch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read report rows: %w", err)
	}
	return res.Records(), nil
}

func (w *Writer) upload(ctx context.Context, runID string, files []string) ([]string, error) {
	if w.client == nil {
		return nil, fmt.Errorf("report upload enabled but no storage client configured")
	}
	if runID == "" {
		runID = "adhoc"
	}

	var uploaded []string
	for _, path := range files {
		object := storage.ObjectPath(w.cfg.Prefix, runID, filepath.Base(path))
		if err := w.put(ctx, path, object); err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, object)
		w.log.Debug("Uploaded report artifact", zap.String("object", object))
	}
	return uploaded, nil
}

func (w *Writer) put(ctx context.Context, path, object string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	contentType := "text/csv"
	if strings.HasSuffix(path, ".json") {
		contentType = "application/json"
	}
	_, err = w.client.PutObject(ctx, w.bucket, object, f, info.Size(), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", object, err)
	}
	return nil
}

// presenceQuery selects a presence relation with its canonical columns
// first and the source row number last.
func (w *Writer) presenceQuery(ctx context.Context, res *reconcile.Result, table string) (string, error) {
	cols, err := w.sess.Columns(ctx, table)
	if err != nil {
		return "", fmt.Errorf("comparison %q: describe %s: %w", res.Name, table, err)
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	alias := engine.QuoteIdent(rowNumberAlias(names))
	return fmt.Sprintf("SELECT * EXCLUDE (%s, %s), %s AS %s FROM %s ORDER BY %s, %s",
		engine.QuoteIdent(staging.RowNumberColumn), engine.QuoteIdent(staging.LastModifiedColumn),
		engine.QuoteIdent(staging.RowNumberColumn), alias, engine.QuoteIdent(table),
		engine.QuoteIdents(res.Keys), alias), nil
}

// rowNumberAlias names the exported source row number column. It is
// row_number unless a dataset column already uses that name.
func rowNumberAlias(columns []string) string {
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[strings.ToLower(c)] = true
	}
	alias := "row_number"
	for n := 1; taken[alias]; n++ {
		alias = "source_row_number"
		if n > 1 {
			alias += "_" + strconv.Itoa(n)
		}
	}
	return alias
}

func diffQuery(res *reconcile.Result) string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s, %s, %s, %s",
		engine.QuoteIdents(reconcile.DiffColumns(res.Keys)), engine.QuoteIdent(res.DiffTable),
		engine.QuoteIdents(res.Keys), reconcile.ColColumnName, reconcile.ColRowNumberLeft, reconcile.ColRowNumberRight)
}
