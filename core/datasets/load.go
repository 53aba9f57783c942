package datasets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"data-reconciler/core/normalize"

	"gopkg.in/yaml.v3"
)

type rawFile struct {
	Datasets    map[string]rawDataset `yaml:"datasets"`
	Comparisons []rawComparison       `yaml:"comparisons"`
	Validation  struct {
		FailFast   bool `yaml:"fail_fast"`
		SampleSize int  `yaml:"sample_size"`
	} `yaml:"validation"`
}

type rawDataset struct {
	Path               string              `yaml:"path"`
	Type               string              `yaml:"type"`
	KeyColumns         []string            `yaml:"key_columns"`
	ColumnMap          orderedMap          `yaml:"column_map"`
	DTypes             map[string]string   `yaml:"dtypes"`
	Normalizers        map[string]nameList `yaml:"normalizers"`
	Converters         map[string]string   `yaml:"converters"`
	LastModifiedColumn string              `yaml:"last_modified_column"`
	ExcludeColumns     []string            `yaml:"exclude_columns"`
	CustomSQL          string              `yaml:"custom_sql"`
	InferTypes         *bool               `yaml:"infer_types"`
	ChunkSize          int                 `yaml:"chunk_size"`
}

type rawComparison struct {
	Name           string   `yaml:"name"`
	Left           string   `yaml:"left"`
	Right          string   `yaml:"right"`
	Keys           []string `yaml:"keys"`
	CompareColumns []string `yaml:"compare_columns"`
	NumericRound   *int     `yaml:"numeric_round"`
	DateFilter     *struct {
		Cutoff   string `yaml:"cutoff"`
		Operator string `yaml:"operator"`
	} `yaml:"date_filter"`
	Mode           string `yaml:"mode"`
	MaxDifferences int    `yaml:"max_differences"`
}

// orderedMap decodes a YAML mapping while keeping key order.
type orderedMap []Mapping

func (m *orderedMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		*m = append(*m, Mapping{Source: node.Content[i].Value, Canonical: node.Content[i+1].Value})
	}
	return nil
}

// nameList accepts either a single name or a list of names.
type nameList []string

func (l *nameList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = nameList{node.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*l = names
		return nil
	default:
		return fmt.Errorf("line %d: expected a name or a list of names", node.Line)
	}
}

// Load reads and resolves a datasets file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasets file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Parse resolves a datasets document.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw rawFile
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse datasets file: %w", err)
	}

	f := &File{
		Datasets: make(map[string]*Dataset, len(raw.Datasets)),
		Validation: ValidationOptions{
			FailFast:   raw.Validation.FailFast,
			SampleSize: raw.Validation.SampleSize,
		},
	}
	if f.Validation.SampleSize <= 0 {
		f.Validation.SampleSize = 100
	}

	names := make([]string, 0, len(raw.Datasets))
	for name := range raw.Datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ds, err := resolveDataset(name, raw.Datasets[name])
		if err != nil {
			return nil, err
		}
		f.Datasets[name] = ds
	}

	seen := make(map[string]struct{}, len(raw.Comparisons))
	for i, rc := range raw.Comparisons {
		cmp, err := resolveComparison(i, rc, f.Datasets)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[cmp.Name]; dup {
			return nil, &ConfigError{Comparison: cmp.Name, Field: "name", Message: "duplicate comparison name"}
		}
		seen[cmp.Name] = struct{}{}
		f.Comparisons = append(f.Comparisons, cmp)
	}

	return f, nil
}

func resolveDataset(name string, raw rawDataset) (*Dataset, error) {
	fail := func(field, format string, args ...any) error {
		return &ConfigError{Dataset: name, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if strings.TrimSpace(name) == "" {
		return nil, fail("name", "dataset name is required")
	}
	if raw.Path == "" && raw.CustomSQL == "" {
		return nil, fail("path", "path is required")
	}

	ds := &Dataset{
		Name:        name,
		Path:        raw.Path,
		CustomSQL:   raw.CustomSQL,
		InferTypes:  raw.InferTypes == nil || *raw.InferTypes,
		ChunkSize:   raw.ChunkSize,
		DTypes:      make(map[string]normalize.ColumnType, len(raw.DTypes)),
		Normalizers: make(map[string][]normalize.NormalizerKind, len(raw.Normalizers)),
		Converters:  make(map[string]normalize.ConverterKind, len(raw.Converters)),
	}

	switch {
	case raw.Type != "":
		format, ok := parseFormat(raw.Type)
		if !ok {
			return nil, fail("type", "unknown type %q", raw.Type)
		}
		ds.Format = format
	default:
		format, ok := FormatFromPath(strings.TrimPrefix(raw.Path, "s3://"))
		if !ok {
			return nil, fail("type", "cannot infer type from path %q; set type explicitly", raw.Path)
		}
		ds.Format = format
	}
	if ds.Format == FormatDatabase && ds.IsRemote() {
		return nil, fail("path", "database datasets cannot use an s3:// path")
	}

	targets := make(map[string]string, len(raw.ColumnMap))
	for _, m := range raw.ColumnMap {
		canonical := normalize.CanonicalName(m.Canonical)
		if prev, dup := targets[canonical]; dup {
			return nil, fail("column_map", "columns %q and %q both map to %q", prev, m.Source, canonical)
		}
		targets[canonical] = m.Source
		ds.Mapping = append(ds.Mapping, Mapping{Source: m.Source, Canonical: canonical})
	}

	for col, typ := range raw.DTypes {
		ct, err := normalize.ParseColumnType(typ)
		if err != nil {
			return nil, fail("dtypes."+col, "%v", err)
		}
		ds.DTypes[normalize.CanonicalName(col)] = ct
	}
	for col, names := range raw.Normalizers {
		kinds := make([]normalize.NormalizerKind, 0, len(names))
		for _, n := range names {
			kind, err := normalize.ParseNormalizer(n)
			if err != nil {
				return nil, fail("normalizers."+col, "%v", err)
			}
			kinds = append(kinds, kind)
		}
		ds.Normalizers[normalize.CanonicalName(col)] = kinds
	}
	for col, n := range raw.Converters {
		kind, err := normalize.ParseConverter(n)
		if err != nil {
			return nil, fail("converters."+col, "%v", err)
		}
		ds.Converters[normalize.CanonicalName(col)] = kind
	}
	for _, col := range raw.ExcludeColumns {
		ds.ExcludeColumns = append(ds.ExcludeColumns, normalize.CanonicalName(col))
	}
	if raw.LastModifiedColumn != "" {
		ds.LastModifiedColumn = normalize.CanonicalName(raw.LastModifiedColumn)
	}

	for _, k := range raw.KeyColumns {
		key := normalize.CanonicalName(k)
		if renamed := renamedAway(ds, k); renamed != "" {
			return nil, fail("key_columns", "key column %q is renamed to %q by column_map; use the canonical name", k, renamed)
		}
		if ds.IsExcluded(key) {
			return nil, fail("key_columns", "key column %q is excluded", k)
		}
		ds.Keys = append(ds.Keys, key)
	}

	return ds, nil
}

// renamedAway returns the new name when key names a source column that the
// column map renames to a different canonical name.
func renamedAway(ds *Dataset, key string) string {
	canonical := normalize.CanonicalName(key)
	for _, m := range ds.Mapping {
		if m.Canonical == canonical {
			return ""
		}
	}
	for _, m := range ds.Mapping {
		if normalize.CanonicalName(m.Source) == canonical && m.Canonical != canonical {
			return m.Canonical
		}
	}
	return ""
}

func resolveComparison(idx int, raw rawComparison, all map[string]*Dataset) (*Comparison, error) {
	name := raw.Name
	if name == "" {
		name = fmt.Sprintf("%s_vs_%s", raw.Left, raw.Right)
	}
	fail := func(field, format string, args ...any) error {
		return &ConfigError{Comparison: name, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if raw.Left == "" || raw.Right == "" {
		return nil, fail("left/right", "comparison #%d needs both left and right datasets", idx+1)
	}
	left, ok := all[raw.Left]
	if !ok {
		return nil, fail("left", "unknown dataset %q", raw.Left)
	}
	if _, ok := all[raw.Right]; !ok {
		return nil, fail("right", "unknown dataset %q", raw.Right)
	}

	cmp := &Comparison{
		Name:           name,
		Left:           raw.Left,
		Right:          raw.Right,
		NumericRound:   raw.NumericRound,
		MaxDifferences: raw.MaxDifferences,
	}

	for _, k := range raw.Keys {
		cmp.Keys = append(cmp.Keys, normalize.CanonicalName(k))
	}
	if len(cmp.Keys) == 0 {
		cmp.Keys = append(cmp.Keys, left.Keys...)
	}
	if len(cmp.Keys) == 0 {
		return nil, fail("keys", "no keys configured and dataset %q declares no key_columns", raw.Left)
	}
	for _, c := range raw.CompareColumns {
		cmp.CompareColumns = append(cmp.CompareColumns, normalize.CanonicalName(c))
	}
	if raw.NumericRound != nil && *raw.NumericRound < 0 {
		return nil, fail("numeric_round", "must not be negative")
	}
	if raw.MaxDifferences < 0 {
		return nil, fail("max_differences", "must not be negative")
	}

	switch strings.ToLower(raw.Mode) {
	case "", string(ModeFull):
		cmp.Mode = ModeFull
	case string(ModeChunked):
		cmp.Mode = ModeChunked
	case string(ModeAuto):
		cmp.Mode = ModeAuto
	default:
		return nil, fail("mode", "unknown mode %q", raw.Mode)
	}

	if raw.DateFilter != nil {
		cutoff, ok := normalize.ParseDate(raw.DateFilter.Cutoff)
		if !ok {
			return nil, fail("date_filter.cutoff", "invalid date %q", raw.DateFilter.Cutoff)
		}
		opText := raw.DateFilter.Operator
		if opText == "" {
			opText = string(OpGreaterEqual)
		}
		op, err := ParseOperator(opText)
		if err != nil {
			return nil, fail("date_filter.operator", "%v", err)
		}
		cmp.DateFilter = &DateFilter{Cutoff: cutoff, Operator: op}
	}

	return cmp, nil
}

// ParseCutoff parses a --cutoff style date.
func ParseCutoff(s string) (time.Time, error) {
	t, ok := normalize.ParseDate(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid cutoff date %q", s)
	}
	return t, nil
}
