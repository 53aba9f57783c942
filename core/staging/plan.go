package staging

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"data-reconciler/core/datasets"
	"data-reconciler/core/normalize"
)

// columnPlan describes how one raw column becomes one canonical column.
type columnPlan struct {
	source      string
	canonical   string
	normalizers []normalize.NormalizerKind
	converter   *normalize.ConverterKind
	typ         normalize.ColumnType
	inferrer    *normalize.Inferrer
}

// stagingPlan is the resolved column pipeline of a dataset against one raw schema.
type stagingPlan struct {
	dataset         string
	columns         []*columnPlan
	keys            []string
	lastModified    int
	warnings        []string
	transformations []string
}

func (p *stagingPlan) warnf(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *stagingPlan) sourceColumns() []string {
	out := make([]string, len(p.columns))
	for i, c := range p.columns {
		out[i] = c.source
	}
	return out
}

func (p *stagingPlan) canonicalColumns() []Column {
	out := make([]Column, len(p.columns))
	for i, c := range p.columns {
		out[i] = Column{Name: c.canonical, Type: c.typ}
	}
	return out
}

func (p *stagingPlan) needsInference() bool {
	for _, c := range p.columns {
		if c.inferrer != nil {
			return true
		}
	}
	return false
}

// buildPlan maps raw columns to canonical ones. Mapped columns claim their
// targets before unmapped columns so an explicit mapping is never displaced.
func buildPlan(ds datasets.Dataset, raw []string) (*stagingPlan, error) {
	p := &stagingPlan{dataset: ds.Name, keys: ds.Keys, lastModified: -1}

	targets := make([]string, len(raw))
	taken := make(map[string]struct{}, len(raw))
	claim := func(i int, name string) {
		candidate := name
		for n := 2; ; n++ {
			if _, clash := taken[candidate]; !clash {
				break
			}
			candidate = name + "_" + strconv.Itoa(n)
		}
		if candidate != name {
			p.warnf("column %q maps to %q which is already taken, staged as %q", raw[i], name, candidate)
		}
		taken[candidate] = struct{}{}
		targets[i] = candidate
	}

	matched := make(map[int]bool, len(ds.Mapping))
	for i, col := range raw {
		for mi, m := range ds.Mapping {
			if m.Source == col {
				claim(i, m.Canonical)
				matched[mi] = true
				break
			}
			if normalize.CanonicalName(m.Source) == normalize.CanonicalName(col) {
				p.warnf("source column %q was renamed; mapped to %q through %q", col, m.Canonical, m.Source)
				claim(i, m.Canonical)
				matched[mi] = true
				break
			}
		}
	}
	for i, col := range raw {
		if targets[i] == "" {
			claim(i, normalize.CanonicalName(col))
		}
	}
	for mi, m := range ds.Mapping {
		if !matched[mi] {
			p.warnf("column_map source %q not found in source", m.Source)
		}
	}

	for i, col := range raw {
		canonical := targets[i]
		if ds.IsExcluded(canonical) {
			p.transformations = append(p.transformations, "exclude "+canonical)
			continue
		}
		if col != canonical {
			p.transformations = append(p.transformations, fmt.Sprintf("rename %s -> %s", col, canonical))
		}

		c := &columnPlan{source: col, canonical: canonical, normalizers: ds.Normalizers[canonical]}
		if len(c.normalizers) > 0 {
			names := make([]string, len(c.normalizers))
			for j, k := range c.normalizers {
				names[j] = k.String()
			}
			p.transformations = append(p.transformations, fmt.Sprintf("normalize %s: %s", canonical, strings.Join(names, ", ")))
		}
		if conv, ok := ds.Converters[canonical]; ok {
			conv := conv
			c.converter = &conv
			p.transformations = append(p.transformations, fmt.Sprintf("convert %s: %s", canonical, conv))
		}

		switch declared, ok := ds.DTypes[canonical]; {
		case ok:
			c.typ = declared
		case c.converter != nil:
			c.typ = c.converter.OutputType()
		case ds.InferTypes:
			c.inferrer = &normalize.Inferrer{}
		default:
			c.typ = normalize.TypeString
		}

		if canonical == ds.LastModifiedColumn {
			p.lastModified = len(p.columns)
		}
		p.columns = append(p.columns, c)
	}

	available := make(map[string]struct{}, len(p.columns))
	for _, c := range p.columns {
		available[c.canonical] = struct{}{}
	}
	for _, k := range ds.Keys {
		if _, ok := available[k]; !ok {
			names := make([]string, 0, len(p.columns))
			for _, c := range p.columns {
				names = append(names, c.canonical)
			}
			return nil, &KeyColumnError{Dataset: ds.Name, Column: k, Available: names}
		}
	}

	for _, col := range configuredColumns(ds) {
		if _, ok := available[col]; !ok && !ds.IsExcluded(col) {
			p.warnf("configured column %q is not present in source", col)
		}
	}
	if ds.LastModifiedColumn != "" && p.lastModified < 0 {
		p.warnf("last_modified_column %q is not present; recency is not tracked", ds.LastModifiedColumn)
	}
	return p, nil
}

// configuredColumns lists canonical columns named by dtypes, normalizers and converters.
func configuredColumns(ds datasets.Dataset) []string {
	set := make(map[string]struct{})
	for c := range ds.DTypes {
		set[c] = struct{}{}
	}
	for c := range ds.Normalizers {
		set[c] = struct{}{}
	}
	for c := range ds.Converters {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// observe feeds normalized values of undeclared columns to their inferrers.
func (p *stagingPlan) observe(row []*string) {
	for i, c := range p.columns {
		if c.inferrer != nil {
			c.inferrer.Observe(normalize.Chain(c.normalizers, row[i]))
		}
	}
}

// resolveInferred fixes the types of inferred columns.
func (p *stagingPlan) resolveInferred() {
	for _, c := range p.columns {
		if c.inferrer == nil {
			continue
		}
		c.typ = c.inferrer.Type()
		c.inferrer = nil
		if c.typ != normalize.TypeString {
			p.transformations = append(p.transformations, fmt.Sprintf("infer %s: %s", c.canonical, c.typ))
		}
	}
}

// transform runs the column pipeline over one raw row. The output holds the
// canonical values followed by the last-modified date. Failed coercions are
// counted per column and stored as nil.
func (p *stagingPlan) transform(row []*string, failures []int64) []any {
	out := make([]any, len(p.columns)+1)
	for i, c := range p.columns {
		v := normalize.Chain(c.normalizers, row[i])

		var value any
		ok := true
		if c.converter != nil {
			var converted any
			converted, ok = normalize.Convert(*c.converter, v)
			if ok {
				value, ok = normalize.CastValue(c.typ, converted)
			}
		} else {
			value, ok = normalize.Cast(c.typ, v)
		}
		if !ok {
			failures[i]++
			value = nil
		}
		out[i] = value

		if i == p.lastModified {
			out[len(p.columns)] = lastModifiedValue(value, v)
		}
	}
	return out
}

func lastModifiedValue(typed any, text *string) any {
	if d, ok := typed.(time.Time); ok {
		return d
	}
	if text == nil {
		return nil
	}
	if d, ok := normalize.ParseDate(*text); ok {
		return d
	}
	return nil
}
