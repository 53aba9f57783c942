package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"data-reconciler/core/datasets"
	"data-reconciler/core/source"
)

// ConfigDigest hashes the parts of a dataset definition that shape its canonical table.
func ConfigDigest(ds datasets.Dataset) string {
	payload := struct {
		Mapping      []datasets.Mapping
		Keys         []string
		DTypes       any
		Normalizers  any
		Converters   any
		LastModified string
		Exclude      []string
		CustomSQL    string
		InferTypes   bool
	}{
		Mapping:      ds.Mapping,
		Keys:         ds.Keys,
		DTypes:       ds.DTypes,
		Normalizers:  ds.Normalizers,
		Converters:   ds.Converters,
		LastModified: ds.LastModifiedColumn,
		Exclude:      ds.ExcludeColumns,
		CustomSQL:    ds.CustomSQL,
		InferTypes:   ds.InferTypes,
	}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// DetectDrift lists why a cached table no longer matches its source. An empty
// result means the cache may be served.
func DetectDrift(meta *CacheMetadata, current source.Fingerprint, digest string) []string {
	var reasons []string
	cached := meta.Fingerprint

	if !cached.SameColumns(current) {
		added, removed := columnDelta(cached.Columns, current.Columns)
		reasons = append(reasons, fmt.Sprintf("column set changed (added %v, removed %v)", added, removed))
	}

	if current.HasModTime() {
		if !cached.ModTime.Equal(current.ModTime) {
			reasons = append(reasons, fmt.Sprintf("source modified at %s, cached from %s",
				current.ModTime.Format("2006-01-02T15:04:05Z"), cached.ModTime.Format("2006-01-02T15:04:05Z")))
		}
	} else if current.RowCount >= 0 && cached.RowCount != current.RowCount {
		reasons = append(reasons, fmt.Sprintf("row count changed from %d to %d", cached.RowCount, current.RowCount))
	}

	if meta.ConfigDigest != "" && digest != "" && meta.ConfigDigest != digest {
		reasons = append(reasons, "dataset configuration changed")
	}
	return reasons
}

func columnDelta(before, after []string) (added, removed []string) {
	in := func(list []string) map[string]struct{} {
		m := make(map[string]struct{}, len(list))
		for _, v := range list {
			m[v] = struct{}{}
		}
		return m
	}
	b, a := in(before), in(after)
	for c := range a {
		if _, ok := b[c]; !ok {
			added = append(added, c)
		}
	}
	for c := range b {
		if _, ok := a[c]; !ok {
			removed = append(removed, c)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
