package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^a-z0-9_]+`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// CanonicalName reduces a source column name to lowercase [a-z0-9_].
// Accents are folded before replacement so "Montant Payé" becomes "montant_paye".
func CanonicalName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = stripMarks(s)
	s = nonWordRe.ReplaceAllString(s, "_")
	s = underscoreRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "column"
	}
	return s
}

// IsCanonical reports whether name is already in canonical form.
func IsCanonical(name string) bool {
	return CanonicalName(name) == name
}

// CanonicalNames canonicalizes a header row. Names that collide after
// canonicalization get _2, _3, ... suffixes in order of appearance.
func CanonicalNames(names []string) []string {
	out := make([]string, len(names))
	seen := make(map[string]int, len(names))
	taken := make(map[string]struct{}, len(names))
	for i, name := range names {
		base := CanonicalName(name)
		candidate := base
		if _, clash := taken[candidate]; clash {
			n := seen[base]
			if n < 2 {
				n = 2
			}
			for {
				candidate = base + "_" + strconv.Itoa(n)
				if _, clash := taken[candidate]; !clash {
					break
				}
				n++
			}
			seen[base] = n + 1
		}
		taken[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}

func stripMarks(s string) string {
	cleaned := unicodeClean(s)
	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if r < 0x80 {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
