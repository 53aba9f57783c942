package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// invisibles are zero-width and formatting code points dropped by UnicodeClean.
var invisibles = map[rune]struct{}{
	'\u200b': {}, '\u200c': {}, '\u200d': {}, '\u2060': {}, '\ufeff': {}, '\u00ad': {},
}

// punctuationFolds maps typographic punctuation to its ASCII form.
var punctuationFolds = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'",
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`,
	"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-", "\u2212", "-",
	"\u2026", "...", "\u00a0", " ",
)

var (
	trueTokens  = map[string]struct{}{"t": {}, "true": {}, "1": {}, "yes": {}, "y": {}}
	falseTokens = map[string]struct{}{"f": {}, "false": {}, "0": {}, "no": {}, "n": {}}
)

const (
	TrueToken  = "t"
	FalseToken = "f"
)

// Normalize applies a single normalizer to v.
func Normalize(kind NormalizerKind, v *string) *string {
	if v == nil {
		return nil
	}
	var out string
	switch kind {
	case UnicodeClean:
		out = unicodeClean(*v)
	case CollapseSpaces:
		out = collapseSpaces(*v)
	case StripHierarchy:
		out = stripHierarchy(*v)
	case Upper:
		out = strings.ToUpper(*v)
	case Boolean:
		return booleanToken(*v)
	default:
		out = *v
	}
	return &out
}

// Chain applies normalizers in order. A nil result short-circuits the chain.
func Chain(kinds []NormalizerKind, v *string) *string {
	for _, kind := range kinds {
		if v == nil {
			return nil
		}
		v = Normalize(kind, v)
	}
	return v
}

func unicodeClean(s string) string {
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if _, drop := invisibles[r]; drop {
			continue
		}
		b.WriteRune(r)
	}
	return collapseSpaces(punctuationFolds.Replace(b.String()))
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// stripHierarchy keeps the label after the last colon of a "Path:To:Leaf" value.
func stripHierarchy(s string) string {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return s
	}
	return strings.TrimSpace(s[idx+1:])
}

func booleanToken(s string) *string {
	key := strings.ToLower(strings.TrimSpace(s))
	if _, ok := trueTokens[key]; ok {
		t := TrueToken
		return &t
	}
	if _, ok := falseTokens[key]; ok {
		f := FalseToken
		return &f
	}
	return nil
}
