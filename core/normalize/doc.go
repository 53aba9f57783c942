// Package normalize implements the value-level rules that turn raw tabular
// input into canonical values.
//
// All functions are pure and null-preserving: a nil input always yields a nil
// output. Normalizers rewrite text, converters and casts produce typed values.
// A failed conversion never returns an error; it yields nil and reports
// ok=false so the caller can count it.
//
// # Closed Kinds
//
// Normalizer, converter and column type names are parsed once, when the
// dataset configuration is loaded, into NormalizerKind, ConverterKind and
// ColumnType. Unknown names are rejected at that point:
//
//	kind, err := normalize.ParseNormalizer("strip_hierarchy")
//	out := normalize.Normalize(kind, &raw)
//
// # Column Names
//
// CanonicalName lowercases a source header and reduces it to [a-z0-9_].
// CanonicalNames applies it to a full header row and suffixes conflicts
// with _2, _3, ... so every canonical column name is unique.
package normalize
