package normalize

import (
	"fmt"
	"strings"
)

// NormalizerKind identifies a text normalizer.
type NormalizerKind int

const (
	UnicodeClean NormalizerKind = iota + 1
	CollapseSpaces
	StripHierarchy
	Upper
	Boolean
)

var normalizerNames = map[NormalizerKind]string{
	UnicodeClean:   "unicode_clean",
	CollapseSpaces: "collapse_spaces",
	StripHierarchy: "strip_hierarchy",
	Upper:          "upper",
	Boolean:        "boolean",
}

func (k NormalizerKind) String() string {
	if name, ok := normalizerNames[k]; ok {
		return name
	}
	return fmt.Sprintf("normalizer(%d)", int(k))
}

// ParseNormalizer resolves a configured normalizer name.
// Both snake_case and camelCase spellings are accepted.
func ParseNormalizer(name string) (NormalizerKind, error) {
	key := foldName(name)
	for kind, n := range normalizerNames {
		if foldName(n) == key {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown normalizer %q", name)
}

// ConverterKind identifies a single-step typed conversion.
type ConverterKind int

const (
	CurrencyToFloat ConverterKind = iota + 1
	BooleanTF
)

var converterNames = map[ConverterKind]string{
	CurrencyToFloat: "currency_to_float",
	BooleanTF:       "boolean_t_f",
}

// converterAliases maps additional accepted spellings to their kind.
var converterAliases = map[string]ConverterKind{
	"currencyusd": CurrencyToFloat,
	"currency":    CurrencyToFloat,
	"booleantf":   BooleanTF,
	"boolean":     BooleanTF,
}

func (k ConverterKind) String() string {
	if name, ok := converterNames[k]; ok {
		return name
	}
	return fmt.Sprintf("converter(%d)", int(k))
}

// OutputType is the column type a converter produces.
func (k ConverterKind) OutputType() ColumnType {
	switch k {
	case CurrencyToFloat:
		return TypeCurrency
	case BooleanTF:
		return TypeString
	default:
		return TypeString
	}
}

// ParseConverter resolves a configured converter name.
func ParseConverter(name string) (ConverterKind, error) {
	key := foldName(name)
	for kind, n := range converterNames {
		if foldName(n) == key {
			return kind, nil
		}
	}
	if kind, ok := converterAliases[key]; ok {
		return kind, nil
	}
	return 0, fmt.Errorf("unknown converter %q", name)
}

// ColumnType is the declared canonical type of a column.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInt64    ColumnType = "int64"
	TypeFloat64  ColumnType = "float64"
	TypeDate     ColumnType = "date"
	TypeCurrency ColumnType = "currency"
	TypeBoolean  ColumnType = "boolean"
)

// ParseColumnType resolves a declared dtype.
func ParseColumnType(name string) (ColumnType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "string", "str", "text", "varchar":
		return TypeString, nil
	case "int64", "int", "integer", "bigint":
		return TypeInt64, nil
	case "float64", "float", "double":
		return TypeFloat64, nil
	case "date":
		return TypeDate, nil
	case "currency", "money":
		return TypeCurrency, nil
	case "boolean", "bool":
		return TypeBoolean, nil
	default:
		return "", fmt.Errorf("unknown column type %q", name)
	}
}

// SQLType is the engine column type used to store values of t.
func (t ColumnType) SQLType() string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64, TypeCurrency:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeBoolean:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

// IsNumeric reports whether values of t compare numerically.
func (t ColumnType) IsNumeric() bool {
	return t == TypeInt64 || t == TypeFloat64 || t == TypeCurrency
}

// IsFractional reports whether numeric rounding applies to t.
func (t ColumnType) IsFractional() bool {
	return t == TypeFloat64 || t == TypeCurrency
}

// TypeFromSQL maps an engine column type back to a ColumnType.
func TypeFromSQL(sqlType string) ColumnType {
	upper := strings.ToUpper(sqlType)
	switch {
	case upper == "BIGINT" || upper == "INTEGER" || upper == "SMALLINT" || upper == "TINYINT" || upper == "HUGEINT":
		return TypeInt64
	case upper == "DOUBLE" || upper == "FLOAT" || upper == "REAL" || strings.HasPrefix(upper, "DECIMAL"):
		return TypeFloat64
	case upper == "DATE" || strings.HasPrefix(upper, "TIMESTAMP"):
		return TypeDate
	case upper == "BOOLEAN":
		return TypeBoolean
	default:
		return TypeString
	}
}

func foldName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
