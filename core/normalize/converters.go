package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var currencyStripper = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "", ",", "", " ", "",
)

// dateLayouts are tried in order by the date cast.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000000",
	"01/02/2006",
	"1/2/2006",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04",
	"2006/01/02",
}

// CurrencyToFloatValue parses a money string such as "$1,234.56" or "(100)".
// A value wrapped in parentheses is negative.
func CurrencyToFloatValue(v *string) (*float64, bool) {
	if v == nil {
		return nil, true
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil, true
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = currencyStripper.Replace(s)
	if strings.HasPrefix(s, "-") && negative {
		s = s[1:]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if negative {
		f = -f
	}
	return &f, true
}

// Convert applies a converter. The returned value is nil, float64 or string.
// ok is false only when a non-null input could not be converted.
func Convert(kind ConverterKind, v *string) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch kind {
	case CurrencyToFloat:
		f, ok := CurrencyToFloatValue(v)
		if f == nil {
			return nil, ok
		}
		return *f, true
	case BooleanTF:
		token := booleanToken(*v)
		if token == nil {
			return nil, strings.TrimSpace(*v) == ""
		}
		return *token, true
	default:
		return *v, true
	}
}

// Cast try-casts v to t. The returned value is nil or the Go type the engine
// stores for t: string, int64, float64, time.Time or bool.
// ok is false only when a non-null input could not be cast.
func Cast(t ColumnType, v *string) (any, bool) {
	if v == nil {
		return nil, true
	}
	s := strings.TrimSpace(*v)
	if t != TypeString && s == "" {
		return nil, true
	}
	switch t {
	case TypeString, "":
		return *v, true
	case TypeInt64:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<62 {
			return int64(f), true
		}
		return nil, false
	case TypeFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	case TypeCurrency:
		f, ok := CurrencyToFloatValue(&s)
		if f == nil {
			return nil, ok
		}
		return *f, true
	case TypeDate:
		d, ok := ParseDate(s)
		if !ok {
			return nil, false
		}
		return d, true
	case TypeBoolean:
		token := booleanToken(s)
		if token == nil {
			return nil, false
		}
		return *token == TrueToken, true
	default:
		return *v, true
	}
}

// CastValue casts an already converted value to t.
// Converters return float64 or string, so only those need handling.
func CastValue(t ColumnType, v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case string:
		return Cast(t, &x)
	case float64:
		switch t {
		case TypeFloat64, TypeCurrency, "":
			return x, true
		case TypeInt64:
			if x == math.Trunc(x) {
				return int64(x), true
			}
			return nil, false
		case TypeString:
			return strconv.FormatFloat(x, 'f', -1, 64), true
		default:
			return nil, false
		}
	default:
		return v, true
	}
}

// ParseDate parses s with the supported layouts and truncates it to a day.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
