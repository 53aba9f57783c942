package normalize

import (
	"strconv"
	"strings"
)

// Inferrer accumulates observed values and reports the narrowest type that
// fits all of them. The zero value is ready to use.
type Inferrer struct {
	seen     bool
	notInt   bool
	notFloat bool
}

// Observe records one value. Nil and blank values carry no type evidence.
func (in *Inferrer) Observe(v *string) {
	if v == nil || in.notFloat {
		return
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return
	}
	in.seen = true
	if !in.notInt {
		if _, err := strconv.ParseInt(s, 10, 64); err != nil || hasLeadingZero(s) {
			in.notInt = true
		}
	}
	if in.notInt && (!LooksNumeric(s) || hasLeadingZero(s)) {
		in.notFloat = true
	}
}

// Type returns int64, float64 or string. Without any evidence it is string.
func (in *Inferrer) Type() ColumnType {
	switch {
	case !in.seen, in.notFloat:
		return TypeString
	case !in.notInt:
		return TypeInt64
	default:
		return TypeFloat64
	}
}

// InferType picks the narrowest of int64, float64 and string that every
// non-empty value in the sample parses as. An all-empty sample is a string.
func InferType(values []*string) ColumnType {
	var in Inferrer
	for _, v := range values {
		in.Observe(v)
	}
	return in.Type()
}

// LooksNumeric reports whether s parses as a number.
func LooksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if !strings.ContainsAny(s, "0123456789") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// hasLeadingZero keeps identifiers such as "007" as text.
func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")
	return len(s) > 1 && s[0] == '0' && s[1] != '.'
}
