package query

import (
	"cmp"
	"strings"
)

// compare applies op between the extracted value and the filter operand
// using the filter's comparison rules.
func compare(f *Filter, op Operator, have, want Value) bool {
	if f.Comparer != nil {
		return f.Comparer(op, have, want)
	}

	if have.Kind() == KindStrings {
		return compareStrings(f, op, have.Strings(), want)
	}

	switch op {
	case OpEqual:
		return equal(f, have, want)
	case OpNotEqual:
		return !equal(f, have, want)
	case OpColon, OpContains:
		if have.Kind() == KindString && want.Kind() == KindString {
			h, w := fold(f, have.Str()), fold(f, want.Str())
			if len(f.Enum) > 0 && op == OpColon {
				return strings.HasPrefix(h, w)
			}
			return strings.Contains(h, w)
		}
		return equal(f, have, want)
	default:
		c, ok := order(f, have, want)
		if !ok {
			return false
		}
		switch op {
		case OpGreater:
			return c > 0
		case OpGreaterOrEqual:
			return c >= 0
		case OpLesser:
			return c < 0
		case OpLesserOrEqual:
			return c <= 0
		}
	}
	return false
}

// compareStrings handles membership style filters. Equal, Contains and ":"
// are exact membership; NotEqual holds when no element equals the operand.
func compareStrings(f *Filter, op Operator, have []string, want Value) bool {
	w := fold(f, want.String())
	switch op {
	case OpEqual, OpContains, OpColon:
		for _, h := range have {
			if fold(f, h) == w {
				return true
			}
		}
		return false
	case OpNotEqual:
		for _, h := range have {
			if fold(f, h) == w {
				return false
			}
		}
		return true
	}
	return false
}

func fold(f *Filter, s string) string {
	if f.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func equal(f *Filter, have, want Value) bool {
	if c, ok := order(f, have, want); ok {
		return c == 0
	}
	if have.Kind() == KindBool && want.Kind() == KindBool {
		return have.Bool() == want.Bool()
	}
	return false
}

// order compares two values of ordered kinds; ints and floats compare
// numerically with each other.
func order(f *Filter, have, want Value) (int, bool) {
	switch {
	case have.Kind() == KindInt && want.Kind() == KindInt:
		return cmp.Compare(have.Int(), want.Int()), true
	case isNumeric(have) && isNumeric(want):
		return cmp.Compare(asFloat(have), asFloat(want)), true
	case have.Kind() == KindString && want.Kind() == KindString:
		return strings.Compare(fold(f, have.Str()), fold(f, want.Str())), true
	}
	return 0, false
}

func isNumeric(v Value) bool {
	return v.Kind() == KindInt || v.Kind() == KindFloat
}

func asFloat(v Value) float64 {
	if v.Kind() == KindInt {
		return float64(v.Int())
	}
	return v.Float()
}
