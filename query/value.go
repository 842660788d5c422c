package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the type tag of a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindStrings
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindStrings:
		return "strings"
	default:
		return "invalid"
	}
}

// Ordered reports whether values of this kind have a total order, which
// the ordering operators require.
func (k Kind) Ordered() bool {
	switch k {
	case KindInt, KindFloat, KindString:
		return true
	default:
		return false
	}
}

// Value is a tagged union of the value types filters can produce or accept.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	ss   []string
}

func IntValue(v int64) Value      { return Value{kind: KindInt, i: v} }
func FloatValue(v float64) Value  { return Value{kind: KindFloat, f: v} }
func BoolValue(v bool) Value      { return Value{kind: KindBool, b: v} }
func StringValue(v string) Value  { return Value{kind: KindString, s: v} }
func StringsValue(v ...string) Value {
	return Value{kind: KindStrings, ss: v}
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) Int() int64        { return v.i }
func (v Value) Float() float64    { return v.f }
func (v Value) Bool() bool        { return v.b }
func (v Value) Str() string       { return v.s }
func (v Value) Strings() []string { return v.ss }

// IsValid reports whether the value carries a kind.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return v.s
	case KindStrings:
		return "[" + strings.Join(v.ss, ",") + "]"
	default:
		return "<invalid>"
	}
}

// ParseValue converts raw filter text into a value of the given kind.
// A KindStrings filter accepts a single string operand.
func ParseValue(kind Kind, raw string) (Value, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not an integer", raw)
		}
		return IntValue(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a number", raw)
		}
		return FloatValue(f), nil
	case KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Value{}, fmt.Errorf("%q is not a boolean", raw)
		}
		return BoolValue(b), nil
	case KindString, KindStrings:
		return StringValue(raw), nil
	default:
		return Value{}, fmt.Errorf("cannot parse %q into kind %s", raw, kind)
	}
}
