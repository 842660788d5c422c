package query

import "sort"

// Operator is a filter comparison operator.
type Operator int

const (
	OpColon Operator = iota
	OpEqual
	OpNotEqual
	OpGreater
	OpGreaterOrEqual
	OpLesser
	OpLesserOrEqual
	OpContains
)

var operatorSymbols = map[Operator]string{
	OpColon:          ":",
	OpEqual:          "=",
	OpNotEqual:       "!=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
	OpLesser:         "<",
	OpLesserOrEqual:  "<=",
	OpContains:       "~=",
}

// AllOperators lists every operator the parser knows about.
var AllOperators = []Operator{
	OpColon, OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLesser, OpLesserOrEqual, OpContains,
}

// DefaultOperators is the operator set a filter gets when none is given.
var DefaultOperators = []Operator{OpColon, OpEqual, OpNotEqual, OpContains}

// OrderedOperators is the operator set for numeric and other ordered filters.
var OrderedOperators = []Operator{
	OpColon, OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLesser, OpLesserOrEqual,
}

func (op Operator) String() string {
	if s, ok := operatorSymbols[op]; ok {
		return s
	}
	return "?"
}

// Ordering reports whether the operator needs a total order on its operands.
func (op Operator) Ordering() bool {
	switch op {
	case OpGreater, OpGreaterOrEqual, OpLesser, OpLesserOrEqual:
		return true
	default:
		return false
	}
}

// matchOperator returns the longest operator symbol among ops that prefixes s.
func matchOperator(s string, ops []Operator) (Operator, int, bool) {
	sorted := make([]Operator, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(operatorSymbols[sorted[i]]) > len(operatorSymbols[sorted[j]])
	})
	for _, op := range sorted {
		sym := operatorSymbols[op]
		if len(s) >= len(sym) && s[:len(sym)] == sym {
			return op, len(sym), true
		}
	}
	return 0, 0, false
}
