package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Extractor reads the value a filter compares against from an item.
type Extractor[T any] func(item T) (Value, error)

// Comparer overrides the default comparison of an extracted value (have)
// against the parsed filter operand (want).
type Comparer func(op Operator, have, want Value) bool

// TypeParser converts a raw filter operand. It reports false when the text
// is not in a form it understands so the next parser can be tried.
type TypeParser func(raw string) (Value, bool)

// NestedResolver evaluates the text of a nested query and returns the
// identities of the items it matched.
type NestedResolver func(ctx context.Context, text string) ([]string, error)

// Filter is the item-type independent part of a filter definition. The
// parser only ever sees this part.
type Filter struct {
	Token         string
	Kind          Kind
	Operators     []Operator
	TypeParsers   []TypeParser
	Comparer      Comparer
	Nested        NestedResolver
	Weight        int64
	Enum          []string
	CaseSensitive bool
}

// Supports reports whether op is accepted by the filter.
func (f *Filter) Supports(op Operator) bool {
	return slices.Contains(f.Operators, op)
}

// ParseOperand converts raw operand text using the registered type parsers
// in order and then the default parser for the filter kind.
func (f *Filter) ParseOperand(raw string) (Value, error) {
	for _, parse := range f.TypeParsers {
		if v, ok := parse(raw); ok {
			return v, nil
		}
	}
	return ParseValue(f.Kind, raw)
}

// FilterOption customises a filter at registration time.
type FilterOption func(*Filter)

func WithOperators(ops ...Operator) FilterOption {
	return func(f *Filter) { f.Operators = ops }
}

func WithComparer(c Comparer) FilterOption {
	return func(f *Filter) { f.Comparer = c }
}

// WithTypeParsers registers operand parsers tried in the given order.
func WithTypeParsers(parsers ...TypeParser) FilterOption {
	return func(f *Filter) { f.TypeParsers = append(f.TypeParsers, parsers...) }
}

// WithNested lets the filter take a nested query as its operand.
func WithNested(resolve NestedResolver) FilterOption {
	return func(f *Filter) { f.Nested = resolve }
}

// WithWeight sets the score a match on this filter contributes.
func WithWeight(w int64) FilterOption {
	return func(f *Filter) { f.Weight = w }
}

// WithEnum makes ":" a case-insensitive prefix match against the known values.
func WithEnum(values ...string) FilterOption {
	return func(f *Filter) { f.Enum = values }
}

func WithCaseSensitive() FilterOption {
	return func(f *Filter) { f.CaseSensitive = true }
}

// Syntax resolves filter tokens for the parser.
type Syntax interface {
	Lookup(token string) (*Filter, bool)
}

type definition[T any] struct {
	filter  *Filter
	extract Extractor[T]
}

// Registry maps filter tokens to definitions for one item type. It is
// built once during engine construction and must not be mutated while
// queries run.
type Registry[T any] struct {
	defs   map[string]*definition[T]
	tokens []string
}

var ErrInvalidFilter = errors.New("invalid filter definition")

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{defs: make(map[string]*definition[T])}
}

// Register adds a filter. Tokens are case-insensitive.
func (r *Registry[T]) Register(token string, kind Kind, extract Extractor[T], opts ...FilterOption) error {
	token = strings.ToLower(token)
	if !isToken(token) {
		return fmt.Errorf("%w: bad token %q", ErrInvalidFilter, token)
	}
	if extract == nil {
		return fmt.Errorf("%w: filter %q has no extractor", ErrInvalidFilter, token)
	}
	if _, exists := r.defs[token]; exists {
		return fmt.Errorf("%w: filter %q already registered", ErrInvalidFilter, token)
	}

	f := &Filter{Token: token, Kind: kind, Weight: 1}
	if kind == KindInt || kind == KindFloat {
		f.Operators = OrderedOperators
	} else {
		f.Operators = DefaultOperators
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.Comparer == nil && !kind.Ordered() {
		for _, op := range f.Operators {
			if op.Ordering() {
				return fmt.Errorf("%w: operator %s needs an ordered kind, filter %q is %s", ErrInvalidFilter, op, token, kind)
			}
		}
	}

	r.defs[token] = &definition[T]{filter: f, extract: extract}
	r.tokens = append(r.tokens, token)
	return nil
}

// MustRegister is Register for setup code where a bad definition is a bug.
func (r *Registry[T]) MustRegister(token string, kind Kind, extract Extractor[T], opts ...FilterOption) *Registry[T] {
	if err := r.Register(token, kind, extract, opts...); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry[T]) Lookup(token string) (*Filter, bool) {
	def, ok := r.defs[strings.ToLower(token)]
	if !ok {
		return nil, false
	}
	return def.filter, true
}

// Tokens returns the registered tokens in registration order.
func (r *Registry[T]) Tokens() []string {
	return slices.Clone(r.tokens)
}

func (r *Registry[T]) definition(token string) (*definition[T], bool) {
	def, ok := r.defs[strings.ToLower(token)]
	return def, ok
}

func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c == '_', c == '#':
		case (c >= '0' && c <= '9') || c == '.':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func isTokenChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '.' || c == '#'
}
