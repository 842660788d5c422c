package query

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/meghashyamc/omnisearch/db/itemcache"
)

// Options configures an Engine.
type Options struct {
	Strict          bool
	CaseSensitive   bool
	MatchAllIfEmpty bool
	// FuzzyMinScore is the threshold for fuzzy term matches. Nil means
	// DefaultFuzzyMinScore.
	FuzzyMinScore *int64
	// Cache stores per-item word lists. Scope prefixes identities so several
	// engines can share one cache.
	Cache *itemcache.Cache
	Scope string
}

// Engine compiles query text into evaluators over items of type T.
type Engine[T any] struct {
	filters  *Registry[T]
	identity func(T) string
	words    func(T) []string
	opts     Options
	fuzzyMin int64
}

// Match is an item kept by an evaluator together with its score. Higher
// scores are better matches.
type Match[T any] struct {
	Item  T
	Score int64
}

// NewEngine builds an engine. identity must return a stable key per item
// and words the free-text words of an item; either may be nil.
func NewEngine[T any](filters *Registry[T], identity func(T) string, words func(T) []string, opts Options) *Engine[T] {
	if filters == nil {
		filters = NewRegistry[T]()
	}
	fuzzyMin := int64(DefaultFuzzyMinScore)
	if opts.FuzzyMinScore != nil {
		fuzzyMin = *opts.FuzzyMinScore
	}
	return &Engine[T]{filters: filters, identity: identity, words: words, opts: opts, fuzzyMin: fuzzyMin}
}

func (e *Engine[T]) Filters() *Registry[T] { return e.filters }

func (e *Engine[T]) Parse(text string) *Query {
	return Parse(text, e.filters, ParseOptions{Strict: e.opts.Strict, CaseSensitive: e.opts.CaseSensitive})
}

// Compile prepares q for evaluation. Nested queries are resolved here, once,
// and kept as sets.
func (e *Engine[T]) Compile(ctx context.Context, q *Query) *Evaluator[T] {
	ev := &Evaluator[T]{
		engine:  e,
		query:   q,
		nested:  make(map[*FilterNode]map[string]struct{}),
		fuzzy:   q.Fuzzy,
		scoring: true,
	}
	Walk(q.Root, func(n Node) {
		fn, ok := n.(*FilterNode)
		if !ok || !fn.IsNested {
			return
		}
		set := make(map[string]struct{})
		ev.nested[fn] = set
		if fn.Filter == nil || fn.Filter.Nested == nil {
			return
		}
		ids, err := resolveNested(ctx, fn.Filter.Nested, fn.Nested)
		if err != nil {
			pos, length := fn.Span()
			ev.errs = append(ev.errs, Error{Pos: pos, Length: length, Reason: fmt.Sprintf("nested query for %q failed: %s", fn.Token, err.Error())})
			return
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	})
	return ev
}

func resolveNested(ctx context.Context, resolve NestedResolver, text string) (ids []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()
	return resolve(ctx, text)
}

// Filter parses and compiles text and applies it to items.
func (e *Engine[T]) Filter(ctx context.Context, text string, items []T) ([]Match[T], []Error) {
	ev := e.Compile(ctx, e.Parse(text))
	return ev.Apply(items), ev.Errors()
}

func (e *Engine[T]) itemWords(item T) []string {
	if e.words == nil {
		return nil
	}
	compute := func() ([]string, error) {
		return normalizeWords(e.words(item), e.opts.CaseSensitive), nil
	}
	if e.identity == nil || e.opts.Cache == nil {
		words, _ := compute()
		return words
	}
	words, err := itemcache.Get(e.opts.Cache, e.opts.Scope+e.identity(item), itemcache.FieldWords, compute)
	if err != nil {
		return nil
	}
	return words
}

func normalizeWords(words []string, caseSensitive bool) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if !caseSensitive {
			w = strings.ToLower(w)
		}
		out = append(out, w)
	}
	return out
}

// Evaluator decides for single items whether they match a compiled query.
type Evaluator[T any] struct {
	engine  *Engine[T]
	query   *Query
	nested  map[*FilterNode]map[string]struct{}
	errs    []Error
	fuzzy   bool
	scoring bool
}

// WithFuzzy returns a copy of the evaluator with fuzzy term matching set.
func (ev *Evaluator[T]) WithFuzzy(on bool) *Evaluator[T] {
	c := *ev
	c.fuzzy = on
	return &c
}

// WithoutScoring returns a copy that stops OR evaluation at the first match.
func (ev *Evaluator[T]) WithoutScoring() *Evaluator[T] {
	c := *ev
	c.scoring = false
	return &c
}

func (ev *Evaluator[T]) Query() *Query { return ev.query }

// Errors returns the parse errors of the query followed by any errors from
// resolving nested queries.
func (ev *Evaluator[T]) Errors() []Error {
	errs := make([]Error, 0, len(ev.query.Errors)+len(ev.errs))
	errs = append(errs, ev.query.Errors...)
	return append(errs, ev.errs...)
}

// Evaluate reports whether item matches and with which score.
func (ev *Evaluator[T]) Evaluate(item T) (bool, int64) {
	if ev.query.Root == nil {
		if len(ev.query.Errors) > 0 {
			return false, 0
		}
		return ev.engine.opts.MatchAllIfEmpty, 0
	}
	return ev.eval(ev.query.Root, item)
}

// Apply evaluates every item and returns the matches, best score first.
// Items with equal scores keep their input order.
func (ev *Evaluator[T]) Apply(items []T) []Match[T] {
	var matches []Match[T]
	for _, item := range items {
		if keep, score := ev.Evaluate(item); keep {
			matches = append(matches, Match[T]{Item: item, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

func (ev *Evaluator[T]) eval(n Node, item T) (bool, int64) {
	switch n := n.(type) {
	case *AndNode:
		var total int64
		for _, c := range n.Children {
			keep, score := ev.eval(c, item)
			if !keep {
				return false, 0
			}
			total += score
		}
		return true, total
	case *OrNode:
		var total int64
		matched := false
		for _, c := range n.Children {
			keep, score := ev.eval(c, item)
			if !keep {
				continue
			}
			matched = true
			total += score
			if !ev.scoring {
				break
			}
		}
		if !matched {
			return false, 0
		}
		return true, total
	case *NotNode:
		keep, score := ev.eval(n.Child, item)
		return !keep, -score
	case *TextNode:
		return ev.evalText(n, item)
	case *FilterNode:
		return ev.evalFilter(n, item)
	}
	return false, 0
}

const (
	scoreSubstring  = 1
	scoreWholeWord  = 2
	scoreExactMatch = 2
)

func (ev *Evaluator[T]) evalText(n *TextNode, item T) (bool, int64) {
	words := ev.engine.itemWords(item)
	if len(words) == 0 {
		return false, 0
	}
	if ev.fuzzy && !n.Exact {
		score, ok := FuzzyScore(n.Term, words)
		if !ok || score < ev.engine.fuzzyMin {
			return false, 0
		}
		return true, score
	}
	if n.Exact {
		if strings.ContainsRune(n.Term, ' ') {
			joined := " " + strings.Join(words, " ") + " "
			if strings.Contains(joined, " "+n.Term+" ") {
				return true, scoreExactMatch
			}
			return false, 0
		}
		for _, w := range words {
			if w == n.Term {
				return true, scoreExactMatch
			}
		}
		return false, 0
	}
	var best int64
	for _, w := range words {
		if w == n.Term {
			return true, scoreWholeWord
		}
		if strings.Contains(w, n.Term) {
			best = scoreSubstring
		}
	}
	return best > 0, best
}

func (ev *Evaluator[T]) evalFilter(n *FilterNode, item T) (bool, int64) {
	def, ok := ev.engine.filters.definition(n.Token)
	if !ok {
		return false, 0
	}
	have, ok := extract(def.extract, item)
	if !ok {
		return false, 0
	}

	var matched bool
	if n.IsNested {
		matched = ev.member(n, have)
	} else {
		matched = safeCompare(def.filter, n.Op, have, n.Value)
	}
	if !matched {
		return false, 0
	}
	return true, def.filter.Weight
}

func (ev *Evaluator[T]) member(n *FilterNode, have Value) bool {
	set := ev.nested[n]
	in := false
	switch have.Kind() {
	case KindStrings:
		for _, s := range have.Strings() {
			if _, ok := set[s]; ok {
				in = true
				break
			}
		}
	case KindString:
		_, in = set[have.Str()]
	case KindInt:
		_, in = set[strconv.FormatInt(have.Int(), 10)]
	}
	switch n.Op {
	case OpNotEqual:
		return !in
	case OpEqual, OpColon, OpContains:
		return in
	}
	return false
}

func extract[T any](fn Extractor[T], item T) (v Value, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	v, err := fn(item)
	if err != nil || !v.IsValid() {
		return Value{}, false
	}
	return v, true
}

func safeCompare(f *Filter, op Operator, have, want Value) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
	}()
	return compare(f, op, have, want)
}
