package query

import (
	"fmt"
	"strings"
)

// ParseOptions controls how query text is interpreted.
type ParseOptions struct {
	// Strict reports unknown filter tokens as errors instead of treating
	// the clause as free text.
	Strict bool
	// CaseSensitive keeps free-text terms as typed.
	CaseSensitive bool
}

const PragmaFuzzy = "fuzzy"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokNode
)

type token struct {
	kind   tokenKind
	pos    int
	length int
	node   Node
}

// Parse turns query text into a Query. It never panics: every problem is
// reported in Query.Errors and the offending clause is left out of the tree.
func Parse(text string, syntax Syntax, opts ParseOptions) (q *Query) {
	q = &Query{Text: text}
	defer func() {
		if r := recover(); r != nil {
			q.Root = nil
			q.Errors = append(q.Errors, Error{Pos: 0, Length: len(text), Reason: fmt.Sprintf("cannot parse query: %v", r)})
		}
	}()

	l := &lexer{text: text, syntax: syntax, opts: opts, query: q}
	l.run()

	p := &parser{tokens: l.tokens, query: q}
	q.Root = p.parseTop()
	return q
}

type lexer struct {
	text   string
	pos    int
	syntax Syntax
	opts   ParseOptions
	query  *Query
	tokens []token
}

func (l *lexer) errorf(pos, length int, format string, args ...any) {
	l.query.Errors = append(l.query.Errors, Error{Pos: pos, Length: length, Reason: fmt.Sprintf(format, args...)})
}

func (l *lexer) emit(kind tokenKind, pos, length int, node Node) {
	l.tokens = append(l.tokens, token{kind: kind, pos: pos, length: length, node: node})
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (l *lexer) run() {
	for l.pos < len(l.text) {
		c := l.text[l.pos]
		switch {
		case isSpace(c):
			l.pos++
		case c == '(':
			l.emit(tokLParen, l.pos, 1, nil)
			l.pos++
		case c == ')':
			l.emit(tokRParen, l.pos, 1, nil)
			l.pos++
		case (c == '-' || c == '!') && l.startsNegation():
			l.emit(tokNot, l.pos, 1, nil)
			l.pos++
		case c == '"':
			l.lexQuoted()
		case c == '{' || strings.HasPrefix(l.text[l.pos:], "<$"):
			start := l.pos
			_, end, ok := l.scanNested(l.pos)
			if !ok {
				l.errorf(start, len(l.text)-start, "unterminated nested query")
				l.pos = len(l.text)
				continue
			}
			l.errorf(start, end-start, "nested query is not the operand of a filter")
			l.pos = end
		case c == '+' && l.pos+1 < len(l.text) && isTokenChar(l.text[l.pos+1]):
			l.lexPragma()
		default:
			l.lexWord()
		}
	}
	l.emit(tokEOF, len(l.text), 0, nil)
}

func (l *lexer) startsNegation() bool {
	next := l.pos + 1
	if next >= len(l.text) {
		return false
	}
	n := l.text[next]
	if isSpace(n) || n == ')' {
		return false
	}
	return !(l.text[l.pos] == '!' && n == '=')
}

func (l *lexer) lexQuoted() {
	start := l.pos
	end := strings.IndexByte(l.text[start+1:], '"')
	if end < 0 {
		l.errorf(start, len(l.text)-start, "unterminated quote")
		l.pos = len(l.text)
		return
	}
	end += start + 1
	l.pos = end + 1
	term := strings.TrimSpace(l.text[start+1 : end])
	if term == "" {
		return
	}
	if !l.opts.CaseSensitive {
		term = strings.ToLower(term)
	}
	l.emit(tokNode, start, l.pos-start, &TextNode{span: span{start, l.pos - start}, Term: term, Exact: true})
}

func (l *lexer) lexPragma() {
	start := l.pos
	end := l.pos + 1
	for end < len(l.text) && !isSpace(l.text[end]) {
		end++
	}
	name := strings.ToLower(l.text[start+1 : end])
	l.query.Pragmas = append(l.query.Pragmas, name)
	if name == PragmaFuzzy {
		l.query.Fuzzy = true
	}
	l.pos = end
}

// scanNested returns the inner text of a {…} or <$…$> span starting at pos
// and the offset just past its closing delimiter.
func (l *lexer) scanNested(pos int) (string, int, bool) {
	if strings.HasPrefix(l.text[pos:], "<$") {
		end := strings.Index(l.text[pos+2:], "$>")
		if end < 0 {
			return "", 0, false
		}
		end += pos + 2
		return l.text[pos+2 : end], end + 2, true
	}
	depth := 0
	for i := pos; i < len(l.text); i++ {
		switch l.text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return l.text[pos+1 : i], i + 1, true
			}
		}
	}
	return "", 0, false
}

func (l *lexer) wordEnd(from int) int {
	end := from
	for end < len(l.text) {
		c := l.text[end]
		if isSpace(c) || c == '(' || c == ')' {
			break
		}
		end++
	}
	return end
}

func (l *lexer) lexWord() {
	start := l.pos
	identEnd := start
	for identEnd < len(l.text) && isTokenChar(l.text[identEnd]) {
		identEnd++
	}
	if identEnd > start {
		if _, _, isOp := matchOperator(l.text[identEnd:], AllOperators); isOp {
			l.lexFilter(start, identEnd)
			return
		}
	}

	end := l.wordEnd(start)
	if end == start {
		// a lone delimiter character we do not otherwise handle
		end = start + 1
	}
	word := l.text[start:end]
	l.pos = end
	switch strings.ToLower(word) {
	case "and":
		l.emit(tokAnd, start, end-start, nil)
		return
	case "or":
		l.emit(tokOr, start, end-start, nil)
		return
	case "not":
		l.emit(tokNot, start, end-start, nil)
		return
	}
	l.emitText(start, end)
}

func (l *lexer) emitText(start, end int) {
	term := l.text[start:end]
	if !l.opts.CaseSensitive {
		term = strings.ToLower(term)
	}
	l.emit(tokNode, start, end-start, &TextNode{span: span{start, end - start}, Term: term})
}

func (l *lexer) lexFilter(start, identEnd int) {
	ident := l.text[start:identEnd]
	filter, known := l.syntax.Lookup(ident)
	if !known {
		end := l.wordEnd(identEnd)
		l.pos = end
		if l.opts.Strict {
			l.errorf(start, end-start, "unknown filter %q", ident)
			return
		}
		l.emitText(start, end)
		return
	}

	op, opLen, ok := matchOperator(l.text[identEnd:], filter.Operators)
	if !ok {
		anyOp, _, _ := matchOperator(l.text[identEnd:], AllOperators)
		end := l.operandEnd(identEnd + len(anyOp.String()))
		l.pos = end
		l.errorf(start, end-start, "operator %s is not supported by filter %q", anyOp, filter.Token)
		return
	}

	valueStart := identEnd + opLen
	node := &FilterNode{Token: filter.Token, Op: op, Filter: filter}

	switch {
	case valueStart < len(l.text) && (l.text[valueStart] == '{' || strings.HasPrefix(l.text[valueStart:], "<$")):
		inner, end, closed := l.scanNested(valueStart)
		if !closed {
			l.errorf(start, len(l.text)-start, "unterminated nested query")
			l.pos = len(l.text)
			return
		}
		l.pos = end
		if filter.Nested == nil {
			l.errorf(start, end-start, "filter %q does not accept nested queries", filter.Token)
			return
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			l.errorf(start, end-start, "empty nested query for filter %q", filter.Token)
			return
		}
		node.IsNested = true
		node.Nested = inner
		node.Raw = l.text[valueStart:end]
	case valueStart < len(l.text) && l.text[valueStart] == '"':
		closing := strings.IndexByte(l.text[valueStart+1:], '"')
		if closing < 0 {
			l.errorf(start, len(l.text)-start, "unterminated quote")
			l.pos = len(l.text)
			return
		}
		end := valueStart + 1 + closing + 1
		l.pos = end
		node.Raw = l.text[valueStart+1 : end-1]
	default:
		end := l.wordEnd(valueStart)
		l.pos = end
		node.Raw = l.text[valueStart:end]
		if node.Raw == "" {
			l.errorf(start, end-start, "missing value for filter %q", filter.Token)
			return
		}
	}
	node.span = span{start, l.pos - start}

	if op.Ordering() && !filter.Kind.Ordered() && filter.Comparer == nil {
		l.errorf(start, l.pos-start, "operator %s needs an ordered value but filter %q is %s", op, filter.Token, filter.Kind)
		return
	}
	if !node.IsNested {
		v, err := filter.ParseOperand(node.Raw)
		if err != nil {
			l.errorf(start, l.pos-start, "invalid value for filter %q: %s", filter.Token, err.Error())
			return
		}
		node.Value = v
	}
	l.emit(tokNode, start, l.pos-start, node)
}

func (l *lexer) operandEnd(from int) int {
	if from < len(l.text) && l.text[from] == '"' {
		if closing := strings.IndexByte(l.text[from+1:], '"'); closing >= 0 {
			return from + closing + 2
		}
		return len(l.text)
	}
	if from < len(l.text) && (l.text[from] == '{' || strings.HasPrefix(l.text[from:], "<$")) {
		if _, end, ok := l.scanNested(from); ok {
			return end
		}
		return len(l.text)
	}
	return l.wordEnd(from)
}

type parser struct {
	tokens []token
	pos    int
	query  *Query
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) {
	p.query.Errors = append(p.query.Errors, Error{Pos: t.pos, Length: t.length, Reason: fmt.Sprintf(format, args...)})
}

func (p *parser) parseTop() Node {
	var parts []Node
	for {
		if n, _ := p.parseOr(); n != nil {
			parts = append(parts, n)
		}
		t := p.peek()
		if t.kind == tokEOF {
			break
		}
		// only an unmatched ')' stops parseOr at the top level
		p.errorf(t, "unbalanced parenthesis")
		p.next()
	}
	return makeAnd(parts)
}

func endsOperand(k tokenKind) bool {
	return k == tokEOF || k == tokRParen || k == tokOr || k == tokAnd
}

func (p *parser) parseOr() (Node, bool) {
	first, consumed := p.parseAnd()
	children := []Node{}
	if first != nil {
		children = append(children, first)
	}
	for p.peek().kind == tokOr {
		orTok := p.next()
		if !consumed {
			p.errorf(orTok, "missing operand before or")
		}
		if endsOperand(p.peek().kind) {
			p.errorf(orTok, "missing operand after or")
			continue
		}
		n, more := p.parseAnd()
		consumed = consumed || more
		if n != nil {
			children = append(children, n)
		}
	}
	switch len(children) {
	case 0:
		return nil, consumed
	case 1:
		return children[0], consumed
	}
	start, _ := children[0].Span()
	lastPos, lastLen := children[len(children)-1].Span()
	return &OrNode{span: span{start, lastPos + lastLen - start}, Children: children}, consumed
}

func (p *parser) parseAnd() (Node, bool) {
	var children []Node
	consumed := false
	for {
		t := p.peek()
		switch t.kind {
		case tokEOF, tokRParen, tokOr:
			return makeAnd(children), consumed
		case tokAnd:
			p.next()
			if !consumed {
				p.errorf(t, "missing operand before and")
			}
			if endsOperand(p.peek().kind) {
				p.errorf(t, "missing operand after and")
			}
			continue
		}
		consumed = true
		if n := p.parseUnary(); n != nil {
			children = append(children, n)
		}
	}
}

func (p *parser) parseUnary() Node {
	t := p.next()
	switch t.kind {
	case tokNot:
		if endsOperand(p.peek().kind) {
			p.errorf(t, "missing operand after negation")
			return nil
		}
		child := p.parseUnary()
		if child == nil {
			return nil
		}
		childPos, childLen := child.Span()
		return &NotNode{span: span{t.pos, childPos + childLen - t.pos}, Child: child}
	case tokLParen:
		inner, _ := p.parseOr()
		if p.peek().kind == tokRParen {
			p.next()
		} else {
			p.errorf(t, "unbalanced parenthesis")
		}
		return inner
	case tokNode:
		return t.node
	}
	return nil
}

func makeAnd(children []Node) Node {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	}
	start, _ := children[0].Span()
	lastPos, lastLen := children[len(children)-1].Span()
	return &AndNode{span: span{start, lastPos + lastLen - start}, Children: children}
}
