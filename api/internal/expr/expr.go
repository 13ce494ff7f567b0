// Package expr parses and evaluates derived-tag expressions. An expression
// combines raw reading tags with arithmetic, e.g. "GFR / (GFR + OFR + WFR) * 100".
// Tags missing from a reading evaluate to zero, as does division by zero, so
// a derived value is always defined.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed expression tree.
type Expr interface {
	// Eval computes the expression against one reading's tag values.
	Eval(values map[string]float64) float64
	// walk visits every node, used for tag collection.
	walk(fn func(Expr))
}

type numberNode struct{ v float64 }

type tagNode struct{ name string }

type unaryNode struct {
	op rune
	x  Expr
}

type binaryNode struct {
	op   rune
	l, r Expr
}

func (n numberNode) Eval(map[string]float64) float64 { return n.v }

func (n tagNode) Eval(values map[string]float64) float64 { return values[n.name] }

func (n unaryNode) Eval(values map[string]float64) float64 {
	v := n.x.Eval(values)
	if n.op == '-' {
		return -v
	}
	return v
}

func (n binaryNode) Eval(values map[string]float64) float64 {
	l, r := n.l.Eval(values), n.r.Eval(values)
	switch n.op {
	case '+':
		return l + r
	case '-':
		return l - r
	case '*':
		return l * r
	default:
		if r == 0 {
			return 0
		}
		return l / r
	}
}

func (n numberNode) walk(fn func(Expr)) { fn(n) }
func (n tagNode) walk(fn func(Expr))    { fn(n) }
func (n unaryNode) walk(fn func(Expr))  { fn(n); n.x.walk(fn) }
func (n binaryNode) walk(fn func(Expr)) { fn(n); n.l.walk(fn); n.r.walk(fn) }

// Tags returns the distinct tag names the expression references.
func Tags(e Expr) []string {
	seen := make(map[string]bool)
	var out []string
	e.walk(func(n Expr) {
		if t, ok := n.(tagNode); ok && !seen[t.name] {
			seen[t.name] = true
			out = append(out, t.name)
		}
	})
	return out
}

// Parse builds the expression tree or reports the first syntax error.
func Parse(src string) (Expr, error) {
	p := &parser{toks: lex(src)}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q", p.peek().text)
	}
	return e, nil
}

// Validate parses src and checks every referenced tag against known. It is
// run when a mapping expression is written so bad expressions are rejected
// before they can poison chart reads.
func Validate(src string, known map[string]bool) error {
	e, err := Parse(src)
	if err != nil {
		return err
	}
	for _, tag := range Tags(e) {
		if !known[tag] {
			return fmt.Errorf("unknown tag %q", tag)
		}
	}
	return nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokBad
)

type token struct {
	kind tokKind
	text string
}

func lex(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j]})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(rune(src[j])) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j]})
			i = j
		default:
			toks = append(toks, token{tokBad, string(c)})
			i++
		}
	}
	return append(toks, token{tokEOF, ""})
}

func isIdentStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isIdentPart(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseAdditive()
}

func (p *parser) parseAdditive() (Expr, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := rune(p.next().text[0])
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := rune(p.next().text[0])
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokOp && (p.peek().text == "-" || p.peek().text == "+") {
		op := rune(p.next().text[0])
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return numberNode{v: v}, nil
	case tokIdent:
		return tagNode{name: t.text}, nil
	case tokLParen:
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return e, nil
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q", t.text)
	}
}

// EvalString is a convenience for one-shot evaluation of stored expressions.
// Parse errors yield zero; stored expressions are validated on write, so a
// parse failure here means the mapping predates validation.
func EvalString(src string, values map[string]float64) float64 {
	src = strings.TrimSpace(src)
	if src == "" {
		return 0
	}
	e, err := Parse(src)
	if err != nil {
		return 0
	}
	return e.Eval(values)
}
