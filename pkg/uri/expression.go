package uri

import (
	"fmt"
	"strings"

	"github.com/rhuss/odin/pkg/api"
)

// The expression checker validates the structure of $filter and $orderby
// values: balanced parentheses, terminated string literals, operands and
// binary operators alternating, well-formed call argument lists and lambda
// variables. It does not type-check against the model.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOpen
	tokClose
	tokComma
	tokColon
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

var binaryOperators = map[string]bool{
	"eq": true, "ne": true, "gt": true, "ge": true, "lt": true, "le": true,
	"and": true, "or": true, "has": true, "in": true,
	"add": true, "sub": true, "mul": true, "div": true, "divby": true, "mod": true,
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '.' || c == '/' || c == '$' || c == '@' || c == '*' || c == '-' || c == '+' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func tokenize(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{tokOpen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokClose, ")", i})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", i})
			i++
		case c == ':':
			toks = append(toks, token{tokColon, ":", i})
			i++
		case c == '\'':
			end, err := scanString(s, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{tokString, s[i:end], i})
			i = end
		case isIdentByte(c):
			start := i
			for i < len(s) && (isIdentByte(s[i]) || s[i] == ':' && isTimeColon(s, start, i)) {
				i++
			}
			// Typed literals: binary'..', duration'..', geography'..'.
			if i < len(s) && s[i] == '\'' {
				end, err := scanString(s, i)
				if err != nil {
					return nil, err
				}
				toks = append(toks, token{tokString, s[start:end], start})
				i = end
				continue
			}
			text := s[start:i]
			kind := tokIdent
			if c >= '0' && c <= '9' || (c == '-' && len(text) > 1 && text[1] >= '0' && text[1] <= '9') {
				kind = tokNumber
			}
			toks = append(toks, token{kind, text, start})
		default:
			return nil, syntaxError("unexpected character %q", string(c))
		}
	}
	return append(toks, token{tokEOF, "", len(s)}), nil
}

// isTimeColon reports whether the colon at i belongs to a time-of-day or
// date-time literal that started at start.
func isTimeColon(s string, start, i int) bool {
	c := s[start]
	return c >= '0' && c <= '9' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9'
}

func scanString(s string, open int) (int, error) {
	for i := open + 1; i < len(s); i++ {
		if s[i] == '\'' {
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, syntaxError("unterminated string literal at position %d", open)
}

type exprParser struct {
	toks []token
	pos  int
}

func (p *exprParser) peek() token { return p.toks[p.pos] }

func (p *exprParser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) expr() error {
	if err := p.unary(); err != nil {
		return err
	}
	for {
		t := p.peek()
		if t.kind != tokIdent || !binaryOperators[t.text] {
			return nil
		}
		p.next()
		if err := p.unary(); err != nil {
			return err
		}
	}
}

func (p *exprParser) unary() error {
	if t := p.peek(); t.kind == tokIdent && (t.text == "not" || t.text == "-") {
		p.next()
		return p.unary()
	}
	return p.primary()
}

func (p *exprParser) primary() error {
	t := p.next()
	switch t.kind {
	case tokString, tokNumber:
		return nil
	case tokOpen:
		// Parenthesized expression or a list for "in".
		if err := p.expr(); err != nil {
			return err
		}
		for p.peek().kind == tokComma {
			p.next()
			if err := p.expr(); err != nil {
				return err
			}
		}
		if p.next().kind != tokClose {
			return syntaxError("missing closing parenthesis for group at position %d", t.pos)
		}
		return nil
	case tokIdent:
		if binaryOperators[t.text] {
			return syntaxError("operator %q without left operand", t.text)
		}
		if p.peek().kind == tokOpen {
			return p.call(t)
		}
		return nil
	case tokEOF:
		return syntaxError("expression ends where an operand is expected")
	default:
		return syntaxError("unexpected %q at position %d", t.text, t.pos)
	}
}

func (p *exprParser) call(name token) error {
	p.next() // (
	if p.peek().kind == tokClose {
		p.next()
		return nil
	}
	lambda := strings.HasSuffix(name.text, "/any") || strings.HasSuffix(name.text, "/all") ||
		name.text == "any" || name.text == "all"
	if lambda {
		v := p.next()
		if v.kind != tokIdent || p.next().kind != tokColon {
			return syntaxError("lambda %s requires a variable", name.text)
		}
	}
	for {
		if err := p.expr(); err != nil {
			return err
		}
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokClose:
			return nil
		default:
			return syntaxError("missing closing parenthesis for %s", name.text)
		}
	}
}

// CheckExpression validates the structure of a boolean or value expression.
func CheckExpression(s string) error {
	if strings.TrimSpace(s) == "" {
		return syntaxError("empty expression")
	}
	toks, err := tokenize(s)
	if err != nil {
		return err
	}
	p := &exprParser{toks: toks}
	if err := p.expr(); err != nil {
		return err
	}
	if t := p.peek(); t.kind != tokEOF {
		return syntaxError("unexpected %q at position %d", t.text, t.pos)
	}
	return nil
}

// CheckOrderBy validates a comma-separated list of expressions, each
// optionally followed by asc or desc.
func CheckOrderBy(s string) error {
	items, err := splitTopLevel(s)
	if err != nil {
		return err
	}
	for _, item := range items {
		expr := item
		if i := strings.LastIndexByte(item, ' '); i >= 0 {
			switch strings.TrimSpace(item[i+1:]) {
			case "asc", "desc":
				expr = strings.TrimSpace(item[:i])
			}
		}
		if err := CheckExpression(expr); err != nil {
			return err
		}
	}
	return nil
}

func syntaxError(format string, args ...any) error {
	return api.NewURISyntaxError(api.KeySyntax, fmt.Sprintf(format, args...))
}
