// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// Condition expressions
// =====================
//
// The `condition:` key of a deploy gate holds a small boolean expression over
// the build context, e.g.:
//
//     condition: $DEPLOY_DOCS = true
//     condition: branch = master AND tag =~ ^v[0-9]
//     condition: NOT ($CC = gcc OR $CC = clang)
//
// Grammar:
//
//     expr    ::= and { ("OR"  | "||") and }
//     and     ::= unary { ("AND" | "&&") unary }
//     unary   ::= ("NOT" | "!") unary | "(" expr ")" | cmp
//     cmp     ::= operand [ ("=" | "==" | "!=" | "=~" | "!~") operand
//                         | "IS" ("present" | "blank") ]
//     operand ::= "$" NAME | quoted string | bare word
//
// A bare `cmp` with no operator is truthy iff the operand is non-empty.  The
// bare words `branch`, `tag`, and `repo` name build-context fields; `$NAME`
// reads the build environment.  The right-hand side of `=~` / `!~` is an
// (unanchored) regular expression.

// ConditionExpr is a parsed `condition:` expression.
type ConditionExpr interface {
	// Eval evaluates the expression against a build context.
	Eval(bc BuildContext) bool
}

// ParseConditionExpr parses a condition expression string.
func ParseConditionExpr(str string) (ConditionExpr, error) {
	toks, err := scanCondition(str)
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", str, err)
	}
	p := &condParser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, fmt.Errorf("condition %q: %w", str, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("condition %q: unexpected %q", str, p.toks[p.pos].text)
	}
	return expr, nil
}

// tokens ////////////////////////////////////////////////////////////////////

type condTokenKind int

const (
	tokWord condTokenKind = iota // bare word or quoted string
	tokVar                       // $NAME
	tokOp                        // = == != =~ !~ ( ) ! && ||
)

type condToken struct {
	kind   condTokenKind
	text   string
	quoted bool
}

func scanCondition(str string) ([]condToken, error) {
	var toks []condToken
	i := 0
	for i < len(str) {
		c := str[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(' || c == ')':
			toks = append(toks, condToken{kind: tokOp, text: string(c)})
			i++
		case strings.HasPrefix(str[i:], "=~") || strings.HasPrefix(str[i:], "!~") ||
			strings.HasPrefix(str[i:], "==") || strings.HasPrefix(str[i:], "!=") ||
			strings.HasPrefix(str[i:], "&&") || strings.HasPrefix(str[i:], "||"):
			toks = append(toks, condToken{kind: tokOp, text: str[i : i+2]})
			i += 2
		case c == '=' || c == '!':
			toks = append(toks, condToken{kind: tokOp, text: string(c)})
			i++
		case c == '"' || c == '\'':
			end := strings.IndexByte(str[i+1:], c)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string at byte %d", i)
			}
			toks = append(toks, condToken{kind: tokWord, text: str[i+1 : i+1+end], quoted: true})
			i += end + 2
		case c == '$':
			j := i + 1
			for j < len(str) && isVarChar(str[j]) {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("bare $ at byte %d", i)
			}
			toks = append(toks, condToken{kind: tokVar, text: str[i+1 : j]})
			i = j
		default:
			j := i
			for j < len(str) && !strings.ContainsRune(" \t()=!&|", rune(str[j])) {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("unexpected byte %q at byte %d", str[i], i)
			}
			toks = append(toks, condToken{kind: tokWord, text: str[i:j]})
			i = j
		}
	}
	return toks, nil
}

func isVarChar(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// parser ////////////////////////////////////////////////////////////////////

type condParser struct {
	toks []condToken
	pos  int
}

func (p *condParser) peek() (condToken, bool) {
	if p.pos >= len(p.toks) {
		return condToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *condParser) parseExpr() (ConditionExpr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || !isKeyword(tok, "OR") && !(tok.kind == tokOp && tok.text == "||") {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = orExpr{lhs, rhs}
	}
}

func (p *condParser) parseAnd() (ConditionExpr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.peek()
		if !ok || !isKeyword(tok, "AND") && !(tok.kind == tokOp && tok.text == "&&") {
			return lhs, nil
		}
		p.pos++
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = andExpr{lhs, rhs}
	}
}

func (p *condParser) parseUnary() (ConditionExpr, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("expected an expression, got end of input")
	}
	switch {
	case isKeyword(tok, "NOT") || (tok.kind == tokOp && tok.text == "!"):
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notExpr{inner}, nil
	case tok.kind == tokOp && tok.text == "(":
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		closing, ok := p.peek()
		if !ok || closing.kind != tokOp || closing.text != ")" {
			return nil, fmt.Errorf("expected ')'")
		}
		p.pos++
		return inner, nil
	default:
		return p.parseCmp()
	}
}

func (p *condParser) parseCmp() (ConditionExpr, error) {
	lhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	tok, ok := p.peek()
	if ok && isKeyword(tok, "IS") {
		p.pos++
		what, ok := p.peek()
		if !ok || what.kind != tokWord {
			return nil, fmt.Errorf("expected 'present' or 'blank' after IS")
		}
		p.pos++
		switch strings.ToLower(what.text) {
		case "present":
			return presenceExpr{operand: lhs, present: true}, nil
		case "blank":
			return presenceExpr{operand: lhs, present: false}, nil
		default:
			return nil, fmt.Errorf("expected 'present' or 'blank' after IS, got %q", what.text)
		}
	}
	if !ok || tok.kind != tokOp || !isCmpOp(tok.text) {
		// Bare operand: truthy iff non-empty.
		return presenceExpr{operand: lhs, present: true}, nil
	}
	p.pos++
	rhs, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if tok.text == "=~" || tok.text == "!~" {
		re, err := regexp.Compile(rhs.literal())
		if err != nil {
			return nil, err
		}
		return regexpExpr{operand: lhs, re: re, negate: tok.text == "!~"}, nil
	}
	return cmpExpr{lhs: lhs, rhs: rhs, negate: tok.text == "!="}, nil
}

func (p *condParser) parseOperand() (condOperand, error) {
	tok, ok := p.peek()
	if !ok {
		return condOperand{}, fmt.Errorf("expected a value, got end of input")
	}
	if tok.kind == tokOp {
		return condOperand{}, fmt.Errorf("expected a value, got %q", tok.text)
	}
	p.pos++
	return condOperand{tok: tok}, nil
}

func isCmpOp(op string) bool {
	switch op {
	case "=", "==", "!=", "=~", "!~":
		return true
	default:
		return false
	}
}

func isKeyword(tok condToken, kw string) bool {
	return tok.kind == tokWord && !tok.quoted && strings.EqualFold(tok.text, kw)
}

// evaluation ////////////////////////////////////////////////////////////////

type condOperand struct {
	tok condToken
}

// value resolves an operand against the build context.  `$NAME` reads the env;
// the unquoted bare words `branch`, `tag`, and `repo` read context fields;
// anything else is a literal.
func (o condOperand) value(bc BuildContext) string {
	switch {
	case o.tok.kind == tokVar:
		return bc.Getenv(o.tok.text)
	case o.tok.kind == tokWord && !o.tok.quoted:
		switch o.tok.text {
		case "branch":
			return bc.Branch
		case "tag":
			return bc.Tag
		case "repo":
			return bc.RepoSlug
		}
	}
	return o.tok.text
}

func (o condOperand) literal() string { return o.tok.text }

type orExpr struct{ lhs, rhs ConditionExpr }

func (e orExpr) Eval(bc BuildContext) bool { return e.lhs.Eval(bc) || e.rhs.Eval(bc) }

type andExpr struct{ lhs, rhs ConditionExpr }

func (e andExpr) Eval(bc BuildContext) bool { return e.lhs.Eval(bc) && e.rhs.Eval(bc) }

type notExpr struct{ inner ConditionExpr }

func (e notExpr) Eval(bc BuildContext) bool { return !e.inner.Eval(bc) }

type cmpExpr struct {
	lhs, rhs condOperand
	negate   bool
}

func (e cmpExpr) Eval(bc BuildContext) bool {
	eq := e.lhs.value(bc) == e.rhs.value(bc)
	return eq != e.negate
}

type regexpExpr struct {
	operand condOperand
	re      *regexp.Regexp
	negate  bool
}

func (e regexpExpr) Eval(bc BuildContext) bool {
	return e.re.MatchString(e.operand.value(bc)) != e.negate
}

type presenceExpr struct {
	operand condOperand
	present bool
}

func (e presenceExpr) Eval(bc BuildContext) bool {
	return (e.operand.value(bc) != "") == e.present
}
