// Copyright (c) 2014, Kevin Walsh.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package parse is a recursive-descent parser that builds the engine's own
// semantic graph directly: Expression, Statement, DeferedRelation, and
// top-level Line values from package deduct. There is no separate parser AST
// that later gets lowered -- the parser builds the graph described in
// spec.md §1 ("compiles to an abstract syntax graph") in one pass.
package parse

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	deduct "github.com/kadalog/deduct"
	"github.com/kadalog/deduct/internal/lex"
	"github.com/kadalog/deduct/ops"
	"github.com/kadalog/deduct/value"
)

// ErrSyntax is the sentinel wrapped into every parse-time syntax error.
var ErrSyntax = errors.New("syntax error")

// Parse tokenizes and parses a whole program, returning every line it could
// parse along with an aggregated error (nil if there were none). One bad
// line does not stop the rest of the program from parsing, mirroring
// Engine.Ingest's own per-line error accumulation.
func Parse(program string) ([]deduct.Line, error) {
	toks := lex.Scan(program)
	p := &parser{toks: toks}

	var lines []deduct.Line
	var errs *multierror.Error
	for !p.atEOF() {
		line, err := p.parseLineRecovering()
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if line != nil {
			lines = append(lines, line)
		}
	}
	return lines, errs.ErrorOrNil()
}

type parser struct {
	toks        []lex.Token
	pos         int
	wildcardNum int
}

// freshWildcard returns a unique anonymous variable name for one occurrence
// of "_". Each occurrence gets its own name (rather than sharing one "_"
// binding) so that, e.g., rel(_,_) doesn't force both columns to agree --
// wildcards are independent, unlike two occurrences of a named variable.
func (p *parser) freshWildcard() deduct.VarName {
	name := fmt.Sprintf("_wildcard%d", p.wildcardNum)
	p.wildcardNum++
	return deduct.Var(name)
}

func (p *parser) peek() lex.Token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool      { return p.peek().Kind == lex.EOF }
func (p *parser) advance() lex.Token {
	t := p.toks[p.pos]
	if t.Kind != lex.EOF {
		p.pos++
	}
	return t
}

func (p *parser) check(k lex.Kind) bool { return p.peek().Kind == k }

func (p *parser) accept(k lex.Kind) (lex.Token, bool) {
	if p.check(k) {
		return p.advance(), true
	}
	return lex.Token{}, false
}

func (p *parser) expect(k lex.Kind) (lex.Token, error) {
	if t, ok := p.accept(k); ok {
		return t, nil
	}
	got := p.peek()
	if got.Kind == lex.Error {
		return lex.Token{}, errors.Wrapf(ErrSyntax, "%s", got.Text)
	}
	return lex.Token{}, errors.Wrapf(ErrSyntax, "expected %s, got %s %q at offset %d", k, got.Kind, got.Text, got.Pos)
}

// parseLineRecovering parses one top-level line and, on error, skips tokens
// up to (and including) the next token that looks like a safe line boundary
// so a single bad line doesn't cascade into spurious errors for the rest of
// the program.
func (p *parser) parseLineRecovering() (line deduct.Line, err error) {
	start := p.pos
	line, err = p.parseLine()
	if err == nil {
		return line, nil
	}
	if p.pos == start {
		p.advance() // guarantee forward progress even on an error at the very first token
	}
	for !p.atEOF() {
		switch p.peek().Kind {
		case lex.Question, lex.Arrow, lex.RBrace:
			p.advance()
			return nil, err
		}
		p.advance()
	}
	return nil, err
}

func (p *parser) parseLine() (deduct.Line, error) {
	if _, ok := p.accept(lex.LBrace); ok {
		return p.parseAssumingQuery()
	}

	negated := false
	if _, ok := p.accept(lex.Bang); ok {
		negated = true
	}

	name, err := p.expect(lex.Ident)
	if err != nil {
		return nil, err
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}

	switch {
	case p.check(lex.ColonDash):
		if negated {
			return nil, errors.Wrapf(deduct.ErrNegatedRule, "%s", name.Text)
		}
		p.advance()
		body, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		return deduct.RuleLine{Rule: deduct.ConditionalTruth{
			Template: deduct.DeferedRelation{Name: name.Text, Args: args},
			Body:     body,
		}}, nil

	case p.check(lex.Question):
		p.advance()
		return deduct.QueryLine{Rel: deduct.DeferedRelation{Negated: negated, Name: name.Text, Args: args}}, nil

	case p.check(lex.Arrow):
		p.advance()
		goal, err := p.parseDeferredRelation()
		if err != nil {
			return nil, err
		}
		return deduct.UpdateLine{
			Filter: deduct.DeferedRelation{Negated: negated, Name: name.Text, Args: args},
			Goal:   goal,
		}, nil

	default:
		data, err := literalizeGround(args)
		if err != nil {
			return nil, errors.Wrapf(err, "fact %s must be fully ground", name.Text)
		}
		return deduct.FactLine{
			Negated: negated,
			Fact:    deduct.Truth{Rel: deduct.RelId{Name: name.Text, Arity: len(args)}, Data: data},
		}, nil
	}
}

func (p *parser) parseAssumingQuery() (deduct.Line, error) {
	var assumptions []deduct.Assumption
	if !p.check(lex.RBrace) {
		for {
			a, err := p.parseAssumption()
			if err != nil {
				return nil, err
			}
			assumptions = append(assumptions, a)
			if _, ok := p.accept(lex.Comma); !ok {
				break
			}
		}
	}
	if _, err := p.expect(lex.RBrace); err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.Arrow); err != nil {
		return nil, err
	}
	rel, err := p.parseDeferredRelation()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lex.Question); err != nil {
		return nil, err
	}
	rel.Assumptions = assumptions
	return deduct.QueryLine{Rel: rel}, nil
}

func (p *parser) parseAssumption() (deduct.Assumption, error) {
	negated := false
	if _, ok := p.accept(lex.Bang); ok {
		negated = true
	}
	name, err := p.expect(lex.Ident)
	if err != nil {
		return deduct.Assumption{}, err
	}
	args, err := p.parseArgList()
	if err != nil {
		return deduct.Assumption{}, err
	}

	switch {
	case p.check(lex.ColonDash):
		if negated {
			return deduct.Assumption{}, errors.Wrapf(deduct.ErrNegatedRule, "%s", name.Text)
		}
		p.advance()
		body, err := p.parseStatement()
		if err != nil {
			return deduct.Assumption{}, err
		}
		rule := deduct.ConditionalTruth{
			Template: deduct.DeferedRelation{Name: name.Text, Args: args},
			Body:     body,
		}
		return deduct.Assumption{Kind: deduct.AssumptionRule, Rule: &rule}, nil

	case p.check(lex.Arrow):
		p.advance()
		goal, err := p.parseDeferredRelation()
		if err != nil {
			return deduct.Assumption{}, err
		}
		filter := deduct.DeferedRelation{Negated: negated, Name: name.Text, Args: args}
		return deduct.Assumption{Kind: deduct.AssumptionUpdate, Filter: &filter, Goal: &goal}, nil

	default:
		rel := deduct.DeferedRelation{Negated: negated, Name: name.Text, Args: args}
		if hasFreeVariable(args) {
			return deduct.Assumption{Kind: deduct.AssumptionFilter, Filter: &rel}, nil
		}
		data, err := literalizeGround(args)
		if err != nil {
			return deduct.Assumption{}, errors.Wrapf(err, "assumption %s must be ground or a free-variable filter", name.Text)
		}
		fact := deduct.Truth{Rel: rel.RelId(), Data: data}
		return deduct.Assumption{Kind: deduct.AssumptionFact, Fact: &fact}, nil
	}
}

// parseDeferredRelation parses a bare "[!]name(args)" reference, with no
// trailing ?/:-/=>, used for update goals and the target of an assuming
// query.
func (p *parser) parseDeferredRelation() (deduct.DeferedRelation, error) {
	negated := false
	if _, ok := p.accept(lex.Bang); ok {
		negated = true
	}
	name, err := p.expect(lex.Ident)
	if err != nil {
		return deduct.DeferedRelation{}, err
	}
	args, err := p.parseArgList()
	if err != nil {
		return deduct.DeferedRelation{}, err
	}
	return deduct.DeferedRelation{Negated: negated, Name: name.Text, Args: args}, nil
}

func (p *parser) parseArgList() ([]deduct.Expression, error) {
	if _, err := p.expect(lex.LParen); err != nil {
		return nil, err
	}
	var args []deduct.Expression
	if !p.check(lex.RParen) {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if _, ok := p.accept(lex.Comma); !ok {
				break
			}
		}
	}
	if _, err := p.expect(lex.RParen); err != nil {
		return nil, err
	}
	return args, nil
}

// parseStatement parses a rule/query body: a boolean combination of
// relation invocations and comparisons, with || binding loosest, then &&,
// then unary !.
func (p *parser) parseStatement() (*deduct.Statement, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (*deduct.Statement, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(lex.Or); !ok {
			return lhs, nil
		}
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = deduct.Or(lhs, rhs)
	}
}

func (p *parser) parseAnd() (*deduct.Statement, error) {
	lhs, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		if _, ok := p.accept(lex.And); !ok {
			return lhs, nil
		}
		rhs, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		lhs = deduct.And(lhs, rhs)
	}
}

func (p *parser) parseAtom() (*deduct.Statement, error) {
	if _, ok := p.accept(lex.Bang); ok {
		inner, err := p.parseAtom()
		if err != nil {
			return nil, err
		}
		return deduct.Not(inner), nil
	}
	if _, ok := p.accept(lex.LParen); ok {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lex.RParen); err != nil {
			return nil, err
		}
		return stmt, nil
	}
	if p.check(lex.Ident) && p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == lex.LParen {
		name := p.advance()
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return deduct.RelationStmt(deduct.DeferedRelation{Name: name.Text, Args: args}), nil
	}

	lhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	op, err := p.parseComparisonOp()
	if err != nil {
		return nil, err
	}
	rhs, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return deduct.CompareExpr(lhs, rhs, op), nil
}

func (p *parser) parseComparisonOp() (deduct.Comparison, error) {
	switch p.peek().Kind {
	case lex.Eq:
		p.advance()
		return deduct.CmpEq, nil
	case lex.Lt:
		p.advance()
		return deduct.CmpLt, nil
	case lex.Gt:
		p.advance()
		return deduct.CmpGt, nil
	case lex.Le:
		p.advance()
		return deduct.CmpLte, nil
	case lex.Ge:
		p.advance()
		return deduct.CmpGte, nil
	default:
		got := p.peek()
		return 0, errors.Wrapf(ErrSyntax, "expected a comparison operator, got %s %q at offset %d", got.Kind, got.Text, got.Pos)
	}
}

// parseExpr parses arithmetic with the usual +/- lowest, */÷ higher
// precedence, over literals, variables, and destructured arrays.
func (p *parser) parseExpr() (deduct.Expression, error) {
	return p.parseAdditive()
}

func (p *parser) parseAdditive() (deduct.Expression, error) {
	lhs, err := p.parseMultiplicative()
	if err != nil {
		return deduct.Expression{}, err
	}
	for {
		var op ops.Op
		switch p.peek().Kind {
		case lex.Plus:
			op = ops.Add
		case lex.Minus:
			op = ops.Sub
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parseMultiplicative()
		if err != nil {
			return deduct.Expression{}, err
		}
		lhs = deduct.Arithmetic(lhs, rhs, op)
	}
}

func (p *parser) parseMultiplicative() (deduct.Expression, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return deduct.Expression{}, err
	}
	for {
		var op ops.Op
		switch p.peek().Kind {
		case lex.Star:
			op = ops.Mul
		case lex.Slash:
			op = ops.Div
		default:
			return lhs, nil
		}
		p.advance()
		rhs, err := p.parsePrimary()
		if err != nil {
			return deduct.Expression{}, err
		}
		lhs = deduct.Arithmetic(lhs, rhs, op)
	}
}

func (p *parser) parsePrimary() (deduct.Expression, error) {
	switch p.peek().Kind {
	case lex.Number:
		tok := p.advance()
		n, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return deduct.Expression{}, errors.Wrapf(ErrSyntax, "bad number literal %q", tok.Text)
		}
		return deduct.Literal(value.Number(n)), nil

	case lex.String:
		tok := p.advance()
		s, err := strconv.Unquote(tok.Text)
		if err != nil {
			return deduct.Expression{}, errors.Wrapf(ErrSyntax, "bad string literal %s", tok.Text)
		}
		return deduct.Literal(value.String(s)), nil

	case lex.Wildcard:
		p.advance()
		// A wildcard behaves as a fresh, unbound variable: it matches
		// anything during solve/fitsFilter and, because it's unbound, the
		// concrete value a query unifies it against is what gets literalized
		// back into the result -- not the literal sentinel Any (spec §8
		// scenario 1: "rel(_,_)?" against rel(0,1) must yield (0,1), not
		// (Any,Any)).
		return deduct.VarExpr(p.freshWildcard()), nil

	case lex.Ident:
		tok := p.advance()
		return deduct.VarExpr(deduct.Var(tok.Text)), nil

	case lex.LParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return deduct.Expression{}, err
		}
		if _, err := p.expect(lex.RParen); err != nil {
			return deduct.Expression{}, err
		}
		return inner, nil

	case lex.LBracket:
		return p.parseDestructuredArray()

	default:
		got := p.peek()
		return deduct.Expression{}, errors.Wrapf(ErrSyntax, "expected a value, got %s %q at offset %d", got.Kind, got.Text, got.Pos)
	}
}

func (p *parser) parseDestructuredArray() (deduct.Expression, error) {
	if _, err := p.expect(lex.LBracket); err != nil {
		return deduct.Expression{}, err
	}
	var items []deduct.Expression
	if !p.check(lex.RBracket) {
		for {
			if _, ok := p.accept(lex.Ellipsis); ok {
				name, err := p.expect(lex.Ident)
				if err != nil {
					return deduct.Expression{}, err
				}
				items = append(items, deduct.VarExpr(deduct.ExplodeVar(name.Text)))
			} else {
				item, err := p.parseExpr()
				if err != nil {
					return deduct.Expression{}, err
				}
				items = append(items, item)
			}
			if _, ok := p.accept(lex.Comma); !ok {
				break
			}
		}
	}
	if _, err := p.expect(lex.RBracket); err != nil {
		return deduct.Expression{}, err
	}
	return deduct.VarExpr(deduct.DestructuredArray(items)), nil
}

func hasFreeVariable(args []deduct.Expression) bool {
	for _, a := range args {
		if a.HasFreeVariable() {
			return true
		}
	}
	return false
}

func literalizeGround(args []deduct.Expression) ([]value.Data, error) {
	data := make([]value.Data, len(args))
	for i, a := range args {
		d, err := a.Literalize(deduct.VarContext{})
		if err != nil {
			return nil, err
		}
		data[i] = d
	}
	return data, nil
}
