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

package deduct

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/kadalog/deduct/ops"
	"github.com/kadalog/deduct/value"
)

// ErrUnbound, ErrDestructure and ErrDisagree are the branch-local failure
// sentinels produced by literalize/solve. Per spec §7 these are swallowed at
// the universe level -- they only ever reduce the surviving context set --
// but they're still distinguishable sentinels so tests (and a verbose
// tracer) can tell failure modes apart.
var (
	ErrUnbound    = errors.New("unbound variable")
	ErrDestructure = errors.New("unmatchable destructuring")
	ErrDisagree   = errors.New("literalization and goal disagree")
	ErrNoSolve    = errors.New("cannot solve expression against goal")
)

// varKind tags which shape a VarName takes.
type varKind int

const (
	varDirect varKind = iota
	varExplode
	varDestructured
)

// VarName is either a direct identifier, an "explode" marker (...name) used
// inside destructuring, or a destructured array of expressions.
type VarName struct {
	kind  varKind
	name  string
	items []Expression // only for varDestructured
}

// Var builds a direct variable reference.
func Var(name string) VarName { return VarName{kind: varDirect, name: name} }

// ExplodeVar builds an explode marker (...name), only meaningful as an
// element of a destructured array.
func ExplodeVar(name string) VarName { return VarName{kind: varExplode, name: name} }

// DestructuredArray builds a destructuring template out of expressions.
func DestructuredArray(items []Expression) VarName {
	return VarName{kind: varDestructured, items: items}
}

func (v VarName) String() string {
	switch v.kind {
	case varDirect:
		return v.name
	case varExplode:
		return "..." + v.name
	case varDestructured:
		parts := make([]string, len(v.items))
		for i, item := range v.items {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "<bad varname>"
	}
}

// exprKind tags which shape an Expression node takes.
type exprKind int

const (
	exprLiteral exprKind = iota
	exprVar
	exprArithmetic
)

// Expression is the tree of literal values, variable references, and
// arithmetic nodes that the evaluator can literalize (evaluate under a
// context) or solve (run backward against a goal value).
type Expression struct {
	kind    exprKind
	lit     value.Data
	varName VarName
	lhs     *Expression
	rhs     *Expression
	op      ops.Op
}

// Literal builds a constant expression.
func Literal(d value.Data) Expression { return Expression{kind: exprLiteral, lit: d} }

// VarExpr builds a variable-reference expression.
func VarExpr(v VarName) Expression { return Expression{kind: exprVar, varName: v} }

// Arithmetic builds a binary arithmetic expression.
func Arithmetic(lhs, rhs Expression, op ops.Op) Expression {
	return Expression{kind: exprArithmetic, lhs: &lhs, rhs: &rhs, op: op}
}

func (e Expression) String() string {
	switch e.kind {
	case exprLiteral:
		return e.lit.String()
	case exprVar:
		return e.varName.String()
	case exprArithmetic:
		return fmt.Sprintf("(%s %s %s)", e.lhs, e.op, e.rhs)
	default:
		return "<bad expr>"
	}
}

// Literalize evaluates e under ctx to a concrete Data value, or fails with
// one of ErrUnbound / ErrDestructure / an ops error.
func (e Expression) Literalize(ctx VarContext) (value.Data, error) {
	switch e.kind {
	case exprLiteral:
		return e.lit, nil
	case exprVar:
		return literalizeVar(e.varName, ctx)
	case exprArithmetic:
		a, err := e.lhs.Literalize(ctx)
		if err != nil {
			return value.Data{}, err
		}
		b, err := e.rhs.Literalize(ctx)
		if err != nil {
			return value.Data{}, err
		}
		return e.op.Forward(a, b)
	default:
		return value.Data{}, errors.Errorf("literalize: bad expression kind %d", e.kind)
	}
}

func literalizeVar(v VarName, ctx VarContext) (value.Data, error) {
	switch v.kind {
	case varDirect:
		d, ok := ctx.Get(v.name)
		if !ok {
			return value.Data{}, errors.Wrapf(ErrUnbound, "%s", v.name)
		}
		return d, nil
	case varExplode:
		// An explode marker only has meaning as an element of a destructured
		// array; literalizing one directly is the same as a direct reference,
		// used by the destructuring-array branch below via splice.
		d, ok := ctx.Get(v.name)
		if !ok {
			return value.Data{}, errors.Wrapf(ErrUnbound, "...%s", v.name)
		}
		return d, nil
	case varDestructured:
		items := make([]value.Data, 0, len(v.items))
		for _, item := range v.items {
			if item.kind == exprVar && item.varName.kind == varExplode {
				d, err := literalizeVar(item.varName, ctx)
				if err != nil {
					return value.Data{}, err
				}
				splice, ok := d.Items()
				if !ok {
					return value.Data{}, errors.Wrapf(ErrDestructure, "...%s did not bind an array", item.varName.name)
				}
				items = append(items, splice...)
				continue
			}
			d, err := item.Literalize(ctx)
			if err != nil {
				return value.Data{}, err
			}
			items = append(items, d)
		}
		return value.Array(items), nil
	default:
		return value.Data{}, errors.Errorf("literalize: bad varname kind %d", v.kind)
	}
}

// Solve attempts to derive a context extension of ctx that makes
// e.Literalize(ctx') equal goal. It implements spec §4.2's priority-ordered
// rules: literalize-and-compare first, then direct-variable binding, then
// arithmetic reversal, then destructuring, failing otherwise.
func (e Expression) Solve(goal value.Data, ctx VarContext) (VarContext, error) {
	if d, err := e.Literalize(ctx); err == nil {
		if d.Equal(goal) || goal.IsAny() {
			return ctx, nil
		}
		return VarContext{}, errors.Wrapf(ErrDisagree, "%s literalizes to %s, goal is %s", e, d, goal)
	}

	if e.kind == exprVar && e.varName.kind == varDirect {
		if _, bound := ctx.Get(e.varName.name); !bound {
			return ctx.Set(e.varName.name, goal), nil
		}
	}

	if e.kind == exprArithmetic {
		aErr, bErr := errAfterLiteralize(*e.lhs, ctx), errAfterLiteralize(*e.rhs, ctx)
		if aErr != nil && bErr != nil {
			return VarContext{}, errors.Wrap(ErrNoSolve, "arithmetic: multiple unknowns")
		}
		if aErr == nil {
			// a literalizes, b does not: solve b against reverse2(a, goal).
			a, _ := e.lhs.Literalize(ctx)
			r, err := e.op.Reverse2(a, goal)
			if err != nil {
				return VarContext{}, err
			}
			return e.rhs.Solve(r, ctx)
		}
		// b literalizes, a does not: solve a against reverse1(b, goal).
		b, _ := e.rhs.Literalize(ctx)
		r, err := e.op.Reverse1(b, goal)
		if err != nil {
			return VarContext{}, err
		}
		return e.lhs.Solve(r, ctx)
	}

	if e.kind == exprVar && e.varName.kind == varDestructured {
		arr, ok := goal.Items()
		if !ok {
			return VarContext{}, errors.Wrapf(ErrDestructure, "goal %s is not an array", goal)
		}
		return solveDestructure(e.varName.items, arr, ctx)
	}

	return VarContext{}, errors.Wrapf(ErrNoSolve, "%s against %s", e, goal)
}

// HasFreeVariable reports whether e contains any variable reference
// (direct, explode, or nested inside a destructuring template). The parser
// uses this to decide whether a top-level relation's arguments are ground
// enough to literalize into a Truth outright, or must stay a deferred
// filter/query pattern.
func (e Expression) HasFreeVariable() bool {
	switch e.kind {
	case exprLiteral:
		return false
	case exprVar:
		if e.varName.kind == varDestructured {
			for _, item := range e.varName.items {
				if item.HasFreeVariable() {
					return true
				}
			}
			return false
		}
		return true
	case exprArithmetic:
		return e.lhs.HasFreeVariable() || e.rhs.HasFreeVariable()
	default:
		return false
	}
}

func errAfterLiteralize(e Expression, ctx VarContext) error {
	_, err := e.Literalize(ctx)
	return err
}

// solveDestructure walks a destructuring template left-to-right against a
// concrete array. A single explode position (...name) absorbs however many
// elements are needed so the remaining fixed positions still line up;
// anything else must match position-for-position.
func solveDestructure(template []Expression, goal []value.Data, ctx VarContext) (VarContext, error) {
	explodeAt := -1
	for i, item := range template {
		if item.kind == exprVar && item.varName.kind == varExplode {
			if explodeAt >= 0 {
				return VarContext{}, errors.Wrap(ErrDestructure, "more than one explode marker")
			}
			explodeAt = i
		}
	}

	if explodeAt < 0 {
		if len(template) != len(goal) {
			return VarContext{}, errors.Wrapf(ErrDestructure, "length mismatch: template has %d, goal has %d", len(template), len(goal))
		}
		cur := ctx
		for i, item := range template {
			var err error
			cur, err = item.Solve(goal[i], cur)
			if err != nil {
				return VarContext{}, err
			}
		}
		return cur, nil
	}

	before := template[:explodeAt]
	after := template[explodeAt+1:]
	if len(before)+len(after) > len(goal) {
		return VarContext{}, errors.Wrapf(ErrDestructure, "goal too short for template with explode: need at least %d, got %d", len(before)+len(after), len(goal))
	}

	cur := ctx
	for i, item := range before {
		var err error
		cur, err = item.Solve(goal[i], cur)
		if err != nil {
			return VarContext{}, err
		}
	}
	spliceEnd := len(goal) - len(after)
	cur = cur.Set(template[explodeAt].varName.name, value.Array(append([]value.Data{}, goal[explodeAt:spliceEnd]...)))
	for i, item := range after {
		var err error
		cur, err = item.Solve(goal[spliceEnd+i], cur)
		if err != nil {
			return VarContext{}, err
		}
	}
	return cur, nil
}
