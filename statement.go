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

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/hashstructure"
	"github.com/pkg/errors"
)

// Comparison is the relational operator carried by a comparison statement
// node (see CompareExpr).
type Comparison int

const (
	CmpEq Comparison = iota
	CmpLt
	CmpGt
	CmpLte
	CmpGte
)

func (c Comparison) String() string {
	switch c {
	case CmpEq:
		return "="
	case CmpLt:
		return "<"
	case CmpGt:
		return ">"
	case CmpLte:
		return "<="
	case CmpGte:
		return ">="
	default:
		return "?"
	}
}

type stmtKind int

const (
	stmtTrue stmtKind = iota
	stmtAnd
	stmtOr
	stmtNot
	stmtCompare
	stmtRelation
)

// memoStatementCacheSize bounds the per-statement-node LRU memo: spec §5
// says memoization caches "may be cleared aggressively without affecting
// correctness", so a small bounded cache (rather than an ever-growing map)
// is a faithful reading, not just a convenience.
const memoStatementCacheSize = 256

type memoResult struct {
	universe VarContextUniverse
	err      error
}

// Statement is a boolean-combination node: True, And, Or, Not, a comparison
// between two expressions, or a deferred relation invocation. Each node owns
// its own bounded memo cache, keyed by (engine fingerprint, input universe
// fingerprint), matching spec §4.5's memoization design.
type Statement struct {
	kind stmtKind

	a, b *Statement // And, Or
	s    *Statement // Not

	cmpA, cmpB Expression // Compare
	cmpOp      Comparison

	rel DeferedRelation // Relation

	memo *lru.Cache[uint64, memoResult]
}

func newStatement(kind stmtKind) *Statement {
	cache, _ := lru.New[uint64, memoResult](memoStatementCacheSize)
	return &Statement{kind: kind, memo: cache}
}

// True builds the always-true statement.
func True() *Statement { return newStatement(stmtTrue) }

// And builds a conjunction of a and b.
func And(a, b *Statement) *Statement {
	s := newStatement(stmtAnd)
	s.a, s.b = a, b
	return s
}

// Or builds a disjunction of a and b.
func Or(a, b *Statement) *Statement {
	s := newStatement(stmtOr)
	s.a, s.b = a, b
	return s
}

// Not builds the negation of s.
func Not(s *Statement) *Statement {
	out := newStatement(stmtNot)
	out.s = s
	return out
}

// CompareExpr builds a comparison between two expressions.
func CompareExpr(a, b Expression, op Comparison) *Statement {
	s := newStatement(stmtCompare)
	s.cmpA, s.cmpB, s.cmpOp = a, b, op
	return s
}

// RelationStmt builds a statement invoking a deferred relation.
func RelationStmt(rel DeferedRelation) *Statement {
	s := newStatement(stmtRelation)
	s.rel = rel
	return s
}

func (s *Statement) String() string {
	switch s.kind {
	case stmtTrue:
		return "true"
	case stmtAnd:
		return fmt.Sprintf("(%s && %s)", s.a, s.b)
	case stmtOr:
		return fmt.Sprintf("(%s || %s)", s.a, s.b)
	case stmtNot:
		return fmt.Sprintf("!(%s)", s.s)
	case stmtCompare:
		return fmt.Sprintf("(%s%s%s)", s.cmpA, s.cmpOp, s.cmpB)
	case stmtRelation:
		return s.rel.String()
	default:
		return "<bad statement>"
	}
}

// GetPossibleContexts evaluates the statement over the input universe,
// consulting (and populating) the per-node memo cache first. This is the
// memo_get_posible_contexts entry point from spec §4.5.
func (s *Statement) GetPossibleContexts(engine *Engine, tally *RecursionTally, input VarContextUniverse, logger hclog.Logger) (VarContextUniverse, error) {
	key, err := s.memoKey(engine, input)
	if err == nil {
		if cached, ok := s.memo.Get(key); ok {
			logger.Trace("memo hit", "stmt", s.String())
			return cached.universe, cached.err
		}
	}

	universe, computeErr := s.computePossibleContexts(engine, tally, input, logger)
	if err == nil {
		s.memo.Add(key, memoResult{universe: universe, err: computeErr})
	}
	return universe, computeErr
}

func (s *Statement) memoKey(engine *Engine, input VarContextUniverse) (uint64, error) {
	engineHash, err := engine.Fingerprint()
	if err != nil {
		return 0, err
	}
	universeHash, err := input.Hash()
	if err != nil {
		return 0, err
	}
	return hashstructure.Hash(struct {
		Engine   uint64
		Universe uint64
	}{engineHash, universeHash}, nil)
}

func (s *Statement) computePossibleContexts(engine *Engine, tally *RecursionTally, input VarContextUniverse, logger hclog.Logger) (VarContextUniverse, error) {
	switch s.kind {
	case stmtTrue:
		return input, nil

	case stmtOr:
		ua, err := s.a.GetPossibleContexts(engine, tally, input, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		ub, err := s.b.GetPossibleContexts(engine, tally, input, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		return ua.Or(ub), nil

	case stmtAnd:
		return s.andFixpoint(engine, tally, input, logger)

	case stmtNot:
		negated, err := s.s.GetPossibleContexts(engine, tally, input, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		return input.Difference(negated), nil

	case stmtCompare:
		return s.evalCompare(input)

	case stmtRelation:
		return s.evalRelation(engine, tally, input, logger)

	default:
		return VarContextUniverse{}, errors.Errorf("statement: bad kind %d", s.kind)
	}
}

// andFixpoint implements spec §4.5's conjunctive fixpoint: each side is
// evaluated against the other side's most recent output so that a binding
// one side derives narrows the other, and the two narrowed outputs are
// unioned; this repeats until the union stops changing. This follows
// statement_token.rs's get_posible_contexts And-arm exactly, including
// comparing against `input` (not the prior iteration's union) on every pass
// for the two "first" universes.
func (s *Statement) andFixpoint(engine *Engine, tally *RecursionTally, input VarContextUniverse, logger hclog.Logger) (VarContextUniverse, error) {
	ret := input
	for {
		firstA, err := s.a.GetPossibleContexts(engine, tally, input, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		firstB, err := s.b.GetPossibleContexts(engine, tally, input, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		universeA, err := s.a.GetPossibleContexts(engine, tally, firstB, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		universeB, err := s.b.GetPossibleContexts(engine, tally, firstA, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		next := universeA.Or(universeB)
		if universesEqual(next, ret) {
			return next, nil
		}
		ret = next
	}
}

func universesEqual(a, b VarContextUniverse) bool {
	if a.completeness != b.completeness || a.Len() != b.Len() {
		return false
	}
	for _, ctx := range a.All() {
		if !b.contains(ctx) {
			return false
		}
	}
	return true
}

func (s *Statement) evalCompare(input VarContextUniverse) (VarContextUniverse, error) {
	result := NewUniverse(input.Completeness())
	for _, ctx := range input.All() {
		a, aErr := s.cmpA.Literalize(ctx)
		b, bErr := s.cmpB.Literalize(ctx)

		if s.cmpOp == CmpEq {
			switch {
			case aErr == nil && bErr == nil && (a.IsAny() && b.IsAny()):
				result.Insert(ctx)
			case aErr == nil && (bErr != nil || b.IsAny()):
				if nc, err := s.cmpB.Solve(a, ctx); err == nil {
					result.Insert(nc)
				}
			case bErr == nil && (aErr != nil || a.IsAny()):
				if nc, err := s.cmpA.Solve(b, ctx); err == nil {
					result.Insert(nc)
				}
			case aErr == nil && bErr == nil:
				if a.Equal(b) {
					result.Insert(ctx)
				}
			}
			continue
		}

		if aErr != nil || bErr != nil {
			continue
		}
		cmp := a.Compare(b)
		var keep bool
		switch s.cmpOp {
		case CmpLt:
			keep = cmp < 0
		case CmpGt:
			keep = cmp > 0
		case CmpLte:
			keep = cmp <= 0
		case CmpGte:
			keep = cmp >= 0
		}
		if keep {
			result.Insert(ctx)
		}
	}
	return result, nil
}

func (s *Statement) evalRelation(engine *Engine, tally *RecursionTally, input VarContextUniverse, logger hclog.Logger) (VarContextUniverse, error) {
	result := NewUniverse(input.Completeness())
	for _, ctx := range input.All() {
		truths, err := engine.queryUnderContext(s.rel, ctx, tally, logger)
		if err != nil {
			return VarContextUniverse{}, err
		}
		for _, truth := range truths {
			newCtx := ctx
			ok := true
			for i, argExpr := range s.rel.Args {
				nc, err := argExpr.Solve(truth.Data[i], newCtx)
				if err != nil {
					ok = false
					break
				}
				newCtx = nc
			}
			if ok {
				result.Insert(newCtx)
			}
		}
	}
	return result, nil
}
