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
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/hashstructure"

	"github.com/kadalog/deduct/value"
)

// RelId names a relation by identifier and arity: the same name at two
// different arities denotes two distinct relations.
type RelId struct {
	Name  string
	Arity int
}

func (r RelId) String() string { return fmt.Sprintf("%s/%d", r.Name, r.Arity) }

// Hash gives RelId a stable structural hash, used when fingerprinting the
// engine for statement memoization.
func (r RelId) Hash() (uint64, error) { return hashstructure.Hash(r, nil) }

// Truth is a fully ground fact: a RelId plus a vector of concrete Data
// matching its arity.
type Truth struct {
	Rel  RelId
	Data []value.Data
}

// StrictEqual is structural equality over the data vector, used for set
// dedup of truths (spec §3: "Any equals Any" in dedup, never a concrete
// value -- see value.Data.StrictEqual).
func (t Truth) StrictEqual(other Truth) bool {
	if t.Rel != other.Rel || len(t.Data) != len(other.Data) {
		return false
	}
	for i := range t.Data {
		if !t.Data[i].StrictEqual(other.Data[i]) {
			return false
		}
	}
	return true
}

// Compare orders truths lexicographically over their data vector, per spec
// §3 ("Ordering: lexicographic over the data vector").
func (t Truth) Compare(other Truth) int {
	n := len(t.Data)
	if len(other.Data) < n {
		n = len(other.Data)
	}
	for i := 0; i < n; i++ {
		if c := t.Data[i].Compare(other.Data[i]); c != 0 {
			return c
		}
	}
	return len(t.Data) - len(other.Data)
}

func (t Truth) Hash() (uint64, error) {
	hashes := make([]uint64, len(t.Data))
	for i, d := range t.Data {
		h, err := d.Hash()
		if err != nil {
			return 0, err
		}
		hashes[i] = h
	}
	return hashstructure.Hash(struct {
		Rel  RelId
		Data []uint64
	}{t.Rel, hashes}, nil)
}

func (t Truth) String() string {
	parts := make([]string, len(t.Data))
	for i, d := range t.Data {
		parts[i] = d.String()
	}
	return fmt.Sprintf("%s(%s)", t.Rel.Name, strings.Join(parts, ","))
}

// SortTruths sorts a slice of Truth in place by their data-vector order, the
// canonical order used by deterministic engine snapshots (spec §6).
func SortTruths(truths []Truth) {
	sort.Slice(truths, func(i, j int) bool { return truths[i].Compare(truths[j]) < 0 })
}

// Assumption is a locally injected fact, rule, filter, or update, attached
// to a query so it's visible only for the duration of that one evaluation.
type AssumptionKind int

const (
	AssumptionFact AssumptionKind = iota
	AssumptionRule
	AssumptionFilter
	AssumptionUpdate
)

type Assumption struct {
	Kind    AssumptionKind
	Fact    *Truth           // AssumptionFact
	Rule    *ConditionalTruth // AssumptionRule
	Filter  *DeferedRelation // AssumptionFilter / AssumptionUpdate (source side)
	Goal    *DeferedRelation // AssumptionUpdate (target side)
}

// DeferedRelation is a relation reference whose arguments are expressions
// that may still contain free variables, wildcards, or destructurings.
type DeferedRelation struct {
	Negated     bool
	Name        string
	Args        []Expression
	Assumptions []Assumption
}

func (d DeferedRelation) RelId() RelId { return RelId{Name: d.Name, Arity: len(d.Args)} }

func (d DeferedRelation) String() string {
	parts := make([]string, len(d.Args))
	for i, a := range d.Args {
		parts[i] = a.String()
	}
	prefix := ""
	if d.Negated {
		prefix = "!"
	}
	return fmt.Sprintf("%s%s(%s)", prefix, d.Name, strings.Join(parts, ","))
}

// ConditionalTruth is a rule: a head template plus a body statement. Firing
// it against a context c literalizes the head template under c to produce a
// ground Truth candidate.
type ConditionalTruth struct {
	Template DeferedRelation
	Body     *Statement
}

func (c ConditionalTruth) StrictEqual(other ConditionalTruth) bool {
	return c.Template.String() == other.Template.String() && c.Body.String() == other.Body.String()
}

// ToTruth literalizes the head template under ctx, producing a ground
// Truth.
func (c ConditionalTruth) ToTruth(ctx VarContext) (Truth, error) {
	data := make([]value.Data, len(c.Template.Args))
	for i, arg := range c.Template.Args {
		d, err := arg.Literalize(ctx)
		if err != nil {
			return Truth{}, err
		}
		data[i] = d
	}
	return Truth{Rel: c.Template.RelId(), Data: data}, nil
}

// GetDeductions runs the rule's body against engine/tally, seeded from a
// base context pre-solved from filter vs. the rule's own template (so a
// query's own constant arguments narrow the body evaluation before any
// relation lookups happen), and returns every Truth the body can produce.
func (c ConditionalTruth) GetDeductions(filter DeferedRelation, engine *Engine, tally *RecursionTally, logger hclog.Logger) ([]Truth, error) {
	base := VarContext{}
	for i, arg := range filter.Args {
		if i >= len(c.Template.Args) {
			break
		}
		lit, err := arg.Literalize(base)
		if err != nil || lit.IsAny() {
			continue
		}
		if solved, err := c.Template.Args[i].Solve(lit, base); err == nil {
			base = solved
		}
	}

	seed := SingletonUniverse(base)
	universe, err := c.Body.GetPossibleContexts(engine, tally, seed, logger)
	if err != nil {
		return nil, err
	}

	var out []Truth
	for _, ctx := range universe.All() {
		truth, err := c.ToTruth(ctx)
		if err != nil {
			continue
		}
		out = append(out, truth)
	}
	return out, nil
}

// Relation holds one name/arity pair's worth of ground truths and rules.
type Relation struct {
	ID         RelId
	truths     []Truth
	conditions []ConditionalTruth
}

// NewRelation builds an empty Relation for id.
func NewRelation(id RelId) *Relation {
	return &Relation{ID: id}
}

// AddTruth inserts fact, or (if negated) removes every structurally equal
// ground truth, per spec §3's negated-immediate-fact invariant. Negating a
// fact never touches rules.
func (r *Relation) AddTruth(fact Truth, negated bool) {
	if !negated {
		for _, existing := range r.truths {
			if existing.StrictEqual(fact) {
				return
			}
		}
		r.truths = append(r.truths, fact)
		return
	}
	kept := r.truths[:0]
	for _, existing := range r.truths {
		if !existing.StrictEqual(fact) {
			kept = append(kept, existing)
		}
	}
	r.truths = kept
}

// AddConditional inserts rule, deduped by structural equality.
func (r *Relation) AddConditional(rule ConditionalTruth) {
	for _, existing := range r.conditions {
		if existing.StrictEqual(rule) {
			return
		}
	}
	r.conditions = append(r.conditions, rule)
}

// GroundTruths returns the relation's ground facts.
func (r *Relation) GroundTruths() []Truth { return append([]Truth{}, r.truths...) }

// GetAllTruths enumerates ground truths plus every truth each conditional
// truth can currently produce (bounded by tally), deduped by structural
// equality.
func (r *Relation) GetAllTruths(engine *Engine, tally *RecursionTally, logger hclog.Logger) ([]Truth, error) {
	out := append([]Truth{}, r.truths...)

	if !tally.GoDeeper(r.ID) {
		logger.Trace("recursion budget exhausted, skipping conditional truths", "rel", r.ID.String())
		return dedupTruths(out), nil
	}
	defer tally.Return(r.ID)

	for _, rule := range r.conditions {
		deductions, err := rule.GetDeductions(DeferedRelation{Name: r.ID.Name, Args: wildcardArgs(r.ID.Arity)}, engine, tally, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, deductions...)
	}
	return dedupTruths(out), nil
}

// GetFilteredTruths enumerates every truth the relation can produce and
// retains only those compatible with filter under callerCtx, implementing
// spec §4.4's fits_filter bounded fixed point.
func (r *Relation) GetFilteredTruths(filter DeferedRelation, callerCtx VarContext, engine *Engine, tally *RecursionTally, logger hclog.Logger) ([]Truth, error) {
	all, err := r.GetAllTruths(engine, tally, logger)
	if err != nil {
		return nil, err
	}
	var kept []Truth
	for _, t := range all {
		if _, ok := fitsFilter(filter.Args, t.Data, callerCtx); ok {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

func dedupTruths(in []Truth) []Truth {
	out := in[:0:0]
	for _, t := range in {
		dup := false
		for _, existing := range out {
			if existing.StrictEqual(t) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, t)
		}
	}
	return out
}

func wildcardArgs(n int) []Expression {
	args := make([]Expression, n)
	for i := range args {
		args[i] = VarExpr(Var(fmt.Sprintf("_w%d", i)))
	}
	return args
}

// fitsFilter runs the bounded fixed-point column walk from spec §4.4: start
// with callerCtx and a "pinned" flag per column; repeatedly try to solve
// each unpinned filter expression against the matching truth-data column,
// adopting the context and pinning the column on success. Stops when every
// column is pinned (success) or a full pass pins nothing new (failure).
func fitsFilter(filterArgs []Expression, truthData []value.Data, callerCtx VarContext) (VarContext, bool) {
	if len(filterArgs) != len(truthData) {
		return VarContext{}, false
	}
	pinned := make([]bool, len(truthData))
	ctx := callerCtx
	allPinned := func() bool {
		for _, p := range pinned {
			if !p {
				return false
			}
		}
		return true
	}
	for !allPinned() {
		progressed := false
		for i, goal := range truthData {
			if pinned[i] {
				continue
			}
			newCtx, err := filterArgs[i].Solve(goal, ctx)
			if err != nil {
				continue
			}
			ctx = newCtx
			pinned[i] = true
			progressed = true
		}
		if !progressed {
			return VarContext{}, false
		}
	}
	return ctx, true
}
