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

// Package deduct implements a small Datalog-like deductive database: a
// relation store, a context-universe calculus for rule resolution,
// bidirectional expression solving, recursion control, and an Engine facade
// that ingests facts/rules/queries/updates and answers pattern queries by
// top-down fixpoint evaluation.
package deduct

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/hashstructure"
	"github.com/pkg/errors"

	"github.com/kadalog/deduct/value"
)

// ErrRelationNotFound is returned when an operation names a RelId this
// engine has never seen (no facts, no rules) -- spec §7's "relation not
// found on retract" runtime error, generalized to update as well (see
// DESIGN.md's Open Question resolution for update-on-no-match).
var ErrRelationNotFound = errors.New("relation not found")

// ErrNegatedRule rejects a rule whose head is marked negated at ingest time:
// original_source never exercises rule retraction (see DESIGN.md).
var ErrNegatedRule = errors.New("negated conditional truths are not supported")

// Engine is the top-level facade: a map from RelId to Relation, plus the
// global recursion bound new queries run under.
type Engine struct {
	relations map[RelId]*Relation

	// MaxRecursion is the global depth budget handed to a fresh
	// RecursionTally for every top-level query or update.
	MaxRecursion int

	Logger hclog.Logger
}

// New builds an empty engine with the given global recursion bound.
func New(maxRecursion int) *Engine {
	return &Engine{
		relations:    map[RelId]*Relation{},
		MaxRecursion: maxRecursion,
		Logger:       hclog.NewNullLogger(),
	}
}

func (e *Engine) relationOrCreate(id RelId) *Relation {
	r, ok := e.relations[id]
	if !ok {
		r = NewRelation(id)
		e.relations[id] = r
	}
	return r
}

// Fingerprint hashes the engine's entire relation map structurally: every
// RelId, its ground truths (sorted), and its rule templates+bodies (sorted
// by string form). This is half of the statement memoization key (spec
// §4.5: "hash (engine identity ⊕ universe)") -- adding a fact changes this
// hash, which naturally invalidates every downstream memo entry.
func (e *Engine) Fingerprint() (uint64, error) {
	ids := make([]RelId, 0, len(e.relations))
	for id := range e.relations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Name != ids[j].Name {
			return ids[i].Name < ids[j].Name
		}
		return ids[i].Arity < ids[j].Arity
	})

	type relForm struct {
		Rel        RelId
		Truths     []uint64
		Conditions []string
	}
	forms := make([]relForm, 0, len(ids))
	for _, id := range ids {
		r := e.relations[id]
		truthHashes := make([]uint64, 0, len(r.truths))
		for _, t := range r.truths {
			h, err := t.Hash()
			if err != nil {
				return 0, err
			}
			truthHashes = append(truthHashes, h)
		}
		sort.Slice(truthHashes, func(i, j int) bool { return truthHashes[i] < truthHashes[j] })

		conds := make([]string, 0, len(r.conditions))
		for _, c := range r.conditions {
			conds = append(conds, c.Template.String()+" :- "+c.Body.String())
		}
		sort.Strings(conds)

		forms = append(forms, relForm{Rel: id, Truths: truthHashes, Conditions: conds})
	}
	return hashstructure.Hash(forms, nil)
}

// AssertFact inserts (or, if negated, removes) a ground fact, creating the
// relation on first touch.
func (e *Engine) AssertFact(fact Truth, negated bool) {
	e.relationOrCreate(fact.Rel).AddTruth(fact, negated)
}

// AssertRule inserts a rule (head template + body) into the relation named
// by the rule's head. Negated rule heads are rejected: see ErrNegatedRule.
func (e *Engine) AssertRule(rule ConditionalTruth) error {
	if rule.Template.Negated {
		return errors.Wrapf(ErrNegatedRule, "%s", rule.Template)
	}
	e.relationOrCreate(rule.Template.RelId()).AddConditional(rule)
	return nil
}

// queryUnderContext is the low-level primitive used by Statement's Relation
// case: look up defRel's relation and return every truth compatible with
// defRel's argument pattern under callerCtx. An absent relation produces an
// empty result, not an error (spec §7: "Queries never fail").
func (e *Engine) queryUnderContext(defRel DeferedRelation, callerCtx VarContext, tally *RecursionTally, logger hclog.Logger) ([]Truth, error) {
	r, ok := e.relations[defRel.RelId()]
	if !ok {
		return nil, nil
	}
	return r.GetFilteredTruths(defRel, callerCtx, e, tally, logger)
}

// Query answers a pattern query, with any assumptions attached to rel
// applied only for the duration of this call (spec §4.7). It implements the
// query evaluation procedure uniformly as statement evaluation: the query
// itself (and any deferred-filter assumptions) become a conjunction of
// Relation statements run over a singleton empty-context universe, so a
// plain query with no assumptions is just the degenerate case of that same
// machinery.
func (e *Engine) Query(rel DeferedRelation) ([]Truth, error) {
	return e.queryWithTally(rel, NewRecursionTally(e.MaxRecursion))
}

func (e *Engine) queryWithTally(rel DeferedRelation, tally *RecursionTally) ([]Truth, error) {
	target := rel
	target.Assumptions = nil

	evalEngine := e
	if len(rel.Assumptions) > 0 {
		// Assumptions are visible to rules fired transitively by the query's
		// body: clone the relation map once, apply every assumption into the
		// clone, and thread that single clone through the whole evaluation
		// (see DESIGN.md's Open Question resolution).
		clone := e.cloneShallow()
		for _, a := range rel.Assumptions {
			if err := clone.applyAssumption(a, tally); err != nil {
				return nil, err
			}
		}
		evalEngine = clone
	}

	body := RelationStmt(target)
	for _, a := range rel.Assumptions {
		if a.Kind == AssumptionFilter && a.Filter != nil {
			body = And(RelationStmt(*a.Filter), body)
		}
	}

	seed := SingletonUniverse(VarContext{})
	universe, err := body.GetPossibleContexts(evalEngine, tally, seed, evalEngine.Logger)
	if err != nil {
		return nil, err
	}

	var out []Truth
	for _, ctx := range universe.All() {
		data := make([]value.Data, len(target.Args))
		ok := true
		for i, arg := range target.Args {
			d, err := arg.Literalize(ctx)
			if err != nil {
				ok = false
				break
			}
			data[i] = d
		}
		if ok {
			out = append(out, Truth{Rel: target.RelId(), Data: data})
		}
	}
	out = dedupTruths(out)
	SortTruths(out)
	return out, nil
}

func (e *Engine) cloneShallow() *Engine {
	clone := &Engine{
		relations:    make(map[RelId]*Relation, len(e.relations)),
		MaxRecursion: e.MaxRecursion,
		Logger:       e.Logger,
	}
	for id, r := range e.relations {
		cp := &Relation{
			ID:         r.ID,
			truths:     append([]Truth{}, r.truths...),
			conditions: append([]ConditionalTruth{}, r.conditions...),
		}
		clone.relations[id] = cp
	}
	return clone
}

func (e *Engine) applyAssumption(a Assumption, tally *RecursionTally) error {
	switch a.Kind {
	case AssumptionFact:
		e.AssertFact(*a.Fact, false)
	case AssumptionRule:
		return e.AssertRule(*a.Rule)
	case AssumptionUpdate:
		return e.Update(*a.Filter, *a.Goal, tally)
	case AssumptionFilter:
		// Handled by the caller (queryWithTally), which conjoins it into the
		// query body instead of mutating engine state.
	}
	return nil
}

// Update enumerates truths matching filter, removes each, and inserts the
// corresponding literalized goal -- spec §4.7's "filter -> goal" line. A
// filter naming a RelId this engine has never seen is ErrRelationNotFound; a
// filter whose RelId exists but matches nothing is a silent no-op (see
// DESIGN.md).
func (e *Engine) Update(filter, goal DeferedRelation, tally *RecursionTally) error {
	id := filter.RelId()
	r, ok := e.relations[id]
	if !ok {
		return errors.Wrapf(ErrRelationNotFound, "%s", id)
	}

	matches, err := r.GetFilteredTruths(filter, VarContext{}, e, tally, e.Logger)
	if err != nil {
		return err
	}

	target := e.relationOrCreate(goal.RelId())
	for _, t := range matches {
		r.AddTruth(t, true)

		ctx := VarContext{}
		solvable := true
		for i, arg := range filter.Args {
			nc, err := arg.Solve(t.Data[i], ctx)
			if err != nil {
				solvable = false
				break
			}
			ctx = nc
		}
		if !solvable {
			continue
		}

		data := make([]value.Data, len(goal.Args))
		ok := true
		for i, arg := range goal.Args {
			d, err := arg.Literalize(ctx)
			if err != nil {
				ok = false
				break
			}
			data[i] = d
		}
		if ok {
			target.AddTruth(Truth{Rel: goal.RelId(), Data: data}, false)
		}
	}
	return nil
}

// Line is one top-level ingest item: a fact, a rule, a query, or an update.
// The parser builds these directly; Ingest/Input consume them.
type Line interface {
	apply(e *Engine) (string, error)
}

// FactLine asserts or (if Negated) retracts a ground fact.
type FactLine struct {
	Negated bool
	Fact    Truth
}

func (l FactLine) apply(e *Engine) (string, error) {
	if l.Negated {
		if _, ok := e.relations[l.Fact.Rel]; !ok {
			return "", errors.Wrapf(ErrRelationNotFound, "%s", l.Fact.Rel)
		}
	}
	e.AssertFact(l.Fact, l.Negated)
	return "", nil
}

// RuleLine asserts a rule.
type RuleLine struct {
	Rule ConditionalTruth
}

func (l RuleLine) apply(e *Engine) (string, error) {
	return "", e.AssertRule(l.Rule)
}

// QueryLine answers a pattern query and serializes the result.
type QueryLine struct {
	Rel DeferedRelation
}

func (l QueryLine) apply(e *Engine) (string, error) {
	truths, err := e.Query(l.Rel)
	if err != nil {
		return "", err
	}
	return FormatTruths(truths), nil
}

// UpdateLine retracts every truth matching Filter and inserts the
// literalized Goal in its place.
type UpdateLine struct {
	Filter DeferedRelation
	Goal   DeferedRelation
}

func (l UpdateLine) apply(e *Engine) (string, error) {
	return "", e.Update(l.Filter, l.Goal, NewRecursionTally(e.MaxRecursion))
}

// FormatTruths renders a truth list as the deterministic snapshot syntax
// from spec §6: truths sorted lexicographically by data tuple.
func FormatTruths(truths []Truth) string {
	sorted := append([]Truth{}, truths...)
	SortTruths(sorted)
	parts := make([]string, len(sorted))
	for i, t := range sorted {
		argParts := make([]string, len(t.Data))
		for j, d := range t.Data {
			argParts[j] = d.String()
		}
		parts[i] = fmt.Sprintf("Truth { data: [%s] }", strings.Join(argParts, ", "))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Ingest applies every line in order, accumulating all line-level errors
// into a single *multierror.Error rather than aborting on the first bad
// line. It returns the serialized result of the last QueryLine
// encountered, if any.
func (e *Engine) Ingest(lines []Line) (string, error) {
	var result string
	var errs *multierror.Error
	for _, line := range lines {
		out, err := line.apply(e)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if _, isQuery := line.(QueryLine); isQuery {
			result = out
		}
	}
	return result, errs.ErrorOrNil()
}

// Input is the engine's text-program entry point: callers (typically
// cmd/deduct) hand it already-parsed lines paired with the raw program text
// for echo output, and get back the last query's deterministic result.
func (e *Engine) Input(lines []Line, programText string, echo bool) (string, error) {
	if echo {
		e.Logger.Info("ingesting program", "text", programText)
	}
	return e.Ingest(lines)
}
