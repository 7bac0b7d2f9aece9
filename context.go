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

	"github.com/mitchellh/hashstructure"

	"github.com/kadalog/deduct/value"
)

// VarContext is an immutable binding from variable name to Data. The zero
// VarContext is the empty context. Set always returns a derivative, never
// mutating the receiver.
type VarContext struct {
	bindings map[string]value.Data
}

// Get looks up a binding.
func (c VarContext) Get(name string) (value.Data, bool) {
	d, ok := c.bindings[name]
	return d, ok
}

// Set returns a new context with name bound to d, leaving c unmodified.
func (c VarContext) Set(name string, d value.Data) VarContext {
	out := make(map[string]value.Data, len(c.bindings)+1)
	for k, v := range c.bindings {
		out[k] = v
	}
	out[name] = d
	return VarContext{bindings: out}
}

// Len reports how many names are bound.
func (c VarContext) Len() int { return len(c.bindings) }

// Extend merges other into c. Shared keys must agree (via value.Data.Equal,
// so a concrete value agrees with Any); if any shared key disagrees, the
// merge fails and ok is false. Disjoint keys from both sides are unioned.
func (c VarContext) Extend(other VarContext) (merged VarContext, ok bool) {
	out := make(map[string]value.Data, len(c.bindings)+len(other.bindings))
	for k, v := range c.bindings {
		out[k] = v
	}
	for k, v := range other.bindings {
		if existing, present := out[k]; present {
			if !existing.Equal(v) {
				return VarContext{}, false
			}
			continue
		}
		out[k] = v
	}
	return VarContext{bindings: out}, true
}

// sortedNames returns the bound names in sorted order, for deterministic
// hashing and printing.
func (c VarContext) sortedNames() []string {
	names := make([]string, 0, len(c.bindings))
	for k := range c.bindings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StrictEqual reports whether c and other bind exactly the same names to
// structurally equal values (value.Data.StrictEqual, so Any only matches
// Any). Used for VarContextUniverse set membership.
func (c VarContext) StrictEqual(other VarContext) bool {
	if len(c.bindings) != len(other.bindings) {
		return false
	}
	for k, v := range c.bindings {
		ov, ok := other.bindings[k]
		if !ok || !v.StrictEqual(ov) {
			return false
		}
	}
	return true
}

type hashableBinding struct {
	Name string
	Hash uint64
}

// Hash implements hashstructure.Hashable, giving VarContext a stable
// structural hash: bindings are sorted by name so map iteration order never
// affects the result, and each Data value contributes its own canonical
// hash (see value.Data.Hash) rather than its Go representation.
func (c VarContext) Hash() (uint64, error) {
	names := c.sortedNames()
	entries := make([]hashableBinding, len(names))
	for i, name := range names {
		h, err := c.bindings[name].Hash()
		if err != nil {
			return 0, err
		}
		entries[i] = hashableBinding{Name: name, Hash: h}
	}
	return hashstructure.Hash(entries, nil)
}

func (c VarContext) String() string {
	names := c.sortedNames()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%s", name, c.bindings[name])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Completeness carries the two-bit partial-knowledge tag that rides along
// with a VarContextUniverse: someExtraInfo means the universe may contain
// contexts that don't actually satisfy every constraint; someMissingInfo
// means it may be missing contexts that do.
type Completeness struct {
	someExtraInfo   bool
	someMissingInfo bool
}

// Complete is the tag for a universe known to be exact: no extra contexts,
// none missing.
var Complete = Completeness{}

// Unknown is the tag for a universe about which nothing is guaranteed.
var Unknown = Completeness{someExtraInfo: true, someMissingInfo: true}

func (c Completeness) String() string {
	return fmt.Sprintf("extra=%v,missing=%v", c.someExtraInfo, c.someMissingInfo)
}

// VarContextUniverse is a set of alternative VarContexts considered
// simultaneously, tagged with a Completeness bit pair. Membership is
// structural (VarContext.StrictEqual), bucketed by hash since VarContext
// isn't a comparable map key.
type VarContextUniverse struct {
	completeness Completeness
	buckets      map[uint64][]VarContext
}

// NewUniverse builds an empty universe tagged with c.
func NewUniverse(c Completeness) VarContextUniverse {
	return VarContextUniverse{completeness: c, buckets: map[uint64][]VarContext{}}
}

// SingletonUniverse builds a complete universe containing exactly ctx.
func SingletonUniverse(ctx VarContext) VarContextUniverse {
	u := NewUniverse(Complete)
	u.Insert(ctx)
	return u
}

// Completeness returns the universe's partial-knowledge tag.
func (u VarContextUniverse) Completeness() Completeness { return u.completeness }

// Len reports how many distinct contexts the universe holds.
func (u VarContextUniverse) Len() int {
	n := 0
	for _, bucket := range u.buckets {
		n += len(bucket)
	}
	return n
}

// Insert adds ctx to the universe if no structurally equal context is
// already present.
func (u *VarContextUniverse) Insert(ctx VarContext) {
	h, err := ctx.Hash()
	if err != nil {
		// A context holding only well-formed value.Data never fails to hash;
		// treat this defensively as "bucket 0" rather than panicking mid-fixpoint.
		h = 0
	}
	for _, existing := range u.buckets[h] {
		if existing.StrictEqual(ctx) {
			return
		}
	}
	u.buckets[h] = append(u.buckets[h], ctx)
}

// All returns every context in the universe, in no particular order.
func (u VarContextUniverse) All() []VarContext {
	out := make([]VarContext, 0, u.Len())
	for _, bucket := range u.buckets {
		out = append(out, bucket...)
	}
	return out
}

func (u VarContextUniverse) contains(ctx VarContext) bool {
	h, err := ctx.Hash()
	if err != nil {
		h = 0
	}
	for _, existing := range u.buckets[h] {
		if existing.StrictEqual(ctx) {
			return true
		}
	}
	return false
}

// Or is set union of context sets, with completeness bits OR'd together per
// the universe lattice (spec §4.3).
func (u VarContextUniverse) Or(other VarContextUniverse) VarContextUniverse {
	result := NewUniverse(Completeness{
		someExtraInfo:   u.completeness.someExtraInfo || other.completeness.someExtraInfo,
		someMissingInfo: u.completeness.someMissingInfo || other.completeness.someMissingInfo,
	})
	for _, ctx := range u.All() {
		result.Insert(ctx)
	}
	for _, ctx := range other.All() {
		result.Insert(ctx)
	}
	return result
}

// And is the join used to evaluate conjunction: when both operands are
// known-complete, it's the pairwise Cartesian merge of contexts (dropping
// pairs whose bindings disagree); when either side may be missing
// information, merging contexts pointwise would be unsound, so the two
// operand sets are unioned instead and the completeness bits both go to
// true. The same union applies whether one or both operands are incomplete.
func (u VarContextUniverse) And(other VarContextUniverse) VarContextUniverse {
	switch {
	case u.completeness.someMissingInfo || other.completeness.someMissingInfo:
		result := u.Or(other)
		result.completeness = Unknown
		return result
	default:
		result := NewUniverse(Completeness{
			someExtraInfo:   u.completeness.someExtraInfo && other.completeness.someExtraInfo,
			someMissingInfo: false,
		})
		for _, a := range u.All() {
			for _, b := range other.All() {
				if merged, ok := a.Extend(b); ok {
					result.Insert(merged)
				}
			}
		}
		return result
	}
}

// Difference is set-minus of contexts, used to evaluate Not. The
// completeness tag is inherited from u unchanged, matching
// var_context_universe.rs's difference (it never touches completeness).
func (u VarContextUniverse) Difference(remove VarContextUniverse) VarContextUniverse {
	result := NewUniverse(u.completeness)
	for _, ctx := range u.All() {
		if !remove.contains(ctx) {
			result.Insert(ctx)
		}
	}
	return result
}

// Hash gives the universe a stable structural hash (its contexts' hashes,
// sorted, plus the completeness tag), used as half of the statement
// memoization key (spec §4.5: "hash (engine identity ⊕ universe)").
func (u VarContextUniverse) Hash() (uint64, error) {
	ctxs := u.All()
	hashes := make([]uint64, len(ctxs))
	for i, ctx := range ctxs {
		h, err := ctx.Hash()
		if err != nil {
			return 0, err
		}
		hashes[i] = h
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	type form struct {
		Extra   bool
		Missing bool
		Ctxs    []uint64
	}
	return hashstructure.Hash(form{u.completeness.someExtraInfo, u.completeness.someMissingInfo, hashes}, nil)
}

func (u VarContextUniverse) String() string {
	ctxs := u.All()
	parts := make([]string, len(ctxs))
	for i, ctx := range ctxs {
		parts[i] = ctx.String()
	}
	return fmt.Sprintf("[%s:%s]", u.completeness, strings.Join(parts, ","))
}
