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

// Package value holds the tagged, dynamically-typed data that flows through
// the engine: numbers, strings, arrays, and the wildcard Any.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Kind tags the variant held by a Data value.
type Kind int

const (
	KindNumber Kind = iota
	KindString
	KindArray
	KindAny
)

// Data is a single datalog value: a 64-bit number, a UTF-8 string, an array
// of Data, or Any (the unconstrained wildcard). The zero Data is the number
// 0, not Any -- always construct Data via Number, String, Array, or the Any
// package value.
type Data struct {
	kind Kind
	num  float64
	str  string
	arr  []Data
}

// Any is the wildcard value: it unifies with anything and, in ordering, sorts
// above every concrete value.
var Any = Data{kind: KindAny}

// Number builds a numeric Data value.
func Number(n float64) Data { return Data{kind: KindNumber, num: n} }

// String builds a string Data value.
func String(s string) Data { return Data{kind: KindString, str: s} }

// Array builds an array Data value. The slice is not copied; callers should
// treat it as owned by the returned Data afterward.
func Array(items []Data) Data { return Data{kind: KindArray, arr: items} }

func (d Data) Kind() Kind { return d.kind }

func (d Data) IsAny() bool { return d.kind == KindAny }

// Num returns the numeric payload and whether d is a number.
func (d Data) Num() (float64, bool) {
	if d.kind != KindNumber {
		return 0, false
	}
	return d.num, true
}

// Str returns the string payload and whether d is a string.
func (d Data) Str() (string, bool) {
	if d.kind != KindString {
		return "", false
	}
	return d.str, true
}

// Items returns the array payload and whether d is an array.
func (d Data) Items() ([]Data, bool) {
	if d.kind != KindArray {
		return nil, false
	}
	return d.arr, true
}

// String renders d using traditional Datalog surface syntax.
func (d Data) String() string {
	switch d.kind {
	case KindNumber:
		return strconv.FormatFloat(d.num, 'g', -1, 64)
	case KindString:
		return strconv.Quote(d.str)
	case KindArray:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range d.arr {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(item.String())
		}
		b.WriteByte(']')
		return b.String()
	case KindAny:
		return "_"
	default:
		return fmt.Sprintf("<bad kind %d>", d.kind)
	}
}

// numKey maps a float64 onto a uint64 that sorts identically to normal
// numeric order, including infinities, with every NaN payload canonicalized
// to one bit pattern so hashing and ordering never depend on which NaN a
// computation happened to produce.
func numKey(f float64) uint64 {
	if math.IsNaN(f) {
		f = math.NaN()
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return bits
}

// Equal is wildcard equality: Any matches anything, on either side. This is
// the equality used by solve and by the = comparison statement -- never by
// Truth set deduplication, which needs a strict notion (see StrictEqual).
func (d Data) Equal(other Data) bool {
	if d.kind == KindAny || other.kind == KindAny {
		return true
	}
	return d.StrictEqual(other)
}

// StrictEqual is structural equality with no wildcard behavior: two Any
// values are equal to each other (both denote "this position is
// unconstrained"), but Any is never equal to a concrete value.
func (d Data) StrictEqual(other Data) bool {
	if d.kind != other.kind {
		return false
	}
	switch d.kind {
	case KindNumber:
		return numKey(d.num) == numKey(other.num)
	case KindString:
		return d.str == other.str
	case KindArray:
		if len(d.arr) != len(other.arr) {
			return false
		}
		for i := range d.arr {
			if !d.arr[i].StrictEqual(other.arr[i]) {
				return false
			}
		}
		return true
	case KindAny:
		return true
	default:
		return false
	}
}

// Compare returns a total order over Data: Number < String < Array < Any,
// with ties broken by numeric order, lexicographic order, and elementwise
// order respectively.
func (d Data) Compare(other Data) int {
	if d.kind != other.kind {
		return int(d.kind) - int(other.kind)
	}
	switch d.kind {
	case KindNumber:
		a, b := numKey(d.num), numKey(other.num)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	case KindString:
		return strings.Compare(d.str, other.str)
	case KindArray:
		n := len(d.arr)
		if len(other.arr) < n {
			n = len(other.arr)
		}
		for i := 0; i < n; i++ {
			if c := d.arr[i].Compare(other.arr[i]); c != 0 {
				return c
			}
		}
		return len(d.arr) - len(other.arr)
	case KindAny:
		return 0
	default:
		return 0
	}
}

// Less reports whether d sorts strictly before other.
func (d Data) Less(other Data) bool { return d.Compare(other) < 0 }

// canonicalForm is the exported-field shape handed to hashstructure.Hash, so
// that every byte that influences the hash is visible to reflection and NaN
// is canonicalized before it ever reaches the library.
type canonicalForm struct {
	Kind Kind
	Num  uint64 // numKey(d.num); canonicalizes NaN and preserves numeric order
	Str  string
	Arr  []uint64 // recursive Data.Hash() of each element
}

// Hash implements github.com/mitchellh/hashstructure's Hashable interface,
// giving Data a stable structural hash across runs: NaN is canonicalized via
// numKey before hashing, infinities are preserved, strings and arrays hash
// structurally (arrays via the recursive hash of each element, so two arrays
// differing only in a deeply nested NaN still hash identically), and Any
// hashes as the literal sentinel "_".
func (d Data) Hash() (uint64, error) {
	form := canonicalForm{Kind: d.kind}
	switch d.kind {
	case KindNumber:
		form.Num = numKey(d.num)
	case KindString:
		form.Str = d.str
	case KindArray:
		form.Arr = make([]uint64, len(d.arr))
		for i, item := range d.arr {
			h, err := item.Hash()
			if err != nil {
				return 0, err
			}
			form.Arr[i] = h
		}
	case KindAny:
		form.Str = "_"
	}
	return hashstructure.Hash(form, nil)
}
