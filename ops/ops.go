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

// Package ops provides the built-in arithmetic operators usable inside
// expression trees: +, -, *, /. Each is a small, self-contained table of
// functions -- forward plus both reverses -- in the same shape as the
// teacher repo's custom "primitive predicate" (dlprim.Equals): a tiny struct
// with named behavior, rather than a raw function value floating free in an
// expression node, so an Op stays nameable and printable.
package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kadalog/deduct/value"
)

// ErrIncompatibleOperands is the sentinel wrapped into every "can't operate
// on these operands" failure, so callers can errors.Is() past the operand
// description to test for the category.
var ErrIncompatibleOperands = errors.New("incompatible operands")

// Op is a named arithmetic operator with a forward direction and both
// reverse directions, used by Expression.Solve to run arithmetic backward.
type Op struct {
	Symbol  string
	forward func(a, b value.Data) (value.Data, error)
	// reverse1 recovers a, given b and forward(a,b).
	reverse1 func(b, r value.Data) (value.Data, error)
	// reverse2 recovers b, given a and forward(a,b).
	reverse2 func(a, r value.Data) (value.Data, error)
}

// Forward computes forward(a, b).
func (o Op) Forward(a, b value.Data) (value.Data, error) { return o.forward(a, b) }

// Reverse1 recovers a from b and r = forward(a, b).
func (o Op) Reverse1(b, r value.Data) (value.Data, error) { return o.reverse1(b, r) }

// Reverse2 recovers b from a and r = forward(a, b).
func (o Op) Reverse2(a, r value.Data) (value.Data, error) { return o.reverse2(a, r) }

func (o Op) String() string { return o.Symbol }

func incompatible(symbol string, a, b value.Data) error {
	return errors.Wrapf(ErrIncompatibleOperands, "%s %s %s", a, symbol, b)
}

// liftArrays applies a scalar operator element-wise across two arrays of
// matching length: an Array is the only set-of-scalars carrier in this
// engine's Data model, so two same-length arrays are combined
// position-by-position; mismatched lengths fail rather than silently
// truncating.
func liftArrays(symbol string, a, b []value.Data, scalar func(a, b value.Data) (value.Data, error)) (value.Data, error) {
	if len(a) != len(b) {
		return value.Data{}, errors.Wrapf(ErrIncompatibleOperands, "%s: array length mismatch %d vs %d", symbol, len(a), len(b))
	}
	out := make([]value.Data, len(a))
	for i := range a {
		r, err := scalar(a[i], b[i])
		if err != nil {
			return value.Data{}, err
		}
		out[i] = r
	}
	return value.Array(out), nil
}

func numericForward(symbol string, f func(x, y float64) float64) func(a, b value.Data) (value.Data, error) {
	var self func(a, b value.Data) (value.Data, error)
	self = func(a, b value.Data) (value.Data, error) {
		if x, ok := a.Num(); ok {
			if y, ok := b.Num(); ok {
				if symbol == "/" && y == 0 {
					return value.Data{}, errors.Wrapf(ErrIncompatibleOperands, "/: division by zero %s / %s", a, b)
				}
				return value.Number(f(x, y)), nil
			}
		}
		if arrA, ok := a.Items(); ok {
			if arrB, ok := b.Items(); ok {
				return liftArrays(symbol, arrA, arrB, self)
			}
		}
		return value.Data{}, incompatible(symbol, a, b)
	}
	return self
}

// Add is "+": numeric addition, string concatenation, or array
// concatenation. Two arrays are always concatenated, never added
// element-wise.
var Add = Op{
	Symbol: "+",
	forward: func(a, b value.Data) (value.Data, error) {
		if x, ok := a.Num(); ok {
			if y, ok := b.Num(); ok {
				return value.Number(x + y), nil
			}
		}
		if x, ok := a.Str(); ok {
			if y, ok := b.Str(); ok {
				return value.String(x + y), nil
			}
		}
		if arrA, ok := a.Items(); ok {
			if arrB, ok := b.Items(); ok {
				out := make([]value.Data, 0, len(arrA)+len(arrB))
				out = append(out, arrA...)
				out = append(out, arrB...)
				return value.Array(out), nil
			}
		}
		return value.Data{}, incompatible("+", a, b)
	},
	reverse1: func(b, r value.Data) (value.Data, error) { return subScalar(r, b) },
	reverse2: func(a, r value.Data) (value.Data, error) { return subScalar(r, a) },
}

// Sub is "-": numeric subtraction, or element-wise subtraction across two
// equal-length arrays of numbers. Strings and arrays cannot be subtracted.
var Sub = Op{
	Symbol:   "-",
	forward:  numericForward("-", func(x, y float64) float64 { return x - y }),
	reverse1: func(b, r value.Data) (value.Data, error) { return addScalar(r, b) },
	reverse2: func(a, r value.Data) (value.Data, error) { return subScalar(a, r) },
}

// Mul is "*": numeric multiplication, or element-wise multiplication across
// two equal-length arrays of numbers.
var Mul = Op{
	Symbol:  "*",
	forward: numericForward("*", func(x, y float64) float64 { return x * y }),
	reverse1: func(b, r value.Data) (value.Data, error) {
		y, ok := b.Num()
		if !ok || y == 0 {
			return value.Data{}, errors.Wrapf(ErrIncompatibleOperands, "*: can't reverse through zero or non-number divisor %s", b)
		}
		x, ok := r.Num()
		if !ok {
			return value.Data{}, incompatible("*", b, r)
		}
		return value.Number(x / y), nil
	},
	reverse2: func(a, r value.Data) (value.Data, error) {
		x, ok := a.Num()
		if !ok || x == 0 {
			return value.Data{}, errors.Wrapf(ErrIncompatibleOperands, "*: can't reverse through zero or non-number multiplicand %s", a)
		}
		y, ok := r.Num()
		if !ok {
			return value.Data{}, incompatible("*", a, r)
		}
		return value.Number(y / x), nil
	},
}

// Div is "/": numeric division, or element-wise division across two
// equal-length arrays of numbers. Division by zero fails.
var Div = Op{
	Symbol: "/",
	forward: numericForward("/", func(x, y float64) float64 {
		return x / y
	}),
	reverse1: func(b, r value.Data) (value.Data, error) {
		y, ok := b.Num()
		x, ok2 := r.Num()
		if !ok || !ok2 {
			return value.Data{}, incompatible("/", b, r)
		}
		return value.Number(x * y), nil
	},
	reverse2: func(a, r value.Data) (value.Data, error) {
		x, ok := a.Num()
		z, ok2 := r.Num()
		if !ok || !ok2 || z == 0 {
			return value.Data{}, errors.Wrapf(ErrIncompatibleOperands, "/: can't reverse through zero quotient or non-number %s", r)
		}
		return value.Number(x / z), nil
	},
}

func addScalar(a, b value.Data) (value.Data, error) { return Add.forward(a, b) }
func subScalar(a, b value.Data) (value.Data, error) { return Sub.forward(a, b) }

// ByName resolves a surface-syntax operator symbol to its Op, for use by the
// parser.
func ByName(symbol string) (Op, error) {
	switch symbol {
	case "+":
		return Add, nil
	case "-":
		return Sub, nil
	case "*":
		return Mul, nil
	case "/":
		return Div, nil
	default:
		return Op{}, fmt.Errorf("ops: unknown operator %q", symbol)
	}
}
