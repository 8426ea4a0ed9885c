/*
 *	Copyright 2023 Jan Pfeifer
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

// Package xslices provide missing functionality to the slices package, and the small integer
// arithmetic used to size work-groups and blocks.
package xslices

import (
	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Product returns the product of all elements. The product of an empty slice is 1.
func Product[T constraints.Integer](slice []T) T {
	p := T(1)
	for _, v := range slice {
		p *= v
	}
	return p
}

// CeilDiv returns ceil(a/b) for positive integers.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

// AlignUp rounds a up to the next multiple of align.
func AlignUp[T constraints.Integer](a, align T) T {
	return CeilDiv(a, align) * align
}

// Pad returns how much needs to be added to a to make it a multiple of align.
func Pad[T constraints.Integer](a, align T) T {
	return AlignUp(a, align) - a
}
