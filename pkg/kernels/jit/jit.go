// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package jit builds the table of named macro constants ("JIT constants") that a kernel
// template is compiled with.
//
// A table (Constants) is an ordered list of Constant entries. Each Constant has a name and
// expands into one or more Definition lines: a scalar expands into one line, a tensor
// into all its sizes, pitches and index macros. The table is only turned into text by
// Constants.Render, as a list of "#define NAME VALUE" lines.
package jit

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
)

// Definition is one "#define Name Value" line.
type Definition struct {
	Name, Value string
}

// Constant is one named entry of a Constants table.
type Constant interface {
	// Name of the constant. For constants that expand into several definitions this is the prefix.
	Name() string

	// Definitions this constant expands into, in order.
	Definitions() []Definition
}

// Scalar is a constant with a single definition. It keeps the original Go value.
type Scalar struct {
	name  string
	value any
	text  string
}

var _ Constant = Scalar{}

// Name implements Constant.
func (s Scalar) Name() string { return s.name }

// Value returns the Go value the constant was created with.
func (s Scalar) Value() any { return s.value }

// Text returns the value as it is written in the generated source.
func (s Scalar) Text() string { return s.text }

// Definitions implements Constant.
func (s Scalar) Definitions() []Definition {
	return []Definition{{Name: s.name, Value: s.text}}
}

// Make creates a constant from a Go value.
//
// Supported values: bool (rendered as 1 or 0), integers, floats, strings (verbatim),
// dtypes.DType (its device type name), shapes.Tensor, shapes.Weights and []Fragment.
// Other types panic, since they are a bug in the kernel code.
func Make(name string, value any) Constant {
	switch v := value.(type) {
	case shapes.Tensor:
		return MakeTensor(name, v)
	case shapes.Weights:
		return MakeWeights(name, v)
	case []Fragment:
		return MakeFragments(name, v)
	}
	return Scalar{name: name, value: value, text: ToCodeString(value)}
}

// ToCodeString converts a scalar Go value to its representation in the generated source.
func ToCodeString(value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "1"
		}
		return "0"
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return floatCodeString(float64(v), "f")
	case float64:
		return floatCodeString(v, "")
	case dtypes.DType:
		return v.CLType()
	case fmt.Stringer:
		return v.String()
	default:
		exceptions.Panicf("jit.ToCodeString: unsupported value type %T (%v)", value, value)
		panic(nil)
	}
}

func floatCodeString(v float64, suffix string) string {
	switch {
	case math.IsInf(v, 1):
		return "INFINITY"
	case math.IsInf(v, -1):
		return "-INFINITY"
	case math.IsNaN(v):
		return "NAN"
	}
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s + suffix
}

// Constants is the ordered table of constants of a kernel.
//
// Merging keeps insertion order. Adding a constant whose name is already present with
// exactly the same definitions is a no-op. Adding it with different definitions is a bug of
// the caller: it is not detected, the new constant is appended and becomes the one returned
// by Get.
//
// The zero value is an empty table ready to use.
type Constants struct {
	entries []Constant
	index   map[string]int
}

// New returns a table with the given constants.
func New(constants ...Constant) *Constants {
	c := &Constants{}
	c.AddConstants(constants...)
	return c
}

// AddConstant appends a constant to the table.
func (c *Constants) AddConstant(constant Constant) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	name := constant.Name()
	if idx, found := c.index[name]; found {
		if slices.Equal(c.entries[idx].Definitions(), constant.Definitions()) {
			return
		}
	}
	c.index[name] = len(c.entries)
	c.entries = append(c.entries, constant)
}

// AddConstants appends the given constants in order.
func (c *Constants) AddConstants(constants ...Constant) {
	for _, constant := range constants {
		c.AddConstant(constant)
	}
}

// Merge appends all constants of other, in its order. A nil other is a no-op.
func (c *Constants) Merge(other *Constants) {
	if other == nil {
		return
	}
	c.AddConstants(other.entries...)
}

// Len returns the number of constants (not definitions) in the table.
func (c *Constants) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Get returns the constant with the given name.
func (c *Constants) Get(name string) (Constant, bool) {
	if c == nil {
		return nil, false
	}
	idx, found := c.index[name]
	if !found {
		return nil, false
	}
	return c.entries[idx], true
}

// Has returns whether a constant with the given name is in the table.
func (c *Constants) Has(name string) bool {
	_, found := c.Get(name)
	return found
}

// Constants returns the constants of the table, in order.
func (c *Constants) Constants() []Constant {
	if c == nil {
		return nil
	}
	return slices.Clone(c.entries)
}

// Names returns the names of the constants of the table, in order.
func (c *Constants) Names() []string {
	names := make([]string, 0, c.Len())
	for _, constant := range c.Constants() {
		names = append(names, constant.Name())
	}
	return names
}

// Definitions returns all the definitions of the table, in order.
func (c *Constants) Definitions() []Definition {
	var defs []Definition
	for _, constant := range c.Constants() {
		defs = append(defs, constant.Definitions()...)
	}
	return defs
}

// Lookup searches the value of a definition, including those expanded from tensors
// (e.g. "OUTPUT_SIZE_X"). If the name is defined more than once, the last one is returned.
func (c *Constants) Lookup(definitionName string) (string, bool) {
	defs := c.Definitions()
	for ii := len(defs) - 1; ii >= 0; ii-- {
		if defs[ii].Name == definitionName {
			return defs[ii].Value, true
		}
	}
	return "", false
}

// Equal returns whether both tables expand to the same definitions.
func (c *Constants) Equal(other *Constants) bool {
	return slices.Equal(c.Definitions(), other.Definitions())
}

// Render returns the "#define" lines of the table.
func (c *Constants) Render() string {
	var sb strings.Builder
	for _, def := range c.Definitions() {
		sb.WriteString("#define ")
		sb.WriteString(def.Name)
		if def.Value != "" {
			sb.WriteString(" ")
			sb.WriteString(def.Value)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderUndefs returns the "#undef" lines matching Render, so that several kernels can be
// concatenated in one compilation unit.
func (c *Constants) RenderUndefs() string {
	var sb strings.Builder
	for _, def := range c.Definitions() {
		name := def.Name
		if idx := strings.Index(name, "("); idx >= 0 {
			name = name[:idx]
		}
		sb.WriteString("#undef ")
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return sb.String()
}

// MakeSize creates the pair of constants NAME_SIZE_X and NAME_SIZE_Y.
func MakeSize(name string, x, y int) []Constant {
	return []Constant{
		Make(name+"_SIZE_X", x),
		Make(name+"_SIZE_Y", y),
	}
}
