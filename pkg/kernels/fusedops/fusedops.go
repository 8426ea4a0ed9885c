// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fusedops describes the operations fused onto the output of a kernel (elementwise,
// scale, quantize, activation and reorder) and generates their code.
//
// A kernel's fused operations form a chain: operation i+1 consumes the value produced by
// operation i. Each operation is described by a Desc, and its code is generated by a
// CodeGenerator for each Configuration (the context where the chain is applied in the kernel,
// e.g. one per output tile).
package fusedops

import (
	"strconv"

	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/activations"
	"github.com/pkg/errors"
)

// Type of fused operation.
type Type int

const (
	TypeUnknown Type = iota
	TypeEltwise
	TypeScale
	TypeQuantize
	TypeActivation
	TypeReorder
)

var typeNames = []string{
	TypeUnknown:    "unknown",
	TypeEltwise:    "eltwise",
	TypeScale:      "scale",
	TypeQuantize:   "quantize",
	TypeActivation: "activation",
	TypeReorder:    "reorder",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// TypeValues returns all fused operation types, including TypeUnknown.
func TypeValues() []Type {
	values := make([]Type, len(typeNames))
	for ii := range values {
		values[ii] = Type(ii)
	}
	return values
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	for ii, name := range typeNames {
		if name == string(text) {
			*t = Type(ii)
			return nil
		}
	}
	return errors.Errorf("unknown fused operation type %q", string(text))
}

// EltwiseMode is the binary operation of an elementwise fused operation.
type EltwiseMode int

const (
	EltwiseSum EltwiseMode = iota
	EltwiseSub
	EltwiseProd
	EltwiseDiv
	EltwiseMax
	EltwiseMin
)

var eltwiseModeNames = []string{
	EltwiseSum:  "sum",
	EltwiseSub:  "sub",
	EltwiseProd: "prod",
	EltwiseDiv:  "div",
	EltwiseMax:  "max",
	EltwiseMin:  "min",
}

// String implements fmt.Stringer.
func (m EltwiseMode) String() string {
	if m < 0 || int(m) >= len(eltwiseModeNames) {
		return "EltwiseMode(" + strconv.Itoa(int(m)) + ")"
	}
	return eltwiseModeNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m EltwiseMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *EltwiseMode) UnmarshalText(text []byte) error {
	for ii, name := range eltwiseModeNames {
		if name == string(text) {
			*m = EltwiseMode(ii)
			return nil
		}
	}
	return errors.Errorf("unknown eltwise mode %q", string(text))
}

// EltwiseParams of an elementwise operation: the value flowing in the chain is combined with
// Tensors[0].
type EltwiseParams struct {
	Mode EltwiseMode `json:"mode"`
}

// ScaleParams of a scale operation: the value is multiplied by Tensors[0] and, if HasShift,
// Tensors[1] is added.
type ScaleParams struct {
	HasShift bool `json:"has_shift,omitempty"`
}

// QuantizeParams of a quantize operation. The tensors are, in order, the input low and high
// limits and the output low and high limits.
type QuantizeParams struct {
	Levels int `json:"levels"`
}

// Desc describes one fused operation.
type Desc struct {
	// OpID is the position of the operation in the chain.
	OpID int `json:"op_id"`

	Type Type `json:"type"`

	// Tensors read by the operation, in addition to the value flowing in the chain.
	Tensors []shapes.Tensor `json:"tensors,omitempty"`

	// Output of the operation: only its dtype is used to generate code.
	Output shapes.Tensor `json:"output"`

	Eltwise    EltwiseParams      `json:"eltwise,omitempty"`
	Scale      ScaleParams        `json:"scale,omitempty"`
	Quantize   QuantizeParams     `json:"quantize,omitempty"`
	Activation activations.Params `json:"activation,omitempty"`
}

// NumTensors returns the number of extra tensors an operation of the given type reads.
// It returns -1 for TypeScale, which takes one or two.
func (t Type) NumTensors() int {
	switch t {
	case TypeEltwise:
		return 1
	case TypeQuantize:
		return 4
	case TypeScale:
		return -1
	default:
		return 0
	}
}

// Check returns an error if the description is inconsistent.
func (d Desc) Check() error {
	if d.Type <= TypeUnknown || int(d.Type) >= len(typeNames) {
		return errors.Errorf("fused op #%d: invalid type %s", d.OpID, d.Type)
	}
	if !d.Output.Ok() {
		return errors.Errorf("fused op #%d (%s): invalid output %s", d.OpID, d.Type, d.Output)
	}
	want := d.Type.NumTensors()
	if d.Type == TypeScale {
		want = 1
		if d.Scale.HasShift {
			want = 2
		}
	}
	if len(d.Tensors) != want {
		return errors.Errorf("fused op #%d (%s): expected %d tensors, got %d", d.OpID, d.Type, want, len(d.Tensors))
	}
	for ii, tensor := range d.Tensors {
		if !tensor.Ok() {
			return errors.Errorf("fused op #%d (%s): invalid tensor #%d %s", d.OpID, d.Type, ii, tensor)
		}
	}
	switch d.Type {
	case TypeQuantize:
		if d.Quantize.Levels < 2 {
			return errors.Errorf("fused op #%d (quantize): levels must be >= 2, got %d", d.OpID, d.Quantize.Levels)
		}
	case TypeActivation:
		if !d.Activation.Type.SupportsDType(d.Output.DType) {
			return errors.Errorf("fused op #%d (activation): %s not supported for %s", d.OpID, d.Activation.Type, d.Output.DType)
		}
	}
	return nil
}
