// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package activations describes the activation functions a kernel can apply to its output,
// and generates the macros implementing them.
//
// An activation is given by its Type and two parameters (M and N), whose meaning depends on the
// type (e.g. the slope of TypeReluNegativeSlope, or the bounds of TypeClamp).
//
// Use MakeJitConstants to create the NL_M, NL_N, ACTIVATION_PARAMS, ACTIVATION_FUNC and ACTIVATION
// macros of a list of activations.
package activations

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/pkg/errors"
)

// Type is an enum for the supported activation functions.
//
// It is converted to snake-format strings (e.g.: TypeReluNegativeSlope -> "relu_negative_slope").
type Type int

const (
	TypeNone Type = iota
	TypeRelu
	TypeReluNegativeSlope
	TypeClamp
	TypeLogistic
	TypeTanh
	TypeAbs
	TypeLinear
	TypeSqrt
	TypeSquare
	TypeElu
	TypeSoftRelu
	TypeHardSigmoid
	TypeSwish
	TypeGelu
)

var typeNames = []string{
	TypeNone:              "none",
	TypeRelu:              "relu",
	TypeReluNegativeSlope: "relu_negative_slope",
	TypeClamp:             "clamp",
	TypeLogistic:          "logistic",
	TypeTanh:              "tanh",
	TypeAbs:               "abs",
	TypeLinear:            "linear",
	TypeSqrt:              "sqrt",
	TypeSquare:            "square",
	TypeElu:               "elu",
	TypeSoftRelu:          "soft_relu",
	TypeHardSigmoid:       "hard_sigmoid",
	TypeSwish:             "swish",
	TypeGelu:              "gelu",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "Type(" + strconv.Itoa(int(t)) + ")"
	}
	return typeNames[t]
}

// TypeValues returns all the activation types.
func TypeValues() []Type {
	values := make([]Type, len(typeNames))
	for ii := range values {
		values[ii] = Type(ii)
	}
	return values
}

// TypeString converts the name of an activation to its type.
func TypeString(name string) (Type, error) {
	for ii, n := range typeNames {
		if n == name {
			return Type(ii), nil
		}
	}
	return TypeNone, errors.Errorf("invalid activation name %q: options are %v", name, TypeValues())
}

// FromName converts the name of an activation to its type.
// It panics with a helpful message if name is invalid.
//
// An empty string is converted to TypeNone.
func FromName(name string) Type {
	if name == "" {
		return TypeNone
	}
	t, err := TypeString(name)
	if err != nil {
		exceptions.Panicf("%v", err)
	}
	return t
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = TypeNone
		return nil
	}
	parsed, err := TypeString(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsTranscendental returns whether the activation uses exp, log, tanh, sqrt or erf, and hence
// can only be computed in floating point.
func (t Type) IsTranscendental() bool {
	switch t {
	case TypeLogistic, TypeTanh, TypeSqrt, TypeElu, TypeSoftRelu, TypeSwish, TypeGelu:
		return true
	default:
		return false
	}
}

// SupportsDType returns whether the activation can be generated for values of the given dtype.
func (t Type) SupportsDType(dtype dtypes.DType) bool {
	if t < 0 || int(t) >= len(typeNames) || !dtype.IsSupported() {
		return false
	}
	return dtype.IsFloat() || !t.IsTranscendental()
}

// Params of one activation.
type Params struct {
	Type Type    `json:"type"`
	M    float64 `json:"m,omitempty"`
	N    float64 `json:"n,omitempty"`
}

// Relu returns the parameters of a plain relu.
func Relu() Params { return Params{Type: TypeRelu} }

// ReluNegativeSlope returns the parameters of a leaky relu.
func ReluNegativeSlope(slope float64) Params {
	return Params{Type: TypeReluNegativeSlope, M: slope}
}

// Clamp returns the parameters of a clamp to [low, high].
func Clamp(low, high float64) Params {
	return Params{Type: TypeClamp, M: low, N: high}
}

// Function returns the body of the macro implementing the activation over `input`, given the
// parameter names m and n, for values of the given dtype.
//
// It panics if the activation doesn't support the dtype.
func (p Params) Function(dtype dtypes.DType, input, m, n string) string {
	if !p.Type.SupportsDType(dtype) {
		exceptions.Panicf("activation %s not supported for dtype %s", p.Type, dtype)
	}
	one, zero := dtype.Literal(1), dtype.Literal(0)
	maxFn, minFn, absFn := "max", "min", "abs"
	if dtype.IsFloat() {
		maxFn, minFn, absFn = "fmax", "fmin", "fabs"
	}
	cast := func(v string) string { return "((" + dtype.CLType() + ")(" + v + "))" }
	switch p.Type {
	case TypeNone:
		return "(" + input + ")"
	case TypeRelu:
		return "(" + maxFn + "(" + input + ", " + zero + "))"
	case TypeReluNegativeSlope:
		return "(" + maxFn + "(" + input + ", " + zero + ") + " + cast(m) + " * " + minFn + "(" + input + ", " + zero + "))"
	case TypeClamp:
		return "(" + maxFn + "(" + cast(m) + ", " + minFn + "(" + cast(n) + ", " + input + ")))"
	case TypeLogistic:
		return "(" + one + " / (" + one + " + exp(-" + input + ")))"
	case TypeTanh:
		return "(tanh(" + input + "))"
	case TypeAbs:
		return "(" + absFn + "(" + input + "))"
	case TypeLinear:
		return "(" + cast(m) + " * " + input + " + " + cast(n) + ")"
	case TypeSqrt:
		return "(sqrt(" + input + "))"
	case TypeSquare:
		return "(" + input + " * " + input + ")"
	case TypeElu:
		return "(" + maxFn + "(" + input + ", " + zero + ") + " + cast(m) + " * (exp(" + minFn + "(" + input + ", " + zero + ")) - " + one + "))"
	case TypeSoftRelu:
		return "(log(" + one + " + exp(" + input + ")))"
	case TypeHardSigmoid:
		return "(" + maxFn + "(" + zero + ", " + minFn + "(" + one + ", " + cast(m) + " * " + input + " + " + cast(n) + ")))"
	case TypeSwish:
		return "(" + input + " / (" + one + " + exp(-" + cast(m) + " * " + input + ")))"
	case TypeGelu:
		return "(" + dtype.Literal(0.5) + " * " + input + " * (" + one + " + erf(" + input + " * " + dtype.Literal(0.7071067811865476) + ")))"
	}
	exceptions.Panicf("unknown activation type %d", p.Type)
	panic(nil)
}

// MakeJitConstants returns the macros implementing the list of activations, applied in order,
// for values of the given dtype.
//
// For each activation i the parameters are NL_M<suffix>_<i> and NL_N<suffix>_<i>. The final macros are:
//
//   - ACTIVATION_PARAMS<suffix>: the comma separated list of all parameters.
//   - ACTIVATION_FUNC<suffix>(input, params): applies the whole chain with explicit parameters.
//   - ACTIVATION<suffix>(input, params): same as ACTIVATION_FUNC<suffix>.
//
// With a single activation the parameters are simply NL_M<suffix> and NL_N<suffix>, and
// ACTIVATION_FUNC<suffix> takes (input, m, n). An empty list is the same as [TypeNone].
func MakeJitConstants(acts []Params, dtype dtypes.DType, suffix string) *jit.Constants {
	if len(acts) == 0 {
		acts = []Params{{Type: TypeNone}}
	}
	constants := jit.New()
	if len(acts) == 1 {
		act := acts[0]
		mName, nName := "NL_M"+suffix, "NL_N"+suffix
		constants.AddConstants(
			jit.Make(mName, dtype.Literal(dtype.RoundToDType(act.M))),
			jit.Make(nName, dtype.Literal(dtype.RoundToDType(act.N))),
			jit.Make("ACTIVATION_PARAMS"+suffix, mName+", "+nName),
			jit.Make("ACTIVATION_FUNC"+suffix+"(input, m, n)", act.Function(dtype, "input", "m", "n")),
			jit.Make("ACTIVATION"+suffix+"(input, params)", "ACTIVATION_FUNC"+suffix+"(input, params)"),
		)
		return constants
	}

	var allParams, paramArgs string
	body := "input"
	for ii, act := range acts {
		idx := "_" + strconv.Itoa(ii)
		mName, nName := "NL_M"+suffix+idx, "NL_N"+suffix+idx
		constants.AddConstants(
			jit.Make(mName, dtype.Literal(dtype.RoundToDType(act.M))),
			jit.Make(nName, dtype.Literal(dtype.RoundToDType(act.N))),
		)
		if ii > 0 {
			allParams += ", "
			paramArgs += ", "
		}
		allParams += mName + ", " + nName
		m, n := "m"+strconv.Itoa(ii), "n"+strconv.Itoa(ii)
		paramArgs += m + ", " + n
		body = act.Function(dtype, body, m, n)
	}
	constants.AddConstants(
		jit.Make("ACTIVATION_PARAMS"+suffix, allParams),
		jit.Make("ACTIVATION_FUNC"+suffix+"(input, "+paramArgs+")", body),
		jit.Make("ACTIVATION"+suffix+"(input, params)", "ACTIVATION_FUNC"+suffix+"(input, params)"),
	)
	return constants
}
