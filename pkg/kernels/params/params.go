// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package params defines the descriptors of the operations a kernel is selected for.
//
// A descriptor (e.g. Convolution) is supplied fully populated by the caller and is read-only to
// kernel selection. Base holds what is common to all operations: operands, fused operations
// and the engine the kernel will run on. Check validates the preconditions of a descriptor,
// and RequiredKey derives the capability key a kernel variant must support.
package params

import (
	"slices"
	"strconv"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/activations"
	"github.com/gomlx/kernelselector/pkg/kernels/capabilities"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/pkg/errors"
)

// Kind of operation described.
type Kind int

const (
	KindUnknown Kind = iota
	KindConvolution
)

var kindNames = []string{
	KindUnknown:     "unknown",
	KindConvolution: "convolution",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for ii, name := range kindNames {
		if name == string(text) {
			*k = Kind(ii)
			return nil
		}
	}
	return errors.Errorf("unknown operation kind %q", string(text))
}

// Base holds the parameters common to all operations.
type Base struct {
	Kind Kind `json:"kind"`

	// LayerID is an opaque identifier of the operation in the graph. It is used to generate unique
	// names.
	LayerID string `json:"layer_id"`

	Inputs []shapes.Tensor `json:"inputs"`
	Output shapes.Tensor   `json:"output"`

	// Activations applied to the output by the kernel itself, in order.
	Activations []activations.Params `json:"activations,omitempty"`

	// FusedOps is the chain of operations fused on the output. The order is significant.
	FusedOps []fusedops.Desc `json:"fused_ops,omitempty"`

	Engine EngineInfo `json:"engine"`

	// Gradient is set for kernels computing a gradient (training).
	Gradient bool `json:"gradient,omitempty"`
}

// Options are the selection options given by the caller.
type Options struct {
	// AllowStaticInputReordering allows selecting a kernel that needs its weights in a different
	// layout than the one given: the weights are then reordered once, ahead of time.
	AllowStaticInputReordering bool `json:"allow_static_input_reordering,omitempty"`

	// AllowInputReordering allows selecting a kernel that needs its input in a different layout
	// or with more padding: the input is reordered before each execution.
	AllowInputReordering bool `json:"allow_input_reordering,omitempty"`
}

// Check returns an error if the descriptor doesn't satisfy the preconditions common to all
// operations.
func (b *Base) Check() error { return b.check(b) }

// check verifies the common preconditions, with the activations checked against the unit type
// of the full descriptor p.
func (b *Base) check(p Params) error {
	if len(b.Inputs) == 0 {
		return errors.Errorf("operation %q (%s) has no inputs", b.LayerID, b.Kind)
	}
	for ii, input := range b.Inputs {
		if !input.Ok() {
			return errors.Errorf("operation %q (%s): invalid input #%d %s", b.LayerID, b.Kind, ii, input)
		}
	}
	if !b.Output.Ok() {
		return errors.Errorf("operation %q (%s): invalid output %s", b.LayerID, b.Kind, b.Output)
	}
	unitType := UnitType(p)
	for ii, act := range b.Activations {
		if !act.Type.SupportsDType(unitType) {
			return errors.Errorf("operation %q (%s): activation #%d %s not supported for unit type %s",
				b.LayerID, b.Kind, ii, act.Type, unitType)
		}
	}
	for ii, op := range b.FusedOps {
		if op.OpID != ii {
			return errors.Errorf("operation %q (%s): fused op #%d has op id %d, it must match its position in the chain",
				b.LayerID, b.Kind, ii, op.OpID)
		}
		if err := op.Check(); err != nil {
			return errors.WithMessagef(err, "operation %q (%s)", b.LayerID, b.Kind)
		}
	}
	if err := b.Engine.Check(); err != nil {
		return errors.WithMessagef(err, "operation %q (%s)", b.LayerID, b.Kind)
	}
	return nil
}

// Params is implemented by all operation descriptors.
type Params interface {
	// GetBase returns the parameters common to all operations.
	GetBase() *Base

	// OperandDTypes returns the dtypes of all operands of the operation, including the output.
	OperandDTypes() []dtypes.DType

	// RequiredKey returns the capabilities a kernel must have to implement the operation.
	RequiredKey() capabilities.Key

	// Check returns an error if the descriptor doesn't satisfy the preconditions of the operation.
	Check() error
}

// Assert Base is a Params.
var _ Params = (*Base)(nil)

// GetBase implements Params.
func (b *Base) GetBase() *Base { return b }

// unitTypePriority lists, in order, the dtypes that take precedence as the unit type.
var unitTypePriority = []dtypes.DType{dtypes.Int8, dtypes.Float16, dtypes.Int32, dtypes.Int64, dtypes.Uint8, dtypes.Uint32}

// UnitType returns the dtype used for the intermediary computations of a kernel of p: the first
// of Int8, Float16, Int32, Int64, Uint8 and Uint32 used by any operand, or Float32 if none is used.
func UnitType(p Params) dtypes.DType {
	used := p.OperandDTypes()
	for _, dtype := range unitTypePriority {
		if slices.Contains(used, dtype) {
			return dtype
		}
	}
	return dtypes.Float32
}

// OperandDTypes returns the dtypes of the inputs and the output, in order, output last.
func (b *Base) OperandDTypes() []dtypes.DType {
	result := make([]dtypes.DType, 0, len(b.Inputs)+1)
	for _, input := range b.Inputs {
		result = append(result, input.DType)
	}
	return append(result, b.Output.DType)
}

// RequiredKey returns the capabilities a kernel must have to implement the operation.
func (b *Base) RequiredKey() capabilities.Key {
	key := capabilities.MakeKey()
	key.EngineFeatures = b.Engine.Features()
	for _, input := range b.Inputs {
		key.EnableInputDType(input.DType).EnableInputLayout(input.Layout)
		b.enableTensorFeatures(key, input)
		if input.DType != b.Output.DType {
			key.Enable(capabilities.FeatureDifferentTypes)
		}
	}
	key.EnableOutputDType(b.Output.DType).EnableOutputLayout(b.Output.Layout)
	b.enableTensorFeatures(key, b.Output)
	if len(b.FusedOps) > 0 {
		key.Enable(capabilities.FeatureFusedOps)
	}
	if b.Gradient {
		key.Enable(capabilities.FeatureGradient)
	}
	return key
}

func (b *Base) enableTensorFeatures(key capabilities.Key, tensor shapes.Tensor) {
	if tensor.Dims[shapes.AxisBatch] > 1 {
		key.Enable(capabilities.FeatureBatching)
	}
	if tensor.HasPadding() {
		key.Enable(capabilities.FeatureTensorPitches)
	}
	if tensor.ViewOffset != 0 {
		key.Enable(capabilities.FeatureTensorOffset)
	}
}
