// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package convolution implements the kernel variants of the convolution operation.
//
// Base holds the logic shared by all variants: validation of the descriptor, default dispatch
// geometry, the convolution JIT constants and the assembly of the KernelData. Each variant
// embeds it and refines Validate, SetDefault and GetJitConstants, calling the family
// versions (ValidateFamily, SetDefaultFamily and FamilyJitConstants) first.
//
// The variants are registered with kernel.Register when the package is imported.
package convolution

import (
	"fmt"
	"hash/fnv"

	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"k8s.io/klog/v2"
)

func init() {
	kernel.Register(DepthwiseFsv32Name, func() kernel.Variant { return NewDepthwiseFsv32() })
	kernel.Register(RefName, func() kernel.Variant { return NewRef() })
}

// Execution modes: compiler options passed along with the kernel, tried by the autotune catalogs.
const (
	ExeModeDefault         = ""
	ExeModeNoPreRASchedule = "-cl-intel-no-prera-scheduling"
	ExeModeAgeBased        = "-cl-no-subgroup-ifp"
)

// exeModes is the list of execution modes of the family, in catalog order.
var exeModes = []string{ExeModeDefault, ExeModeNoPreRASchedule, ExeModeAgeBased}

// implementation is what GetCommonKernelsData needs from a convolution variant.
type implementation interface {
	Name() string
	GetPreferredWeightsLayout(conv *params.Convolution) shapes.WeightsLayout
	NeedPaddedInput() bool
	Validate(p params.Params, opts params.Options) bool
	SetDefault(conv *params.Convolution, autoTuneIndex int) kernel.DispatchData
	GetJitConstants(conv *params.Convolution, dispatch kernel.DispatchData) *jit.Constants
}

// Base of the convolution kernel variants.
type Base struct {
	kernel.Base
}

// NewBase creates the family base of the variant with the given name, supporting the given
// fused operation types.
func NewBase(name string, supportedFusedOps ...fusedops.Type) Base {
	return Base{Base: kernel.NewBase(name, supportedFusedOps...)}
}

// GetPreferredWeightsLayout returns the family default: oiyx, or goiyx for grouped convolutions.
func (b *Base) GetPreferredWeightsLayout(conv *params.Convolution) shapes.WeightsLayout {
	if conv.Groups > 1 {
		return shapes.WeightsLayoutGOIYX
	}
	return shapes.WeightsLayoutOIYX
}

// NeedPaddedInput returns the family default: kernels check the input boundaries themselves.
func (b *Base) NeedPaddedInput() bool { return false }

// reject logs why a variant can't be used, and returns false.
func (b *Base) reject(conv *params.Convolution, format string, args ...any) bool {
	klog.V(1).Infof("kernel %s: rejected for %q, %s", b.Name(), conv.LayerID, fmt.Sprintf(format, args...))
	return false
}

// ValidateFamily checks what is common to all convolution variants: the descriptor kind and
// preconditions, the weights layout (unless it can be reordered statically) and the fused operations.
func (b *Base) ValidateFamily(conv *params.Convolution, opts params.Options, preferredWeights shapes.WeightsLayout) bool {
	if conv.Kind != params.KindConvolution {
		return b.reject(conv, "kind %s is not a convolution", conv.Kind)
	}
	if err := conv.Check(); err != nil {
		return b.reject(conv, "invalid descriptor: %v", err)
	}
	if conv.Weights.Layout != preferredWeights && !opts.AllowStaticInputReordering {
		return b.reject(conv, "weights layout %s, kernel requires %s", conv.Weights.Layout, preferredWeights)
	}
	for _, op := range conv.FusedOps {
		if !b.IsFusedPrimitiveSupported(op) {
			return b.reject(conv, "fused operation #%d of type %s not supported", op.OpID, op.Type)
		}
	}
	return true
}

// SetDefaultFamily returns the default dispatch geometry: one work-item per output element.
func (b *Base) SetDefaultFamily(conv *params.Convolution) kernel.DispatchData {
	out := conv.Output
	var dispatch kernel.DispatchData
	x, y, fb := out.Dims[shapes.AxisX], out.Dims[shapes.AxisY], out.Dims[shapes.AxisFeature]*out.Dims[shapes.AxisBatch]
	if out.Layout == shapes.LayoutBFYX || out.Layout == shapes.LayoutBYXF {
		dispatch.GWS = [3]int{x, y, fb}
	} else {
		dispatch.GWS = [3]int{fb, x, y}
	}
	dispatch.LWS = kernel.GetOptimalLocalWorkGroupSizes(dispatch.GWS, conv.Engine)
	dispatch.CLDNNStyle = kernel.CLDNNStyle{BlockWidth: 1, BlockHeight: 1}
	dispatch.Efficiency = kernel.DontUseIfHaveSomethingElse
	return dispatch
}

// FamilyJitConstants returns the constants common to all convolution kernels: the base
// constants, the filter and bias tensors, and the convolution parameters.
func (b *Base) FamilyJitConstants(conv *params.Convolution, _ kernel.DispatchData) *jit.Constants {
	constants := b.MakeBaseParamsJitConstants(conv)
	constants.AddConstant(jit.Make("FILTER", conv.Weights))
	constants.AddConstant(jit.Make("BIAS_TERM", len(conv.Bias) > 0))
	if len(conv.Bias) > 0 {
		constants.AddConstant(jit.Make("BIAS", conv.Bias[0]))
		if conv.BiasPerOutput() {
			constants.AddConstant(jit.Make("BIAS_PER_OUTPUT", true))
		} else {
			constants.AddConstant(jit.Make("BIAS_PER_OFM", true))
		}
	}

	input := conv.Inputs[0]
	pitches := input.Pitches()
	offsetWithPadding := input.FirstElementOffset() - conv.Padding.X*pitches[shapes.AxisX] - conv.Padding.Y*pitches[shapes.AxisY]
	constants.AddConstants(jit.MakeSize("STRIDE", conv.Stride.X, conv.Stride.Y)...)
	constants.AddConstants(jit.MakeSize("PADDING", conv.Padding.X, conv.Padding.Y)...)
	constants.AddConstants(jit.MakeSize("DILATION", conv.Dilation.X, conv.Dilation.Y)...)
	constants.AddConstants(
		jit.Make("FILTER_ARRAY_NUM", conv.Split*conv.Groups),
		jit.Make("INPUT0_OFFSET_WITH_PADDING", max(offsetWithPadding, 0)),
		jit.Make("DEPTHWISE_SEPARABLE_OPT", conv.DepthwiseSeparableOpt),
		jit.Make("QUANTIZATION_TERM", conv.Quantization != params.QuantizationNone),
		jit.Make("GROUPED", conv.Groups > 1),
	)
	return constants
}

// RequiredPaddedInput returns the input with the padding needed by kernels that read it
// without boundary checks: the convolution padding before, and enough padding after to cover
// the receptive field of the last output element.
func RequiredPaddedInput(conv *params.Convolution) shapes.Tensor {
	input := conv.Inputs[0]
	filter := conv.FilterSize()
	limitX := (conv.Output.Dims[shapes.AxisX]-1)*conv.Stride.X + (filter.X-1)*conv.Dilation.X + 1
	limitY := (conv.Output.Dims[shapes.AxisY]-1)*conv.Stride.Y + (filter.Y-1)*conv.Dilation.Y + 1
	afterX := max(limitX-input.Dims[shapes.AxisX]-conv.Padding.X, 0)
	afterY := max(limitY-input.Dims[shapes.AxisY]-conv.Padding.Y, 0)
	return input.
		WithPadding(shapes.AxisX, conv.Padding.X, afterX).
		WithPadding(shapes.AxisY, conv.Padding.Y, afterY)
}

// hasPadding returns whether the input has at least the padding of required on the spatial axes.
func hasPadding(input, required shapes.Tensor) bool {
	for _, axis := range []shapes.Axis{shapes.AxisX, shapes.AxisY} {
		got, want := input.Padding[axis], required.Padding[axis]
		if got.Before < want.Before || got.After < want.After {
			return false
		}
	}
	return true
}

// entryPoint returns the unique name of the generated kernel function.
func entryPoint(name, layerID string, ids *kernel.UniqueIDs) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(layerID))
	return fmt.Sprintf("%s_%d_%d", name, h.Sum32(), ids.Next())
}

// asConvolution returns the convolution descriptor, or nil if p is not one.
func asConvolution(p params.Params) *params.Convolution {
	conv, _ := p.(*params.Convolution)
	return conv
}

// GetCommonKernelsData assembles the KernelData of a variant for the autotune configuration
// autoTuneIndex (which may be kernel.AutoTuneIndexUnset).
//
// It returns nil if the variant can't be applied, and an error if the descriptor is invalid.
func (b *Base) GetCommonKernelsData(ids *kernel.UniqueIDs, impl implementation, p params.Params, opts params.Options,
	exeMode string, autoTuneIndex int) (*kernel.KernelData, error) {
	conv := asConvolution(p)
	if conv == nil {
		return nil, nil
	}
	if err := conv.Check(); err != nil {
		return nil, err
	}
	if !impl.Validate(conv, opts) {
		return nil, nil
	}

	// Work on a copy: the descriptor belongs to the caller.
	work := *conv
	work.Inputs = append([]shapes.Tensor(nil), conv.Inputs...)
	kd := &kernel.KernelData{
		KernelName:    impl.Name(),
		AutoTuneIndex: autoTuneIndex,
		ExeMode:       exeMode,
	}
	if impl.NeedPaddedInput() {
		required := RequiredPaddedInput(conv)
		if !hasPadding(conv.Inputs[0], required) {
			if !opts.AllowInputReordering {
				b.reject(conv, "input %s lacks the padding of %s", conv.Inputs[0], required)
				return nil, nil
			}
			klog.Warningf("kernel %s: input of %q is reordered to %s", impl.Name(), conv.LayerID, required)
			work.Inputs[0] = required
			kd.ReorderInput = true
			kd.RequiredInput = required
		}
	}
	if preferred := impl.GetPreferredWeightsLayout(conv); conv.Weights.Layout != preferred {
		klog.Warningf("kernel %s: weights of %q are reordered from %s to %s", impl.Name(), conv.LayerID,
			conv.Weights.Layout, preferred)
		work.Weights = conv.Weights.WithLayout(preferred)
		kd.WeightsReorder = &kernel.WeightsReorder{From: conv.Weights, To: work.Weights}
	}

	kd.Dispatch = impl.SetDefault(&work, autoTuneIndex)
	if err := kernel.CheckWorkGroups(kd.Dispatch); err != nil {
		klog.Warningf("kernel %s: invalid dispatch for %q: %v", impl.Name(), conv.LayerID, err)
		return nil, nil
	}
	kd.Constants = impl.GetJitConstants(&work, kd.Dispatch)
	kd.EntryPoint = entryPoint(impl.Name(), conv.LayerID, ids)
	kd.Arguments = []kernel.Argument{
		{Kind: kernel.ArgInput},
		{Kind: kernel.ArgOutput},
		{Kind: kernel.ArgWeights},
	}
	if len(conv.Bias) > 0 {
		kd.Arguments = append(kd.Arguments, kernel.Argument{Kind: kernel.ArgBias})
	}
	kd.Arguments = append(kd.Arguments, kernel.FusedOpsArguments(conv)...)
	kd.EstimatedTime = kd.Dispatch.Efficiency
	return kd, nil
}
