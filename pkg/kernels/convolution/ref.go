// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convolution

import (
	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/capabilities"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
)

// RefName is the name of the reference convolution kernel.
const RefName = "convolution_gpu_ref"

// Ref is the reference convolution over planar (bfyx) tensors: one work-item per output
// element, with boundary checks on the input. It applies to almost anything and is the
// last resort of the selection.
type Ref struct {
	Base
}

// Assert Ref is a kernel.Variant.
var _ kernel.Variant = (*Ref)(nil)

// NewRef creates the reference convolution variant.
func NewRef() *Ref {
	return &Ref{
		Base: NewBase(RefName, fusedops.TypeEltwise, fusedops.TypeScale, fusedops.TypeActivation,
			fusedops.TypeQuantize, fusedops.TypeReorder),
	}
}

var refDTypes = []dtypes.DType{dtypes.Float16, dtypes.Float32, dtypes.Int8}

// GetSupportedKey implements kernel.Variant.
func (k *Ref) GetSupportedKey() capabilities.Key {
	return capabilities.MakeKey().
		EnableInputDType(refDTypes...).
		EnableOutputDType(refDTypes...).
		EnableWeightsDType(refDTypes...).
		EnableInputLayout(shapes.LayoutBFYX).
		EnableOutputLayout(shapes.LayoutBFYX).
		Enable(
			capabilities.FeatureBiasPerFeature,
			capabilities.FeatureBiasPerOutput,
			capabilities.FeatureNonBias,
			capabilities.FeatureBatching,
			capabilities.FeatureDilation,
			capabilities.FeatureTensorPitches,
			capabilities.FeatureTensorOffset,
			capabilities.FeatureGroupedConvolution,
			capabilities.FeatureSplit,
			capabilities.FeatureQuantization,
			capabilities.FeatureFusedOps,
			capabilities.FeatureDifferentTypes,
		)
}

// Validate implements kernel.Variant.
func (k *Ref) Validate(p params.Params, opts params.Options) bool {
	conv := asConvolution(p)
	if conv == nil || !k.ValidateFamily(conv, opts, k.GetPreferredWeightsLayout(conv)) {
		return false
	}
	if conv.Quantization != params.QuantizationNone && conv.Inputs[0].DType != dtypes.Int8 {
		return k.reject(conv, "quantization requires an int8 input, got %s", conv.Inputs[0].DType)
	}
	if conv.DepthwiseSeparableOpt {
		return k.reject(conv, "depthwise separable optimization not supported")
	}
	return true
}

// accumulatorTypes returns the dtype used to accumulate the products, and the dtype of the
// (dequantized) result the activations and fused operations are applied to.
func accumulatorTypes(conv *params.Convolution) (accumulator, activation dtypes.DType) {
	unitType := kernel.GetUnitType(conv)
	if unitType.IsInt() {
		return dtypes.Int32, dtypes.Float32
	}
	return unitType, unitType
}

// SetDefault returns the family default geometry. The reference kernel has no tuned
// configurations, so autoTuneIndex is ignored.
func (k *Ref) SetDefault(conv *params.Convolution, _ int) kernel.DispatchData {
	return k.SetDefaultFamily(conv)
}

// GetJitConstants returns the constants of the kernel.
func (k *Ref) GetJitConstants(conv *params.Convolution, dispatch kernel.DispatchData) *jit.Constants {
	constants := k.FamilyJitConstants(conv, dispatch)
	accumulator, activation := accumulatorTypes(conv)
	constants.AddConstants(
		jit.Make("ACCUMULATOR_TYPE", accumulator),
		jit.Make("ACTIVATION_TYPE", activation),
	)
	if len(conv.FusedOps) > 0 {
		conf := fusedops.NewConfiguration("", [shapes.NumAxes]string{"b", "f", "y", "x"}, "dequantized", activation)
		constants.Merge(k.MakeFusedOpsJitConstants(conv, []fusedops.Configuration{conf}))
	}
	return constants
}

// GetKernelsData implements kernel.Variant.
func (k *Ref) GetKernelsData(ids *kernel.UniqueIDs, p params.Params, opts params.Options) (*kernel.KernelData, error) {
	return k.GetCommonKernelsData(ids, k, p, opts, ExeModeDefault, kernel.AutoTuneIndexUnset)
}

// GetTunedKernelsDataByIndex implements kernel.Variant. There are no tuned configurations: it
// is the same as GetKernelsData.
func (k *Ref) GetTunedKernelsDataByIndex(ids *kernel.UniqueIDs, p params.Params, opts params.Options, _ int) (*kernel.KernelData, error) {
	return k.GetKernelsData(ids, p, opts)
}

// GetKernelsDataForAutoTune implements kernel.Variant: the only configuration is the default.
func (k *Ref) GetKernelsDataForAutoTune(ids *kernel.UniqueIDs, p params.Params, opts params.Options) ([]*kernel.KernelData, error) {
	kd, err := k.GetKernelsData(ids, p, opts)
	if err != nil || kd == nil {
		return nil, err
	}
	return []*kernel.KernelData{kd}, nil
}
