// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convolution

import (
	"math"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/capabilities"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/gomlx/kernelselector/pkg/support/xslices"
	"k8s.io/klog/v2"
)

// DepthwiseFsv32Name is the name of the depthwise convolution kernel for the fs_b_yx_fsv32 layout.
const DepthwiseFsv32Name = "convolution_gpu_fs_byx_fsv32_depthwise"

const (
	depthwiseSubGroupSize  = 16
	depthwiseFsv           = 32
	depthwiseFsvPerThread  = depthwiseFsv / depthwiseSubGroupSize
	depthwiseWeightsRegs   = 2
	depthwiseRegsPerOutput = 2
	depthwiseRegsPerInput  = 2
)

// AutoTuneOption is one configuration of the autotune catalog of a variant.
type AutoTuneOption struct {
	// BlockWidth is the number of output elements along x computed by one work-item.
	BlockWidth int

	// ExeMode is a scheduling hint for the device compiler.
	ExeMode string
}

// DepthwiseFsv32 is a depthwise convolution (one group per feature) over the fs_b_yx_fsv32
// layout. Each sub-group of 16 work-items computes a block of BlockWidth output elements along x
// for one slice of 32 features, each work-item handling 2 features.
type DepthwiseFsv32 struct {
	Base
	autoTuneOptions []AutoTuneOption
}

// Assert DepthwiseFsv32 is a kernel.Variant.
var _ kernel.Variant = (*DepthwiseFsv32)(nil)

// NewDepthwiseFsv32 creates the variant and its autotune catalog.
func NewDepthwiseFsv32() *DepthwiseFsv32 {
	k := &DepthwiseFsv32{
		Base: NewBase(DepthwiseFsv32Name,
			fusedops.TypeEltwise, fusedops.TypeQuantize, fusedops.TypeScale, fusedops.TypeActivation),
	}
	for _, blockWidth := range []int{1, 2, 4, 8, 16} {
		for _, exeMode := range exeModes {
			k.autoTuneOptions = append(k.autoTuneOptions, AutoTuneOption{BlockWidth: blockWidth, ExeMode: exeMode})
		}
	}
	return k
}

// GetSupportedKey implements kernel.Variant.
func (k *DepthwiseFsv32) GetSupportedKey() capabilities.Key {
	return capabilities.MakeKey().
		EnableInputDType(dtypes.Float16).
		EnableOutputDType(dtypes.Float16).
		EnableWeightsDType(dtypes.Float16).
		EnableInputLayout(shapes.LayoutFsBYXFsv32).
		EnableOutputLayout(shapes.LayoutFsBYXFsv32).
		Enable(
			capabilities.FeatureBiasPerFeature,
			capabilities.FeatureNonBias,
			capabilities.FeatureBatching,
			capabilities.FeatureDilation,
			capabilities.FeatureTensorPitches,
			capabilities.FeatureTensorOffset,
			capabilities.FeatureDepthwiseSeparableOpt,
			capabilities.FeatureGroupedConvolution,
			capabilities.FeatureFusedOps,
		).
		RequireEngine(capabilities.EngineSubGroup, capabilities.EngineSubGroupShort)
}

// GetPreferredWeightsLayout returns gs_oiyx_gsv32.
func (k *DepthwiseFsv32) GetPreferredWeightsLayout(*params.Convolution) shapes.WeightsLayout {
	return shapes.WeightsLayoutGsOIYXGsv32
}

// NeedPaddedInput returns true: the kernel reads full input blocks without boundary checks.
func (k *DepthwiseFsv32) NeedPaddedInput() bool { return true }

// AutoTuneOptions returns the autotune catalog.
func (k *DepthwiseFsv32) AutoTuneOptions() []AutoTuneOption {
	return append([]AutoTuneOption(nil), k.autoTuneOptions...)
}

// Validate implements kernel.Variant.
func (k *DepthwiseFsv32) Validate(p params.Params, opts params.Options) bool {
	conv := asConvolution(p)
	if conv == nil || !k.ValidateFamily(conv, opts, k.GetPreferredWeightsLayout(conv)) {
		return false
	}
	if conv.Groups < depthwiseSubGroupSize {
		return k.reject(conv, "%d groups, at least %d required", conv.Groups, depthwiseSubGroupSize)
	}
	if conv.Inputs[0].Dims[shapes.AxisFeature] != conv.Groups || conv.Output.Dims[shapes.AxisFeature] != conv.Groups {
		return k.reject(conv, "not depthwise, features must be equal to the %d groups", conv.Groups)
	}
	if pad := conv.Output.Padding[shapes.AxisFeature].Before; pad%depthwiseFsv != 0 {
		return k.reject(conv, "output feature padding %d not a multiple of %d", pad, depthwiseFsv)
	}
	return true
}

// inputWidth is the number of input elements along x needed to compute blockWidth output elements.
func inputWidth(conv *params.Convolution, blockWidth int) int {
	return (blockWidth-1)*conv.Stride.X + (conv.FilterSize().X-1)*conv.Dilation.X + 1
}

// minRegisterUsage is the number of registers a work-item needs for a block of blockWidth
// output elements: its 2 features of weights, outputs and inputs.
func minRegisterUsage(conv *params.Convolution, blockWidth int) int {
	return depthwiseWeightsRegs + depthwiseRegsPerOutput*blockWidth + depthwiseRegsPerInput*inputWidth(conv, blockWidth)
}

// GetAutoTuneOptions returns the autotune option with the given index. An unset or out of range
// index returns the heuristic choice for the descriptor.
//
// The heuristic picks, among the block widths whose register usage fits the engine budget:
// the largest of 8 down to 4 that divides the output width; or else the one of those with the
// smallest leftover; or else the largest of 3, 2 and 1 that divides the output width; or 1.
func (k *DepthwiseFsv32) GetAutoTuneOptions(conv *params.Convolution, autoTuneIndex int) AutoTuneOption {
	if autoTuneIndex >= 0 && autoTuneIndex < len(k.autoTuneOptions) {
		return k.autoTuneOptions[autoTuneIndex]
	}
	outputX := conv.Output.Dims[shapes.AxisX]
	budget := conv.Engine.RegistersPerWorkItem
	fits := func(blockWidth int) bool { return minRegisterUsage(conv, blockWidth) < budget }
	choose := func(blockWidth int, why string) AutoTuneOption {
		klog.V(1).Infof("kernel %s: block width %d for %q (%s)", k.Name(), blockWidth, conv.LayerID, why)
		return AutoTuneOption{BlockWidth: blockWidth, ExeMode: ExeModeAgeBased}
	}

	optimalWidths := []int{8, 7, 6, 5, 4}
	for _, w := range optimalWidths {
		if outputX%w == 0 && fits(w) {
			return choose(w, "divides output width")
		}
	}
	bestWidth, bestLeftover := 0, math.MaxInt
	for _, w := range optimalWidths {
		if !fits(w) {
			continue
		}
		if leftover := xslices.Pad(outputX, w); leftover < bestLeftover {
			bestWidth, bestLeftover = w, leftover
		}
	}
	if bestWidth != 0 {
		return choose(bestWidth, "smallest leftover")
	}
	for _, w := range []int{3, 2, 1} {
		if outputX%w == 0 && fits(w) {
			return choose(w, "small block")
		}
	}
	return choose(1, "register budget exceeded")
}

// SetDefault returns the dispatch geometry: the x axis in blocks, y, and one sub-group per
// feature slice and batch.
func (k *DepthwiseFsv32) SetDefault(conv *params.Convolution, autoTuneIndex int) kernel.DispatchData {
	dispatch := k.SetDefaultFamily(conv)
	option := k.GetAutoTuneOptions(conv, autoTuneIndex)
	out := conv.Output
	dispatch.CLDNNStyle.BlockHeight = 1
	dispatch.CLDNNStyle.BlockWidth = option.BlockWidth
	dispatch.CLDNNStyle.InputBlockWidth = inputWidth(conv, option.BlockWidth)
	dispatch.LWS = [3]int{1, 1, depthwiseSubGroupSize}
	dispatch.GWS = [3]int{
		xslices.CeilDiv(out.Dims[shapes.AxisX], option.BlockWidth),
		out.Dims[shapes.AxisY],
		xslices.CeilDiv(out.Dims[shapes.AxisFeature], depthwiseFsv) * depthwiseSubGroupSize * out.Dims[shapes.AxisBatch],
	}
	dispatch.Efficiency = kernel.ForcePriority3
	return dispatch
}

// GetJitConstants returns the constants of the kernel for the given dispatch geometry.
func (k *DepthwiseFsv32) GetJitConstants(conv *params.Convolution, dispatch kernel.DispatchData) *jit.Constants {
	constants := k.FamilyJitConstants(conv, dispatch)
	if len(conv.FusedOps) > 0 {
		unitType := kernel.GetUnitType(conv)
		idxOrder := [shapes.NumAxes]string{"b", "(fs * FSV + sglid + out_f * SUB_GROUP_SIZE)", "or", "oc + out_x"}
		confs := []fusedops.Configuration{
			fusedops.NewConfiguration("_VEC_ELEM", idxOrder, "tmp_write[out_f]", unitType),
			fusedops.NewConfiguration("_SCALAR", idxOrder, "out[out_idx]", unitType),
		}
		constants.Merge(k.MakeFusedOpsJitConstants(conv, confs))
	}
	input := conv.Inputs[0]
	constants.AddConstants(
		jit.Make("INPUT0_SIZE_X_WITH_PADDING", input.X().LogicalDimPadded()),
		jit.Make("INPUT0_SIZE_Y_WITH_PADDING", input.Y().LogicalDimPadded()),
		jit.Make("OUTPUT_SIZE_X_WITH_PADDING", conv.Output.X().LogicalDimPadded()),
		jit.Make("OUTPUT_SIZE_Y_WITH_PADDING", conv.Output.Y().LogicalDimPadded()),
		jit.Make("OUTPUT_BLOCK_WIDTH", dispatch.CLDNNStyle.BlockWidth),
		jit.Make("INPUT_BLOCK_WIDTH", dispatch.CLDNNStyle.InputBlockWidth),
		jit.Make("FSV", depthwiseFsv),
		jit.Make("SUB_GROUP_SIZE", depthwiseSubGroupSize),
		jit.Make("FSV_PER_THREAD", depthwiseFsvPerThread),
	)
	return constants
}

// GetKernelsData implements kernel.Variant, with the heuristic configuration.
func (k *DepthwiseFsv32) GetKernelsData(ids *kernel.UniqueIDs, p params.Params, opts params.Options) (*kernel.KernelData, error) {
	return k.GetTunedKernelsDataByIndex(ids, p, opts, kernel.AutoTuneIndexUnset)
}

// GetTunedKernelsDataByIndex implements kernel.Variant.
func (k *DepthwiseFsv32) GetTunedKernelsDataByIndex(ids *kernel.UniqueIDs, p params.Params, opts params.Options,
	autoTuneIndex int) (*kernel.KernelData, error) {
	conv := asConvolution(p)
	if conv == nil {
		return nil, nil
	}
	if autoTuneIndex < 0 || autoTuneIndex >= len(k.autoTuneOptions) {
		autoTuneIndex = kernel.AutoTuneIndexUnset
	}
	exeMode := k.GetAutoTuneOptions(conv, autoTuneIndex).ExeMode
	return k.GetCommonKernelsData(ids, k, conv, opts, exeMode, autoTuneIndex)
}

// GetKernelsDataForAutoTune implements kernel.Variant: one kernel per catalog entry.
func (k *DepthwiseFsv32) GetKernelsDataForAutoTune(ids *kernel.UniqueIDs, p params.Params, opts params.Options) ([]*kernel.KernelData, error) {
	conv := asConvolution(p)
	if conv == nil {
		return nil, nil
	}
	if err := conv.Check(); err != nil {
		return nil, err
	}
	if !k.Validate(conv, opts) {
		return nil, nil
	}
	kds := make([]*kernel.KernelData, 0, len(k.autoTuneOptions))
	for ii := range k.autoTuneOptions {
		kd, err := k.GetTunedKernelsDataByIndex(ids, p, opts, ii)
		if err != nil {
			return nil, err
		}
		if kd != nil {
			kds = append(kds, kd)
		}
	}
	return kds, nil
}
