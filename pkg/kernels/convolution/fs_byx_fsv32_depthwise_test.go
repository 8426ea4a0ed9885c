// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convolution

import (
	"testing"

	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepthwiseAutoTuneCatalog(t *testing.T) {
	k := NewDepthwiseFsv32()
	options := k.AutoTuneOptions()
	require.Len(t, options, 15)
	ii := 0
	for _, bw := range []int{1, 2, 4, 8, 16} {
		for _, exeMode := range []string{ExeModeDefault, ExeModeNoPreRASchedule, ExeModeAgeBased} {
			assert.Equal(t, AutoTuneOption{BlockWidth: bw, ExeMode: exeMode}, options[ii], "option #%d", ii)
			ii++
		}
	}

	// The returned catalog is a copy.
	options[0].BlockWidth = 100
	assert.Equal(t, 1, k.AutoTuneOptions()[0].BlockWidth)
}

func TestDepthwiseHeuristic(t *testing.T) {
	k := NewDepthwiseFsv32()
	testCases := []struct {
		name      string
		x         int
		registers int
		want      int
	}{
		{"divides", 16, 64, 8},
		{"largest divisor", 10, 64, 5},
		{"smallest leftover", 11, 64, 6},
		{"six", 12, 64, 6},
		{"budget is strict", 16, 38, 4},
		{"small block", 12, 20, 3},
		{"nothing fits", 11, 20, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conv := depthwise(tc.x)
			conv.Engine.RegistersPerWorkItem = tc.registers
			option := k.GetAutoTuneOptions(conv, kernel.AutoTuneIndexUnset)
			assert.Equal(t, tc.want, option.BlockWidth)
			assert.Equal(t, ExeModeAgeBased, option.ExeMode)
		})
	}

	// A valid index bypasses the heuristic, an invalid one doesn't.
	conv := depthwise(16)
	assert.Equal(t, AutoTuneOption{BlockWidth: 16, ExeMode: ExeModeDefault}, k.GetAutoTuneOptions(conv, 12))
	assert.Equal(t, AutoTuneOption{BlockWidth: 2, ExeMode: ExeModeNoPreRASchedule}, k.GetAutoTuneOptions(conv, 4))
	assert.Equal(t, 8, k.GetAutoTuneOptions(conv, 15).BlockWidth)
	assert.Equal(t, 8, k.GetAutoTuneOptions(conv, -7).BlockWidth)
}

func TestDepthwiseRegisterUsage(t *testing.T) {
	conv := depthwise(16)
	assert.Equal(t, 10, inputWidth(conv, 8))
	assert.Equal(t, 38, minRegisterUsage(conv, 8))

	conv.Stride = params.Size{X: 2, Y: 2}
	conv.Dilation = params.Size{X: 2, Y: 1}
	assert.Equal(t, 19, inputWidth(conv, 8))
}

func TestDepthwiseValidate(t *testing.T) {
	k := NewDepthwiseFsv32()
	opts := params.Options{}
	require.True(t, k.Validate(depthwise(16), opts))

	// Not enough groups.
	conv := depthwise(16)
	conv.Inputs[0].Dims[shapes.AxisFeature] = 8
	conv.Output.Dims[shapes.AxisFeature] = 8
	conv.Weights.Dims[shapes.WeightsAxisGroups] = 8
	conv.Groups = 8
	require.NoError(t, conv.Check())
	assert.False(t, k.Validate(conv, opts))

	// Grouped, but not depthwise.
	conv = depthwise(16)
	conv.Weights = shapes.MakeWeights(conv.Weights.DType, conv.Weights.Layout, 16, 2, 2, 3, 3)
	conv.Groups = 16
	require.NoError(t, conv.Check())
	assert.False(t, k.Validate(conv, opts))

	// Output feature padding must be a multiple of the feature slice.
	conv = depthwise(16)
	conv.Output = conv.Output.WithPadding(shapes.AxisFeature, 16, 0)
	assert.False(t, k.Validate(conv, opts))
	conv.Output = conv.Output.WithPadding(shapes.AxisFeature, 32, 0)
	assert.True(t, k.Validate(conv, opts))

	// Weights layout.
	conv = depthwise(16)
	conv.Weights = conv.Weights.WithLayout(shapes.WeightsLayoutGOIYX)
	assert.False(t, k.Validate(conv, opts))
	assert.True(t, k.Validate(conv, params.Options{AllowStaticInputReordering: true}))

	// Not a convolution.
	assert.False(t, k.Validate(&conv.Base, opts))
}

func TestDepthwiseKernelsData(t *testing.T) {
	k := NewDepthwiseFsv32()
	var ids kernel.UniqueIDs
	conv := depthwise(16)
	kd, err := k.GetKernelsData(&ids, conv, params.Options{})
	require.NoError(t, err)
	require.NotNil(t, kd)

	assert.Equal(t, DepthwiseFsv32Name, kd.KernelName)
	assert.Regexp(t, `^convolution_gpu_fs_byx_fsv32_depthwise_\d+_0$`, kd.EntryPoint)
	assert.Equal(t, kernel.AutoTuneIndexUnset, kd.AutoTuneIndex)
	assert.Equal(t, ExeModeAgeBased, kd.ExeMode)
	assert.Equal(t, kernel.ForcePriority3, kd.EstimatedTime)
	assert.False(t, kd.ReorderInput)
	assert.Nil(t, kd.WeightsReorder)

	assert.Equal(t, [3]int{2, 16, 16}, kd.Dispatch.GWS)
	assert.Equal(t, [3]int{1, 1, 16}, kd.Dispatch.LWS)
	assert.Equal(t, 8, kd.Dispatch.CLDNNStyle.BlockWidth)
	assert.Equal(t, 1, kd.Dispatch.CLDNNStyle.BlockHeight)
	assert.Equal(t, 10, kd.Dispatch.CLDNNStyle.InputBlockWidth)

	constants := kd.Constants
	assert.Equal(t, 8, scalarValue(t, constants, "OUTPUT_BLOCK_WIDTH"))
	assert.Equal(t, 10, scalarValue(t, constants, "INPUT_BLOCK_WIDTH"))
	assert.Equal(t, 18, scalarValue(t, constants, "INPUT0_SIZE_X_WITH_PADDING"))
	assert.Equal(t, 18, scalarValue(t, constants, "INPUT0_SIZE_Y_WITH_PADDING"))
	assert.Equal(t, 16, scalarValue(t, constants, "OUTPUT_SIZE_X_WITH_PADDING"))
	assert.Equal(t, 32, scalarValue(t, constants, "FSV"))
	assert.Equal(t, 16, scalarValue(t, constants, "SUB_GROUP_SIZE"))
	assert.Equal(t, 2, scalarValue(t, constants, "FSV_PER_THREAD"))
	assert.Equal(t, 1, scalarValue(t, constants, "PADDING_SIZE_X"))
	assert.Equal(t, 0, scalarValue(t, constants, "INPUT0_OFFSET_WITH_PADDING"))
	assert.Equal(t, true, scalarValue(t, constants, "GROUPED"))
	assert.Equal(t, true, scalarValue(t, constants, "FP16_UNIT_USED"))
	assert.False(t, constants.Has("HAS_FUSED_OPS"))

	require.Len(t, kd.Arguments, 3)
	assert.Equal(t, kernel.ArgInput, kd.Arguments[0].Kind)
	assert.Equal(t, kernel.ArgOutput, kd.Arguments[1].Kind)
	assert.Equal(t, kernel.ArgWeights, kd.Arguments[2].Kind)

	// The next kernel has a new entry point.
	kd2, err := k.GetKernelsData(&ids, conv, params.Options{})
	require.NoError(t, err)
	assert.Regexp(t, `_1$`, kd2.EntryPoint)
	assert.True(t, kd.Constants.Equal(kd2.Constants))
}

func TestDepthwiseTunedKernelsData(t *testing.T) {
	k := NewDepthwiseFsv32()
	var ids kernel.UniqueIDs
	conv := depthwise(16)
	kds, err := k.GetKernelsDataForAutoTune(&ids, conv, params.Options{})
	require.NoError(t, err)
	require.Len(t, kds, 15)
	for ii, kd := range kds {
		assert.Equal(t, ii, kd.AutoTuneIndex)
		assert.Equal(t, k.AutoTuneOptions()[ii].ExeMode, kd.ExeMode, "autotune index %d", ii)
		assert.Equal(t, k.SetDefault(conv, ii), kd.Dispatch, "autotune index %d", ii)
	}
	assert.Equal(t, [3]int{16, 16, 16}, kds[0].Dispatch.GWS)
	assert.Equal(t, [3]int{1, 16, 16}, kds[12].Dispatch.GWS)

	// Out of range indices use the heuristic.
	kd, err := k.GetTunedKernelsDataByIndex(&ids, conv, params.Options{}, 17)
	require.NoError(t, err)
	require.NotNil(t, kd)
	assert.Equal(t, kernel.AutoTuneIndexUnset, kd.AutoTuneIndex)
	assert.Equal(t, k.SetDefault(conv, kernel.AutoTuneIndexUnset), kd.Dispatch)

	// Not applicable: nothing to tune.
	conv.Groups = 1
	kds, err = k.GetKernelsDataForAutoTune(&ids, conv, params.Options{})
	require.NoError(t, err)
	assert.Empty(t, kds)

	// Invalid descriptors are reported the same way as by GetKernelsData.
	conv = depthwise(16)
	conv.Stride = params.Size{X: 0, Y: 1}
	_, err = k.GetKernelsData(&ids, conv, params.Options{})
	require.ErrorContains(t, err, "stride must be positive")
	kds, err = k.GetKernelsDataForAutoTune(&ids, conv, params.Options{})
	require.ErrorContains(t, err, "stride must be positive")
	assert.Nil(t, kds)
}

func TestDepthwiseReorders(t *testing.T) {
	k := NewDepthwiseFsv32()
	var ids kernel.UniqueIDs

	// Input without padding: only with input reordering.
	conv := depthwise(16)
	conv.Inputs[0] = conv.Inputs[0].WithPadding(shapes.AxisX, 0, 0).WithPadding(shapes.AxisY, 0, 0)
	kd, err := k.GetKernelsData(&ids, conv, params.Options{})
	require.NoError(t, err)
	assert.Nil(t, kd)

	kd, err = k.GetKernelsData(&ids, conv, params.Options{AllowInputReordering: true})
	require.NoError(t, err)
	require.NotNil(t, kd)
	assert.True(t, kd.ReorderInput)
	assert.Equal(t, shapes.Pad{Before: 1, After: 1}, kd.RequiredInput.Padding[shapes.AxisX])
	assert.Equal(t, 18, scalarValue(t, kd.Constants, "INPUT0_SIZE_X_WITH_PADDING"))
	assert.False(t, conv.Inputs[0].HasPadding(), "descriptor of the caller must not be changed")

	// Weights in another layout: only with static reordering.
	conv = depthwise(16)
	conv.Weights = conv.Weights.WithLayout(shapes.WeightsLayoutGOIYX)
	kd, err = k.GetKernelsData(&ids, conv, params.Options{})
	require.NoError(t, err)
	assert.Nil(t, kd)

	kd, err = k.GetKernelsData(&ids, conv, params.Options{AllowStaticInputReordering: true})
	require.NoError(t, err)
	require.NotNil(t, kd)
	require.NotNil(t, kd.WeightsReorder)
	assert.Equal(t, shapes.WeightsLayoutGOIYX, kd.WeightsReorder.From.Layout)
	assert.Equal(t, shapes.WeightsLayoutGsOIYXGsv32, kd.WeightsReorder.To.Layout)
	assert.Equal(t, shapes.WeightsLayoutGOIYX, conv.Weights.Layout)
}

func TestDepthwiseFusedOps(t *testing.T) {
	k := NewDepthwiseFsv32()
	var ids kernel.UniqueIDs
	conv := depthwise(16)
	addRelu(conv)
	kd, err := k.GetKernelsData(&ids, conv, params.Options{})
	require.NoError(t, err)
	require.NotNil(t, kd)

	constants := kd.Constants
	assert.Equal(t, true, scalarValue(t, constants, "HAS_FUSED_OPS"))
	assert.Equal(t, true, scalarValue(t, constants, "HAS_FUSED_OPS_DECLS"))
	for _, suffix := range []string{"_VEC_ELEM", "_SCALAR"} {
		assert.True(t, constants.Has("FUSED_OPS"+suffix), suffix)
		assert.True(t, constants.Has("FUSED_OPS_PRELOAD"+suffix), suffix)
		assert.True(t, constants.Has("FUSED_OPS_CALC"+suffix), suffix)
		assert.True(t, constants.Has("FUSED_OPS_CAN_USE_PRELOAD"+suffix), suffix)
	}
	assert.Equal(t, "out_out_idx__out_out", scalarValue(t, constants, "FUSED_OPS_RESULT_SCALAR"))

	require.Len(t, kd.Arguments, 4)
	assert.Equal(t, kernel.Argument{Kind: kernel.ArgFusedOpInput, OpIndex: 0, Index: 0}, kd.Arguments[3])
}

// A fused operation the variant doesn't support makes it inapplicable, without error.
func TestDepthwiseUnsupportedFusedOp(t *testing.T) {
	k := NewDepthwiseFsv32()
	conv := depthwise(16)
	conv.FusedOps = []fusedops.Desc{{OpID: 0, Type: fusedops.TypeReorder, Output: conv.Output}}
	require.NoError(t, conv.Check())
	assert.False(t, k.Validate(conv, params.Options{}))

	var ids kernel.UniqueIDs
	kd, err := k.GetKernelsData(&ids, conv, params.Options{})
	require.NoError(t, err)
	assert.Nil(t, kd)

	r := kernel.NewRegistryWith(k)
	kd, err = r.Select(conv, params.Options{})
	require.NoError(t, err)
	assert.Nil(t, kd)
}
