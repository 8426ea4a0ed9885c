// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convolution

import (
	"flag"
	"os"
	"testing"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/activations"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/gomlx/kernelselector/pkg/kernels/kernel"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	os.Exit(m.Run())
}

// depthwise returns a 3x3 depthwise convolution over 32 features, with an input padded for
// the kernel to read it without boundary checks.
func depthwise(x int) *params.Convolution {
	input := shapes.Make(dtypes.Float16, shapes.LayoutFsBYXFsv32, 1, 32, 16, x).
		WithPadding(shapes.AxisX, 1, 1).
		WithPadding(shapes.AxisY, 1, 1)
	output := shapes.Make(dtypes.Float16, shapes.LayoutFsBYXFsv32, 1, 32, 16, x)
	weights := shapes.MakeWeights(dtypes.Float16, shapes.WeightsLayoutGsOIYXGsv32, 32, 1, 1, 3, 3)
	conv := params.NewConvolution("dw_conv", input, output, weights)
	conv.Padding = params.Size{X: 1, Y: 1}
	return conv
}

// planar returns a float32 bfyx 3x3 convolution, without padding.
func planar() *params.Convolution {
	input := shapes.Make(dtypes.Float32, shapes.LayoutBFYX, 1, 16, 8, 8)
	output := shapes.Make(dtypes.Float32, shapes.LayoutBFYX, 1, 32, 6, 6)
	weights := shapes.MakeWeights(dtypes.Float32, shapes.WeightsLayoutOIYX, 1, 32, 16, 3, 3)
	return params.NewConvolution("planar_conv", input, output, weights)
}

func addRelu(conv *params.Convolution) {
	out := conv.Output
	conv.FusedOps = []fusedops.Desc{
		{
			OpID:    0,
			Type:    fusedops.TypeEltwise,
			Tensors: []shapes.Tensor{out},
			Output:  out,
			Eltwise: fusedops.EltwiseParams{Mode: fusedops.EltwiseSum},
		},
		{
			OpID:       1,
			Type:       fusedops.TypeActivation,
			Output:     out,
			Activation: activations.Relu(),
		},
	}
}

func scalarValue(t *testing.T, constants *jit.Constants, name string) any {
	c, found := constants.Get(name)
	require.True(t, found, "constant %q not found", name)
	scalar, ok := c.(jit.Scalar)
	require.True(t, ok, "constant %q is a %T", name, c)
	return scalar.Value()
}

func TestRequiredPaddedInput(t *testing.T) {
	conv := depthwise(16)
	conv.Inputs[0] = conv.Inputs[0].WithPadding(shapes.AxisX, 0, 0).WithPadding(shapes.AxisY, 0, 0)
	required := RequiredPaddedInput(conv)
	assert.Equal(t, shapes.Pad{Before: 1, After: 1}, required.Padding[shapes.AxisX])
	assert.Equal(t, shapes.Pad{Before: 1, After: 1}, required.Padding[shapes.AxisY])
	assert.False(t, hasPadding(conv.Inputs[0], required))
	assert.True(t, hasPadding(required, required))

	// Stride 2 with a 7 wide output reads nothing after the end of the input.
	conv.Stride = params.Size{X: 2, Y: 1}
	conv.Output.Dims[shapes.AxisX] = 7
	required = RequiredPaddedInput(conv)
	assert.Equal(t, shapes.Pad{Before: 1, After: 0}, required.Padding[shapes.AxisX])
}

func TestEntryPoint(t *testing.T) {
	var ids kernel.UniqueIDs
	first := entryPoint("k", "layer", &ids)
	second := entryPoint("k", "layer", &ids)
	assert.Regexp(t, `^k_\d+_0$`, first)
	assert.Regexp(t, `^k_\d+_1$`, second)
	assert.NotEqual(t, first, second)
}

func TestSetDefaultFamily(t *testing.T) {
	ref := NewRef()
	dispatch := ref.SetDefaultFamily(planar())
	assert.Equal(t, [3]int{6, 6, 32}, dispatch.GWS)
	assert.Equal(t, [3]int{6, 6, 4}, dispatch.LWS)
	assert.Equal(t, 1, dispatch.CLDNNStyle.BlockWidth)
	assert.Equal(t, kernel.DontUseIfHaveSomethingElse, dispatch.Efficiency)

	// Blocked layouts have features first.
	dispatch = ref.SetDefaultFamily(depthwise(16))
	assert.Equal(t, [3]int{32, 16, 16}, dispatch.GWS)
}

func TestFamilyJitConstants(t *testing.T) {
	conv := planar()
	conv.Bias = []shapes.Tensor{shapes.Make(dtypes.Float32, shapes.LayoutBFYX, 1, 32, 1, 1)}
	conv.Stride = params.Size{X: 2, Y: 1}
	conv.Output.Dims[shapes.AxisX] = 3
	require.NoError(t, conv.Check())
	ref := NewRef()
	constants := ref.FamilyJitConstants(conv, ref.SetDefaultFamily(conv))
	assert.True(t, constants.Has("FILTER"))
	assert.True(t, constants.Has("BIAS"))
	assert.Equal(t, true, scalarValue(t, constants, "BIAS_TERM"))
	assert.Equal(t, true, scalarValue(t, constants, "BIAS_PER_OFM"))
	assert.False(t, constants.Has("BIAS_PER_OUTPUT"))
	assert.Equal(t, 2, scalarValue(t, constants, "STRIDE_SIZE_X"))
	assert.Equal(t, 1, scalarValue(t, constants, "STRIDE_SIZE_Y"))
	assert.Equal(t, 1, scalarValue(t, constants, "DILATION_SIZE_X"))
	assert.Equal(t, 0, scalarValue(t, constants, "PADDING_SIZE_X"))
	assert.Equal(t, 1, scalarValue(t, constants, "FILTER_ARRAY_NUM"))
	assert.Equal(t, 0, scalarValue(t, constants, "INPUT0_OFFSET_WITH_PADDING"))
	assert.Equal(t, false, scalarValue(t, constants, "GROUPED"))
	assert.Equal(t, false, scalarValue(t, constants, "QUANTIZATION_TERM"))
	assert.Equal(t, "planar_conv", scalarValue(t, constants, "LayerID"))
}

func TestValidateFamily(t *testing.T) {
	ref := NewRef()
	conv := planar()
	assert.True(t, ref.ValidateFamily(conv, params.Options{}, shapes.WeightsLayoutOIYX))

	// Weights in another layout: only with static reordering.
	assert.False(t, ref.ValidateFamily(conv, params.Options{}, shapes.WeightsLayoutOsIYXOsv16))
	assert.True(t, ref.ValidateFamily(conv, params.Options{AllowStaticInputReordering: true}, shapes.WeightsLayoutOsIYXOsv16))

	// Invalid descriptors are rejected, not panicking.
	conv.Inputs = nil
	assert.False(t, ref.ValidateFamily(conv, params.Options{}, shapes.WeightsLayoutOIYX))
}

func TestRegistry(t *testing.T) {
	r, err := kernel.NewRegistry(DepthwiseFsv32Name, RefName)
	require.NoError(t, err)

	kd, err := r.Select(depthwise(16), params.Options{})
	require.NoError(t, err)
	require.NotNil(t, kd)
	assert.Equal(t, DepthwiseFsv32Name, kd.KernelName)
	assert.Equal(t, kernel.ForcePriority3, kd.EstimatedTime)

	kd, err = r.Select(planar(), params.Options{})
	require.NoError(t, err)
	require.NotNil(t, kd)
	assert.Equal(t, RefName, kd.KernelName)
	assert.Equal(t, kernel.DontUseIfHaveSomethingElse, kd.EstimatedTime)

	// Registered at import.
	assert.Contains(t, kernel.Registered(), DepthwiseFsv32Name)
	assert.Contains(t, kernel.Registered(), RefName)
}
