// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusedops

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/activations"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	output = shapes.Make(dtypes.Float16, shapes.LayoutBFYX, 1, 32, 8, 8)
	idx    = [shapes.NumAxes]string{"b", "f", "y", "x"}
)

func eltwiseSum(opID int, operand shapes.Tensor) Desc {
	return Desc{OpID: opID, Type: TypeEltwise, Tensors: []shapes.Tensor{operand}, Output: output,
		Eltwise: EltwiseParams{Mode: EltwiseSum}}
}

func relu(opID int) Desc {
	return Desc{OpID: opID, Type: TypeActivation, Output: output, Activation: activations.Relu()}
}

func lookup(t *testing.T, constants *jit.Constants, name string) string {
	value, found := constants.Lookup(name)
	require.Truef(t, found, "definition %q missing", name)
	return value
}

func TestTypes(t *testing.T) {
	for _, fusedType := range TypeValues() {
		var parsed Type
		require.NoError(t, parsed.UnmarshalText([]byte(fusedType.String())))
		assert.Equal(t, fusedType, parsed)
	}
	var desc Desc
	require.NoError(t, json.Unmarshal([]byte(`{"op_id": 1, "type": "eltwise", "eltwise": {"mode": "max"},
		"output": {"dtype": "f16", "layout": "bfyx", "dims": [1, 32, 8, 8]},
		"tensors": [{"dtype": "f16", "layout": "bfyx", "dims": [1, 32, 1, 1]}]}`), &desc))
	assert.Equal(t, TypeEltwise, desc.Type)
	assert.Equal(t, EltwiseMax, desc.Eltwise.Mode)
	require.NoError(t, desc.Check())
	require.Error(t, json.Unmarshal([]byte(`{"type": "convolution"}`), &desc))
}

func TestCheck(t *testing.T) {
	operand := shapes.Make(dtypes.Float16, shapes.LayoutBFYX, 1, 32, 1, 1)
	require.NoError(t, eltwiseSum(0, operand).Check())
	require.NoError(t, relu(0).Check())

	noTensor := eltwiseSum(0, operand)
	noTensor.Tensors = nil
	require.Error(t, noTensor.Check())

	scale := Desc{Type: TypeScale, Output: output, Tensors: []shapes.Tensor{operand}, Scale: ScaleParams{HasShift: true}}
	require.Error(t, scale.Check())
	scale.Tensors = append(scale.Tensors, operand)
	require.NoError(t, scale.Check())

	quantize := Desc{Type: TypeQuantize, Output: output, Tensors: []shapes.Tensor{operand, operand, operand, operand}}
	require.Error(t, quantize.Check())
	quantize.Quantize.Levels = 256
	require.NoError(t, quantize.Check())

	intOutput := relu(0)
	intOutput.Output = output.WithDType(dtypes.Int8)
	intOutput.Activation = activations.Params{Type: activations.TypeTanh}
	require.Error(t, intOutput.Check())
	require.Error(t, Desc{Output: output}.Check())
}

func TestGeneratorNames(t *testing.T) {
	operand := shapes.Make(dtypes.Float32, shapes.LayoutBFYX, 1, 32, 1, 1)
	gen := NewCodeGenerator(eltwiseSum(2, operand))
	assert.Equal(t, "eltwise", gen.TypeStr())

	conf := NewConfiguration("_SCALAR", idx, "out[out_idx]", dtypes.Float16)
	decls := gen.MakeInputDeclsJitConstants(conf)
	assert.Equal(t, "\\\n\tconst __global float* eltwise2_input0", lookup(t, decls, "FUSED_OP2_DECLS"))

	tensors := gen.MakeFusedTensorJitConstants(conf)
	assert.Equal(t, []string{"FUSED_OP_2_INPUT0"}, tensors.Names())
	assert.Equal(t, "32", lookup(t, tensors, "FUSED_OP_2_INPUT0_FEATURE_NUM"))

	load := gen.MakeLoadJitConstants(conf, output)
	assert.Equal(t, "\\\n\tfloat eltwise2_data0 = eltwise2_input0[FUSED_OP_2_INPUT0_GET_INDEX_SAFE(0, f, 0, 0)];",
		lookup(t, load, "FUSED_OP2_LOAD_SCALAR"))

	action, outName, outType := gen.MakeOpJitConstants(conf, "out[out_idx]", dtypes.Float16)
	assert.Equal(t, "out_out_idx__out", outName)
	assert.Equal(t, dtypes.Float16, outType)
	assert.Equal(t, "\\\n\thalf out_out_idx__out = out[out_idx] + convert_half(eltwise2_data0);",
		lookup(t, action, "FUSED_OP2_ACTION_SCALAR"))
}

func TestGeneratorVectorAndNoBoundaryCheck(t *testing.T) {
	gen := NewCodeGenerator(eltwiseSum(0, output))
	conf := NewConfiguration("_VEC", idx, "acc", dtypes.Float32).WithVector(4, shapes.AxisX)
	load := gen.MakeLoadJitConstants(conf, output)
	assert.Equal(t, "\\\n\thalf4 eltwise0_data0 = vload4(0, &eltwise0_input0[FUSED_OP_0_INPUT0_GET_INDEX(0, f, y, x)]);",
		lookup(t, load, "FUSED_OP0_LOAD_VEC"))
	action, outName, _ := gen.MakeOpJitConstants(conf, "acc", dtypes.Float32)
	assert.Equal(t, "acc_out", outName)
	assert.Equal(t, "\\\n\thalf4 acc_out = convert_half4(acc) + eltwise0_data0;", lookup(t, action, "FUSED_OP0_ACTION_VEC"))
}

func TestGeneratorActivationAndQuantize(t *testing.T) {
	conf := NewConfiguration("_S", idx, "v", dtypes.Float16)
	action, outName, _ := NewCodeGenerator(relu(1)).MakeOpJitConstants(conf, "v", dtypes.Float16)
	assert.Equal(t, "v_out", outName)
	assert.Equal(t, "\\\n\thalf v_out = ACTIVATION_FUSED_OP1_S(v, ACTIVATION_PARAMS_FUSED_OP1_S);",
		lookup(t, action, "FUSED_OP1_ACTION_S"))
	assert.Equal(t, "(fmax(input, 0.0h))", lookup(t, action, "ACTIVATION_FUNC_FUSED_OP1_S(input, m, n)"))

	limit := shapes.Make(dtypes.Float32, shapes.LayoutBFYX, 1, 1, 1, 1)
	quantize := Desc{Type: TypeQuantize, Output: output.WithDType(dtypes.Int8),
		Tensors: []shapes.Tensor{limit, limit, limit, limit}, Quantize: QuantizeParams{Levels: 256}}
	action, _, outType := NewCodeGenerator(quantize).MakeOpJitConstants(conf, "v", dtypes.Float16)
	assert.Equal(t, dtypes.Int8, outType)
	body := lookup(t, action, "FUSED_OP0_ACTION_S")
	assert.Contains(t, body, "char v_out = convert_char_sat(round((fmin(fmax(convert_float(v), quantize0_data0), quantize0_data1)")
	assert.Contains(t, body, "255.0f")

	require.Panics(t, func() {
		NewCodeGenerator(Desc{Type: TypeUnknown, Output: output}).MakeOpJitConstants(conf, "v", dtypes.Float16)
	})
}

func TestCanPreloadData(t *testing.T) {
	perFeature := shapes.Make(dtypes.Float16, shapes.LayoutBFYX, 1, 32, 1, 1)
	gen := NewCodeGenerator(eltwiseSum(0, perFeature))
	conf := NewConfiguration("", idx, "v", dtypes.Float16)
	assert.True(t, gen.CanPreloadData(conf))
	assert.True(t, gen.CanPreloadData(conf.WithLoopAxes(shapes.AxisX, shapes.AxisY)))
	assert.False(t, gen.CanPreloadData(conf.WithLoopAxes(shapes.AxisFeature)))
	assert.True(t, NewCodeGenerator(relu(0)).CanPreloadData(conf.WithLoopAxes(shapes.AxisFeature)))
}

func fragmentNames(fragments []jit.Fragment) []string {
	names := make([]string, len(fragments))
	for ii, f := range fragments {
		names[ii] = f.MacroName()
	}
	return names
}

func TestMakePlan(t *testing.T) {
	// Both preloadable.
	plan := MakePlan([]bool{true, true}, false, "_S")
	assert.Equal(t, []string{"FUSED_OP0_LOAD_S", "FUSED_OP0_ACTION_S", "FUSED_OP1_LOAD_S", "FUSED_OP1_ACTION_S"},
		fragmentNames(plan.All))
	assert.Equal(t, []string{"FUSED_OP0_LOAD_S", "FUSED_OP1_LOAD_S"}, fragmentNames(plan.Preload))
	assert.Equal(t, []string{"FUSED_OP0_ACTION_S", "FUSED_OP1_ACTION_S"}, fragmentNames(plan.Calc))
	assert.True(t, plan.CanUsePreload)

	// Second not preloadable, partial preload disallowed: its load is only in All.
	plan = MakePlan([]bool{true, false}, false, "_S")
	assert.Equal(t, []string{"FUSED_OP0_LOAD_S"}, fragmentNames(plan.Preload))
	assert.Equal(t, []string{"FUSED_OP0_ACTION_S", "FUSED_OP1_ACTION_S"}, fragmentNames(plan.Calc))
	assert.False(t, plan.CanUsePreload)

	// Same with partial preload allowed.
	plan = MakePlan([]bool{true, false}, true, "_S")
	assert.Equal(t, []string{"FUSED_OP0_LOAD_S"}, fragmentNames(plan.Preload))
	assert.Equal(t, []string{"FUSED_OP0_ACTION_S", "FUSED_OP1_LOAD_S", "FUSED_OP1_ACTION_S"}, fragmentNames(plan.Calc))
	assert.True(t, plan.CanUsePreload)

	// Whenever CanUsePreload is set without partial preload, every load is in Preload.
	plan = MakePlan([]bool{true, true, true}, false, "")
	assert.True(t, plan.CanUsePreload)
	assert.Len(t, plan.Preload, 3)
}

// TestCanUsePreloadMatrix checks CanUsePreload for every combination of 3 operations.
func TestCanUsePreloadMatrix(t *testing.T) {
	for mask := range 8 {
		flags := []bool{mask&1 != 0, mask&2 != 0, mask&4 != 0}
		allFlags, anyFlag := flags[0] && flags[1] && flags[2], flags[0] || flags[1] || flags[2]
		for _, partial := range []bool{false, true} {
			t.Run(fmt.Sprintf("%v-partial=%v", flags, partial), func(t *testing.T) {
				plan := MakePlan(flags, partial, "")
				assert.Equal(t, allFlags || (partial && anyFlag), plan.CanUsePreload)
				assert.Len(t, plan.All, 6)
				numLoadsInCalc := len(plan.Calc) - 3
				if partial {
					assert.Equal(t, 3-len(plan.Preload), numLoadsInCalc)
				} else {
					assert.Equal(t, 0, numLoadsInCalc)
				}
			})
		}
	}
}
