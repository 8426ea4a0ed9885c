// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"testing"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToCodeString(t *testing.T) {
	assert.Equal(t, "1", ToCodeString(true))
	assert.Equal(t, "0", ToCodeString(false))
	assert.Equal(t, "-7", ToCodeString(-7))
	assert.Equal(t, "7", ToCodeString(uint32(7)))
	assert.Equal(t, "0.5f", ToCodeString(float32(0.5)))
	assert.Equal(t, "2.0", ToCodeString(2.0))
	assert.Equal(t, "half", ToCodeString(dtypes.Float16))
	assert.Equal(t, "bfyx", ToCodeString(shapes.LayoutBFYX))
	assert.Equal(t, "INFINITY", ToCodeString(float32(posInf())))
	require.Panics(t, func() { ToCodeString(struct{}{}) })
}

func posInf() float64 {
	zero := 0.0
	return 1 / zero
}

func TestConstantsOrderAndDuplicates(t *testing.T) {
	constants := New(Make("A", 1), Make("B", true), Make("C", "x"))
	constants.AddConstant(Make("A", 1))
	assert.Equal(t, []string{"A", "B", "C"}, constants.Names())

	other := New(Make("D", 4), Make("B", true))
	constants.Merge(other)
	constants.Merge(nil)
	assert.Equal(t, []string{"A", "B", "C", "D"}, constants.Names())
	assert.Equal(t, "#define A 1\n#define B 1\n#define C x\n#define D 4\n", constants.Render())

	// Conflicting values are appended, and the latest wins on lookup.
	constants.AddConstant(Make("A", 2))
	assert.Equal(t, 5, constants.Len())
	got, found := constants.Get("A")
	require.True(t, found)
	assert.Equal(t, 2, got.(Scalar).Value())
	value, found := constants.Lookup("A")
	require.True(t, found)
	assert.Equal(t, "2", value)

	var empty Constants
	assert.False(t, empty.Has("A"))
	assert.Equal(t, "", empty.Render())
	var nilConstants *Constants
	assert.Equal(t, 0, nilConstants.Len())
}

func TestRenderUndefs(t *testing.T) {
	constants := New(Make("TO_X(v)", "(v)"), Make("Y", ""))
	assert.Equal(t, "#define TO_X(v) (v)\n#define Y\n", constants.Render())
	assert.Equal(t, "#undef TO_X\n#undef Y\n", constants.RenderUndefs())
}

func TestTensorConstants(t *testing.T) {
	tensor := shapes.Make(dtypes.Float16, shapes.LayoutFsBYXFsv32, 1, 64, 4, 5).
		WithPadding(shapes.AxisX, 1, 1)
	constants := New(Make("INPUT0", tensor))
	assert.Equal(t, []string{"INPUT0"}, constants.Names())
	for name, want := range map[string]string{
		"INPUT0_TYPE":                  "half",
		"INPUT0_VAL_MAX":               "HALF_MAX",
		"INPUT0_VAL_ONE":               "1.0h",
		"INPUT0_SIZE_X":                "5",
		"INPUT0_SIZE_Y":                "4",
		"INPUT0_FEATURE_NUM":           "64",
		"INPUT0_BATCH_NUM":             "1",
		"INPUT0_X_PITCH":               "32",
		"INPUT0_Y_PITCH":               "224",
		"INPUT0_PAD_BEFORE_SIZE_X":     "1",
		"INPUT0_PAD_AFTER_SIZE_X":      "1",
		"INPUT0_OFFSET":                "32",
		"INPUT0_LENGTH":                "1280",
		"INPUT0_SIMPLE":                "0",
		"INPUT0_LAYOUT_FS_B_YX_FSV32":  "1",
		"INPUT0_FEATURE_SLICE_PITCH":   "896",
		"INPUT0_GET_INDEX(b, f, y, x)": "GET_DATA_FS_B_YX_FSV32_INDEX(INPUT0, b, f, y, x)",
		"TO_INPUT0_TYPE(v)":            "convert_half(v)",
	} {
		got, found := constants.Lookup(name)
		require.Truef(t, found, "definition %q missing", name)
		assert.Equalf(t, want, got, "definition %q", name)
	}

	planar := New(MakeTensor("OUTPUT", shapes.Make(dtypes.Float32, shapes.LayoutBFYX, 1, 2, 3, 4)))
	got, _ := planar.Lookup("OUTPUT_GET_INDEX_SAFE(b, f, y, x)")
	assert.Equal(t, "GET_DATA_INDEX_SAFE(OUTPUT, b, f, y, x)", got)
	got, _ = planar.Lookup("OUTPUT_SIMPLE")
	assert.Equal(t, "1", got)
	_, found := planar.Lookup("OUTPUT_FEATURE_SLICE_PITCH")
	assert.False(t, found)
}

func TestWeightsConstants(t *testing.T) {
	weights := shapes.MakeWeights(dtypes.Float16, shapes.WeightsLayoutGsOIYXGsv32, 32, 1, 1, 3, 3)
	constants := New(Make("FILTER", weights))
	for name, want := range map[string]string{
		"FILTER_TYPE":                 "half",
		"FILTER_SIZE_X":               "3",
		"FILTER_GROUPS_NUM":           "32",
		"FILTER_OFM_NUM":              "1",
		"FILTER_X_PITCH":              "32",
		"FILTER_LENGTH":               "288",
		"FILTER_LAYOUT_GS_OIYX_GSV32": "1",
	} {
		got, found := constants.Lookup(name)
		require.Truef(t, found, "definition %q missing", name)
		assert.Equalf(t, want, got, "definition %q", name)
	}
}

func TestFragments(t *testing.T) {
	fragments := []Fragment{
		{OpIndex: 0, Role: RoleLoad, Suffix: "_SCALAR"},
		{OpIndex: 0, Role: RoleAction, Suffix: "_SCALAR"},
		{OpIndex: 1, Role: RoleAction, Suffix: "_SCALAR"},
	}
	constant := Make("FUSED_OPS_SCALAR", fragments).(Fragments)
	assert.Equal(t, 3, constant.Len())
	assert.Equal(t, "\\\n\tFUSED_OP0_LOAD_SCALAR\\\n\tFUSED_OP0_ACTION_SCALAR\\\n\tFUSED_OP1_ACTION_SCALAR",
		constant.Text())

	decls := MakeFragmentsList("FUSED_OPS_DECLS", []Fragment{
		{OpIndex: 0, Role: RoleDecls, Suffix: "_IGNORED"},
		{OpIndex: 2, Role: RoleDecls},
	}, ",")
	assert.Equal(t, "\\\n\tFUSED_OP0_DECLS,\\\n\tFUSED_OP2_DECLS", decls.Text())
	assert.Equal(t, "", MakeFragments("EMPTY", nil).Text())
}

func TestUnitTypeConstants(t *testing.T) {
	half := MakeUnitTypeJitConstants(dtypes.Float16)
	for name, want := range map[string]string{
		"UNIT_TYPE":           "half",
		"UNIT_VAL_MAX":        "HALF_MAX",
		"UNIT_VAL_MIN":        "-HALF_MAX",
		"UNIT_VAL_ONE":        "1.0h",
		"UNIT_VAL_ZERO":       "0.0h",
		"TO_UNIT_TYPE(v)":     "convert_half(v)",
		"TO_UNIT_TYPE_SAT(v)": "convert_half(v)",
		"UNIT_MAX_FUNC":       "fmax",
		"UNIT_TYPE_SIZE":      "2",
	} {
		got, found := half.Lookup(name)
		require.Truef(t, found, "definition %q missing", name)
		assert.Equalf(t, want, got, "definition %q", name)
	}
	assert.True(t, half.Has("UNIT_BLOCK_READ(ptr, offset)"))

	int8Constants := MakeUnitTypeJitConstants(dtypes.Int8)
	got, _ := int8Constants.Lookup("TO_UNIT_TYPE_SAT(v)")
	assert.Equal(t, "convert_char_sat(v)", got)
	got, _ = int8Constants.Lookup("UNIT_MAX_FUNC")
	assert.Equal(t, "max", got)
	assert.False(t, MakeUnitTypeJitConstants(dtypes.Float64).Has("UNIT_BLOCK_READ(ptr, offset)"))
}
