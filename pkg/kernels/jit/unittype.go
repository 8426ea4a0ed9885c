// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"strconv"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
)

// MakeUnitTypeJitConstants returns the constants describing the working ("unit") type of a
// kernel: its device type, limits, conversion and min/max helpers.
func MakeUnitTypeJitConstants(unitType dtypes.DType) *Constants {
	constants := New(
		Make("UNIT_TYPE", unitType.CLType()),
		Make("UNIT_VAL_MAX", unitType.MaxLiteral()),
		Make("UNIT_VAL_MIN", unitType.MinLiteral()),
		Make("UNIT_VAL_ONE", unitType.Literal(1)),
		Make("UNIT_VAL_ZERO", unitType.Literal(0)),
		Make("TO_UNIT_TYPE(v)", unitType.ConvertFunc(false)+"(v)"),
		Make("TO_UNIT_TYPE_SAT(v)", unitType.ConvertFunc(true)+"(v)"),
		Make("AS_UNIT_TYPE(v)", "as_"+unitType.CLType()+"(v)"),
		Make("UNIT_TYPE_SIZE", strconv.Itoa(unitType.Size())),
	)
	if unitType.IsFloat() {
		constants.AddConstants(
			Make("UNIT_MAX_FUNC", "fmax"),
			Make("UNIT_MIN_FUNC", "fmin"),
			Make("UNIT_ABS_FUNC", "fabs"),
		)
	} else {
		constants.AddConstants(
			Make("UNIT_MAX_FUNC", "max"),
			Make("UNIT_MIN_FUNC", "min"),
			Make("UNIT_ABS_FUNC", "abs"),
		)
	}
	if blockType, suffix, ok := blockReadType(unitType); ok {
		constants.AddConstants(
			Make("UNIT_BLOCK_READ(ptr, offset)",
				"as_"+unitType.CLType()+"(intel_sub_group_block_read"+suffix+"((const __global "+blockType+"*)(ptr) + (offset)))"),
			Make("UNIT_BLOCK_WRITE(ptr, offset, val)",
				"intel_sub_group_block_write"+suffix+"((__global "+blockType+"*)(ptr) + (offset), as_"+blockType+"(val))"),
		)
	}
	return constants
}

// blockReadType returns the unsigned type and function suffix of the sub-group block
// read/write builtins for the given dtype. Only 8, 16 and 32 bits types are supported.
func blockReadType(dtype dtypes.DType) (blockType, suffix string, ok bool) {
	switch dtype.Size() {
	case 1:
		return "uchar", "_uc", true
	case 2:
		return "ushort", "_us", true
	case 4:
		return "uint", "", true
	default:
		return "", "", false
	}
}
