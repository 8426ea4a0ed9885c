// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapOfNames(t *testing.T) {
	for name, want := range map[string]DType{
		"Float16": Float16,
		"float16": Float16,
		"F16":     Float16,
		"f16":     Float16,
		"INT8":    Int8,
		"int8":    Int8,
		"UINT32":  Uint32,
		"u32":     Uint32,
	} {
		got, err := FromName(name)
		require.NoError(t, err, "name %q", name)
		assert.Equal(t, want, got, "name %q", name)
	}
	_, err := FromName("bfloat16")
	require.Error(t, err)
	_, err = FromName("InvalidDType")
	require.Error(t, err)
}

func TestSizesAndClasses(t *testing.T) {
	assert.Equal(t, 1, Int8.Size())
	assert.Equal(t, 16, Float16.Bits())
	assert.Equal(t, 8, Int64.Size())
	assert.True(t, Float16.IsFloat())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Uint8.IsUnsigned())
	assert.False(t, Int8.IsUnsigned())
	assert.False(t, InvalidDType.IsSupported())
	for _, dtype := range All {
		assert.True(t, dtype.IsSupported(), "dtype %s", dtype)
		assert.NotEmpty(t, dtype.CLType())
	}
	require.Panics(t, func() { _ = InvalidDType.Size() })
}

func TestDeviceNames(t *testing.T) {
	assert.Equal(t, "half", Float16.CLType())
	assert.Equal(t, "half8", Float16.CLTypeVec(8))
	assert.Equal(t, "char", Int8.CLTypeVec(1))
	assert.Equal(t, "convert_char_sat", Int8.ConvertFunc(true))
	assert.Equal(t, "convert_float", Float32.ConvertFunc(true))
	assert.Equal(t, "HALF_MAX", Float16.MaxLiteral())
	assert.Equal(t, "-HALF_MAX", Float16.MinLiteral())
	assert.Equal(t, "0", Uint8.MinLiteral())
	assert.Equal(t, "1.0h", Float16.Literal(1))
	assert.Equal(t, "0.5f", Float32.Literal(0.5))
	assert.Equal(t, "3", Int32.Literal(3))
}

func TestHighestLowestValues(t *testing.T) {
	assert.Equal(t, 65504.0, Float16.HighestValue())
	assert.Equal(t, -65504.0, Float16.LowestValue())
	assert.Equal(t, 127.0, Int8.HighestValue())
	assert.Equal(t, -128.0, Int8.LowestValue())
	assert.Equal(t, 0.0, Uint32.LowestValue())
	assert.Equal(t, 127.0, Int8.RoundToDType(300))
	assert.Equal(t, 0.0999755859375, Float16.RoundToDType(0.1))
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(Float16)
	require.NoError(t, err)
	assert.Equal(t, `"Float16"`, string(data))

	var dtype DType
	require.NoError(t, json.Unmarshal([]byte(`"f32"`), &dtype))
	assert.Equal(t, Float32, dtype)
	require.Error(t, json.Unmarshal([]byte(`"complex64"`), &dtype))
	require.Error(t, json.Unmarshal([]byte(`3`), &dtype))
}
