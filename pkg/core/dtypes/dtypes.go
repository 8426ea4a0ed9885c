// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types a generated kernel can operate on.
//
// Besides the sizes and classification of the types, it knows the device-side names of each type
// (the OpenCL-C spelling used by the kernel templates) and the literals for their limits.
package dtypes

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// panicf panics with the formatted description.
//
// It is only used for "bugs in the code" -- when parameters are not valid.
// In principle, it should never happen -- the same way nil-pointer panics should never happen.
func panicf(format string, args ...any) {
	panic(errors.Errorf(format, args...))
}

func init() {
	// Add a mapping to the lower-case version of dtypes.
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if lowerKey == key {
			continue
		}
		if _, found := MapOfNames[lowerKey]; found {
			continue
		}
		MapOfNames[lowerKey] = MapOfNames[key]
	}
}

// FromName returns the DType for the given name or alias (case-insensitive).
func FromName(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found || dtype == InvalidDType {
		return InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// MarshalJSON implements json.Marshaler, using the dtype name.
func (dtype DType) MarshalJSON() ([]byte, error) {
	return json.Marshal(dtype.String())
}

// UnmarshalJSON implements json.Unmarshaler, accepting any name in MapOfNames.
func (dtype *DType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return errors.Wrapf(err, "dtype must be given as a string")
	}
	parsed, err := FromName(name)
	if err != nil {
		return err
	}
	*dtype = parsed
	return nil
}

// Size returns the number of bytes for the given DType.
func (dtype DType) Size() int {
	switch dtype {
	case Int8, Uint8:
		return 1
	case Int16, Uint16, Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		panicf("unknown dtype %q (%d) in DType.Size", dtype, dtype)
		panic(nil)
	}
}

// Bits returns the number of bits for the given DType.
func (dtype DType) Bits() int {
	return dtype.Size() * 8
}

// IsFloat returns whether dtype is a float.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is an integer type, signed or not.
func (dtype DType) IsInt() bool {
	return dtype == Int8 || dtype == Uint8 || dtype == Int16 || dtype == Uint16 ||
		dtype == Int32 || dtype == Uint32 || dtype == Int64
}

// IsUnsigned returns whether dtype is one of the unsigned integer types.
func (dtype DType) IsUnsigned() bool {
	return dtype == Uint8 || dtype == Uint16 || dtype == Uint32
}

// IsSupported returns whether dtype is one of the valid kernel dtypes.
func (dtype DType) IsSupported() bool {
	return dtype > InvalidDType && dtype <= Float64
}

// CLType returns the device-side (OpenCL-C) name of the type, e.g. "half" for Float16.
func (dtype DType) CLType() string {
	switch dtype {
	case Int8:
		return "char"
	case Uint8:
		return "uchar"
	case Int16:
		return "short"
	case Uint16:
		return "ushort"
	case Int32:
		return "int"
	case Uint32:
		return "uint"
	case Int64:
		return "long"
	case Float16:
		return "half"
	case Float32:
		return "float"
	case Float64:
		return "double"
	default:
		panicf("unknown dtype %q (%d) in DType.CLType", dtype, dtype)
		panic(nil)
	}
}

// CLTypeVec returns the device-side vector type of the given width.
// A width of 1 returns the scalar type.
func (dtype DType) CLTypeVec(width int) string {
	if width <= 1 {
		return dtype.CLType()
	}
	return dtype.CLType() + strconv.Itoa(width)
}

// ConvertFunc returns the conversion function name to this type, e.g. "convert_half".
// If saturate is true, the saturating version is returned for the integer types.
func (dtype DType) ConvertFunc(saturate bool) string {
	name := "convert_" + dtype.CLType()
	if saturate && dtype.IsInt() {
		name += "_sat"
	}
	return name
}

// MaxLiteral returns the device-side literal (a built-in macro name) for the highest finite value.
func (dtype DType) MaxLiteral() string {
	switch dtype {
	case Int8:
		return "CHAR_MAX"
	case Uint8:
		return "UCHAR_MAX"
	case Int16:
		return "SHRT_MAX"
	case Uint16:
		return "USHRT_MAX"
	case Int32:
		return "INT_MAX"
	case Uint32:
		return "UINT_MAX"
	case Int64:
		return "LONG_MAX"
	case Float16:
		return "HALF_MAX"
	case Float32:
		return "FLT_MAX"
	case Float64:
		return "DBL_MAX"
	default:
		panicf("unknown dtype %q (%d) in DType.MaxLiteral", dtype, dtype)
		panic(nil)
	}
}

// MinLiteral returns the device-side literal for the lowest finite value.
// For float types it is the negation of MaxLiteral.
func (dtype DType) MinLiteral() string {
	switch dtype {
	case Int8:
		return "CHAR_MIN"
	case Uint8, Uint16, Uint32:
		return "0"
	case Int16:
		return "SHRT_MIN"
	case Int32:
		return "INT_MIN"
	case Int64:
		return "LONG_MIN"
	case Float16, Float32, Float64:
		return "-" + dtype.MaxLiteral()
	default:
		panicf("unknown dtype %q (%d) in DType.MinLiteral", dtype, dtype)
		panic(nil)
	}
}

// Literal formats v as a device-side literal of the type: "1.0h" for Float16, "1.0f" for Float32,
// "1" for integer types.
func (dtype DType) Literal(v float64) string {
	switch dtype {
	case Float16:
		return formatFloat(v) + "h"
	case Float32:
		return formatFloat(v) + "f"
	case Float64:
		return formatFloat(v)
	default:
		if !dtype.IsInt() {
			panicf("unknown dtype %q (%d) in DType.Literal", dtype, dtype)
		}
		return strconv.FormatInt(int64(v), 10)
	}
}

func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// HighestValue for dtype, as a float64.
// For Float16 it is the largest finite half value (65504), computed from its bit pattern.
func (dtype DType) HighestValue() float64 {
	switch dtype {
	case Int8:
		return math.MaxInt8
	case Uint8:
		return math.MaxUint8
	case Int16:
		return math.MaxInt16
	case Uint16:
		return math.MaxUint16
	case Int32:
		return math.MaxInt32
	case Uint32:
		return math.MaxUint32
	case Int64:
		return math.MaxInt64
	case Float16:
		return float64(float16.Frombits(0x7bff).Float32())
	case Float32:
		return math.MaxFloat32
	case Float64:
		return math.MaxFloat64
	default:
		panicf("unknown dtype %q (%d) in DType.HighestValue", dtype, dtype)
		panic(nil)
	}
}

// LowestValue for dtype, as a float64.
func (dtype DType) LowestValue() float64 {
	switch dtype {
	case Uint8, Uint16, Uint32:
		return 0
	case Int8:
		return math.MinInt8
	case Int16:
		return math.MinInt16
	case Int32:
		return math.MinInt32
	case Int64:
		return math.MinInt64
	case Float16, Float32, Float64:
		return -dtype.HighestValue()
	default:
		panicf("unknown dtype %q (%d) in DType.LowestValue", dtype, dtype)
		panic(nil)
	}
}

// RoundToDType rounds v to the closest value representable in the dtype.
// It is used to bake float constants into kernels without losing consistency with the device.
func (dtype DType) RoundToDType(v float64) float64 {
	switch dtype {
	case Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case Float32:
		return float64(float32(v))
	case Float64:
		return v
	default:
		if !dtype.IsInt() {
			panicf("unknown dtype %q (%d) in DType.RoundToDType", dtype, dtype)
		}
		return math.Max(dtype.LowestValue(), math.Min(dtype.HighestValue(), math.Round(v)))
	}
}

// GoString implements fmt.GoStringer.
func (dtype DType) GoString() string {
	return fmt.Sprintf("dtypes.%s", dtype)
}
