// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import "strconv"

// DType is an enum represents the element type of a kernel operand.
//
// The set is closed: kernels are only ever generated for these numeric kinds.
type DType int32

const (
	// InvalidDType is the zero value, and it is never used by a valid operand.
	InvalidDType DType = iota

	// Int8 is a signed 8 bits integer ("char" on the device).
	Int8

	// Uint8 is an unsigned 8 bits integer ("uchar" on the device).
	Uint8

	// Int16 is a signed 16 bits integer.
	Int16

	// Uint16 is an unsigned 16 bits integer.
	Uint16

	// Int32 is a signed 32 bits integer.
	Int32

	// Uint32 is an unsigned 32 bits integer.
	Uint32

	// Int64 is a signed 64 bits integer ("long" on the device).
	Int64

	// Float16 is the IEEE half-precision float.
	Float16

	// Float32 is the IEEE single-precision float.
	Float32

	// Float64 is the IEEE double-precision float. It requires the engine to support FP64.
	Float64
)

// Aliases using the kernel-selector style names.
const (
	INT8   = Int8
	UINT8  = Uint8
	INT16  = Int16
	UINT16 = Uint16
	INT32  = Int32
	UINT32 = Uint32
	INT64  = Int64
	F16    = Float16
	F32    = Float32
	F64    = Float64
)

// All lists all valid dtypes, in enum order.
var All = []DType{Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Float16, Float32, Float64}

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Int8:         "Int8",
	Uint8:        "Uint8",
	Int16:        "Int16",
	Uint16:       "Uint16",
	Int32:        "Int32",
	Uint32:       "Uint32",
	Int64:        "Int64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "DType(" + strconv.Itoa(int(dtype)) + ")"
}

// MapOfNames to their dtypes. It includes also aliases to the various dtypes.
// It is also later initialized to include the lower-case version of the names.
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Int8":         Int8,
	"INT8":         Int8,
	"S8":           Int8,
	"Uint8":        Uint8,
	"UINT8":        Uint8,
	"U8":           Uint8,
	"Int16":        Int16,
	"INT16":        Int16,
	"Uint16":       Uint16,
	"UINT16":       Uint16,
	"Int32":        Int32,
	"INT32":        Int32,
	"S32":          Int32,
	"Uint32":       Uint32,
	"UINT32":       Uint32,
	"U32":          Uint32,
	"Int64":        Int64,
	"INT64":        Int64,
	"S64":          Int64,
	"Float16":      Float16,
	"F16":          Float16,
	"Half":         Float16,
	"Float32":      Float32,
	"F32":          Float32,
	"Float64":      Float64,
	"F64":          Float64,
}
