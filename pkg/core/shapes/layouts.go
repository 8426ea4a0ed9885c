// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"github.com/pkg/errors"
)

// Axis of an activation tensor. Activation tensors always have the 4 logical axes
// batch, feature, y and x, independent of their memory layout.
type Axis int

const (
	AxisBatch Axis = iota
	AxisFeature
	AxisY
	AxisX

	// NumAxes is the number of logical axes of an activation tensor.
	NumAxes
)

// String returns the short name of the axis, as used in index macros ("b", "f", "y", "x").
func (a Axis) String() string {
	switch a {
	case AxisBatch:
		return "b"
	case AxisFeature:
		return "f"
	case AxisY:
		return "y"
	case AxisX:
		return "x"
	default:
		return "unknown"
	}
}

// DataLayout is the memory layout of an activation tensor.
//
// Planar layouts are named from the outermost to the innermost axis. Blocked layouts group
// features in slices of a fixed size ("fsv" = feature slice vector), stored innermost.
type DataLayout int

const (
	LayoutInvalid DataLayout = iota
	LayoutBFYX
	LayoutYXFB
	LayoutBYXF
	LayoutFYXB
	LayoutBFsYXFsv16
	LayoutBFsYXFsv32
	LayoutFsBYXFsv32
)

var dataLayoutNames = []string{
	LayoutInvalid:    "invalid",
	LayoutBFYX:       "bfyx",
	LayoutYXFB:       "yxfb",
	LayoutBYXF:       "byxf",
	LayoutFYXB:       "fyxb",
	LayoutBFsYXFsv16: "b_fs_yx_fsv16",
	LayoutBFsYXFsv32: "b_fs_yx_fsv32",
	LayoutFsBYXFsv32: "fs_b_yx_fsv32",
}

// String returns the canonical lower-case name of the layout, e.g. "fs_b_yx_fsv32".
func (l DataLayout) String() string {
	if l < 0 || int(l) >= len(dataLayoutNames) {
		return "invalid"
	}
	return dataLayoutNames[l]
}

// ParseDataLayout converts a layout name to a DataLayout.
func ParseDataLayout(name string) (DataLayout, error) {
	for l, n := range dataLayoutNames {
		if n == name && DataLayout(l) != LayoutInvalid {
			return DataLayout(l), nil
		}
	}
	return LayoutInvalid, errors.Errorf("unknown data layout %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (l DataLayout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *DataLayout) UnmarshalText(text []byte) error {
	parsed, err := ParseDataLayout(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// FeatureBlockSize returns the size of the feature slices for blocked layouts, or 1 for planar layouts.
func (l DataLayout) FeatureBlockSize() int {
	switch l {
	case LayoutBFsYXFsv16:
		return 16
	case LayoutBFsYXFsv32, LayoutFsBYXFsv32:
		return 32
	default:
		return 1
	}
}

// IsBlocked returns whether the features are grouped in slices.
func (l DataLayout) IsBlocked() bool {
	return l.FeatureBlockSize() > 1
}

// planarOrder returns the axes of a planar layout, innermost first.
func (l DataLayout) planarOrder() [NumAxes]Axis {
	switch l {
	case LayoutYXFB:
		return [NumAxes]Axis{AxisBatch, AxisFeature, AxisX, AxisY}
	case LayoutBYXF:
		return [NumAxes]Axis{AxisFeature, AxisX, AxisY, AxisBatch}
	case LayoutFYXB:
		return [NumAxes]Axis{AxisBatch, AxisX, AxisY, AxisFeature}
	default:
		return [NumAxes]Axis{AxisX, AxisY, AxisFeature, AxisBatch}
	}
}

// WeightsLayout is the memory layout of a convolution filter.
type WeightsLayout int

const (
	WeightsLayoutInvalid WeightsLayout = iota
	WeightsLayoutOIYX
	WeightsLayoutGOIYX
	WeightsLayoutOsIYXOsv16
	WeightsLayoutGsOIYXGsv32
)

var weightsLayoutNames = []string{
	WeightsLayoutInvalid:     "invalid",
	WeightsLayoutOIYX:        "oiyx",
	WeightsLayoutGOIYX:       "goiyx",
	WeightsLayoutOsIYXOsv16:  "os_iyx_osv16",
	WeightsLayoutGsOIYXGsv32: "gs_oiyx_gsv32",
}

// String returns the canonical lower-case name of the layout, e.g. "gs_oiyx_gsv32".
func (l WeightsLayout) String() string {
	if l < 0 || int(l) >= len(weightsLayoutNames) {
		return "invalid"
	}
	return weightsLayoutNames[l]
}

// ParseWeightsLayout converts a layout name to a WeightsLayout.
func ParseWeightsLayout(name string) (WeightsLayout, error) {
	for l, n := range weightsLayoutNames {
		if n == name && WeightsLayout(l) != WeightsLayoutInvalid {
			return WeightsLayout(l), nil
		}
	}
	return WeightsLayoutInvalid, errors.Errorf("unknown weights layout %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (l WeightsLayout) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *WeightsLayout) UnmarshalText(text []byte) error {
	parsed, err := ParseWeightsLayout(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// IsGrouped returns whether the layout stores the groups axis explicitly.
func (l WeightsLayout) IsGrouped() bool {
	return l == WeightsLayoutGOIYX || l == WeightsLayoutGsOIYXGsv32
}
