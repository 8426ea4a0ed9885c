// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes describes the operands of a kernel: activation tensors (Tensor) and
// convolution filters (Weights), with their memory layouts, padding and pitches.
//
// All sizes are in elements, not bytes. Pitches are the distance in elements between two
// consecutive indices of an axis, taking padding into account.
package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/support/xslices"
)

// Pad is the padding, in elements, before and after one axis.
type Pad struct {
	Before int `json:"before,omitempty"`
	After  int `json:"after,omitempty"`
}

// Total padding of the axis.
func (p Pad) Total() int { return p.Before + p.After }

// Dim describes one logical axis of a tensor.
type Dim struct {
	Value int
	Pitch int
	Pad   Pad
}

// LogicalDimPadded returns the dimension including its padding.
func (d Dim) LogicalDimPadded() int {
	return d.Value + d.Pad.Total()
}

// Tensor describes an activation operand (input, output or fused-op input) of a kernel.
//
// Dims and Padding are indexed by Axis. The zero value is not a valid tensor, use Make.
type Tensor struct {
	DType      dtypes.DType `json:"dtype"`
	Layout     DataLayout   `json:"layout"`
	Dims       [NumAxes]int `json:"dims"`
	Padding    [NumAxes]Pad `json:"padding"`
	ViewOffset int          `json:"view_offset,omitempty"`
}

// Make returns a Tensor with the given dimensions and no padding.
func Make(dtype dtypes.DType, layout DataLayout, batch, feature, y, x int) Tensor {
	t := Tensor{DType: dtype, Layout: layout, Dims: [NumAxes]int{batch, feature, y, x}}
	for axis, dim := range t.Dims {
		if dim <= 0 {
			exceptions.Panicf("shapes.Make(%s): cannot create a tensor with axis %s with dimension <= 0", t, Axis(axis))
		}
	}
	return t
}

// Ok returns whether the tensor has a valid dtype, layout and positive dimensions.
func (t Tensor) Ok() bool {
	if !t.DType.IsSupported() || t.Layout == LayoutInvalid {
		return false
	}
	for _, dim := range t.Dims {
		if dim <= 0 {
			return false
		}
	}
	for _, p := range t.Padding {
		if p.Before < 0 || p.After < 0 {
			return false
		}
	}
	return t.ViewOffset >= 0
}

// WithPadding returns a copy of the tensor with the padding of the given axis replaced.
func (t Tensor) WithPadding(axis Axis, before, after int) Tensor {
	t.Padding[axis] = Pad{Before: before, After: after}
	return t
}

// WithDType returns a copy of the tensor with a different dtype.
func (t Tensor) WithDType(dtype dtypes.DType) Tensor {
	t.DType = dtype
	return t
}

// String implements fmt.Stringer.
func (t Tensor) String() string {
	s := fmt.Sprintf("(%s)%s[b=%d f=%d y=%d x=%d]", t.DType, t.Layout, t.Dims[AxisBatch], t.Dims[AxisFeature],
		t.Dims[AxisY], t.Dims[AxisX])
	if t.HasPadding() {
		s += fmt.Sprintf(" pad=%v", t.Padding)
	}
	return s
}

// Dim returns the description of the given axis.
func (t Tensor) Dim(axis Axis) Dim {
	return Dim{Value: t.Dims[axis], Pitch: t.Pitches()[axis], Pad: t.Padding[axis]}
}

// Batch axis description.
func (t Tensor) Batch() Dim { return t.Dim(AxisBatch) }

// Feature axis description.
func (t Tensor) Feature() Dim { return t.Dim(AxisFeature) }

// Y axis description.
func (t Tensor) Y() Dim { return t.Dim(AxisY) }

// X axis description.
func (t Tensor) X() Dim { return t.Dim(AxisX) }

// HasPadding returns whether any axis is padded.
func (t Tensor) HasPadding() bool {
	for _, p := range t.Padding {
		if p.Total() != 0 {
			return true
		}
	}
	return false
}

// LogicalSize is the number of elements, not counting padding.
func (t Tensor) LogicalSize() int {
	return xslices.Product(t.Dims[:])
}

func (t Tensor) paddedDim(axis Axis) int {
	return t.Dims[axis] + t.Padding[axis].Total()
}

// alignedFeatures is the padded number of features, rounded up to the feature slice size.
func (t Tensor) alignedFeatures() int {
	return xslices.AlignUp(t.paddedDim(AxisFeature), t.Layout.FeatureBlockSize())
}

// Pitches returns the pitch of each axis, indexed by Axis.
//
// For blocked layouts the feature pitch is 1 (within a slice): moving to the next feature
// slice is given by FeatureSlicePitch.
func (t Tensor) Pitches() [NumAxes]int {
	var pitches [NumAxes]int
	if !t.Layout.IsBlocked() {
		pitch := 1
		for _, axis := range t.Layout.planarOrder() {
			pitches[axis] = pitch
			pitch *= t.paddedDim(axis)
		}
		return pitches
	}
	fsv := t.Layout.FeatureBlockSize()
	pitches[AxisFeature] = 1
	pitches[AxisX] = fsv
	pitches[AxisY] = fsv * t.paddedDim(AxisX)
	switch t.Layout {
	case LayoutFsBYXFsv32:
		pitches[AxisBatch] = pitches[AxisY] * t.paddedDim(AxisY)
	default:
		pitches[AxisBatch] = pitches[AxisY] * t.paddedDim(AxisY) * (t.alignedFeatures() / fsv)
	}
	return pitches
}

// FeatureSlicePitch returns the distance between two consecutive feature slices of a blocked layout.
// For planar layouts it is the same as the feature pitch.
func (t Tensor) FeatureSlicePitch() int {
	pitches := t.Pitches()
	if !t.Layout.IsBlocked() {
		return pitches[AxisFeature]
	}
	if t.Layout == LayoutFsBYXFsv32 {
		return pitches[AxisBatch] * t.paddedDim(AxisBatch)
	}
	return pitches[AxisY] * t.paddedDim(AxisY)
}

// PhysicalSize is the number of elements in memory, including padding and slice alignment.
func (t Tensor) PhysicalSize() int {
	size := t.alignedFeatures()
	for _, axis := range []Axis{AxisBatch, AxisY, AxisX} {
		size *= t.paddedDim(axis)
	}
	return size + t.ViewOffset
}

// FirstElementOffset is the offset of the logical element (0, 0, 0, 0), skipping the padding before each axis.
func (t Tensor) FirstElementOffset() int {
	pitches := t.Pitches()
	offset := t.ViewOffset
	for _, axis := range []Axis{AxisBatch, AxisY, AxisX} {
		offset += t.Padding[axis].Before * pitches[axis]
	}
	featurePad := t.Padding[AxisFeature].Before
	if t.Layout.IsBlocked() {
		fsv := t.Layout.FeatureBlockSize()
		offset += (featurePad/fsv)*t.FeatureSlicePitch() + featurePad%fsv
	} else {
		offset += featurePad * pitches[AxisFeature]
	}
	return offset
}

// SameDims returns whether both tensors have the same logical dimensions.
func (t Tensor) SameDims(other Tensor) bool {
	return t.Dims == other.Dims
}
