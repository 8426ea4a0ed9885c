// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/support/xslices"
)

// WeightsAxis is an axis of a convolution filter.
type WeightsAxis int

const (
	WeightsAxisGroups WeightsAxis = iota
	WeightsAxisOFM
	WeightsAxisIFM
	WeightsAxisY
	WeightsAxisX

	// NumWeightsAxes is the number of logical axes of a filter.
	NumWeightsAxes
)

// Weights describes a convolution filter: groups, output features (per group), input
// features (per group), y and x.
type Weights struct {
	DType  dtypes.DType        `json:"dtype"`
	Layout WeightsLayout       `json:"layout"`
	Dims   [NumWeightsAxes]int `json:"dims"`
}

// MakeWeights returns a filter description. Use groups = 1 for non-grouped convolutions.
func MakeWeights(dtype dtypes.DType, layout WeightsLayout, groups, ofm, ifm, y, x int) Weights {
	w := Weights{DType: dtype, Layout: layout, Dims: [NumWeightsAxes]int{groups, ofm, ifm, y, x}}
	for axis, dim := range w.Dims {
		if dim <= 0 {
			exceptions.Panicf("shapes.MakeWeights(%s): axis %d with dimension <= 0", w, axis)
		}
	}
	return w
}

// Ok returns whether the filter has a valid dtype, layout and positive dimensions.
func (w Weights) Ok() bool {
	if !w.DType.IsSupported() || w.Layout == WeightsLayoutInvalid {
		return false
	}
	for _, dim := range w.Dims {
		if dim <= 0 {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (w Weights) String() string {
	return fmt.Sprintf("(%s)%s[g=%d o=%d i=%d y=%d x=%d]", w.DType, w.Layout, w.Dims[WeightsAxisGroups],
		w.Dims[WeightsAxisOFM], w.Dims[WeightsAxisIFM], w.Dims[WeightsAxisY], w.Dims[WeightsAxisX])
}

// WithLayout returns a copy of the filter in a different layout.
func (w Weights) WithLayout(layout WeightsLayout) Weights {
	w.Layout = layout
	return w
}

// Groups returns the number of groups.
func (w Weights) Groups() int { return w.Dims[WeightsAxisGroups] }

// OFM returns the number of output features per group.
func (w Weights) OFM() int { return w.Dims[WeightsAxisOFM] }

// IFM returns the number of input features per group.
func (w Weights) IFM() int { return w.Dims[WeightsAxisIFM] }

// Y returns the filter height.
func (w Weights) Y() int { return w.Dims[WeightsAxisY] }

// X returns the filter width.
func (w Weights) X() int { return w.Dims[WeightsAxisX] }

// LogicalSize is the number of elements of the filter.
func (w Weights) LogicalSize() int {
	return xslices.Product(w.Dims[:])
}

// Pitches returns the pitch of each axis, indexed by WeightsAxis.
//
// For the group-sliced layout (gs_oiyx_gsv32) the groups pitch is 1 within a slice.
func (w Weights) Pitches() [NumWeightsAxes]int {
	var pitches [NumWeightsAxes]int
	switch w.Layout {
	case WeightsLayoutGsOIYXGsv32:
		const gsv = 32
		pitches[WeightsAxisGroups] = 1
		pitches[WeightsAxisX] = gsv
		pitches[WeightsAxisY] = gsv * w.X()
		pitches[WeightsAxisIFM] = pitches[WeightsAxisY] * w.Y()
		pitches[WeightsAxisOFM] = pitches[WeightsAxisIFM] * w.IFM()
	case WeightsLayoutOsIYXOsv16:
		const osv = 16
		pitches[WeightsAxisOFM] = 1
		pitches[WeightsAxisX] = osv
		pitches[WeightsAxisY] = osv * w.X()
		pitches[WeightsAxisIFM] = pitches[WeightsAxisY] * w.Y()
		pitches[WeightsAxisGroups] = pitches[WeightsAxisIFM] * w.IFM() * xslices.AlignUp(w.OFM(), osv)
	default:
		pitches[WeightsAxisX] = 1
		pitches[WeightsAxisY] = w.X()
		pitches[WeightsAxisIFM] = w.X() * w.Y()
		pitches[WeightsAxisOFM] = pitches[WeightsAxisIFM] * w.IFM()
		pitches[WeightsAxisGroups] = pitches[WeightsAxisOFM] * w.OFM()
	}
	return pitches
}

// PhysicalSize is the number of elements in memory, including the slice alignment.
func (w Weights) PhysicalSize() int {
	switch w.Layout {
	case WeightsLayoutGsOIYXGsv32:
		return xslices.AlignUp(w.Groups(), 32) * w.OFM() * w.IFM() * w.Y() * w.X()
	case WeightsLayoutOsIYXOsv16:
		return w.Groups() * xslices.AlignUp(w.OFM(), 16) * w.IFM() * w.Y() * w.X()
	default:
		return w.LogicalSize()
	}
}
