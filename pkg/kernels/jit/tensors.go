// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"strconv"
	"strings"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
)

// Tensor is a constant describing an activation tensor: it expands into the type, sizes,
// pitches, padding, offsets and index macros of a tensor, all prefixed by its name.
type Tensor struct {
	name   string
	tensor shapes.Tensor
}

var _ Constant = Tensor{}

// MakeTensor creates the constants describing an activation tensor.
func MakeTensor(name string, tensor shapes.Tensor) Tensor {
	return Tensor{name: name, tensor: tensor}
}

// Name implements Constant.
func (t Tensor) Name() string { return t.name }

// Shape returns the described tensor.
func (t Tensor) Shape() shapes.Tensor { return t.tensor }

func typeDefinitions(name string, dtype dtypes.DType) []Definition {
	return []Definition{
		{name + "_TYPE", dtype.CLType()},
		{name + "_VAL_MAX", dtype.MaxLiteral()},
		{name + "_VAL_MIN", dtype.MinLiteral()},
		{name + "_VAL_ONE", dtype.Literal(1)},
		{name + "_VAL_ZERO", dtype.Literal(0)},
		{"TO_" + name + "_TYPE(v)", dtype.ConvertFunc(false) + "(v)"},
		{"TO_" + name + "_TYPE_SAT(v)", dtype.ConvertFunc(true) + "(v)"},
		{name + "_TYPE_SIZE", strconv.Itoa(dtype.Size())},
	}
}

// Definitions implements Constant.
func (t Tensor) Definitions() []Definition {
	name, tensor := t.name, t.tensor
	defs := typeDefinitions(name, tensor.DType)
	pitches := tensor.Pitches()
	itoa := strconv.Itoa
	defs = append(defs,
		Definition{name + "_SIZE_X", itoa(tensor.Dims[shapes.AxisX])},
		Definition{name + "_SIZE_Y", itoa(tensor.Dims[shapes.AxisY])},
		Definition{name + "_FEATURE_NUM", itoa(tensor.Dims[shapes.AxisFeature])},
		Definition{name + "_BATCH_NUM", itoa(tensor.Dims[shapes.AxisBatch])},
		Definition{name + "_X_PITCH", itoa(pitches[shapes.AxisX])},
		Definition{name + "_Y_PITCH", itoa(pitches[shapes.AxisY])},
		Definition{name + "_FEATURE_PITCH", itoa(pitches[shapes.AxisFeature])},
		Definition{name + "_BATCH_PITCH", itoa(pitches[shapes.AxisBatch])},
	)
	if tensor.Layout.IsBlocked() {
		defs = append(defs, Definition{name + "_FEATURE_SLICE_PITCH", itoa(tensor.FeatureSlicePitch())})
	}
	for _, axis := range []shapes.Axis{shapes.AxisX, shapes.AxisY, shapes.AxisFeature, shapes.AxisBatch} {
		defs = append(defs, Definition{padName(name, "BEFORE", axis), itoa(tensor.Padding[axis].Before)})
	}
	for _, axis := range []shapes.Axis{shapes.AxisX, shapes.AxisY, shapes.AxisFeature, shapes.AxisBatch} {
		defs = append(defs, Definition{padName(name, "AFTER", axis), itoa(tensor.Padding[axis].After)})
	}
	defs = append(defs,
		Definition{name + "_OFFSET", itoa(tensor.FirstElementOffset())},
		Definition{name + "_VIEW_OFFSET", itoa(tensor.ViewOffset)},
		Definition{name + "_LENGTH", itoa(tensor.LogicalSize())},
		Definition{name + "_PHYSICAL_SIZE", itoa(tensor.PhysicalSize())},
		Definition{name + "_DIMS", itoa(int(shapes.NumAxes))},
		Definition{name + "_SIMPLE", ToCodeString(!tensor.Layout.IsBlocked() && !tensor.HasPadding())},
		Definition{name + "_LAYOUT_" + strings.ToUpper(tensor.Layout.String()), "1"},
	)
	return append(defs, indexMacros(name, tensor.Layout)...)
}

func padName(name, side string, axis shapes.Axis) string {
	switch axis {
	case shapes.AxisX:
		return name + "_PAD_" + side + "_SIZE_X"
	case shapes.AxisY:
		return name + "_PAD_" + side + "_SIZE_Y"
	case shapes.AxisFeature:
		return name + "_PAD_" + side + "_FEATURE_NUM"
	default:
		return name + "_PAD_" + side + "_BATCH_NUM"
	}
}

// indexMacros returns NAME_GET_INDEX(b, f, y, x) and its boundary checked version
// NAME_GET_INDEX_SAFE(b, f, y, x), expanding to the layout specific index helpers of the
// kernel library.
func indexMacros(name string, layout shapes.DataLayout) []Definition {
	const args = "(b, f, y, x)"
	helper := "GET_DATA_INDEX"
	if layout.IsBlocked() {
		helper = "GET_DATA_" + strings.ToUpper(layout.String()) + "_INDEX"
	}
	return []Definition{
		{name + "_GET_INDEX" + args, helper + "(" + name + ", b, f, y, x)"},
		{name + "_GET_INDEX_SAFE" + args, helper + "_SAFE(" + name + ", b, f, y, x)"},
	}
}

// Weights is a constant describing a convolution filter.
type Weights struct {
	name    string
	weights shapes.Weights
}

var _ Constant = Weights{}

// MakeWeights creates the constants describing a convolution filter.
func MakeWeights(name string, weights shapes.Weights) Weights {
	return Weights{name: name, weights: weights}
}

// Name implements Constant.
func (w Weights) Name() string { return w.name }

// Shape returns the described filter.
func (w Weights) Shape() shapes.Weights { return w.weights }

// Definitions implements Constant.
func (w Weights) Definitions() []Definition {
	name, weights := w.name, w.weights
	pitches := weights.Pitches()
	itoa := strconv.Itoa
	defs := typeDefinitions(name, weights.DType)
	return append(defs,
		Definition{name + "_SIZE_X", itoa(weights.X())},
		Definition{name + "_SIZE_Y", itoa(weights.Y())},
		Definition{name + "_IFM_NUM", itoa(weights.IFM())},
		Definition{name + "_OFM_NUM", itoa(weights.OFM())},
		Definition{name + "_GROUPS_NUM", itoa(weights.Groups())},
		Definition{name + "_X_PITCH", itoa(pitches[shapes.WeightsAxisX])},
		Definition{name + "_Y_PITCH", itoa(pitches[shapes.WeightsAxisY])},
		Definition{name + "_IFM_PITCH", itoa(pitches[shapes.WeightsAxisIFM])},
		Definition{name + "_OFM_PITCH", itoa(pitches[shapes.WeightsAxisOFM])},
		Definition{name + "_GROUPS_PITCH", itoa(pitches[shapes.WeightsAxisGroups])},
		Definition{name + "_OFFSET", "0"},
		Definition{name + "_LENGTH", itoa(weights.LogicalSize())},
		Definition{name + "_PHYSICAL_SIZE", itoa(weights.PhysicalSize())},
		Definition{name + "_LAYOUT_" + strings.ToUpper(weights.Layout.String()), "1"},
	)
}
