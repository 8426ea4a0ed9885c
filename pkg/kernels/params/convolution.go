// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"encoding/json"
	"strconv"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/capabilities"
	"github.com/pkg/errors"
)

// Size is a 2D size or offset, over the spatial axes x and y.
type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Quantization mode of a convolution.
type Quantization int

const (
	QuantizationNone Quantization = iota
	QuantizationSymmetric
)

// String implements fmt.Stringer.
func (q Quantization) String() string {
	switch q {
	case QuantizationNone:
		return "none"
	case QuantizationSymmetric:
		return "symmetric"
	default:
		return "Quantization(" + strconv.Itoa(int(q)) + ")"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (q Quantization) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quantization) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "none":
		*q = QuantizationNone
	case "symmetric":
		*q = QuantizationSymmetric
	default:
		return errors.Errorf("unknown quantization %q", string(text))
	}
	return nil
}

// Convolution describes a 2D (grouped) convolution.
type Convolution struct {
	Base

	Weights shapes.Weights `json:"weights"`

	// Bias is empty, or has one tensor: either one value per output feature ([1, F, 1, 1]), or
	// one value per output element (same dimensions as the output).
	Bias []shapes.Tensor `json:"bias,omitempty"`

	Stride   Size `json:"stride"`
	Dilation Size `json:"dilation"`

	// Padding is the implicit zero padding before each spatial axis of the input.
	Padding Size `json:"padding"`

	Split  int `json:"split"`
	Groups int `json:"groups"`

	DepthwiseSeparableOpt bool         `json:"depthwise_separable_opt,omitempty"`
	Quantization          Quantization `json:"quantization,omitempty"`
}

// NewConvolution returns a convolution descriptor with unit stride and dilation, a single
// split and group, and the default engine.
func NewConvolution(layerID string, input, output shapes.Tensor, weights shapes.Weights) *Convolution {
	return &Convolution{
		Base: Base{
			Kind:    KindConvolution,
			LayerID: layerID,
			Inputs:  []shapes.Tensor{input},
			Output:  output,
			Engine:  DefaultEngineInfo(),
		},
		Weights:  weights,
		Stride:   Size{1, 1},
		Dilation: Size{1, 1},
		Split:    1,
		Groups:   weights.Groups(),
	}
}

// ParseConvolution parses a JSON convolution descriptor and checks it. Fields not given take the
// values of NewConvolution.
func ParseConvolution(data []byte) (*Convolution, error) {
	conv := &Convolution{
		Base:     Base{Kind: KindConvolution, Engine: DefaultEngineInfo()},
		Stride:   Size{1, 1},
		Dilation: Size{1, 1},
		Split:    1,
	}
	if err := json.Unmarshal(data, conv); err != nil {
		return nil, errors.Wrap(err, "parsing convolution descriptor")
	}
	if conv.Groups == 0 {
		conv.Groups = conv.Weights.Groups()
	}
	if err := conv.Check(); err != nil {
		return nil, err
	}
	return conv, nil
}

// Assert Convolution is a Params.
var _ Params = (*Convolution)(nil)

// OperandDTypes returns the dtypes of the input, weights, bias and output, output last.
func (c *Convolution) OperandDTypes() []dtypes.DType {
	result := make([]dtypes.DType, 0, len(c.Inputs)+len(c.Bias)+2)
	for _, input := range c.Inputs {
		result = append(result, input.DType)
	}
	result = append(result, c.Weights.DType)
	for _, bias := range c.Bias {
		result = append(result, bias.DType)
	}
	return append(result, c.Output.DType)
}

// FilterSize returns the spatial size of the filter.
func (c *Convolution) FilterSize() Size {
	return Size{X: c.Weights.X(), Y: c.Weights.Y()}
}

// Check returns an error if the descriptor doesn't satisfy the preconditions of a convolution.
func (c *Convolution) Check() error {
	if c.Kind != KindConvolution {
		return errors.Errorf("operation %q: expected kind convolution, got %s", c.LayerID, c.Kind)
	}
	if err := c.Base.check(c); err != nil {
		return err
	}
	if len(c.Inputs) != 1 {
		return errors.Errorf("convolution %q: expected exactly 1 input, got %d", c.LayerID, len(c.Inputs))
	}
	if !c.Weights.Ok() {
		return errors.Errorf("convolution %q: invalid weights %s", c.LayerID, c.Weights)
	}
	if c.Stride.X <= 0 || c.Stride.Y <= 0 {
		return errors.Errorf("convolution %q: stride must be positive, got %+v", c.LayerID, c.Stride)
	}
	if c.Dilation.X <= 0 || c.Dilation.Y <= 0 {
		return errors.Errorf("convolution %q: dilation must be positive, got %+v", c.LayerID, c.Dilation)
	}
	if c.Padding.X < 0 || c.Padding.Y < 0 {
		return errors.Errorf("convolution %q: padding must be non-negative, got %+v", c.LayerID, c.Padding)
	}
	if c.Split < 1 || c.Groups < 1 {
		return errors.Errorf("convolution %q: split and groups must be >= 1, got split=%d groups=%d",
			c.LayerID, c.Split, c.Groups)
	}
	if c.Weights.Groups() != c.Groups {
		return errors.Errorf("convolution %q: weights have %d groups, but the convolution has %d",
			c.LayerID, c.Weights.Groups(), c.Groups)
	}
	input := c.Inputs[0]
	if got, want := c.Weights.IFM()*c.Groups*c.Split, input.Dims[shapes.AxisFeature]; got != want {
		return errors.Errorf("convolution %q: weights expect %d input features, input has %d", c.LayerID, got, want)
	}
	if got, want := c.Weights.OFM()*c.Groups*c.Split, c.Output.Dims[shapes.AxisFeature]; got != want {
		return errors.Errorf("convolution %q: weights produce %d output features, output has %d", c.LayerID, got, want)
	}
	if len(c.Bias) > 1 {
		return errors.Errorf("convolution %q: at most one bias tensor is supported, got %d", c.LayerID, len(c.Bias))
	}
	if len(c.Bias) == 1 && !c.biasPerFeature() && !c.Bias[0].SameDims(c.Output) {
		return errors.Errorf("convolution %q: bias %s must be per output feature or per output element",
			c.LayerID, c.Bias[0])
	}
	return nil
}

func (c *Convolution) biasPerFeature() bool {
	if len(c.Bias) == 0 {
		return false
	}
	dims := c.Bias[0].Dims
	return dims[shapes.AxisBatch] == 1 && dims[shapes.AxisY] == 1 && dims[shapes.AxisX] == 1 &&
		dims[shapes.AxisFeature] == c.Output.Dims[shapes.AxisFeature]
}

// BiasPerOutput returns whether the bias has one value per output element (as opposed to one
// per output feature).
func (c *Convolution) BiasPerOutput() bool {
	return len(c.Bias) == 1 && !c.biasPerFeature()
}

// RequiredKey returns the capabilities a kernel must have to implement the convolution.
func (c *Convolution) RequiredKey() capabilities.Key {
	key := c.Base.RequiredKey()
	key.EnableWeightsDType(c.Weights.DType)
	switch {
	case len(c.Bias) == 0:
		key.Enable(capabilities.FeatureNonBias)
	case c.BiasPerOutput():
		key.Enable(capabilities.FeatureBiasPerOutput)
	default:
		key.Enable(capabilities.FeatureBiasPerFeature)
	}
	if c.Dilation.X != 1 || c.Dilation.Y != 1 {
		key.Enable(capabilities.FeatureDilation)
	}
	if c.Split > 1 {
		key.Enable(capabilities.FeatureSplit)
	}
	if c.Groups > 1 {
		key.Enable(capabilities.FeatureGroupedConvolution)
	}
	if c.DepthwiseSeparableOpt {
		key.Enable(capabilities.FeatureDepthwiseSeparableOpt)
	}
	if c.Quantization != QuantizationNone {
		key.Enable(capabilities.FeatureQuantization)
	}
	return key
}
