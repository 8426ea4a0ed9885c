// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusedops

import (
	"slices"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
)

// LoadType is how a fused operation loads its extra tensors.
type LoadType int

const (
	// LoadGeneral loads each element from its own index.
	LoadGeneral LoadType = iota

	// LoadFeatureShuffle loads one feature per sub-group work-item, and shares them across
	// the sub-group with shuffles.
	LoadFeatureShuffle
)

// Configuration is the context where a chain of fused operations is applied in a kernel.
//
// A kernel may apply the chain in more than one place (e.g. a vectorized path and a scalar
// leftover path): each one gets its own Configuration with a unique Suffix.
type Configuration struct {
	// Suffix appended to all macros generated for this configuration.
	Suffix string

	// IdxOrder has the index expressions for the axes b, f, y and x, in this order.
	IdxOrder [shapes.NumAxes]string

	// InputVarName is the variable holding the value flowing into the chain,
	// and InputType its dtype.
	InputVarName string
	InputType    dtypes.DType

	// VecSize is the number of elements processed at once, along VecAxis.
	VecSize int
	VecAxis shapes.Axis

	LoadType LoadType

	// BoundaryCheck enables the safe (modulo) loads, for tensors smaller than the output.
	BoundaryCheck bool

	// AllowPartialPreload allows the kernel to preload the operations that support it even if
	// some others in the chain don't.
	AllowPartialPreload bool

	// LoopAxes are the axes the kernel iterates over in a loop around the chain: operations
	// whose tensors vary along them can't be preloaded.
	LoopAxes []shapes.Axis
}

// NewConfiguration creates a scalar configuration with boundary checks enabled.
func NewConfiguration(suffix string, idxOrder [shapes.NumAxes]string, inputVarName string, inputType dtypes.DType) Configuration {
	return Configuration{
		Suffix:        suffix,
		IdxOrder:      idxOrder,
		InputVarName:  inputVarName,
		InputType:     inputType,
		VecSize:       1,
		VecAxis:       shapes.AxisFeature,
		BoundaryCheck: true,
	}
}

// WithVector returns a copy of the configuration processing size elements along axis.
func (c Configuration) WithVector(size int, axis shapes.Axis) Configuration {
	c.VecSize = size
	c.VecAxis = axis
	return c
}

// WithLoopAxes returns a copy of the configuration with the given loop axes.
func (c Configuration) WithLoopAxes(axes ...shapes.Axis) Configuration {
	c.LoopAxes = slices.Clone(axes)
	return c
}

// WithPartialPreload returns a copy of the configuration with AllowPartialPreload set.
func (c Configuration) WithPartialPreload(allow bool) Configuration {
	c.AllowPartialPreload = allow
	return c
}

// WithBoundaryCheck returns a copy of the configuration with BoundaryCheck set.
func (c Configuration) WithBoundaryCheck(enabled bool) Configuration {
	c.BoundaryCheck = enabled
	return c
}

// WithLoadType returns a copy of the configuration with the given load type.
func (c Configuration) WithLoadType(loadType LoadType) Configuration {
	c.LoadType = loadType
	return c
}
