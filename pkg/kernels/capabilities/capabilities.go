// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package capabilities defines the capability Key of a kernel variant: the dtypes, layouts and
// features it supports, and the engine features it requires.
//
// The same Key type describes what a descriptor requires (see params.Base.RequiredKey): each
// set then holds the values actually used, and EngineFeatures holds what the engine provides.
// A variant can be applied to a descriptor only if its key Supports the required key.
package capabilities

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/support/sets"
)

// Feature of an operation a kernel variant may support.
type Feature int

const (
	FeatureBiasPerFeature Feature = iota
	FeatureBiasPerOutput
	FeatureNonBias
	FeatureBatching
	FeatureDilation
	FeatureTensorPitches
	FeatureTensorOffset
	FeatureDepthwiseSeparableOpt
	FeatureGroupedConvolution
	FeatureSplit
	FeatureQuantization
	FeatureFusedOps
	FeatureGradient
	FeatureDifferentTypes
)

var featureNames = []string{
	FeatureBiasPerFeature:        "BiasPerFeature",
	FeatureBiasPerOutput:         "BiasPerOutput",
	FeatureNonBias:               "NonBias",
	FeatureBatching:              "Batching",
	FeatureDilation:              "Dilation",
	FeatureTensorPitches:         "TensorPitches",
	FeatureTensorOffset:          "TensorOffset",
	FeatureDepthwiseSeparableOpt: "DepthwiseSeparableOpt",
	FeatureGroupedConvolution:    "GroupedConvolution",
	FeatureSplit:                 "Split",
	FeatureQuantization:          "Quantization",
	FeatureFusedOps:              "FusedOps",
	FeatureGradient:              "Gradient",
	FeatureDifferentTypes:        "DifferentTypes",
}

// String implements fmt.Stringer.
func (f Feature) String() string {
	if f < 0 || int(f) >= len(featureNames) {
		return "Feature(" + strconv.Itoa(int(f)) + ")"
	}
	return featureNames[f]
}

// EngineFeature is a capability of the device.
type EngineFeature int

const (
	EngineFP16 EngineFeature = iota
	EngineFP64
	EngineInt8
	EngineSubGroup
	EngineSubGroupShort
)

var engineFeatureNames = []string{
	EngineFP16:          "FP16",
	EngineFP64:          "FP64",
	EngineInt8:          "Int8",
	EngineSubGroup:      "SubGroup",
	EngineSubGroupShort: "SubGroupShort",
}

// String implements fmt.Stringer.
func (f EngineFeature) String() string {
	if f < 0 || int(f) >= len(engineFeatureNames) {
		return "EngineFeature(" + strconv.Itoa(int(f)) + ")"
	}
	return engineFeatureNames[f]
}

// Key holds the capabilities of a kernel variant, or the requirements of a descriptor.
//
// Use MakeKey to create one: the zero value has nil sets, which can be read but not written.
type Key struct {
	InputDTypes, OutputDTypes, WeightsDTypes sets.Set[dtypes.DType]
	InputLayouts, OutputLayouts              sets.Set[shapes.DataLayout]
	Features                                 sets.Set[Feature]

	// EngineFeatures required by a variant, or provided by the engine of a descriptor.
	EngineFeatures sets.Set[EngineFeature]
}

// MakeKey returns an empty key.
func MakeKey() Key {
	return Key{
		InputDTypes:    sets.Make[dtypes.DType](),
		OutputDTypes:   sets.Make[dtypes.DType](),
		WeightsDTypes:  sets.Make[dtypes.DType](),
		InputLayouts:   sets.Make[shapes.DataLayout](),
		OutputLayouts:  sets.Make[shapes.DataLayout](),
		Features:       sets.Make[Feature](),
		EngineFeatures: sets.Make[EngineFeature](),
	}
}

// Clone makes a deep copy of the Key.
func (k Key) Clone() Key {
	return Key{
		InputDTypes:    k.InputDTypes.Clone(),
		OutputDTypes:   k.OutputDTypes.Clone(),
		WeightsDTypes:  k.WeightsDTypes.Clone(),
		InputLayouts:   k.InputLayouts.Clone(),
		OutputLayouts:  k.OutputLayouts.Clone(),
		Features:       k.Features.Clone(),
		EngineFeatures: k.EngineFeatures.Clone(),
	}
}

// EnableInputDType adds supported input dtypes and returns the key, for chaining.
func (k Key) EnableInputDType(dts ...dtypes.DType) Key {
	k.InputDTypes.Insert(dts...)
	return k
}

// EnableOutputDType adds supported output dtypes.
func (k Key) EnableOutputDType(dts ...dtypes.DType) Key {
	k.OutputDTypes.Insert(dts...)
	return k
}

// EnableWeightsDType adds supported weights dtypes.
func (k Key) EnableWeightsDType(dts ...dtypes.DType) Key {
	k.WeightsDTypes.Insert(dts...)
	return k
}

// EnableInputLayout adds supported input layouts.
func (k Key) EnableInputLayout(layouts ...shapes.DataLayout) Key {
	k.InputLayouts.Insert(layouts...)
	return k
}

// EnableOutputLayout adds supported output layouts.
func (k Key) EnableOutputLayout(layouts ...shapes.DataLayout) Key {
	k.OutputLayouts.Insert(layouts...)
	return k
}

// Enable adds supported features.
func (k Key) Enable(features ...Feature) Key {
	k.Features.Insert(features...)
	return k
}

// RequireEngine adds engine features.
func (k Key) RequireEngine(features ...EngineFeature) Key {
	k.EngineFeatures.Insert(features...)
	return k
}

// Support returns whether a variant with key k supports a descriptor with the required key.
func (k Key) Support(required Key) bool {
	return len(k.Missing(required)) == 0
}

// Missing returns the list of requirements not supported by k, as human-readable strings.
// It is empty if k supports required.
func (k Key) Missing(required Key) []string {
	var missing []string
	add := func(what string, values any) {
		missing = append(missing, fmt.Sprintf("%s %v", what, values))
	}
	if diff := required.InputDTypes.Sub(k.InputDTypes); len(diff) > 0 {
		add("input dtypes", sets.Sorted(diff))
	}
	if diff := required.OutputDTypes.Sub(k.OutputDTypes); len(diff) > 0 {
		add("output dtypes", sets.Sorted(diff))
	}
	if diff := required.WeightsDTypes.Sub(k.WeightsDTypes); len(diff) > 0 {
		add("weights dtypes", sets.Sorted(diff))
	}
	if diff := required.InputLayouts.Sub(k.InputLayouts); len(diff) > 0 {
		add("input layouts", sets.Sorted(diff))
	}
	if diff := required.OutputLayouts.Sub(k.OutputLayouts); len(diff) > 0 {
		add("output layouts", sets.Sorted(diff))
	}
	if diff := required.Features.Sub(k.Features); len(diff) > 0 {
		add("features", sets.Sorted(diff))
	}
	if diff := k.EngineFeatures.Sub(required.EngineFeatures); len(diff) > 0 {
		add("engine features", sets.Sorted(diff))
	}
	used := required.InputDTypes.Union(required.OutputDTypes).Union(required.WeightsDTypes)
	if used.Has(dtypes.Float16) && !required.EngineFeatures.Has(EngineFP16) {
		add("engine features", []EngineFeature{EngineFP16})
	}
	if used.Has(dtypes.Float64) && !required.EngineFeatures.Has(EngineFP64) {
		add("engine features", []EngineFeature{EngineFP64})
	}
	return missing
}

// String implements fmt.Stringer.
func (k Key) String() string {
	var parts []string
	add := func(name string, values any) {
		parts = append(parts, fmt.Sprintf("%s=%v", name, values))
	}
	add("in", sets.Sorted(k.InputDTypes))
	add("out", sets.Sorted(k.OutputDTypes))
	add("weights", sets.Sorted(k.WeightsDTypes))
	add("in_layouts", sets.Sorted(k.InputLayouts))
	add("out_layouts", sets.Sorted(k.OutputLayouts))
	add("features", sets.Sorted(k.Features))
	add("engine", sets.Sorted(k.EngineFeatures))
	return "Key{" + strings.Join(parts, " ") + "}"
}
