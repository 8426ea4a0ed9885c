// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernel holds what is shared by all kernel variants: the Base with the common and
// fused operations JIT constants, the DispatchData and KernelData results, and the Registry
// that selects a variant for a descriptor.
//
// A kernel variant is one implementation strategy of an operation (see package convolution).
// It never fails for being inapplicable: it returns a nil KernelData, and the Registry tries the
// next variant. Errors are reserved for descriptors breaking their preconditions.
package kernel

import (
	"slices"
	"strconv"

	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/kernels/activations"
	"github.com/gomlx/kernelselector/pkg/kernels/fusedops"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/gomlx/kernelselector/pkg/support/sets"
)

// Base is embedded by all kernel variants.
//
// It holds the name of the variant, the set of fused operation types it opted in for, and the
// factory of the code generators of fused operations.
type Base struct {
	name              string
	supportedFusedOps sets.Set[fusedops.Type]
	generatorFactory  fusedops.GeneratorFactory
}

// NewBase creates a Base for the variant with the given name, supporting the given fused
// operation types. With no types given, no fused operation is supported.
func NewBase(name string, supportedFusedOps ...fusedops.Type) Base {
	return Base{
		name:              name,
		supportedFusedOps: sets.MakeWith(supportedFusedOps...),
		generatorFactory:  fusedops.NewCodeGenerator,
	}
}

// Name of the kernel variant.
func (b *Base) Name() string { return b.name }

// SetGeneratorFactory changes how the code generators of fused operations are created.
// A nil factory restores the default, fusedops.NewCodeGenerator.
func (b *Base) SetGeneratorFactory(factory fusedops.GeneratorFactory) {
	if factory == nil {
		factory = fusedops.NewCodeGenerator
	}
	b.generatorFactory = factory
}

func (b *Base) codeGenerator(desc fusedops.Desc) fusedops.CodeGenerator {
	if b.generatorFactory == nil {
		return fusedops.NewCodeGenerator(desc)
	}
	return b.generatorFactory(desc)
}

// GetSupportedFusedOps returns the fused operation types the variant supports, sorted.
func (b *Base) GetSupportedFusedOps() []fusedops.Type {
	return sets.Sorted(b.supportedFusedOps)
}

// IsFusedPrimitiveSupported returns whether the type of the fused operation is supported by
// the variant.
func (b *Base) IsFusedPrimitiveSupported(op fusedops.Desc) bool {
	return b.supportedFusedOps.Has(op.Type)
}

// AllFusedOpsSupported returns whether every operation of the chain is supported.
func (b *Base) AllFusedOpsSupported(ops []fusedops.Desc) bool {
	for _, op := range ops {
		if !b.IsFusedPrimitiveSupported(op) {
			return false
		}
	}
	return true
}

// GetUnitType returns the dtype used for the intermediary computations of a kernel: the first
// of Int8, Float16, Int32, Int64, Uint8 and Uint32 used by any operand, or Float32 if none is used.
func GetUnitType(p params.Params) dtypes.DType { return params.UnitType(p) }

// MakeBaseParamsJitConstants returns the constants common to all kernels: the output and
// inputs tensors, the dtypes supported by the engine and used by the kernel, the unit type
// and the activations.
func (b *Base) MakeBaseParamsJitConstants(p params.Params) *jit.Constants {
	base := p.GetBase()
	used := sets.MakeWith(p.OperandDTypes()...)
	unitType := GetUnitType(p)
	constants := jit.New(
		jit.Make("OUTPUT", base.Output),
		jit.Make("FP64_SUPPORTED", base.Engine.SupportsFP64),
		jit.Make("FP16_SUPPORTED", base.Engine.SupportsFP16),
		jit.Make("FP16_UNIT_USED", used.Has(dtypes.Float16)),
		jit.Make("INT8_UNIT_USED", used.Has(dtypes.Int8)),
		jit.Make("INT32_UNIT_USED", used.Has(dtypes.Int32)),
		jit.Make("INT64_UNIT_USED", used.Has(dtypes.Int64)),
		jit.Make("UINT8_UNIT_USED", used.Has(dtypes.Uint8)),
		jit.Make("UINT32_UNIT_USED", used.Has(dtypes.Uint32)),
		jit.Make("GRADIENT", base.Gradient),
	)
	constants.Merge(jit.MakeUnitTypeJitConstants(unitType))
	constants.Merge(activations.MakeJitConstants(base.Activations, unitType, ""))
	for ii, input := range base.Inputs {
		constants.AddConstant(jit.Make("INPUT"+strconv.Itoa(ii), input))
	}
	constants.AddConstant(jit.Make("LayerID", base.LayerID))
	return constants
}

// MakeFusedOpsJitConstants returns the constants of the chain of fused operations, for each
// configuration where the kernel applies it.
//
// For a configuration with suffix S, the value conf.InputVarName flows through the chain: the
// output of each operation is the input of the next one, and FUSED_OPS_RESULT<S> is the
// output of the last one. FUSED_OPS<S> expands to all loads and actions, while
// FUSED_OPS_PRELOAD<S> and FUSED_OPS_CALC<S> split them for kernels that issue the loads early,
// which they may only do if FUSED_OPS_CAN_USE_PRELOAD<S> is set. See fusedops.MakePlan.
func (b *Base) MakeFusedOpsJitConstants(p params.Params, confs []fusedops.Configuration) *jit.Constants {
	constants := jit.New()
	if len(confs) == 0 {
		return constants
	}
	base := p.GetBase()
	for _, conf := range confs {
		inName, inType := conf.InputVarName, conf.InputType
		canPreload := make([]bool, 0, len(base.FusedOps))
		for _, op := range base.FusedOps {
			generator := b.codeGenerator(op)
			constants.Merge(generator.MakeLoadJitConstants(conf, base.Output))
			opConstants, outName, outType := generator.MakeOpJitConstants(conf, inName, inType)
			constants.Merge(opConstants)
			inName, inType = outName, outType
			canPreload = append(canPreload, generator.CanPreloadData(conf))
		}
		plan := fusedops.MakePlan(canPreload, conf.AllowPartialPreload, conf.Suffix)
		constants.AddConstants(
			jit.Make("FUSED_OPS"+conf.Suffix, plan.All),
			jit.Make("FUSED_OPS_PRELOAD"+conf.Suffix, plan.Preload),
			jit.Make("FUSED_OPS_CALC"+conf.Suffix, plan.Calc),
			jit.Make("FUSED_OPS_RESULT"+conf.Suffix, inName),
			jit.Make("FUSED_OPS_CAN_USE_PRELOAD"+conf.Suffix, plan.CanUsePreload),
		)
	}
	constants.Merge(b.MakeFusedOpsDeclsJitConstants(p, confs))
	return constants
}

// MakeFusedOpsDeclsJitConstants returns the description of the extra tensors of the fused
// operations and their declarations as kernel arguments (FUSED_OPS_DECLS), in the context of
// the first configuration. It returns an empty table if there are no configurations.
func (b *Base) MakeFusedOpsDeclsJitConstants(p params.Params, confs []fusedops.Configuration) *jit.Constants {
	constants := jit.New()
	if len(confs) == 0 {
		return constants
	}
	var decls []jit.Fragment
	for ii, op := range p.GetBase().FusedOps {
		generator := b.codeGenerator(op)
		constants.Merge(generator.MakeFusedTensorJitConstants(confs[0]))
		constants.Merge(generator.MakeInputDeclsJitConstants(confs[0]))
		if len(op.Tensors) > 0 {
			decls = append(decls, jit.Fragment{OpIndex: ii, Role: jit.RoleDecls})
		}
	}
	constants.AddConstants(
		jit.MakeFragmentsList("FUSED_OPS_DECLS", decls, ","),
		jit.Make("HAS_FUSED_OPS", true),
		jit.Make("HAS_FUSED_OPS_DECLS", len(decls) > 0),
	)
	return constants
}

// FusedOpsArguments returns the kernel arguments of the extra tensors of the fused operations.
func FusedOpsArguments(p params.Params) []Argument {
	var args []Argument
	for ii, op := range p.GetBase().FusedOps {
		for jj := range op.Tensors {
			args = append(args, Argument{Kind: ArgFusedOpInput, OpIndex: ii, Index: jj})
		}
	}
	return args
}

// SortedFusedOpTypes returns the distinct types of the fused operations of the descriptor.
func SortedFusedOpTypes(p params.Params) []fusedops.Type {
	types := make([]fusedops.Type, 0, len(p.GetBase().FusedOps))
	for _, op := range p.GetBase().FusedOps {
		types = append(types, op.Type)
	}
	slices.Sort(types)
	return slices.Compact(types)
}
