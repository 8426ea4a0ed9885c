// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusedops

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelselector/pkg/core/dtypes"
	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/activations"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
)

// CodeGenerator generates the code of one fused operation.
//
// For an operation with id i and a configuration with suffix S, the generated macros are
// FUSED_OP<i>_LOAD<S> (loads the extra tensors), FUSED_OP<i>_ACTION<S> (computes the
// operation) and FUSED_OP<i>_DECLS (declares the extra kernel arguments).
type CodeGenerator interface {
	// MakeLoadJitConstants returns the FUSED_OP<i>_LOAD<S> macro. primOutput is the output of
	// the kernel the operation is fused to.
	MakeLoadJitConstants(conf Configuration, primOutput shapes.Tensor) *jit.Constants

	// MakeOpJitConstants returns the FUSED_OP<i>_ACTION<S> macro (and any helper macro it uses),
	// applied to the variable inName of type inType, and the name and type of the variable with
	// the result.
	MakeOpJitConstants(conf Configuration, inName string, inType dtypes.DType) (constants *jit.Constants, outName string, outType dtypes.DType)

	// CanPreloadData returns whether the loads of the operation can be issued before the main
	// computation of the kernel for the given configuration.
	CanPreloadData(conf Configuration) bool

	// MakeInputDeclsJitConstants returns the FUSED_OP<i>_DECLS macro.
	MakeInputDeclsJitConstants(conf Configuration) *jit.Constants

	// MakeFusedTensorJitConstants returns the constants describing the extra tensors
	// (FUSED_OP<i>_INPUT<j>).
	MakeFusedTensorJitConstants(conf Configuration) *jit.Constants

	// TypeStr returns the tag used to name the variables of the operation, e.g. "eltwise".
	TypeStr() string
}

// GeneratorFactory creates the CodeGenerator of a fused operation.
type GeneratorFactory func(desc Desc) CodeGenerator

// NewCodeGenerator returns the default CodeGenerator for the operation.
func NewCodeGenerator(desc Desc) CodeGenerator {
	return &codeGenerator{desc: desc}
}

// Assert codeGenerator is a CodeGenerator.
var _ CodeGenerator = (*codeGenerator)(nil)

type codeGenerator struct {
	desc Desc
}

func (g *codeGenerator) opID() string { return strconv.Itoa(g.desc.OpID) }

// TypeStr implements CodeGenerator.
func (g *codeGenerator) TypeStr() string { return g.desc.Type.String() }

// TensorConstantName returns the name of the constants describing the extra tensor idx.
func (g *codeGenerator) TensorConstantName(idx int) string {
	return "FUSED_OP_" + g.opID() + "_INPUT" + strconv.Itoa(idx)
}

// InputVarName returns the name of the kernel argument (a pointer) for the extra tensor idx.
func (g *codeGenerator) InputVarName(idx int) string {
	return g.TypeStr() + g.opID() + "_input" + strconv.Itoa(idx)
}

// DataVarName returns the name of the variable holding the loaded value of the extra tensor idx.
func (g *codeGenerator) DataVarName(idx int) string {
	return g.TypeStr() + g.opID() + "_data" + strconv.Itoa(idx)
}

var reNonIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]`)

// OutputVarName returns the name of the variable holding the result of the operation,
// derived from the name of its input.
func (g *codeGenerator) OutputVarName(inName string) string {
	return reNonIdentifier.ReplaceAllString(inName, "_") + "_out"
}

// MakeFusedTensorJitConstants implements CodeGenerator.
func (g *codeGenerator) MakeFusedTensorJitConstants(_ Configuration) *jit.Constants {
	constants := jit.New()
	for ii, tensor := range g.desc.Tensors {
		constants.AddConstant(jit.MakeTensor(g.TensorConstantName(ii), tensor))
	}
	return constants
}

// MakeInputDeclsJitConstants implements CodeGenerator.
func (g *codeGenerator) MakeInputDeclsJitConstants(_ Configuration) *jit.Constants {
	decls := make([]string, 0, len(g.desc.Tensors))
	for ii, tensor := range g.desc.Tensors {
		decls = append(decls, "\\\n\tconst __global "+tensor.DType.CLType()+"* "+g.InputVarName(ii))
	}
	return jit.New(jit.Make("FUSED_OP"+g.opID()+"_DECLS", strings.Join(decls, ",")))
}

// CanPreloadData implements CodeGenerator: the data can be preloaded if it doesn't change
// along any of the loop axes.
func (g *codeGenerator) CanPreloadData(conf Configuration) bool {
	if len(conf.LoopAxes) == 0 {
		return true
	}
	for _, tensor := range g.desc.Tensors {
		for _, axis := range conf.LoopAxes {
			if tensor.Dims[axis] != 1 {
				return false
			}
		}
	}
	return true
}

// indexArgs returns the arguments to the GET_INDEX macro of a tensor: axes where the tensor is
// broadcast (dimension 1) use index 0.
func indexArgs(conf Configuration, tensor shapes.Tensor) string {
	args := make([]string, shapes.NumAxes)
	for axis := range shapes.NumAxes {
		idx := conf.IdxOrder[axis]
		if tensor.Dims[axis] == 1 || idx == "" {
			idx = "0"
		} else if axis == shapes.AxisFeature && conf.LoadType == LoadFeatureShuffle {
			idx = "((" + idx + ") / SUB_GROUP_SIZE * SUB_GROUP_SIZE + get_sub_group_local_id())"
		}
		args[axis] = idx
	}
	return strings.Join(args, ", ")
}

// isVectorLoad returns whether the tensor is loaded with a vector load.
func isVectorLoad(conf Configuration, tensor shapes.Tensor) bool {
	return conf.VecSize > 1 && tensor.Dims[conf.VecAxis] != 1
}

// MakeLoadJitConstants implements CodeGenerator.
func (g *codeGenerator) MakeLoadJitConstants(conf Configuration, primOutput shapes.Tensor) *jit.Constants {
	var sb strings.Builder
	for ii, tensor := range g.desc.Tensors {
		getIndex := "_GET_INDEX"
		if conf.BoundaryCheck && !tensor.SameDims(primOutput) {
			getIndex = "_GET_INDEX_SAFE"
		}
		index := g.TensorConstantName(ii) + getIndex + "(" + indexArgs(conf, tensor) + ")"
		ptr := g.InputVarName(ii)
		sb.WriteString("\\\n\t")
		if isVectorLoad(conf, tensor) {
			n := strconv.Itoa(conf.VecSize)
			sb.WriteString(tensor.DType.CLTypeVec(conf.VecSize) + " " + g.DataVarName(ii) + " = vload" + n + "(0, &" + ptr + "[" + index + "]);")
		} else {
			sb.WriteString(tensor.DType.CLType() + " " + g.DataVarName(ii) + " = " + ptr + "[" + index + "];")
		}
	}
	return jit.New(jit.Make("FUSED_OP"+g.opID()+"_LOAD"+conf.Suffix, sb.String()))
}

// loadWidth returns the vector width of the loaded value of the extra tensor idx.
func (g *codeGenerator) loadWidth(conf Configuration, idx int) int {
	if isVectorLoad(conf, g.desc.Tensors[idx]) {
		return conf.VecSize
	}
	return 1
}

// convertFunc returns the conversion function to the given dtype and vector width, e.g. "convert_char4_sat".
func convertFunc(to dtypes.DType, width int, saturate bool) string {
	name := "convert_" + to.CLTypeVec(width)
	if saturate && to.IsInt() {
		name += "_sat"
	}
	return name
}

func convert(value string, from, to dtypes.DType, width int) string {
	if from == to {
		return value
	}
	return convertFunc(to, width, false) + "(" + value + ")"
}

// dataVar returns the expression reading the loaded value of the extra tensor idx, converted
// to the output type of the operation.
func (g *codeGenerator) dataVar(conf Configuration, idx int) string {
	tensor := g.desc.Tensors[idx]
	value := g.DataVarName(idx)
	if conf.LoadType == LoadFeatureShuffle && tensor.Dims[shapes.AxisFeature] != 1 {
		value = "intel_sub_group_shuffle(" + value + ", (" + conf.IdxOrder[shapes.AxisFeature] + ") % SUB_GROUP_SIZE)"
	}
	return convert(value, tensor.DType, g.desc.Output.DType, g.loadWidth(conf, idx))
}

// MakeOpJitConstants implements CodeGenerator.
func (g *codeGenerator) MakeOpJitConstants(conf Configuration, inName string, inType dtypes.DType) (*jit.Constants, string, dtypes.DType) {
	constants := jit.New()
	outType := g.desc.Output.DType
	outName := g.OutputVarName(inName)
	in := convert(inName, inType, outType, conf.VecSize)
	var expr string
	switch g.desc.Type {
	case TypeEltwise:
		data := g.dataVar(conf, 0)
		switch g.desc.Eltwise.Mode {
		case EltwiseSum:
			expr = in + " + " + data
		case EltwiseSub:
			expr = in + " - " + data
		case EltwiseProd:
			expr = in + " * " + data
		case EltwiseDiv:
			expr = in + " / " + data
		case EltwiseMax, EltwiseMin:
			fn := g.desc.Eltwise.Mode.String()
			if outType.IsFloat() {
				fn = "f" + fn
			}
			expr = fn + "(" + in + ", " + data + ")"
		default:
			exceptions.Panicf("fused op #%d: unknown eltwise mode %s", g.desc.OpID, g.desc.Eltwise.Mode)
		}

	case TypeScale:
		expr = in + " * " + g.dataVar(conf, 0)
		if g.desc.Scale.HasShift {
			expr += " + " + g.dataVar(conf, 1)
		}

	case TypeQuantize:
		expr = g.quantizeExpr(conf, inName, inType)

	case TypeActivation:
		suffix := "_FUSED_OP" + g.opID() + conf.Suffix
		constants.Merge(activations.MakeJitConstants([]activations.Params{g.desc.Activation}, outType, suffix))
		expr = "ACTIVATION" + suffix + "(" + in + ", ACTIVATION_PARAMS" + suffix + ")"

	case TypeReorder:
		expr = in

	default:
		exceptions.Panicf("fused op #%d: cannot generate code for type %s", g.desc.OpID, g.desc.Type)
	}
	body := "\\\n\t" + outType.CLTypeVec(conf.VecSize) + " " + outName + " = " + expr + ";"
	constants.AddConstant(jit.Make("FUSED_OP"+g.opID()+"_ACTION"+conf.Suffix, body))
	return constants, outName, outType
}

// quantizeExpr maps the input from [in_lo, in_hi] to Levels integer levels, and those levels
// to [out_lo, out_hi]. Computation is done in float, with a saturating conversion to the output.
func (g *codeGenerator) quantizeExpr(conf Configuration, inName string, inType dtypes.DType) string {
	levels := g.desc.Quantize.Levels
	if levels < 2 {
		exceptions.Panicf("fused op #%d: quantize with %d levels", g.desc.OpID, levels)
	}
	data := make([]string, 4)
	for ii := range data {
		data[ii] = convert(g.DataVarName(ii), g.desc.Tensors[ii].DType, dtypes.Float32, g.loadWidth(conf, ii))
	}
	inLo, inHi, outLo, outHi := data[0], data[1], data[2], data[3]
	steps := dtypes.Float32.Literal(float64(levels - 1))
	clamped := "fmin(fmax(" + convert(inName, inType, dtypes.Float32, conf.VecSize) + ", " + inLo + "), " + inHi + ")"
	level := "round((" + clamped + " - " + inLo + ") * (" + steps + " / (" + inHi + " - " + inLo + ")))"
	value := level + " * ((" + outHi + " - " + outLo + ") / " + steps + ") + " + outLo
	outType := g.desc.Output.DType
	if outType == dtypes.Float32 {
		return value
	}
	return convertFunc(outType, conf.VecSize, true) + "(" + value + ")"
}
