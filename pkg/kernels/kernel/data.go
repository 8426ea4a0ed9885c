// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"fmt"
	"strconv"

	"github.com/gomlx/kernelselector/pkg/core/shapes"
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
)

// AutoTuneIndexUnset is the autotune index meaning "no tuned configuration": variants then use
// their heuristic defaults.
const AutoTuneIndexUnset = -1

// Priority of a kernel, used to choose among several applicable variants. Lower is better.
type Priority int

const (
	ForcePriority1 Priority = iota + 1
	ForcePriority2
	ForcePriority3
	ForcePriority4
	ForcePriority5
	ForcePriority6
	ForcePriority7
	ForcePriority8
	ForcePriority9

	// DontUseIfHaveSomethingElse is for generic kernels, selected only if nothing else applies.
	DontUseIfHaveSomethingElse Priority = 1000
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	if p == DontUseIfHaveSomethingElse {
		return "DontUseIfHaveSomethingElse"
	}
	if p >= ForcePriority1 && p <= ForcePriority9 {
		return "ForcePriority" + strconv.Itoa(int(p))
	}
	return "Priority(" + strconv.Itoa(int(p)) + ")"
}

// CLDNNStyle holds the tiling parameters of blocked kernels.
type CLDNNStyle struct {
	// BlockWidth and BlockHeight are the number of output elements along x and y computed by
	// one work-item.
	BlockWidth, BlockHeight int

	// InputBlockWidth is the number of input elements along x read by one work-item.
	InputBlockWidth int

	Prefetch int
}

// DispatchData is the launch geometry of a kernel.
type DispatchData struct {
	// GWS is the global work size, and LWS the local (work-group) size, for the 3 dispatch
	// dimensions.
	GWS, LWS [3]int

	Efficiency Priority

	CLDNNStyle CLDNNStyle
}

// String implements fmt.Stringer.
func (d DispatchData) String() string {
	return fmt.Sprintf("gws=%v lws=%v block=%dx%d", d.GWS, d.LWS, d.CLDNNStyle.BlockWidth, d.CLDNNStyle.BlockHeight)
}

// ArgumentKind is the kind of a kernel argument.
type ArgumentKind int

const (
	ArgInput ArgumentKind = iota
	ArgOutput
	ArgWeights
	ArgBias
	ArgFusedOpInput
)

var argumentKindNames = []string{
	ArgInput:        "input",
	ArgOutput:       "output",
	ArgWeights:      "weights",
	ArgBias:         "bias",
	ArgFusedOpInput: "fused_op_input",
}

// String implements fmt.Stringer.
func (k ArgumentKind) String() string {
	if k < 0 || int(k) >= len(argumentKindNames) {
		return "ArgumentKind(" + strconv.Itoa(int(k)) + ")"
	}
	return argumentKindNames[k]
}

// Argument of the generated kernel, in the order it is passed.
type Argument struct {
	Kind ArgumentKind

	// Index of the tensor among the tensors of its kind. For ArgFusedOpInput, OpIndex is the
	// position of the fused operation in the chain and Index the tensor within the operation.
	Index, OpIndex int
}

// String implements fmt.Stringer.
func (a Argument) String() string {
	if a.Kind == ArgFusedOpInput {
		return fmt.Sprintf("%s[%d][%d]", a.Kind, a.OpIndex, a.Index)
	}
	return fmt.Sprintf("%s[%d]", a.Kind, a.Index)
}

// WeightsReorder describes a one-time conversion of the weights to the layout the kernel
// expects.
type WeightsReorder struct {
	From, To shapes.Weights
}

// KernelData is the result of a kernel variant for one descriptor: everything needed to
// compile and dispatch the kernel.
type KernelData struct {
	// KernelName is the name of the kernel variant, which is also the name of its source template.
	KernelName string

	// EntryPoint is the unique name of the kernel function in the generated source.
	EntryPoint string

	Dispatch  DispatchData
	Constants *jit.Constants
	Arguments []Argument

	// WeightsReorder is set if the weights have to be converted (once) to another layout.
	WeightsReorder *WeightsReorder

	// ReorderInput is set if the input has to be converted before each execution, to
	// RequiredInput.
	ReorderInput  bool
	RequiredInput shapes.Tensor

	// AutoTuneIndex used to generate the kernel, or AutoTuneIndexUnset.
	AutoTuneIndex int

	// ExeMode is the execution mode tag of the configuration, passed to the device compiler.
	ExeMode string

	// EstimatedTime is the priority of the kernel: the lowest is selected.
	EstimatedTime Priority
}
