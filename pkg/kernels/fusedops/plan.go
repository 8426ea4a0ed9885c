// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusedops

import (
	"github.com/gomlx/kernelselector/pkg/kernels/jit"
)

// Plan is the split of the fragments of a chain of fused operations for one configuration.
//
//   - All: the load and the action of every operation, in order. Always correct.
//   - Preload: the loads of the operations that can be preloaded.
//   - Calc: the loads of the operations that can't be preloaded if partial preload is allowed,
//     and the actions of every operation.
//
// Notice that if partial preload is not allowed the loads of the operations that can't be
// preloaded are in neither Preload nor Calc: a kernel then uses Preload+Calc only if
// CanUsePreload, and All otherwise.
type Plan struct {
	Suffix             string
	All, Preload, Calc []jit.Fragment

	// CanUsePreload is true if all operations can be preloaded, or if partial preload is allowed
	// and at least one operation can be preloaded.
	CanUsePreload bool
}

// MakePlan selects the fragments of a chain of fused operations, given for each operation (in
// chain order) whether its CodeGenerator reports it can preload its data.
func MakePlan(canPreload []bool, allowPartialPreload bool, suffix string) Plan {
	plan := Plan{Suffix: suffix}
	canAllPreload, canAnyPreload := true, false
	for ii, can := range canPreload {
		load := jit.Fragment{OpIndex: ii, Role: jit.RoleLoad, Suffix: suffix}
		action := jit.Fragment{OpIndex: ii, Role: jit.RoleAction, Suffix: suffix}
		canAllPreload = canAllPreload && can
		canAnyPreload = canAnyPreload || can
		plan.All = append(plan.All, load, action)
		if can {
			plan.Preload = append(plan.Preload, load)
		} else if allowPartialPreload {
			plan.Calc = append(plan.Calc, load)
		}
		plan.Calc = append(plan.Calc, action)
	}
	plan.CanUsePreload = canAllPreload || (allowPartialPreload && canAnyPreload)
	return plan
}
