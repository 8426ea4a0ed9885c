// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/pkg/errors"
)

// optimalLocalSizes are tried in order for each dimension of the local work size.
var optimalLocalSizes = []int{256, 227, 224, 192, 160, 128, 96, 64, 32, 16, 8, 7, 6, 5, 4, 2, 1}

// GetOptimalLocalWorkGroupSizes returns, for each dimension, the largest of the preferred
// local sizes that divides the global size, such that the total size of the work-group is not
// larger than the engine's maximum.
func GetOptimalLocalWorkGroupSizes(gws [3]int, engine params.EngineInfo) [3]int {
	var lws [3]int
	total := 1
	for ii, global := range gws {
		rest := engine.MaxWorkGroupSize / total
		idx := 0
		for idx < len(optimalLocalSizes)-1 && optimalLocalSizes[idx] > rest {
			idx++
		}
		for idx < len(optimalLocalSizes)-1 && global%optimalLocalSizes[idx] != 0 {
			idx++
		}
		lws[ii] = optimalLocalSizes[idx]
		total *= lws[ii]
	}
	return lws
}

// CheckWorkGroups returns an error if the dispatch geometry can't be launched: all sizes must
// be positive, and the global size a multiple of the local size.
func CheckWorkGroups(dispatch DispatchData) error {
	for ii := range dispatch.GWS {
		gws, lws := dispatch.GWS[ii], dispatch.LWS[ii]
		if gws <= 0 || lws <= 0 {
			return errors.Errorf("invalid work sizes: %s", dispatch)
		}
		if gws%lws != 0 {
			return errors.Errorf("global work size %d not divisible by the local work size %d in dimension %d",
				gws, lws, ii)
		}
	}
	return nil
}
