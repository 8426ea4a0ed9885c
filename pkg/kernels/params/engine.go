// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package params

import (
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/kernelselector/pkg/kernels/capabilities"
	"github.com/gomlx/kernelselector/pkg/support/sets"
	"github.com/pkg/errors"
)

// EngineInfo describes the capabilities of the device a kernel is generated for.
type EngineInfo struct {
	DeviceName string `json:"device_name"`

	SupportsFP16           bool `json:"supports_fp16"`
	SupportsFP64           bool `json:"supports_fp64"`
	SupportsInt8           bool `json:"supports_int8"`
	SupportsSubGroups      bool `json:"supports_sub_groups"`
	SupportsSubGroupsShort bool `json:"supports_sub_groups_short"`

	// MaxWorkGroupSize is the maximum number of work-items in a work-group.
	MaxWorkGroupSize int `json:"max_work_group_size"`

	ComputeUnitsCount int `json:"compute_units_count"`

	// RegistersPerWorkItem is the register budget of one work-item, in units of
	// 32 bits wide registers. Kernel variants use it to reject block sizes that would spill.
	RegistersPerWorkItem int `json:"registers_per_work_item"`
}

// DefaultEngineInfo returns the description of a generic device with half-precision and
// sub-groups support.
func DefaultEngineInfo() EngineInfo {
	return EngineInfo{
		DeviceName:             "generic",
		SupportsFP16:           true,
		SupportsInt8:           true,
		SupportsSubGroups:      true,
		SupportsSubGroupsShort: true,
		MaxWorkGroupSize:       256,
		ComputeUnitsCount:      24,
		RegistersPerWorkItem:   64,
	}
}

// Check returns an error if the engine description is not usable.
func (e EngineInfo) Check() error {
	if e.MaxWorkGroupSize <= 0 {
		return errors.Errorf("engine %q: max work group size must be > 0, got %d", e.DeviceName, e.MaxWorkGroupSize)
	}
	if e.RegistersPerWorkItem <= 0 {
		return errors.Errorf("engine %q: registers per work-item must be > 0, got %d", e.DeviceName, e.RegistersPerWorkItem)
	}
	return nil
}

// Features returns the set of capabilities.EngineFeature provided by the engine.
func (e EngineInfo) Features() sets.Set[capabilities.EngineFeature] {
	features := sets.Make[capabilities.EngineFeature]()
	for feature, enabled := range map[capabilities.EngineFeature]bool{
		capabilities.EngineFP16:          e.SupportsFP16,
		capabilities.EngineFP64:          e.SupportsFP64,
		capabilities.EngineInt8:          e.SupportsInt8,
		capabilities.EngineSubGroup:      e.SupportsSubGroups,
		capabilities.EngineSubGroupShort: e.SupportsSubGroupsShort,
	} {
		if enabled {
			features.Insert(feature)
		}
	}
	return features
}

// KERNEL_SELECTOR_ENGINE is the environment variable with the default engine configuration.
//
// See ParseEngineInfo for the format.
const KERNEL_SELECTOR_ENGINE = "KERNEL_SELECTOR_ENGINE"

// DefaultConfig is the engine configuration used by EngineInfoFromEnv if KERNEL_SELECTOR_ENGINE
// is not set.
var DefaultConfig string

// EngineInfoFromEnv returns the engine configured by the KERNEL_SELECTOR_ENGINE environment
// variable, or by DefaultConfig, or DefaultEngineInfo otherwise.
func EngineInfoFromEnv() (EngineInfo, error) {
	if config, found := os.LookupEnv(KERNEL_SELECTOR_ENGINE); found {
		return ParseEngineInfo(config)
	}
	return ParseEngineInfo(DefaultConfig)
}

// ParseEngineInfo parses an engine configuration, starting from DefaultEngineInfo.
//
// The format of config is "<device_name>:<options>", where both parts are optional. Options are a comma
// separated list of "key=value" or of boolean flags, where a flag "x" is the same as "x=true" and "-x" the same
// as "x=false". The keys are:
//
//   - fp16, fp64, int8, subgroups, subgroups_short: boolean support flags.
//   - max_wg: maximum work-group size.
//   - cu: number of compute units.
//   - registers: registers per work-item.
//
// Example: "arc770:fp16,-fp64,max_wg=512,registers=128".
func ParseEngineInfo(config string) (EngineInfo, error) {
	info := DefaultEngineInfo()
	options := config
	if idx := strings.Index(config, ":"); idx != -1 {
		info.DeviceName = config[:idx]
		options = config[idx+1:]
	} else if config != "" && !strings.ContainsAny(config, "=,") {
		info.DeviceName = config
		options = ""
	}
	if info.DeviceName == "" {
		info.DeviceName = DefaultEngineInfo().DeviceName
	}
	for _, option := range strings.Split(options, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}
		key, value, hasValue := strings.Cut(option, "=")
		if !hasValue {
			value = "true"
			if strings.HasPrefix(key, "-") {
				key, value = key[1:], "false"
			}
		}
		if err := info.setOption(key, value); err != nil {
			return info, errors.WithMessagef(err, "parsing engine configuration %q", config)
		}
	}
	return info, info.Check()
}

func (e *EngineInfo) setOption(key, value string) error {
	var boolPtr *bool
	var intPtr *int
	switch key {
	case "fp16":
		boolPtr = &e.SupportsFP16
	case "fp64":
		boolPtr = &e.SupportsFP64
	case "int8":
		boolPtr = &e.SupportsInt8
	case "subgroups":
		boolPtr = &e.SupportsSubGroups
	case "subgroups_short":
		boolPtr = &e.SupportsSubGroupsShort
	case "max_wg":
		intPtr = &e.MaxWorkGroupSize
	case "cu":
		intPtr = &e.ComputeUnitsCount
	case "registers":
		intPtr = &e.RegistersPerWorkItem
	default:
		return errors.Errorf("unknown engine option %q", key)
	}
	if boolPtr != nil {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "engine option %q", key)
		}
		*boolPtr = v
		return nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return errors.Wrapf(err, "engine option %q", key)
	}
	*intPtr = v
	return nil
}
