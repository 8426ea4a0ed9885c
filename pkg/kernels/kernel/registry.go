// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernel

import (
	"slices"
	"sync/atomic"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/kernelselector/pkg/kernels/capabilities"
	"github.com/gomlx/kernelselector/pkg/kernels/params"
	"github.com/gomlx/kernelselector/pkg/support/xslices"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Variant is one implementation of an operation.
//
// The KernelData methods return nil (and no error) if the variant can't be applied to the
// descriptor. Errors are returned only for invalid descriptors.
type Variant interface {
	// Name of the variant, which is also the name of its source template.
	Name() string

	// GetSupportedKey returns the capabilities of the variant, used to shortlist it.
	GetSupportedKey() capabilities.Key

	// Validate returns whether the variant can be applied to the descriptor. It has no side
	// effects.
	Validate(p params.Params, opts params.Options) bool

	// GetKernelsData returns the kernel with the default (heuristic) configuration.
	GetKernelsData(ids *UniqueIDs, p params.Params, opts params.Options) (*KernelData, error)

	// GetTunedKernelsDataByIndex returns the kernel for the autotune configuration with the
	// given index. Invalid indices fall back to the default configuration.
	GetTunedKernelsDataByIndex(ids *UniqueIDs, p params.Params, opts params.Options, autoTuneIndex int) (*KernelData, error)

	// GetKernelsDataForAutoTune returns one kernel per autotune configuration, in catalog order.
	GetKernelsDataForAutoTune(ids *UniqueIDs, p params.Params, opts params.Options) ([]*KernelData, error)
}

// UniqueIDs generates the ids used to make the entry points of the kernels unique.
// Ids are never reused during the lifetime of a UniqueIDs. It is safe for concurrent use.
//
// The zero value is ready to use.
type UniqueIDs struct {
	next atomic.Int64
}

// Next returns a new id.
func (u *UniqueIDs) Next() int64 {
	return u.next.Add(1) - 1
}

// Constructor creates a kernel variant.
type Constructor func() Variant

type registration struct {
	name        string
	constructor Constructor
}

var registeredVariants []registration

// Register a kernel variant constructor with the given name. Registration order is the order
// variants are tried in by a Registry, for variants with the same priority.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	for _, r := range registeredVariants {
		if r.name == name {
			exceptions.Panicf("kernel variant %q registered twice", name)
		}
	}
	registeredVariants = append(registeredVariants, registration{name: name, constructor: constructor})
}

// Registered returns the names of the registered kernel variants, in registration order.
func Registered() []string {
	return xslices.Map(registeredVariants, func(r registration) string { return r.name })
}

// Registry selects kernel variants for descriptors.
//
// It owns the UniqueIDs of the kernels it creates: entry points are unique among the kernels
// of a Registry. A Registry is safe for concurrent use.
type Registry struct {
	ids      UniqueIDs
	variants []Variant
}

// NewRegistry creates a Registry with an instance of each registered variant. If names are
// given, only the variants with those names are included.
func NewRegistry(names ...string) (*Registry, error) {
	r := &Registry{}
	for _, name := range names {
		if !slices.Contains(Registered(), name) {
			return nil, errors.Errorf("unknown kernel variant %q, registered variants are %v", name, Registered())
		}
	}
	for _, reg := range registeredVariants {
		if len(names) > 0 && !slices.Contains(names, reg.name) {
			continue
		}
		r.variants = append(r.variants, reg.constructor())
	}
	return r, nil
}

// NewRegistryWith creates a Registry with the given variants, tried in the given order.
func NewRegistryWith(variants ...Variant) *Registry {
	return &Registry{variants: slices.Clone(variants)}
}

// IDs returns the unique ids generator of the registry.
func (r *Registry) IDs() *UniqueIDs { return &r.ids }

// Variants returns the variants of the registry, in the order they are tried.
func (r *Registry) Variants() []Variant { return slices.Clone(r.variants) }

// Variant returns the variant with the given name.
func (r *Registry) Variant(name string) (Variant, bool) {
	for _, v := range r.variants {
		if v.Name() == name {
			return v, true
		}
	}
	return nil, false
}

// Shortlist returns the variants whose supported key covers the key required by the descriptor.
func (r *Registry) Shortlist(p params.Params) []Variant {
	required := p.RequiredKey()
	var shortlist []Variant
	for _, v := range r.variants {
		if missing := v.GetSupportedKey().Missing(required); len(missing) > 0 {
			klog.V(1).Infof("kernel %s: not shortlisted for %q, unsupported %v", v.Name(), p.GetBase().LayerID, missing)
			continue
		}
		shortlist = append(shortlist, v)
	}
	return shortlist
}

// Select returns the kernel with the best priority among the shortlisted variants that can
// be applied to the descriptor. It returns nil if none can.
func (r *Registry) Select(p params.Params, opts params.Options) (*KernelData, error) {
	if err := p.Check(); err != nil {
		return nil, err
	}
	var best *KernelData
	for _, v := range r.Shortlist(p) {
		kd, err := safeKernelsData(func() (*KernelData, error) { return v.GetKernelsData(&r.ids, p, opts) })
		if err != nil {
			return nil, errors.WithMessagef(err, "kernel %s", v.Name())
		}
		if kd == nil {
			klog.V(1).Infof("kernel %s: not applicable to %q", v.Name(), p.GetBase().LayerID)
			continue
		}
		if best == nil || kd.EstimatedTime < best.EstimatedTime {
			best = kd
		}
	}
	if best != nil {
		klog.V(1).Infof("selected kernel %s (%s) for %q: %s", best.KernelName, best.EstimatedTime, p.GetBase().LayerID, best.Dispatch)
		if klog.V(2).Enabled() {
			klog.Infof("constants of %s:\n%s", best.EntryPoint, best.Constants.Render())
		}
	}
	return best, nil
}

// AutoTune returns the kernels of all autotune configurations of the named variant. It
// returns nil if the variant can't be applied to the descriptor.
func (r *Registry) AutoTune(name string, p params.Params, opts params.Options) ([]*KernelData, error) {
	v, found := r.Variant(name)
	if !found {
		return nil, errors.Errorf("kernel variant %q not in registry", name)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	var kds []*KernelData
	var err error
	if exception := exceptions.TryCatch[error](func() { kds, err = v.GetKernelsDataForAutoTune(&r.ids, p, opts) }); exception != nil {
		err = exception
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel %s", name)
	}
	return kds, nil
}

// Tuned returns the kernel of the named variant for the autotune configuration autoTuneIndex.
// It returns nil if the variant can't be applied to the descriptor.
func (r *Registry) Tuned(name string, p params.Params, opts params.Options, autoTuneIndex int) (*KernelData, error) {
	v, found := r.Variant(name)
	if !found {
		return nil, errors.Errorf("kernel variant %q not in registry", name)
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	kd, err := safeKernelsData(func() (*KernelData, error) {
		return v.GetTunedKernelsDataByIndex(&r.ids, p, opts, autoTuneIndex)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel %s", name)
	}
	return kd, nil
}

// safeKernelsData converts panics of the kernel code (a bug) to errors.
func safeKernelsData(fn func() (*KernelData, error)) (kd *KernelData, err error) {
	if exception := exceptions.TryCatch[error](func() { kd, err = fn() }); exception != nil {
		return nil, exception
	}
	return kd, err
}
