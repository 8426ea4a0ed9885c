// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package jit

import (
	"strconv"
	"strings"
)

// Role of a code fragment of a fused operation.
type Role int

const (
	// RoleLoad is the fragment that loads the operands of a fused operation.
	RoleLoad Role = iota

	// RoleAction is the fragment that computes the fused operation.
	RoleAction

	// RoleDecls is the declaration of the extra kernel arguments of a fused operation.
	RoleDecls
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleLoad:
		return "LOAD"
	case RoleAction:
		return "ACTION"
	case RoleDecls:
		return "DECLS"
	default:
		return "Role(" + strconv.Itoa(int(r)) + ")"
	}
}

// Fragment references the macro of one step of one fused operation.
//
// Suffix is the configuration suffix: it is not used by RoleDecls fragments.
type Fragment struct {
	OpIndex int
	Role    Role
	Suffix  string
}

// MacroName returns the name of the macro holding the fragment code, e.g. "FUSED_OP1_LOAD_SCALAR".
func (f Fragment) MacroName() string {
	name := "FUSED_OP" + strconv.Itoa(f.OpIndex) + "_" + f.Role.String()
	if f.Role != RoleDecls {
		name += f.Suffix
	}
	return name
}

// Fragments is a constant holding a list of fragment references. It is rendered as a
// macro body referencing one fragment macro per line, joined by Separator.
type Fragments struct {
	name      string
	fragments []Fragment
	separator string
}

var _ Constant = Fragments{}

// MakeFragments creates a constant with a list of fragments, rendered one after the other.
func MakeFragments(name string, fragments []Fragment) Fragments {
	return Fragments{name: name, fragments: fragments}
}

// MakeFragmentsList creates a constant with a list of fragments joined by separator, e.g. ","
// for argument declarations.
func MakeFragmentsList(name string, fragments []Fragment, separator string) Fragments {
	return Fragments{name: name, fragments: fragments, separator: separator}
}

// Name implements Constant.
func (f Fragments) Name() string { return f.name }

// Fragments returns a copy of the list of fragments.
func (f Fragments) Fragments() []Fragment {
	return append([]Fragment(nil), f.fragments...)
}

// Len returns the number of fragments.
func (f Fragments) Len() int { return len(f.fragments) }

// Text renders the list as a macro body.
func (f Fragments) Text() string {
	parts := make([]string, 0, len(f.fragments))
	for _, fragment := range f.fragments {
		parts = append(parts, "\\\n\t"+fragment.MacroName())
	}
	return strings.Join(parts, f.separator)
}

// Definitions implements Constant.
func (f Fragments) Definitions() []Definition {
	return []Definition{{Name: f.name, Value: f.Text()}}
}
