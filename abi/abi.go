// Package abi describes ABI-level information about constructors,
// destructors and virtual-call thunks: the value vocabulary shared between
// the class hierarchy table, the thunk builder and the code generators.
//
// Everything in this package is an immutable value object. Adjustments and
// thunk descriptors are computed once while a class's virtual layout is
// analyzed and consumed once by code generation; two values with equal
// fields are interchangeable.
package abi

// CtorKind distinguishes the constructor variants a C++ class ABI emits.
type CtorKind int

const (
	CtorComplete CtorKind = iota // complete object constructor
	CtorBase                     // base object constructor
	CtorComdat                   // the COMDAT grouping symbol for constructors
)

func (k CtorKind) String() string {
	switch k {
	case CtorComplete:
		return "complete"
	case CtorBase:
		return "base"
	case CtorComdat:
		return "comdat"
	}
	return "unknown"
}

// MangleCode returns the Itanium <ctor-dtor-name> encoding for the kind.
func (k CtorKind) MangleCode() string {
	switch k {
	case CtorComplete:
		return "C1"
	case CtorBase:
		return "C2"
	case CtorComdat:
		return "C5"
	}
	return "C?"
}

// DtorKind distinguishes the destructor variants a C++ class ABI emits.
type DtorKind int

const (
	DtorDeleting DtorKind = iota // deleting destructor
	DtorComplete                 // complete object destructor
	DtorBase                     // base object destructor
	DtorComdat                   // the COMDAT grouping symbol for destructors
)

func (k DtorKind) String() string {
	switch k {
	case DtorDeleting:
		return "deleting"
	case DtorComplete:
		return "complete"
	case DtorBase:
		return "base"
	case DtorComdat:
		return "comdat"
	}
	return "unknown"
}

// MangleCode returns the Itanium <ctor-dtor-name> encoding for the kind.
func (k DtorKind) MangleCode() string {
	switch k {
	case DtorDeleting:
		return "D0"
	case DtorComplete:
		return "D1"
	case DtorBase:
		return "D2"
	case DtorComdat:
		return "D5"
	}
	return "D?"
}

// Kind selects the C++ ABI convention a target follows. The convention is
// fixed once per target and decides which virtual-adjustment encoding every
// thunk on that target uses.
type Kind int

const (
	Itanium Kind = iota
	Microsoft
)

func (k Kind) String() string {
	switch k {
	case Itanium:
		return "itanium"
	case Microsoft:
		return "microsoft"
	}
	return "unknown"
}

// ClassID is an interned reference into the semantic analyzer's class
// table. The zero value means "no class".
type ClassID int32

// NoClass is the null class reference.
const NoClass ClassID = 0

// MethodID is an interned reference into the semantic analyzer's method
// table. The zero value means "no method".
type MethodID int32

// NoMethod is the null method reference.
const NoMethod MethodID = 0

// PathStep is one base-class link in an inheritance path: a class together
// with the direct base the path descends into.
type PathStep struct {
	Class   ClassID // the more-derived end of the link
	Base    ClassID // the direct base reached by this step
	Virtual bool    // true if Base is a virtual base of Class
}

// BasePath is an ordered sequence of base-class links from a derived class
// down to one of its (possibly indirect) bases.
type BasePath []PathStep

// HasVirtualStep reports whether any link in the path crosses a virtual
// base.
func (p BasePath) HasVirtualStep() bool {
	for _, s := range p {
		if s.Virtual {
			return true
		}
	}
	return false
}

// Clone returns an independent copy of the path.
func (p BasePath) Clone() BasePath {
	if p == nil {
		return nil
	}
	q := make(BasePath, len(p))
	copy(q, p)
	return q
}

// Equal reports whether two paths contain the same links in the same
// order.
func (p BasePath) Equal(o BasePath) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}
