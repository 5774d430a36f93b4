package abi

// VariantKind says which ABI encoding the virtual part of an adjustment
// carries. The zero value means the adjustment has no virtual part, so a
// zero-valued virtual adjustment is always the empty one.
type VariantKind uint8

const (
	VariantNone      VariantKind = iota // no virtual adjustment
	VariantItanium                      // located through a vtable offset slot
	VariantMicrosoft                    // located through a vbptr/vbtable pair
)

// ItaniumReturnVirtual locates a virtual base for a return adjustment
// under the Itanium convention.
type ItaniumReturnVirtual struct {
	// VBaseOffsetOffset is the offset, relative to the vtable address
	// point of the returned object, of the virtual base class offset slot.
	VBaseOffsetOffset int64
}

// MicrosoftReturnVirtual locates a virtual base for a return adjustment
// under the Microsoft convention.
type MicrosoftReturnVirtual struct {
	VBPtrOffset uint32 // offset of the vbptr from the start of the derived class
	VBIndex     uint32 // index of the virtual base in the vbtable
}

// ReturnVirtual is the ABI-specific virtual part of a return adjustment.
// Exactly one variant is meaningful per compilation target; the inactive
// payload stays zero so that equality behaves like the flat representation
// the target linker compares.
type ReturnVirtual struct {
	Kind      VariantKind
	Itanium   ItaniumReturnVirtual
	Microsoft MicrosoftReturnVirtual
}

// ItaniumReturn builds the Itanium variant. A zero slot offset denotes no
// virtual adjustment and normalizes to the empty value.
func ItaniumReturn(vbaseOffsetOffset int64) ReturnVirtual {
	if vbaseOffsetOffset == 0 {
		return ReturnVirtual{}
	}
	return ReturnVirtual{
		Kind:    VariantItanium,
		Itanium: ItaniumReturnVirtual{VBaseOffsetOffset: vbaseOffsetOffset},
	}
}

// MicrosoftReturn builds the Microsoft variant. An all-zero payload
// denotes no virtual adjustment and normalizes to the empty value.
func MicrosoftReturn(vbptrOffset, vbIndex uint32) ReturnVirtual {
	if vbptrOffset == 0 && vbIndex == 0 {
		return ReturnVirtual{}
	}
	return ReturnVirtual{
		Kind:      VariantMicrosoft,
		Microsoft: MicrosoftReturnVirtual{VBPtrOffset: vbptrOffset, VBIndex: vbIndex},
	}
}

// IsEmpty reports whether no virtual adjustment is needed. It holds
// exactly when the value equals a zero-initialized ReturnVirtual.
func (v ReturnVirtual) IsEmpty() bool {
	return v == ReturnVirtual{}
}

// Less orders virtual adjustments for thunk deduplication. The order is a
// strict weak order and is only meaningful between adjustments using the
// same encoding; the code generator never compares across ABIs.
func (v ReturnVirtual) Less(o ReturnVirtual) bool {
	if v.Kind != o.Kind {
		return v.Kind < o.Kind
	}
	switch v.Kind {
	case VariantItanium:
		return v.Itanium.VBaseOffsetOffset < o.Itanium.VBaseOffsetOffset
	case VariantMicrosoft:
		if v.Microsoft.VBPtrOffset != o.Microsoft.VBPtrOffset {
			return v.Microsoft.VBPtrOffset < o.Microsoft.VBPtrOffset
		}
		return v.Microsoft.VBIndex < o.Microsoft.VBIndex
	}
	return false
}

// ItaniumThisVirtual locates a virtual base for a this adjustment under
// the Itanium convention.
type ItaniumThisVirtual struct {
	// VCallOffsetOffset is the offset, relative to the vtable address
	// point, of the virtual call offset slot the trampoline loads.
	VCallOffsetOffset int64

	// VirtualBase is the virtual base the adjustment crosses.
	VirtualBase ClassID
}

// MicrosoftThisVirtual locates a virtual base for a this adjustment under
// the Microsoft convention.
type MicrosoftThisVirtual struct {
	VtordispOffset int32 // offset of the vtordisp, relative to the incoming this
	VBPtrOffset    int32 // offset of the derived class's vbptr after vtordisp adjustment
	VBOffsetOffset int32 // offset of the virtual base offset inside the vbtable
}

// ThisVirtual is the ABI-specific virtual part of a this adjustment.
type ThisVirtual struct {
	Kind      VariantKind
	Itanium   ItaniumThisVirtual
	Microsoft MicrosoftThisVirtual
}

// ItaniumThis builds the Itanium variant. An all-zero payload denotes no
// virtual adjustment and normalizes to the empty value.
func ItaniumThis(vcallOffsetOffset int64, virtualBase ClassID) ThisVirtual {
	if vcallOffsetOffset == 0 && virtualBase == NoClass {
		return ThisVirtual{}
	}
	return ThisVirtual{
		Kind:    VariantItanium,
		Itanium: ItaniumThisVirtual{VCallOffsetOffset: vcallOffsetOffset, VirtualBase: virtualBase},
	}
}

// MicrosoftThis builds the Microsoft variant. An all-zero payload denotes
// no virtual adjustment and normalizes to the empty value.
func MicrosoftThis(vtordispOffset, vbptrOffset, vbOffsetOffset int32) ThisVirtual {
	if vtordispOffset == 0 && vbptrOffset == 0 && vbOffsetOffset == 0 {
		return ThisVirtual{}
	}
	return ThisVirtual{
		Kind: VariantMicrosoft,
		Microsoft: MicrosoftThisVirtual{
			VtordispOffset: vtordispOffset,
			VBPtrOffset:    vbptrOffset,
			VBOffsetOffset: vbOffsetOffset,
		},
	}
}

// IsEmpty reports whether no virtual adjustment is needed. It holds
// exactly when the value equals a zero-initialized ThisVirtual.
func (v ThisVirtual) IsEmpty() bool {
	return v == ThisVirtual{}
}

// Less orders virtual adjustments for thunk deduplication, within one
// ABI's encoding only.
func (v ThisVirtual) Less(o ThisVirtual) bool {
	if v.Kind != o.Kind {
		return v.Kind < o.Kind
	}
	switch v.Kind {
	case VariantItanium:
		if v.Itanium.VCallOffsetOffset != o.Itanium.VCallOffsetOffset {
			return v.Itanium.VCallOffsetOffset < o.Itanium.VCallOffsetOffset
		}
		return v.Itanium.VirtualBase < o.Itanium.VirtualBase
	case VariantMicrosoft:
		if v.Microsoft.VtordispOffset != o.Microsoft.VtordispOffset {
			return v.Microsoft.VtordispOffset < o.Microsoft.VtordispOffset
		}
		if v.Microsoft.VBPtrOffset != o.Microsoft.VBPtrOffset {
			return v.Microsoft.VBPtrOffset < o.Microsoft.VBPtrOffset
		}
		return v.Microsoft.VBOffsetOffset < o.Microsoft.VBOffsetOffset
	}
	return false
}

// ReturnAdjustment is the pointer correction a thunk applies to a
// covariant return value, converting the override's return type back to
// the type the overridden declaration promises.
//
// A trampoline applies it as
//
//	ret += vbaseOffset(ret)   (virtual part, loaded at run time)
//	ret += NonVirtual          (static part, offset of the target inside the virtual base)
//
// with the first step skipped when Virtual is empty. NonVirtual is in
// addressable units of the target (bytes on byte-addressable targets).
type ReturnAdjustment struct {
	NonVirtual int64
	Virtual    ReturnVirtual

	// Target and Source identify the adjusted-to and adjusted-from
	// classes. They are set only on targets that are not byte
	// addressable, where a numeric displacement alone cannot rebuild an
	// adjusted reference and the code generator needs the types.
	Target ClassID
	Source ClassID
}

// NewReturnAdjustment returns an empty adjustment between source and
// target. On byte-addressable targets the class references are dropped.
func NewReturnAdjustment(byteAddressable bool, target, source ClassID) ReturnAdjustment {
	if byteAddressable {
		return ReturnAdjustment{}
	}
	return ReturnAdjustment{Target: target, Source: source}
}

// IsEmpty reports whether the adjustment is a no-op.
func (r ReturnAdjustment) IsEmpty() bool {
	return r.NonVirtual == 0 && r.Virtual.IsEmpty()
}

// Equal reports field-wise equality, class references included: on
// element-addressed targets two adjustments with equal displacements but
// different types are not interchangeable.
func (r ReturnAdjustment) Equal(o ReturnAdjustment) bool {
	return r == o
}

// Less orders adjustments for thunk deduplication: non-virtual
// displacement first, then the virtual part.
func (r ReturnAdjustment) Less(o ReturnAdjustment) bool {
	if r.NonVirtual != o.NonVirtual {
		return r.NonVirtual < o.NonVirtual
	}
	return r.Virtual.Less(o.Virtual)
}

// ThisAdjustment is the pointer correction between a base subobject view
// of an object and the view the overriding method expects.
//
// NonVirtual is the displacement from the derived object's origin to the
// base subobject, in addressable units, covering the non-virtual prefix of
// the path (the links before the first virtual base). A trampoline
// converting an incoming base pointer to the derived view applies the
// negation, then the run-time part:
//
//	this -= NonVirtual
//	this += vcallOffset(this)   (virtual part, loaded at run time)
type ThisAdjustment struct {
	NonVirtual int64
	Virtual    ThisVirtual

	// Target and Source always identify the classes the adjustment runs
	// between; the base path between them is recorded so that
	// element-addressed targets can recompute the conversion step by
	// step instead of applying a raw displacement.
	Target ClassID
	Source ClassID
	Path   BasePath
}

// NewThisAdjustment returns an empty adjustment between source and
// target.
func NewThisAdjustment(target, source ClassID) ThisAdjustment {
	return ThisAdjustment{Target: target, Source: source}
}

// IsEmpty reports whether the adjustment is a no-op.
func (t ThisAdjustment) IsEmpty() bool {
	return t.NonVirtual == 0 && t.Virtual.IsEmpty()
}

// Equal compares the displacement and virtual part only. The class
// references and the recorded path are recomputation aids and carry no
// extra identity.
func (t ThisAdjustment) Equal(o ThisAdjustment) bool {
	return t.NonVirtual == o.NonVirtual && t.Virtual == o.Virtual
}

// Less orders adjustments for thunk deduplication: non-virtual
// displacement first, then the virtual part.
func (t ThisAdjustment) Less(o ThisAdjustment) bool {
	if t.NonVirtual != o.NonVirtual {
		return t.NonVirtual < o.NonVirtual
	}
	return t.Virtual.Less(o.Virtual)
}
