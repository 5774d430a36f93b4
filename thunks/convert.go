package thunks

import (
	"fmt"

	"github.com/leaningtech/clang-duetto/abi"
)

// Conversion is the plan for a derived-to-base address conversion. On a
// byte-addressable target a non-virtual path folds to one constant
// displacement so the generated code never branches; a path through a
// virtual base adds a single runtime load from the offset slot. On an
// element-addressed target raw displacements are meaningless, so the plan
// keeps the typed per-link steps and the generator rebuilds the address
// type by type.
type Conversion struct {
	Derived abi.ClassID
	Base    abi.ClassID

	// Displacement is the folded constant part, in addressable units,
	// applied after the runtime part when there is one.
	Displacement int64

	// VirtualBase and SlotOffset describe the runtime part: the virtual
	// base crossed and the vtable slot its offset is loaded from.
	// VirtualBase is NoClass when the whole conversion is static.
	VirtualBase abi.ClassID
	SlotOffset  int64

	// Steps holds the typed link sequence on element-addressed targets;
	// nil on byte-addressable ones.
	Steps abi.BasePath

	// NullPreserving marks conversions of possibly-null pointers: the
	// generated code must skip the displacement when the source compares
	// null instead of producing a dangling near-null address.
	NullPreserving bool
}

// IsIdentity reports whether the conversion changes nothing and the
// generator may reuse the incoming address as is.
func (c Conversion) IsIdentity() bool {
	return c.Displacement == 0 && c.VirtualBase == abi.NoClass && len(c.Steps) == 0
}

// DerivedToBase plans the address conversion from derived to one of its
// bases. nullPreserving selects the pointer (rather than reference) form.
func (b *Builder) DerivedToBase(derived, base abi.ClassID, nullPreserving bool) (Conversion, error) {
	conv := Conversion{Derived: derived, Base: base, NullPreserving: nullPreserving}
	if derived == base {
		return conv, nil
	}
	path, ok := b.table.Path(derived, base)
	if !ok {
		return conv, fmt.Errorf("internal: no inheritance path %s -> %s",
			b.className(derived), b.className(base))
	}

	if !b.table.ByteAddressable() {
		if path.HasVirtualStep() {
			return conv, fmt.Errorf("virtual-base conversion %s -> %s is undefined on an element-addressed target",
				b.className(derived), b.className(base))
		}
		conv.Steps = path.Clone()
		return conv, nil
	}

	conv.Displacement = b.table.PathSuffixOffset(path)
	if path.HasVirtualStep() {
		vb := firstVirtualBase(path)
		slot, ok := b.table.VBaseSlotOffset(derived, vb)
		if !ok {
			return conv, fmt.Errorf("internal: %s has no offset slot for virtual base %s",
				b.className(derived), b.className(vb))
		}
		conv.VirtualBase = vb
		conv.SlotOffset = slot
	}
	return conv, nil
}
