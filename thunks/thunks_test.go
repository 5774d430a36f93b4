package thunks

import (
	"strings"
	"testing"

	"github.com/leaningtech/clang-duetto/abi"
	"github.com/leaningtech/clang-duetto/hierarchy"
)

// multiple inheritance with a covariant clone: D's overrides of B's
// methods need a this adjustment past the A subobject.
const miDesc = `
class A size 8 align 8
class B size 8 align 8
class D size 8 align 8 : A, B

method A::f() virtual
method B::g() virtual
method B::clone() virtual returns B*
method D::f() virtual
method D::g() virtual
method D::clone() virtual returns D*
`

// diamond: Bottom overrides a method declared in its virtual base.
const diamondDesc = `
class Top size 8 align 8
class Left size 8 align 8 : virtual Top
class Right size 8 align 8 : virtual Top
class Bottom size 8 align 8 : Left, Right

method Top::get() virtual
method Bottom::get() virtual
`

func build(t *testing.T, desc string, ptrSize int64, byteAddressable bool, kind abi.Kind) (*Builder, *hierarchy.Table) {
	t.Helper()
	d, err := hierarchy.Parse(strings.NewReader(desc), ptrSize, byteAddressable)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := d.Table.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	b, err := NewBuilder(d.Table, kind)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	return b, d.Table
}

func classID(t *testing.T, tab *hierarchy.Table, name string) abi.ClassID {
	t.Helper()
	c, ok := tab.ClassByName(name)
	if !ok {
		t.Fatalf("class %s not interned", name)
	}
	return c.ID
}

func methodOf(t *testing.T, tab *hierarchy.Table, class abi.ClassID, name string) *hierarchy.Method {
	t.Helper()
	for _, id := range tab.Class(class).Methods {
		if m := tab.Method(id); m.Name == name {
			return m
		}
	}
	t.Fatalf("method %s not found on %s", name, tab.Class(class).Name)
	return nil
}

func TestThisAdjustmentNonVirtual(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Itanium)
	a, bb, d := classID(t, tab, "A"), classID(t, tab, "B"), classID(t, tab, "D")

	// Primary base at offset zero: no adjustment at all.
	adj, err := b.ThisAdjustment(d, a)
	if err != nil {
		t.Fatalf("ThisAdjustment: %v", err)
	}
	if !adj.IsEmpty() {
		t.Errorf("primary-base adjustment not empty: %+v", adj)
	}

	// Second base: static displacement only, equal to B's subobject
	// offset, with an empty virtual part.
	adj, err = b.ThisAdjustment(d, bb)
	if err != nil {
		t.Fatalf("ThisAdjustment: %v", err)
	}
	want := tab.Class(d).Bases[1].Offset
	if adj.NonVirtual != want {
		t.Errorf("displacement: got %d, want %d", adj.NonVirtual, want)
	}
	if !adj.Virtual.IsEmpty() {
		t.Errorf("non-virtual path produced a virtual part: %+v", adj.Virtual)
	}
	if len(adj.Path) != 1 {
		t.Errorf("path: got %v, want one link", adj.Path)
	}
}

func TestThisAdjustmentVirtualBase(t *testing.T) {
	b, tab := build(t, diamondDesc, 8, true, abi.Itanium)
	top, bottom := classID(t, tab, "Top"), classID(t, tab, "Bottom")

	adj, err := b.ThisAdjustment(bottom, top)
	if err != nil {
		t.Fatalf("ThisAdjustment: %v", err)
	}
	if adj.Virtual.IsEmpty() {
		t.Fatal("virtual-base adjustment has an empty virtual part")
	}
	if adj.Virtual.Kind != abi.VariantItanium {
		t.Fatalf("virtual part kind: got %v, want itanium", adj.Virtual.Kind)
	}
	if adj.Virtual.Itanium.VirtualBase != top {
		t.Errorf("virtual base: got %d, want %d", adj.Virtual.Itanium.VirtualBase, top)
	}
	slot, _ := tab.VCallSlotOffset(bottom, top)
	if adj.Virtual.Itanium.VCallOffsetOffset != slot {
		t.Errorf("vcall slot: got %d, want %d", adj.Virtual.Itanium.VCallOffsetOffset, slot)
	}
}

func TestThisAdjustmentMicrosoft(t *testing.T) {
	b, tab := build(t, diamondDesc, 8, true, abi.Microsoft)
	top, bottom := classID(t, tab, "Top"), classID(t, tab, "Bottom")

	adj, err := b.ThisAdjustment(bottom, top)
	if err != nil {
		t.Fatalf("ThisAdjustment: %v", err)
	}
	if adj.Virtual.Kind != abi.VariantMicrosoft {
		t.Fatalf("virtual part kind: got %v, want microsoft", adj.Virtual.Kind)
	}
	// First virtual base: vbtable entry 1, 4 bytes in.
	if adj.Virtual.Microsoft.VBOffsetOffset != 4 {
		t.Errorf("vbtable offset: got %d, want 4", adj.Virtual.Microsoft.VBOffsetOffset)
	}
}

func TestVirtualAdjustmentRejectedOnElementTarget(t *testing.T) {
	b, tab := build(t, diamondDesc, 1, false, abi.Itanium)
	top, bottom := classID(t, tab, "Top"), classID(t, tab, "Bottom")

	if _, err := b.ThisAdjustment(bottom, top); err == nil {
		t.Error("virtual-base this adjustment accepted on element-addressed target")
	}
	if _, err := b.ReturnAdjustment(bottom, top); err == nil {
		t.Error("virtual-base return adjustment accepted on element-addressed target")
	}
}

func TestNoPathIsFatal(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Itanium)
	a, bb := classID(t, tab, "A"), classID(t, tab, "B")

	// A and B are unrelated.
	if _, err := b.ThisAdjustment(a, bb); err == nil {
		t.Error("adjustment between unrelated classes accepted")
	}
	if _, err := b.DerivedToBase(a, bb, false); err == nil {
		t.Error("conversion between unrelated classes accepted")
	}
}

func TestThunkForOverride(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Itanium)
	a, bb, d := classID(t, tab, "A"), classID(t, tab, "B"), classID(t, tab, "D")

	// Override along the primary base needs no thunk.
	ti, err := b.ThunkForOverride(methodOf(t, tab, d, "f"), methodOf(t, tab, a, "f"))
	if err != nil {
		t.Fatalf("ThunkForOverride: %v", err)
	}
	if !ti.IsEmpty() {
		t.Errorf("primary-base override produced a thunk: %+v", ti)
	}

	// Override along the second base needs a this adjustment only.
	ti, err = b.ThunkForOverride(methodOf(t, tab, d, "g"), methodOf(t, tab, bb, "g"))
	if err != nil {
		t.Fatalf("ThunkForOverride: %v", err)
	}
	if ti.IsEmpty() {
		t.Fatal("second-base override produced no thunk")
	}
	if !ti.Return.IsEmpty() {
		t.Errorf("non-covariant override got a return adjustment: %+v", ti.Return)
	}

	// The covariant clone needs both adjustments.
	ti, err = b.ThunkForOverride(methodOf(t, tab, d, "clone"), methodOf(t, tab, bb, "clone"))
	if err != nil {
		t.Fatalf("ThunkForOverride: %v", err)
	}
	if ti.Return.IsEmpty() {
		t.Fatal("covariant override got no return adjustment")
	}
	if ti.Return.NonVirtual != ti.This.NonVirtual {
		t.Errorf("covariant displacement: got %d, want %d", ti.Return.NonVirtual, ti.This.NonVirtual)
	}
	// Itanium thunks are keyed by adjustments alone.
	if ti.Method != abi.NoMethod {
		t.Errorf("itanium thunk carries a method identity: %d", ti.Method)
	}
}

func TestClassThunks(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Itanium)
	d := classID(t, tab, "D")

	ts, err := b.ClassThunks(d)
	if err != nil {
		t.Fatalf("ClassThunks: %v", err)
	}
	// D::f needs nothing; D::g and D::clone one thunk each.
	if len(ts) != 2 {
		t.Fatalf("thunks: got %d, want 2", len(ts))
	}
	for _, mt := range ts {
		if mt.Thunk.IsEmpty() {
			t.Errorf("empty thunk collected for method %d", mt.Method)
		}
	}
}

func TestMemberPointerThunk(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Itanium)
	bb, d := classID(t, tab, "B"), classID(t, tab, "D")

	ti, err := b.MemberPointerThunk(d, methodOf(t, tab, bb, "g"))
	if err != nil {
		t.Fatalf("MemberPointerThunk: %v", err)
	}
	if !ti.MemberPointerThunk {
		t.Error("member-pointer flag not set")
	}
	if ti.Method == abi.NoMethod {
		t.Error("member-pointer thunk lost the dispatch slot identity")
	}

	// The flag is an emission hint, not identity.
	other := ti
	other.MemberPointerThunk = false
	if !ti.Equal(other) {
		t.Error("member-pointer flag leaked into thunk equality")
	}
}

func TestDerivedToBaseConversion(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Itanium)
	a, bb, d := classID(t, tab, "A"), classID(t, tab, "B"), classID(t, tab, "D")

	// Base at offset zero folds to the identity.
	conv, err := b.DerivedToBase(d, a, false)
	if err != nil {
		t.Fatalf("DerivedToBase: %v", err)
	}
	if !conv.IsIdentity() {
		t.Errorf("offset-zero conversion not identity: %+v", conv)
	}

	// Second base folds to exactly one displacement, no runtime part.
	conv, err = b.DerivedToBase(d, bb, true)
	if err != nil {
		t.Fatalf("DerivedToBase: %v", err)
	}
	if conv.Displacement != tab.Class(d).Bases[1].Offset {
		t.Errorf("displacement: got %d, want %d", conv.Displacement, tab.Class(d).Bases[1].Offset)
	}
	if conv.VirtualBase != abi.NoClass || len(conv.Steps) != 0 {
		t.Errorf("non-virtual conversion kept a runtime part: %+v", conv)
	}
	if !conv.NullPreserving {
		t.Error("null-preserving flag dropped")
	}
}

func TestDerivedToBaseVirtual(t *testing.T) {
	b, tab := build(t, diamondDesc, 8, true, abi.Itanium)
	top, bottom := classID(t, tab, "Top"), classID(t, tab, "Bottom")

	conv, err := b.DerivedToBase(bottom, top, false)
	if err != nil {
		t.Fatalf("DerivedToBase: %v", err)
	}
	if conv.VirtualBase != top {
		t.Errorf("virtual base: got %d, want %d", conv.VirtualBase, top)
	}
	slot, _ := tab.VBaseSlotOffset(bottom, top)
	if conv.SlotOffset != slot {
		t.Errorf("slot offset: got %d, want %d", conv.SlotOffset, slot)
	}
}

func TestDerivedToBaseElementAddressed(t *testing.T) {
	b, tab := build(t, miDesc, 1, false, abi.Itanium)
	bb, d := classID(t, tab, "B"), classID(t, tab, "D")

	conv, err := b.DerivedToBase(d, bb, false)
	if err != nil {
		t.Fatalf("DerivedToBase: %v", err)
	}
	// Element-addressed targets get the typed link sequence, never a raw
	// displacement.
	if conv.Displacement != 0 {
		t.Errorf("element-addressed conversion has a raw displacement %d", conv.Displacement)
	}
	if len(conv.Steps) != 1 {
		t.Fatalf("steps: got %v, want one link", conv.Steps)
	}
	if conv.Steps[0].Base != bb {
		t.Errorf("step base: got %d, want %d", conv.Steps[0].Base, bb)
	}
}

func TestMicrosoftThunkKeyedByMethod(t *testing.T) {
	b, tab := build(t, miDesc, 8, true, abi.Microsoft)
	bb, d := classID(t, tab, "B"), classID(t, tab, "D")

	ti, err := b.ThunkForOverride(methodOf(t, tab, d, "g"), methodOf(t, tab, bb, "g"))
	if err != nil {
		t.Fatalf("ThunkForOverride: %v", err)
	}
	if ti.Method != methodOf(t, tab, bb, "g").ID {
		t.Errorf("microsoft thunk method: got %d, want the overridden slot", ti.Method)
	}
}
