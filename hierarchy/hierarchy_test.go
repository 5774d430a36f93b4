package hierarchy

import (
	"testing"

	"github.com/leaningtech/clang-duetto/abi"
)

// buildDiamond constructs the classic layout: Top is a virtual base of
// both Left and Right, Bottom derives from both.
func buildDiamond(t *testing.T) (*Table, *Class, *Class, *Class, *Class) {
	t.Helper()
	tab := New(8, true)
	top, err := tab.AddClass("Top", 8, 8)
	if err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	left, _ := tab.AddClass("Left", 8, 8)
	right, _ := tab.AddClass("Right", 8, 8)
	bottom, _ := tab.AddClass("Bottom", 8, 8)
	if _, err := tab.AddMethod(top.ID, "get", "()", true, abi.NoClass); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	tab.AddBase(left.ID, top.ID, true)
	tab.AddBase(right.ID, top.ID, true)
	tab.AddBase(bottom.ID, left.ID, false)
	tab.AddBase(bottom.ID, right.ID, false)
	if err := tab.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	return tab, top, left, right, bottom
}

func TestSingleInheritanceLayout(t *testing.T) {
	tab := New(8, true)
	b, _ := tab.AddClass("B", 8, 8)
	d, _ := tab.AddClass("D", 8, 8)
	tab.AddBase(d.ID, b.ID, false)
	if err := tab.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// No virtual methods anywhere: no vtable pointer, B at offset 0.
	if tab.HasVTablePointer(d.ID) {
		t.Error("non-dynamic class got a vtable pointer")
	}
	if d.Bases[0].Offset != 0 {
		t.Errorf("base offset: got %d, want 0", d.Bases[0].Offset)
	}
	if got := tab.Size(d.ID); got != 16 {
		t.Errorf("size: got %d, want 16", got)
	}
}

func TestDynamicClassLayout(t *testing.T) {
	tab := New(8, true)
	b, _ := tab.AddClass("B", 8, 8)
	tab.AddMethod(b.ID, "f", "()", true, abi.NoClass)
	d, _ := tab.AddClass("D", 8, 8)
	tab.AddBase(d.ID, b.ID, false)
	p, _ := tab.AddClass("P", 8, 8) // non-dynamic second base
	m, _ := tab.AddClass("M", 8, 8)
	tab.AddBase(m.ID, p.ID, false)
	tab.AddBase(m.ID, b.ID, false)
	if err := tab.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// B carries the vtable pointer, D shares it through its primary base.
	if !tab.HasVTablePointer(b.ID) {
		t.Error("dynamic root has no vtable pointer")
	}
	if tab.HasVTablePointer(d.ID) {
		t.Error("derived class duplicated the primary base's vtable pointer")
	}
	if d.Bases[0].Offset != 0 {
		t.Errorf("primary base offset: got %d, want 0", d.Bases[0].Offset)
	}
	if got := tab.Size(b.ID); got != 16 {
		t.Errorf("B size: got %d, want 16 (vptr + fields)", got)
	}

	// M's first base is non-dynamic, so M allocates its own vtable
	// pointer and the second base lands at a non-zero offset.
	if !tab.HasVTablePointer(m.ID) {
		t.Error("M should hold its own vtable pointer")
	}
	if m.Bases[1].Offset == 0 {
		t.Error("second base of M laid out at offset 0")
	}
}

func TestVirtualBaseLayout(t *testing.T) {
	tab, top, left, _, bottom := buildDiamond(t)

	// Top appears once, at the end of each complete object.
	off, ok := tab.VBaseOffset(bottom.ID, top.ID)
	if !ok {
		t.Fatal("Top not registered as a virtual base of Bottom")
	}
	if off < tab.NonVirtualSize(bottom.ID) {
		t.Errorf("virtual base at %d overlaps the non-virtual part (size %d)", off, tab.NonVirtualSize(bottom.ID))
	}

	// The vtable slot for the virtual-base offset sits below the three
	// reserved header words.
	slot, ok := tab.VBaseSlotOffset(left.ID, top.ID)
	if !ok {
		t.Fatal("no vtable slot for Top in Left")
	}
	if slot != -24 {
		t.Errorf("vbase slot: got %d, want -24", slot)
	}
}

func TestPathSearch(t *testing.T) {
	tab, top, left, right, bottom := buildDiamond(t)

	path, ok := tab.Path(bottom.ID, top.ID)
	if !ok {
		t.Fatal("no path Bottom -> Top")
	}
	// Declaration order: through Left first.
	want := abi.BasePath{
		{Class: bottom.ID, Base: left.ID},
		{Class: left.ID, Base: top.ID, Virtual: true},
	}
	if !path.Equal(want) {
		t.Errorf("path: got %v, want %v", path, want)
	}
	if !path.HasVirtualStep() {
		t.Error("diamond path lost its virtual step")
	}

	if _, ok := tab.Path(top.ID, bottom.ID); ok {
		t.Error("found a path from a base up to its derived class")
	}
	if p, ok := tab.Path(right.ID, right.ID); !ok || len(p) != 0 {
		t.Errorf("identity path: got %v, %v", p, ok)
	}
}

func TestPathOffsetStopsAtVirtualStep(t *testing.T) {
	tab, top, _, right, bottom := buildDiamond(t)

	// Bottom -> Right is non-virtual; its offset is Right's subobject
	// position.
	p, _ := tab.Path(bottom.ID, right.ID)
	if got, want := tab.PathOffset(p), bottom.Bases[1].Offset; got != want {
		t.Errorf("non-virtual path offset: got %d, want %d", got, want)
	}

	// Bottom -> Top crosses a virtual base at the second link; only the
	// prefix before it counts, and the route goes through Left at 0.
	p, _ = tab.Path(bottom.ID, top.ID)
	if got := tab.PathOffset(p); got != 0 {
		t.Errorf("virtual path prefix offset: got %d, want 0", got)
	}
}

func TestOverrideResolution(t *testing.T) {
	tab := New(8, true)
	a, _ := tab.AddClass("A", 8, 8)
	b, _ := tab.AddClass("B", 8, 8)
	c, _ := tab.AddClass("C", 8, 8)
	tab.AddBase(b.ID, a.ID, false)
	tab.AddBase(c.ID, b.ID, false)

	af, _ := tab.AddMethod(a.ID, "f", "(int)", true, abi.NoClass)
	bf, _ := tab.AddMethod(b.ID, "f", "(int)", true, abi.NoClass)
	cf, _ := tab.AddMethod(c.ID, "f", "(int)", true, abi.NoClass)
	tab.AddMethod(c.ID, "f", "(long)", true, abi.NoClass) // different signature
	if err := tab.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	if len(af.Overrides) != 0 {
		t.Errorf("root method overrides %v", af.Overrides)
	}
	if len(bf.Overrides) != 1 || bf.Overrides[0] != af.ID {
		t.Errorf("B::f overrides: got %v, want [%d]", bf.Overrides, af.ID)
	}
	// Nearest base first.
	if len(cf.Overrides) != 2 || cf.Overrides[0] != bf.ID || cf.Overrides[1] != af.ID {
		t.Errorf("C::f overrides: got %v, want [%d %d]", cf.Overrides, bf.ID, af.ID)
	}
}

func TestAddAfterFinalize(t *testing.T) {
	tab := New(8, true)
	c, _ := tab.AddClass("C", 8, 8)
	if err := tab.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := tab.AddClass("D", 8, 8); err == nil {
		t.Error("AddClass after finalize succeeded")
	}
	if _, err := tab.AddMethod(c.ID, "f", "()", false, abi.NoClass); err == nil {
		t.Error("AddMethod after finalize succeeded")
	}
}

func TestInheritanceCycle(t *testing.T) {
	tab := New(8, true)
	a, _ := tab.AddClass("A", 8, 8)
	b, _ := tab.AddClass("B", 8, 8)
	tab.AddBase(a.ID, b.ID, false)
	tab.AddBase(b.ID, a.ID, false)
	if err := tab.Finalize(); err == nil {
		t.Error("finalize accepted an inheritance cycle")
	}
}
