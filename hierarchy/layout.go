package hierarchy

import (
	"fmt"

	"github.com/leaningtech/clang-duetto/abi"
)

// classLayout is the record layout Finalize computes for one class.
// All offsets and sizes are in the target's addressable units.
type classLayout struct {
	size   int64 // complete object size, virtual bases included
	nvSize int64 // non-virtual size (the part embedded into derived classes)
	align  int64

	hasVPtr     bool
	vbaseOffset map[abi.ClassID]int64 // virtual base position in the complete object

	// vtableSlot maps each virtual base to the offset, relative to the
	// vtable address point, of its offset slot. Itanium places them at
	// negative indices below the reserved header words; the assignment is
	// per-class and stable across a run.
	vtableSlot map[abi.ClassID]int64

	// vcallSlot maps each virtual base to the vcall-offset slot this
	// class's thunks load when adjusting across it. Laid out below the
	// virtual-base offset slots.
	vcallSlot map[abi.ClassID]int64
}

// Finalize freezes the table: it lays out every record, locates virtual
// bases, and resolves overrides. No classes, bases or methods may be added
// afterwards.
func (t *Table) Finalize() error {
	if t.finalized {
		return fmt.Errorf("table already finalized")
	}
	state := make(map[abi.ClassID]int, len(t.classes)) // 0 new, 1 visiting, 2 done
	for _, c := range t.classes {
		if err := t.layoutClass(c, state); err != nil {
			return err
		}
	}
	t.resolveOverrides()
	t.finalized = true
	return nil
}

// Finalized reports whether layout queries are valid.
func (t *Table) Finalized() bool { return t.finalized }

// layoutClass computes the layout of c, laying out its bases first.
//
// The scheme follows the Itanium record model in simplified form:
//
//	vtable pointer slot     (when the class is dynamic and no base donates one)
//	non-virtual direct bases, declaration order (their non-virtual part)
//	own fields
//	virtual bases, inheritance-graph order (complete object only)
func (t *Table) layoutClass(c *Class, state map[abi.ClassID]int) error {
	switch state[c.ID] {
	case 2:
		return nil
	case 1:
		return fmt.Errorf("inheritance cycle through %s", c.Name)
	}
	state[c.ID] = 1

	for i := range c.Bases {
		b := t.Class(c.Bases[i].Class)
		if err := t.layoutClass(b, state); err != nil {
			return err
		}
	}

	lay := classLayout{
		align:       c.OwnAlign,
		vbaseOffset: make(map[abi.ClassID]int64),
		vtableSlot:  make(map[abi.ClassID]int64),
		vcallSlot:   make(map[abi.ClassID]int64),
	}

	var off int64
	dynamic := t.isDynamic(c)
	if dynamic && !t.primaryBaseDonatesVPtr(c) {
		lay.hasVPtr = true
		off = t.ptrSize
		if t.ptrSize > lay.align {
			lay.align = t.ptrSize
		}
	}

	// Non-virtual direct bases.
	for i := range c.Bases {
		if c.Bases[i].Virtual {
			continue
		}
		b := t.Class(c.Bases[i].Class)
		off = alignUp(off, b.layout.align)
		c.Bases[i].Offset = off
		off += b.layout.nvSize
		if b.layout.align > lay.align {
			lay.align = b.layout.align
		}
	}

	// Own fields.
	off = alignUp(off, c.OwnAlign)
	off += c.OwnSize
	lay.nvSize = alignUp(off, lay.align)
	if lay.nvSize == 0 {
		lay.nvSize = lay.align // empty records still occupy one unit
	}

	// Virtual bases close the complete object.
	off = lay.nvSize
	for _, vb := range t.virtualBases(c.ID) {
		b := t.Class(vb)
		off = alignUp(off, b.layout.align)
		lay.vbaseOffset[vb] = off
		off += b.layout.nvSize
		if b.layout.align > lay.align {
			lay.align = b.layout.align
		}
	}
	lay.size = alignUp(off, lay.align)

	// Direct virtual base links get their complete-object offsets.
	for i := range c.Bases {
		if c.Bases[i].Virtual {
			c.Bases[i].Offset = lay.vbaseOffset[c.Bases[i].Class]
		}
	}

	// Offset slots for virtual bases sit below the vtable header. Three
	// header words are reserved (offset-to-top, RTTI, and the first
	// function slot boundary), so base i lands at -(3+i) words, with the
	// vcall-offset slots stacked below the whole offset block.
	vbs := t.virtualBases(c.ID)
	for i, vb := range vbs {
		lay.vtableSlot[vb] = -t.ptrSize * int64(3+i)
		lay.vcallSlot[vb] = -t.ptrSize * int64(3+len(vbs)+i)
	}

	c.layout = lay
	state[c.ID] = 2
	return nil
}

// isDynamic reports whether c needs a vtable pointer: it declares a
// virtual method, has a virtual base, or inherits either.
func (t *Table) isDynamic(c *Class) bool {
	for _, id := range c.Methods {
		if t.Method(id).Virtual {
			return true
		}
	}
	for i := range c.Bases {
		if c.Bases[i].Virtual {
			return true
		}
		if t.isDynamic(t.Class(c.Bases[i].Class)) {
			return true
		}
	}
	return false
}

// primaryBaseDonatesVPtr reports whether the first non-virtual dynamic
// base sits at offset zero and shares its vtable pointer with c.
func (t *Table) primaryBaseDonatesVPtr(c *Class) bool {
	for i := range c.Bases {
		if c.Bases[i].Virtual {
			continue
		}
		return t.isDynamic(t.Class(c.Bases[i].Class))
	}
	return false
}

// virtualBases collects every virtual base reachable from class, each
// once, in depth-first inheritance-graph order.
func (t *Table) virtualBases(class abi.ClassID) []abi.ClassID {
	var out []abi.ClassID
	seen := make(map[abi.ClassID]bool)
	var walk func(id abi.ClassID)
	walk = func(id abi.ClassID) {
		c := t.Class(id)
		for i := range c.Bases {
			b := c.Bases[i]
			if b.Virtual && !seen[b.Class] {
				seen[b.Class] = true
				out = append(out, b.Class)
			}
			walk(b.Class)
		}
	}
	walk(class)
	return out
}

// Size returns the complete object size of class.
func (t *Table) Size(class abi.ClassID) int64 { return t.Class(class).layout.size }

// NonVirtualSize returns the size of the part of class embedded into
// derived objects.
func (t *Table) NonVirtualSize(class abi.ClassID) int64 { return t.Class(class).layout.nvSize }

// Align returns the alignment of class in addressable units.
func (t *Table) Align(class abi.ClassID) int64 { return t.Class(class).layout.align }

// HasVTablePointer reports whether class itself holds a vtable pointer
// slot at offset zero.
func (t *Table) HasVTablePointer(class abi.ClassID) bool { return t.Class(class).layout.hasVPtr }

// VBaseOffset returns the complete-object offset of a virtual base of
// class, and whether base is in fact a virtual base of it.
func (t *Table) VBaseOffset(class, base abi.ClassID) (int64, bool) {
	off, ok := t.Class(class).layout.vbaseOffset[base]
	return off, ok
}

// VBaseSlotOffset returns the offset, relative to class's vtable address
// point, of the slot holding base's virtual-base offset.
func (t *Table) VBaseSlotOffset(class, base abi.ClassID) (int64, bool) {
	off, ok := t.Class(class).layout.vtableSlot[base]
	return off, ok
}

// VCallSlotOffset returns the offset, relative to class's vtable address
// point, of the vcall-offset slot thunks adjusting across base load.
func (t *Table) VCallSlotOffset(class, base abi.ClassID) (int64, bool) {
	off, ok := t.Class(class).layout.vcallSlot[base]
	return off, ok
}

// Path returns the inheritance path from derived down to base, or false
// when base is not a base of derived. Paths follow declaration order, so
// with multiple routes the first-declared one wins deterministically.
func (t *Table) Path(derived, base abi.ClassID) (abi.BasePath, bool) {
	if derived == base {
		return abi.BasePath{}, true
	}
	c := t.Class(derived)
	if c == nil || t.Class(base) == nil {
		return nil, false
	}
	for i := range c.Bases {
		step := abi.PathStep{Class: derived, Base: c.Bases[i].Class, Virtual: c.Bases[i].Virtual}
		if c.Bases[i].Class == base {
			return abi.BasePath{step}, true
		}
		if rest, ok := t.Path(c.Bases[i].Class, base); ok {
			return append(abi.BasePath{step}, rest...), true
		}
	}
	return nil, false
}

// PathOffset returns the static displacement accumulated along the
// non-virtual prefix of path: the links before the first virtual step.
// For a fully non-virtual path this is the base subobject's offset within
// the derived object.
func (t *Table) PathOffset(path abi.BasePath) int64 {
	var off int64
	for _, s := range path {
		if s.Virtual {
			break
		}
		c := t.Class(s.Class)
		for i := range c.Bases {
			if c.Bases[i].Class == s.Base && !c.Bases[i].Virtual {
				off += c.Bases[i].Offset
				break
			}
		}
	}
	return off
}

// PathSuffixOffset returns the static displacement accumulated after the
// last virtual step of path: where the final base sits inside the last
// virtual base crossed. For a fully non-virtual path it equals PathOffset.
func (t *Table) PathSuffixOffset(path abi.BasePath) int64 {
	start := 0
	for i, s := range path {
		if s.Virtual {
			start = i + 1
		}
	}
	var off int64
	for _, s := range path[start:] {
		c := t.Class(s.Class)
		for i := range c.Bases {
			if c.Bases[i].Class == s.Base && !c.Bases[i].Virtual {
				off += c.Bases[i].Offset
				break
			}
		}
	}
	return off
}

// resolveOverrides fills Method.Overrides for every virtual method: the
// base-class methods with the same signature key, nearest base first.
func (t *Table) resolveOverrides() {
	for _, m := range t.methods {
		if !m.Virtual {
			continue
		}
		seen := make(map[abi.MethodID]bool)
		t.collectOverridden(m.Class, m.Key(), m.ID, seen, &m.Overrides)
	}
}

func (t *Table) collectOverridden(class abi.ClassID, key string, self abi.MethodID, seen map[abi.MethodID]bool, out *[]abi.MethodID) {
	c := t.Class(class)
	for i := range c.Bases {
		b := c.Bases[i].Class
		if bm := t.findMethod(b, key); bm != nil && bm.Virtual && bm.ID != self && !seen[bm.ID] {
			seen[bm.ID] = true
			*out = append(*out, bm.ID)
		}
		t.collectOverridden(b, key, self, seen, out)
	}
}

func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}
