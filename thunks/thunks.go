// Package thunks computes the pointer adjustments virtual dispatch needs:
// this adjustments for overrides reached through a base-class view, return
// adjustments for covariant returns, and the thunk descriptors combining
// them. It is the bridge between the class table and the code generators:
// every value it hands out is final, the generators only read.
//
// All failures here are construction-time. A request with no inheritance
// path behind it is an internal contradiction from the semantic layer and
// returns an error before anything reaches a generator.
package thunks

import (
	"fmt"
	"sort"

	"github.com/leaningtech/clang-duetto/abi"
	"github.com/leaningtech/clang-duetto/hierarchy"
)

// Builder computes adjustments against one finalized class table under one
// ABI convention. The convention is fixed per target, so every adjustment a
// Builder produces uses a single virtual-part encoding and their ordering
// stays meaningful for deduplication.
type Builder struct {
	table *hierarchy.Table
	kind  abi.Kind
}

// NewBuilder returns a builder for the table under the given ABI
// convention. The table must be finalized.
func NewBuilder(table *hierarchy.Table, kind abi.Kind) (*Builder, error) {
	if !table.Finalized() {
		return nil, fmt.Errorf("thunk builder needs a finalized class table")
	}
	return &Builder{table: table, kind: kind}, nil
}

// ABI returns the convention the builder encodes virtual parts for.
func (b *Builder) ABI() abi.Kind { return b.kind }

// Table returns the class table the builder works from.
func (b *Builder) Table() *hierarchy.Table { return b.table }

// ThisAdjustment computes the this-pointer correction a thunk applies when
// a call arrives through base's view of a derived object.
func (b *Builder) ThisAdjustment(derived, base abi.ClassID) (abi.ThisAdjustment, error) {
	adj := abi.NewThisAdjustment(base, derived)
	if derived == base {
		return adj, nil
	}
	path, ok := b.table.Path(derived, base)
	if !ok {
		return adj, fmt.Errorf("internal: no inheritance path %s -> %s",
			b.className(derived), b.className(base))
	}
	adj.Path = path
	adj.NonVirtual = b.table.PathOffset(path)
	if !path.HasVirtualStep() {
		return adj, nil
	}

	vb := firstVirtualBase(path)
	if !b.table.ByteAddressable() {
		return adj, fmt.Errorf("virtual-base this adjustment across %s is undefined on an element-addressed target",
			b.className(vb))
	}
	switch b.kind {
	case abi.Itanium:
		slot, ok := b.table.VCallSlotOffset(derived, vb)
		if !ok {
			return adj, fmt.Errorf("internal: %s has no vcall slot for virtual base %s",
				b.className(derived), b.className(vb))
		}
		adj.Virtual = abi.ItaniumThis(slot, vb)
	case abi.Microsoft:
		vbptr := int32(0)
		if b.table.HasVTablePointer(derived) {
			vbptr = int32(b.table.PointerSize())
		}
		adj.Virtual = abi.MicrosoftThis(0, vbptr, b.vbtableEntry(derived, vb))
	default:
		return adj, fmt.Errorf("unsupported ABI %v", b.kind)
	}
	return adj, nil
}

// ReturnAdjustment computes the correction applied to a covariant return
// value, converting a pointer to the override's return class back to the
// class the overridden declaration promises.
func (b *Builder) ReturnAdjustment(derived, base abi.ClassID) (abi.ReturnAdjustment, error) {
	adj := abi.NewReturnAdjustment(b.table.ByteAddressable(), base, derived)
	if derived == base {
		return adj, nil
	}
	path, ok := b.table.Path(derived, base)
	if !ok {
		return adj, fmt.Errorf("internal: no inheritance path %s -> %s for covariant return",
			b.className(derived), b.className(base))
	}
	// The static part of a return adjustment is applied after the virtual
	// load, so it is the target's offset inside the virtual base.
	adj.NonVirtual = b.table.PathSuffixOffset(path)
	if !path.HasVirtualStep() {
		return adj, nil
	}

	vb := firstVirtualBase(path)
	if !b.table.ByteAddressable() {
		return adj, fmt.Errorf("virtual-base return adjustment across %s is undefined on an element-addressed target",
			b.className(vb))
	}
	switch b.kind {
	case abi.Itanium:
		slot, ok := b.table.VBaseSlotOffset(derived, vb)
		if !ok {
			return adj, fmt.Errorf("internal: %s has no offset slot for virtual base %s",
				b.className(derived), b.className(vb))
		}
		adj.Virtual = abi.ItaniumReturn(slot)
	case abi.Microsoft:
		vbptr := uint32(0)
		if b.table.HasVTablePointer(derived) {
			vbptr = uint32(b.table.PointerSize())
		}
		adj.Virtual = abi.MicrosoftReturn(vbptr, uint32(b.vbtableEntry(derived, vb)))
	default:
		return adj, fmt.Errorf("unsupported ABI %v", b.kind)
	}
	return adj, nil
}

// ThunkForOverride builds the thunk standing in for overridden when the
// object is viewed as overridden's class but dispatches to m. An empty
// descriptor means the override is callable directly and no trampoline
// may be emitted.
func (b *Builder) ThunkForOverride(m, overridden *hierarchy.Method) (abi.ThunkInfo, error) {
	this, err := b.ThisAdjustment(m.Class, overridden.Class)
	if err != nil {
		return abi.ThunkInfo{}, err
	}
	ret := abi.NewReturnAdjustment(b.table.ByteAddressable(), overridden.ReturnClass, m.ReturnClass)
	if m.ReturnClass != abi.NoClass && overridden.ReturnClass != abi.NoClass &&
		m.ReturnClass != overridden.ReturnClass {
		ret, err = b.ReturnAdjustment(m.ReturnClass, overridden.ReturnClass)
		if err != nil {
			return abi.ThunkInfo{}, err
		}
	}
	method := abi.NoMethod
	if b.kind == abi.Microsoft {
		// The Microsoft convention keys thunks by the overridden slot
		// even when the adjustments coincide.
		method = overridden.ID
	}
	return abi.NewThunkInfo(this, ret, method), nil
}

// MemberPointerThunk builds the thunk a member-function-pointer value
// bound through base's view of derived carries. It always dispatches
// through the virtual slot, so the overridden method identity is part of
// the descriptor.
func (b *Builder) MemberPointerThunk(derived abi.ClassID, method *hierarchy.Method) (abi.ThunkInfo, error) {
	this, err := b.ThisAdjustment(derived, method.Class)
	if err != nil {
		return abi.ThunkInfo{}, err
	}
	t := abi.NewThunkInfo(this, abi.NewReturnAdjustment(b.table.ByteAddressable(), abi.NoClass, abi.NoClass), method.ID)
	t.MemberPointerThunk = true
	return t, nil
}

// ClassThunks collects every non-empty thunk the class's overriding
// methods need, deduplicated and in a deterministic order. Each entry is
// paired with the overriding method it forwards to.
func (b *Builder) ClassThunks(class abi.ClassID) ([]MethodThunk, error) {
	var out []MethodThunk
	for _, id := range b.table.Class(class).Methods {
		m := b.table.Method(id)
		if !m.Virtual {
			continue
		}
		for _, oid := range m.Overrides {
			overridden := b.table.Method(oid)
			ti, err := b.ThunkForOverride(m, overridden)
			if err != nil {
				return nil, fmt.Errorf("thunk for %s: %w", m.QualifiedName(b.table), err)
			}
			if ti.IsEmpty() {
				continue
			}
			out = append(out, MethodThunk{Method: m.ID, Thunk: ti})
		}
	}
	return dedupe(out), nil
}

// MethodThunk pairs a thunk descriptor with the overriding method it
// forwards to.
type MethodThunk struct {
	Method abi.MethodID
	Thunk  abi.ThunkInfo
}

// dedupe sorts thunks by (method, adjustments) and drops structurally
// equal duplicates. The order is total within one ABI's encoding, which
// is all a builder ever produces.
func dedupe(ts []MethodThunk) []MethodThunk {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		if !a.Thunk.This.Equal(b.Thunk.This) {
			return a.Thunk.This.Less(b.Thunk.This)
		}
		if !a.Thunk.Return.Equal(b.Thunk.Return) {
			return a.Thunk.Return.Less(b.Thunk.Return)
		}
		return a.Thunk.Method < b.Thunk.Method
	})
	out := ts[:0]
	for i, t := range ts {
		if i > 0 && t.Method == ts[i-1].Method && t.Thunk.Equal(ts[i-1].Thunk) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// vbtableEntry returns the 4-byte vbtable slot offset for a virtual base
// under the Microsoft convention. Entry zero is reserved for the
// self-offset, so bases start at 4.
func (b *Builder) vbtableEntry(class, vb abi.ClassID) int32 {
	idx := int32(1)
	for _, cand := range b.vbaseOrder(class) {
		if cand == vb {
			return idx * 4
		}
		idx++
	}
	return 0
}

func (b *Builder) vbaseOrder(class abi.ClassID) []abi.ClassID {
	var order []abi.ClassID
	seen := make(map[abi.ClassID]bool)
	var walk func(id abi.ClassID)
	walk = func(id abi.ClassID) {
		c := b.table.Class(id)
		for i := range c.Bases {
			if c.Bases[i].Virtual && !seen[c.Bases[i].Class] {
				seen[c.Bases[i].Class] = true
				order = append(order, c.Bases[i].Class)
			}
			walk(c.Bases[i].Class)
		}
	}
	walk(class)
	return order
}

func firstVirtualBase(path abi.BasePath) abi.ClassID {
	for _, s := range path {
		if s.Virtual {
			return s.Base
		}
	}
	return abi.NoClass
}

func (b *Builder) className(id abi.ClassID) string {
	if c := b.table.Class(id); c != nil {
		return c.Name
	}
	return fmt.Sprintf("class#%d", id)
}
