// Package hierarchy maintains the class table the ABI layer works from:
// interned class and method identities, direct base links, record layout,
// and inheritance path search.
//
// A Table is filled by the semantic analyzer (AddClass/AddBase/AddMethod),
// then frozen with Finalize, which lays out every record and resolves
// overrides. All queries used by the thunk builder and the code generators
// are only valid on a finalized table.
package hierarchy

import (
	"fmt"

	"github.com/leaningtech/clang-duetto/abi"
)

// Class is one record type in the table.
type Class struct {
	ID   abi.ClassID
	Name string // qualified with "::" separators when namespaced

	// Own data contribution, excluding bases and the vtable pointer.
	// On element-addressed targets the unit is one typed-array element.
	OwnSize  int64
	OwnAlign int64

	Bases   []Base         // direct bases, declaration order
	Methods []abi.MethodID // methods declared by this class, declaration order

	// Layout results, valid after Finalize.
	layout classLayout
}

// Base is a direct base-class link.
type Base struct {
	Class   abi.ClassID
	Virtual bool

	// Offset of the base subobject. For a non-virtual base this is
	// relative to the containing class and statically fixed; for a
	// virtual base it is the position in the containing class's
	// complete object only. Valid after Finalize.
	Offset int64
}

// Method is one (possibly virtual) member function.
type Method struct {
	ID      abi.MethodID
	Class   abi.ClassID
	Name    string
	Params  string // parameter list key, e.g. "(int)"
	Virtual bool
	Const   bool

	// ReturnClass is the class a covariant-eligible pointer or
	// reference return designates, or NoClass for everything else.
	ReturnClass abi.ClassID

	// Overrides lists the base-class methods this one overrides,
	// nearest base first. Valid after Finalize.
	Overrides []abi.MethodID
}

// Key returns the signature key that identifies the method across a class
// hierarchy: name plus parameter list, return type excluded so covariant
// overrides still match.
func (m *Method) Key() string {
	return m.Name + m.Params
}

// QualifiedName returns "Class::name" for diagnostics.
func (m *Method) QualifiedName(t *Table) string {
	return t.Class(m.Class).Name + "::" + m.Name
}

// Table owns the interned classes and methods.
type Table struct {
	classes []*Class
	methods []*Method
	byName  map[string]abi.ClassID

	ptrSize         int64 // pointer slot size in addressable units
	byteAddressable bool

	finalized bool
}

// New creates an empty table for a target with the given pointer-slot
// size. byteAddressable selects whether displacements are raw byte
// offsets or element counts that must stay paired with class identities.
func New(ptrSize int64, byteAddressable bool) *Table {
	return &Table{
		byName:          make(map[string]abi.ClassID),
		ptrSize:         ptrSize,
		byteAddressable: byteAddressable,
	}
}

// ByteAddressable reports whether the target addresses raw bytes.
func (t *Table) ByteAddressable() bool { return t.byteAddressable }

// PointerSize returns the pointer slot size in addressable units.
func (t *Table) PointerSize() int64 { return t.ptrSize }

// AddClass interns a new class. The name must be unused.
func (t *Table) AddClass(name string, ownSize, ownAlign int64) (*Class, error) {
	if t.finalized {
		return nil, fmt.Errorf("class %s added after finalize", name)
	}
	if _, ok := t.byName[name]; ok {
		return nil, fmt.Errorf("duplicate class %s", name)
	}
	if ownAlign <= 0 {
		ownAlign = 1
	}
	c := &Class{
		ID:       abi.ClassID(len(t.classes) + 1),
		Name:     name,
		OwnSize:  ownSize,
		OwnAlign: ownAlign,
	}
	t.classes = append(t.classes, c)
	t.byName[name] = c.ID
	return c, nil
}

// AddBase records a direct base link, in declaration order.
func (t *Table) AddBase(class, base abi.ClassID, virtual bool) error {
	if t.finalized {
		return fmt.Errorf("base added after finalize")
	}
	c := t.Class(class)
	b := t.Class(base)
	if c == nil || b == nil {
		return fmt.Errorf("base link references unknown class (%d : %d)", class, base)
	}
	for _, prev := range c.Bases {
		if prev.Class == base && prev.Virtual == virtual {
			return fmt.Errorf("duplicate base %s of %s", b.Name, c.Name)
		}
	}
	c.Bases = append(c.Bases, Base{Class: base, Virtual: virtual})
	return nil
}

// AddMethod interns a member function of class.
func (t *Table) AddMethod(class abi.ClassID, name, params string, virtual bool, returnClass abi.ClassID) (*Method, error) {
	if t.finalized {
		return nil, fmt.Errorf("method %s added after finalize", name)
	}
	c := t.Class(class)
	if c == nil {
		return nil, fmt.Errorf("method %s on unknown class %d", name, class)
	}
	for _, id := range c.Methods {
		prev := t.Method(id)
		if prev.Name == name && prev.Params == params {
			return nil, fmt.Errorf("duplicate method %s::%s%s", c.Name, name, params)
		}
	}
	m := &Method{
		ID:          abi.MethodID(len(t.methods) + 1),
		Class:       class,
		Name:        name,
		Params:      params,
		Virtual:     virtual,
		ReturnClass: returnClass,
	}
	t.methods = append(t.methods, m)
	c.Methods = append(c.Methods, m.ID)
	return m, nil
}

// Class returns the class for an ID, or nil.
func (t *Table) Class(id abi.ClassID) *Class {
	if id <= 0 || int(id) > len(t.classes) {
		return nil
	}
	return t.classes[id-1]
}

// ClassByName looks a class up by its qualified name.
func (t *Table) ClassByName(name string) (*Class, bool) {
	id, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return t.Class(id), true
}

// Method returns the method for an ID, or nil.
func (t *Table) Method(id abi.MethodID) *Method {
	if id <= 0 || int(id) > len(t.methods) {
		return nil
	}
	return t.methods[id-1]
}

// Classes returns all classes in interning order.
func (t *Table) Classes() []*Class { return t.classes }

// Methods returns all methods in interning order.
func (t *Table) Methods() []*Method { return t.methods }

// VirtualMethods returns the virtual methods class itself declares, in
// declaration order.
func (t *Table) VirtualMethods(class abi.ClassID) []*Method {
	c := t.Class(class)
	if c == nil {
		return nil
	}
	var out []*Method
	for _, id := range c.Methods {
		if m := t.Method(id); m.Virtual {
			out = append(out, m)
		}
	}
	return out
}

// findMethod locates a method of class (not of its bases) by signature
// key.
func (t *Table) findMethod(class abi.ClassID, key string) *Method {
	c := t.Class(class)
	if c == nil {
		return nil
	}
	for _, id := range c.Methods {
		if m := t.Method(id); m.Key() == key {
			return m
		}
	}
	return nil
}
