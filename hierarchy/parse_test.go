package hierarchy

import (
	"strings"
	"testing"
)

const diamondDesc = `
# diamond with a multi-versioned accessor
class Top size 8 align 8
class Left size 8 align 8 : virtual Top
class Right size 8 align 8 : virtual Top
class Bottom size 8 align 8 : Left, Right

method Top::get() virtual
method Bottom::get() virtual
method Bottom::self() virtual returns Bottom*

version Bottom::get() default
version Bottom::get() sse4.2
version Bottom::get() arch=ivybridge
`

func TestParseDescription(t *testing.T) {
	d, err := Parse(strings.NewReader(diamondDesc), 8, true)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := d.Table.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	bottom, ok := d.Table.ClassByName("Bottom")
	if !ok {
		t.Fatal("Bottom not interned")
	}
	if len(bottom.Bases) != 2 {
		t.Fatalf("Bottom bases: got %d, want 2", len(bottom.Bases))
	}
	left, _ := d.Table.ClassByName("Left")
	if !left.Bases[0].Virtual {
		t.Error("virtual base flag lost")
	}

	var self *Method
	for _, id := range bottom.Methods {
		if m := d.Table.Method(id); m.Name == "self" {
			self = m
		}
	}
	if self == nil {
		t.Fatal("Bottom::self not interned")
	}
	if self.ReturnClass != bottom.ID {
		t.Errorf("covariant return class: got %d, want %d", self.ReturnClass, bottom.ID)
	}

	if len(d.Versions) != 3 {
		t.Fatalf("versions: got %d, want 3", len(d.Versions))
	}
	wantTags := []string{"default", "sse4.2", "arch=ivybridge"}
	for i, v := range d.Versions {
		if v.Tag != wantTags[i] {
			t.Errorf("version[%d] tag: got %q, want %q", i, v.Tag, wantTags[i])
		}
		if m := d.Table.Method(v.Method); m == nil || m.Name != "get" {
			t.Errorf("version[%d] bound to wrong method", i)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown keyword", "struct S size 4 align 4"},
		{"bad class header", "class S sized 4 align 4"},
		{"unknown base", "class S size 4 align 4 : T"},
		{"duplicate class", "class S size 4 align 4\nclass S size 4 align 4"},
		{"method on unknown class", "method S::f() virtual"},
		{"method without params", "class S size 4 align 4\nmethod S::f virtual"},
		{"unknown attribute", "class S size 4 align 4\nmethod S::f() inline"},
		{"version of undeclared method", "class S size 4 align 4\nversion S::f() default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.src), 8, true); err == nil {
				t.Errorf("parse accepted %q", tt.src)
			}
		})
	}
}

func TestParseElementAddressed(t *testing.T) {
	d, err := Parse(strings.NewReader("class S size 2 align 1"), 1, false)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Table.ByteAddressable() {
		t.Error("element-addressed table reports byte addressable")
	}
	if d.Table.PointerSize() != 1 {
		t.Errorf("pointer size: got %d, want 1", d.Table.PointerSize())
	}
}
