package abi

import "testing"

func TestThunkInfoEmpty(t *testing.T) {
	var ti ThunkInfo
	if !ti.IsEmpty() {
		t.Error("zero ThunkInfo not empty")
	}

	ti = NewThunkInfo(NewThisAdjustment(ClassID(1), ClassID(2)), ReturnAdjustment{}, NoMethod)
	if !ti.IsEmpty() {
		t.Error("thunk with only class refs not empty")
	}

	ti.Method = MethodID(5)
	if ti.IsEmpty() {
		t.Error("thunk keyed by a method reported empty")
	}

	ti = ThunkInfo{This: ThisAdjustment{NonVirtual: 8}}
	if ti.IsEmpty() {
		t.Error("thunk with this adjustment reported empty")
	}
}

func TestThunkInfoRoundTrip(t *testing.T) {
	this := NewThisAdjustment(ClassID(1), ClassID(2))
	this.NonVirtual = 8
	this.Path = BasePath{{Class: 2, Base: 1}}
	ret := ReturnAdjustment{NonVirtual: 16, Virtual: ItaniumReturn(-24)}

	ti := NewThunkInfo(this, ret, MethodID(7))
	if !ti.This.Equal(this) || ti.This.NonVirtual != 8 || !ti.This.Path.Equal(this.Path) {
		t.Errorf("This read back as %+v", ti.This)
	}
	if ti.Return != ret {
		t.Errorf("Return read back as %+v, want %+v", ti.Return, ret)
	}
	if ti.Method != MethodID(7) {
		t.Errorf("Method read back as %d, want 7", ti.Method)
	}
	if ti.MemberPointerThunk {
		t.Error("constructor set the member-pointer flag")
	}
}

func TestThunkInfoEquality(t *testing.T) {
	a := NewThunkInfo(ThisAdjustment{NonVirtual: 8}, ReturnAdjustment{NonVirtual: 4}, MethodID(3))
	b := a
	b.MemberPointerThunk = true

	// The member-pointer flag is an emission hint, not identity.
	if !a.Equal(b) {
		t.Error("thunks differing only in the member-pointer flag compared unequal")
	}

	b.Method = MethodID(4)
	if a.Equal(b) {
		t.Error("thunks for different overridden methods compared equal")
	}
}
