package abi

// ThunkInfo composes the this adjustment and the optional return
// adjustment for one generated trampoline, keyed by the overridden method
// it stands in for.
type ThunkInfo struct {
	// This is the this-pointer adjustment the trampoline applies before
	// forwarding the call.
	This ThisAdjustment

	// Return is the return-value adjustment applied after the call, or
	// empty when the override's return type needs no correction.
	Return ReturnAdjustment

	// Method identifies the overridden method, when the ABI needs it to
	// distinguish thunks with equal adjustments. NoMethod otherwise.
	Method MethodID

	// MemberPointerThunk marks a thunk materialized for a member
	// function pointer value. Such a thunk must forward through the
	// virtual dispatch slot rather than call a concrete override, since
	// the override is not statically known at the pointer's point of
	// use. The flag changes emission only and is not part of the
	// thunk's adjustment identity.
	MemberPointerThunk bool
}

// NewThunkInfo builds a thunk descriptor from its three identity fields.
func NewThunkInfo(this ThisAdjustment, ret ReturnAdjustment, method MethodID) ThunkInfo {
	return ThunkInfo{This: this, Return: ret, Method: method}
}

// IsEmpty reports whether the thunk needs no trampoline at all: both
// adjustments empty and no overridden-method identity. Code generators
// must treat an empty ThunkInfo as "call the override directly" and never
// emit an identity trampoline for it.
func (t ThunkInfo) IsEmpty() bool {
	return t.This.IsEmpty() && t.Return.IsEmpty() && t.Method == NoMethod
}

// Equal is structural over the two adjustments and the overridden-method
// identity. MemberPointerThunk is an emission hint and excluded.
func (t ThunkInfo) Equal(o ThunkInfo) bool {
	return t.This.Equal(o.This) && t.Return.Equal(o.Return) && t.Method == o.Method
}
